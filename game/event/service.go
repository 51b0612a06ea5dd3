// Package event schedules server events and derives the reward boosts they
// grant.
package event

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/kasuganosora/kadim/server/apperr"
	"github.com/kasuganosora/kadim/server/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	upcomingLimit = 10
	maxMultiplier = 10.0
)

var (
	ErrNotFound      = apperr.NotFound("event not found")
	ErrBadName       = apperr.Validation("name must be 1-64 characters")
	ErrBadType       = apperr.Validation("unknown event type")
	ErrBadWindow     = apperr.Validation("end_time must be after start_time")
	ErrBadMultiplier = apperr.Validation("bonus_multiplier must be between 1 and 10")
	ErrBadLevels     = apperr.Validation("invalid level range")
)

// Input describes a new event. Zero values take the defaults: multiplier 1,
// every zone, the full level range.
type Input struct {
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	Type            model.GameEventType `json:"event_type"`
	StartTime       time.Time           `json:"start_time"`
	EndTime         time.Time           `json:"end_time"`
	BonusMultiplier float64             `json:"bonus_multiplier"`
	TargetZones     []int               `json:"target_zones"`
	MinLevel        int                 `json:"min_level"`
	MaxLevel        int                 `json:"max_level"`
	Rewards         model.EventRewards  `json:"rewards"`
}

// Patch changes the fields that are set.
type Patch struct {
	Name            *string              `json:"name"`
	Description     *string              `json:"description"`
	StartTime       *time.Time           `json:"start_time"`
	EndTime         *time.Time           `json:"end_time"`
	Active          *bool                `json:"is_active"`
	BonusMultiplier *float64             `json:"bonus_multiplier"`
	TargetZones     *[]int               `json:"target_zones"`
	MinLevel        *int                 `json:"min_level"`
	MaxLevel        *int                 `json:"max_level"`
	Rewards         *model.EventRewards  `json:"rewards"`
	Type            *model.GameEventType `json:"event_type"`
}

// Summary names a running event.
type Summary struct {
	ID     int64               `json:"id"`
	Name   string              `json:"name"`
	Type   model.GameEventType `json:"type"`
	EndsAt time.Time           `json:"ends_at"`
}

// Bonuses are the multipliers in effect for one character.
type Bonuses struct {
	Exp    float64   `json:"exp_bonus"`
	Gold   float64   `json:"gold_bonus"`
	Drop   float64   `json:"drop_bonus"`
	Active []Summary `json:"active_events"`
}

// Service stores events in the database.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new event Service.
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger, now: time.Now}
}

func validate(e *model.GameEvent) error {
	if n := len(e.Name); n == 0 || n > 64 {
		return ErrBadName
	}
	if !e.Type.Valid() {
		return ErrBadType
	}
	if !e.EndTime.After(e.StartTime) {
		return ErrBadWindow
	}
	if e.BonusMultiplier < 1 || e.BonusMultiplier > maxMultiplier || math.IsNaN(e.BonusMultiplier) {
		return ErrBadMultiplier
	}
	if e.MinLevel < 1 || e.MaxLevel > model.MaxCharLevel || e.MinLevel > e.MaxLevel {
		return ErrBadLevels
	}
	return nil
}

func running(q *gorm.DB, now time.Time) *gorm.DB {
	now = now.UTC()
	return q.Where("active = ? AND start_time <= ? AND end_time >= ?", true, now, now)
}

// Active returns the running events, the soonest to end first.
func (svc *Service) Active(ctx context.Context) ([]model.GameEvent, error) {
	var out []model.GameEvent
	err := running(svc.db.WithContext(ctx), svc.now()).Order("end_time, id").Find(&out).Error
	return out, err
}

// Upcoming returns the next enabled events that have not started.
func (svc *Service) Upcoming(ctx context.Context) ([]model.GameEvent, error) {
	var out []model.GameEvent
	err := svc.db.WithContext(ctx).
		Where("active = ? AND start_time > ?", true, svc.now().UTC()).
		Order("start_time, id").Limit(upcomingLimit).Find(&out).Error
	return out, err
}

// Get returns one event.
func (svc *Service) Get(ctx context.Context, id int64) (*model.GameEvent, error) {
	return load(svc.db.WithContext(ctx), id)
}

func load(tx *gorm.DB, id int64) (*model.GameEvent, error) {
	var e model.GameEvent
	err := tx.First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create schedules an enabled event.
func (svc *Service) Create(ctx context.Context, in Input) (*model.GameEvent, error) {
	e := &model.GameEvent{
		Name:            strings.TrimSpace(in.Name),
		Description:     in.Description,
		Type:            in.Type,
		StartTime:       in.StartTime.UTC(),
		EndTime:         in.EndTime.UTC(),
		Active:          true,
		BonusMultiplier: in.BonusMultiplier,
		TargetZones:     datatypes.NewJSONType(in.TargetZones),
		MinLevel:        in.MinLevel,
		MaxLevel:        in.MaxLevel,
		Rewards:         datatypes.NewJSONType(in.Rewards),
	}
	if e.BonusMultiplier == 0 {
		e.BonusMultiplier = 1
	}
	if e.MinLevel == 0 {
		e.MinLevel = 1
	}
	if e.MaxLevel == 0 {
		e.MaxLevel = model.MaxCharLevel
	}
	if err := validate(e); err != nil {
		return nil, err
	}
	if err := svc.db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	svc.logger.Info("event scheduled", zap.Int64("event_id", e.ID), zap.String("type", string(e.Type)),
		zap.Time("start", e.StartTime), zap.Time("end", e.EndTime))
	return e, nil
}

// Update applies p to an event.
func (svc *Service) Update(ctx context.Context, id int64, p Patch) (*model.GameEvent, error) {
	var e *model.GameEvent
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if e, err = load(tx, id); err != nil {
			return err
		}
		apply(e, p)
		if err := validate(e); err != nil {
			return err
		}
		return tx.Save(e).Error
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func apply(e *model.GameEvent, p Patch) {
	if p.Name != nil {
		e.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Type != nil {
		e.Type = *p.Type
	}
	if p.StartTime != nil {
		e.StartTime = p.StartTime.UTC()
	}
	if p.EndTime != nil {
		e.EndTime = p.EndTime.UTC()
	}
	if p.Active != nil {
		e.Active = *p.Active
	}
	if p.BonusMultiplier != nil {
		e.BonusMultiplier = *p.BonusMultiplier
	}
	if p.TargetZones != nil {
		e.TargetZones = datatypes.NewJSONType(*p.TargetZones)
	}
	if p.MinLevel != nil {
		e.MinLevel = *p.MinLevel
	}
	if p.MaxLevel != nil {
		e.MaxLevel = *p.MaxLevel
	}
	if p.Rewards != nil {
		e.Rewards = datatypes.NewJSONType(*p.Rewards)
	}
}

// Delete removes an event.
func (svc *Service) Delete(ctx context.Context, id int64) error {
	res := svc.db.WithContext(ctx).Delete(&model.GameEvent{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Bonuses returns the boosts a character at level in zone receives now. Each
// kind takes the largest multiplier among the running events that apply.
func (svc *Service) Bonuses(ctx context.Context, zone, level int) (*Bonuses, error) {
	return bonusesAt(svc.db.WithContext(ctx), svc.now(), zone, level)
}

func bonusesAt(tx *gorm.DB, now time.Time, zone, level int) (*Bonuses, error) {
	var evs []model.GameEvent
	if err := running(tx, now).Order("end_time, id").Find(&evs).Error; err != nil {
		return nil, err
	}
	b := &Bonuses{Exp: 1, Gold: 1, Drop: 1, Active: make([]Summary, 0, len(evs))}
	for i := range evs {
		e := &evs[i]
		b.Active = append(b.Active, Summary{ID: e.ID, Name: e.Name, Type: e.Type, EndsAt: e.EndTime})
		if !e.Applies(zone, level) {
			continue
		}
		switch e.Type {
		case model.EventExpBoost:
			b.Exp = math.Max(b.Exp, e.BonusMultiplier)
		case model.EventGoldBoost:
			b.Gold = math.Max(b.Gold, e.BonusMultiplier)
		case model.EventDropBoost:
			b.Drop = math.Max(b.Drop, e.BonusMultiplier)
		}
	}
	return b, nil
}

// Multipliers returns the gold and exp boosts for ch, read inside tx.
func (svc *Service) Multipliers(tx *gorm.DB, ch *model.Character) (gold, exp float64, err error) {
	b, err := bonusesAt(tx, svc.now(), ch.Zone, ch.Level)
	if err != nil {
		return 1, 1, err
	}
	return b.Gold, b.Exp, nil
}

// SeedDefaults schedules the launch events when no event exists yet and
// returns how many were created.
func (svc *Service) SeedDefaults(ctx context.Context) (int, error) {
	var n int64
	if err := svc.db.WithContext(ctx).Model(&model.GameEvent{}).Count(&n).Error; err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	now := svc.now().UTC()
	defaults := []Input{
		{
			Name:            "Double EXP Weekend",
			Description:     "Experience is doubled in every zone.",
			Type:            model.EventExpBoost,
			StartTime:       now,
			EndTime:         now.Add(7 * 24 * time.Hour),
			BonusMultiplier: 2,
		},
		{
			Name:            "Gold Rain",
			Description:     "Enemies drop 50% more gold.",
			Type:            model.EventGoldBoost,
			StartTime:       now.Add(24 * time.Hour),
			EndTime:         now.Add(7 * 24 * time.Hour),
			BonusMultiplier: 1.5,
		},
	}
	for _, in := range defaults {
		if _, err := svc.Create(ctx, in); err != nil {
			return 0, err
		}
	}
	svc.logger.Info("default events seeded", zap.Int("count", len(defaults)))
	return len(defaults), nil
}
