package party

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/kasuganosora/kadim/server/apperr"
	"github.com/kasuganosora/kadim/server/config"
	"github.com/kasuganosora/kadim/server/db"
	"github.com/kasuganosora/kadim/server/events"
	"github.com/kasuganosora/kadim/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ActionJoinParty is the daily quest action reported when a character joins a party.
const ActionJoinParty = "join_party"

var (
	ErrInParty        = apperr.Conflict("already in a party, leave first")
	ErrNotInParty     = apperr.NotFound("not in a party")
	ErrNotLeader      = apperr.Forbidden("only the party leader can do that")
	ErrFull           = apperr.Conflict("party is full")
	ErrTargetInParty  = apperr.Conflict("player is already in a party")
	ErrPlayerNotFound = apperr.NotFound("player not found")
	ErrKickSelf       = apperr.Validation("cannot kick yourself, use leave instead")
	ErrNotMember      = apperr.NotFound("member not in party")
	ErrAlreadyLeader  = apperr.Validation("already the party leader")
	ErrBadLootMode    = apperr.Validation("invalid loot mode")
)

// QuestTracker receives daily quest progress.
type QuestTracker interface {
	Track(ctx context.Context, accountID int64, action string, amount int)
}

// Member is a roster entry with the character's current vitals.
type Member struct {
	CharID   int64                `json:"char_id"`
	Name     string               `json:"name"`
	IsLeader bool                 `json:"is_leader"`
	JoinedAt time.Time            `json:"joined_at"`
	Class    model.CharacterClass `json:"class"`
	Level    int                  `json:"level"`
	HP       int                  `json:"hp"`
	MaxHP    int                  `json:"max_hp"`
	Mana     int                  `json:"mana"`
	MaxMana  int                  `json:"max_mana"`
	Zone     int                  `json:"zone"`
}

// View is a party as shown to its members.
type View struct {
	ID         int64          `json:"id"`
	LeaderID   int64          `json:"leader_id"`
	LootMode   model.LootMode `json:"loot_mode"`
	ExpShare   bool           `json:"exp_share"`
	MaxMembers int            `json:"max_members"`
	Version    int64          `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	Members    []Member       `json:"members"`
}

// Settings holds the optional fields of a settings update.
type Settings struct {
	LootMode *model.LootMode `json:"loot_mode"`
	ExpShare *bool           `json:"exp_share"`
}

// Service manages party rosters. Every roster change is a transaction that
// bumps the party version.
type Service struct {
	db     *gorm.DB
	pub    events.Publisher
	quests QuestTracker
	cfg    config.GameConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new party Service. quests may be nil.
func NewService(db *gorm.DB, pub events.Publisher, quests QuestTracker, cfg config.GameConfig, logger *zap.Logger) *Service {
	return &Service{db: db, pub: pub, quests: quests, cfg: cfg, logger: logger, now: time.Now}
}

func (svc *Service) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return db.RunTx(ctx, svc.db, svc.cfg.TxRetries, fn)
}

func membersOrdered(q *gorm.DB) *gorm.DB { return q.Order("joined_at, id") }

// partyOf returns the live party charID belongs to.
func partyOf(tx *gorm.DB, charID int64) (*model.Party, error) {
	var m model.PartyMember
	err := tx.Where("char_id = ?", charID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotInParty
	}
	if err != nil {
		return nil, err
	}
	var p model.Party
	err = tx.Preload("Members", membersOrdered).
		Where("id = ? AND disbanded = ?", m.PartyID, false).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotInParty
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func leaderParty(tx *gorm.DB, charID int64) (*model.Party, error) {
	p, err := partyOf(tx, charID)
	if err != nil {
		return nil, err
	}
	if p.LeaderID != charID {
		return nil, ErrNotLeader
	}
	return p, nil
}

func memberOf(p *model.Party, charID int64) (*model.PartyMember, bool) {
	for i := range p.Members {
		if p.Members[i].CharID == charID {
			return &p.Members[i], true
		}
	}
	return nil, false
}

func (svc *Service) view(tx *gorm.DB, p *model.Party) (*View, error) {
	ids := make([]int64, len(p.Members))
	for i, m := range p.Members {
		ids[i] = m.CharID
	}
	var chars []model.Character
	if err := tx.Where("id IN ?", ids).Find(&chars).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]*model.Character, len(chars))
	for i := range chars {
		byID[chars[i].ID] = &chars[i]
	}
	v := &View{
		ID:         p.ID,
		LeaderID:   p.LeaderID,
		LootMode:   p.LootMode,
		ExpShare:   p.ExpShare,
		MaxMembers: p.MaxMembers,
		Version:    p.Version,
		CreatedAt:  p.CreatedAt,
		Members:    make([]Member, 0, len(p.Members)),
	}
	for _, m := range p.Members {
		mv := Member{CharID: m.CharID, Name: m.CharName, IsLeader: m.IsLeader, JoinedAt: m.JoinedAt}
		if ch, ok := byID[m.CharID]; ok {
			mv.Name = ch.Name
			mv.Class = ch.Class
			mv.Level = ch.Level
			mv.HP, mv.MaxHP = ch.HP, ch.MaxHP
			mv.Mana, mv.MaxMana = ch.Mana, ch.MaxMana
			mv.Zone = ch.Zone
		}
		v.Members = append(v.Members, mv)
	}
	return v, nil
}

func accountsOf(tx *gorm.DB, charIDs ...int64) ([]int64, error) {
	var ids []int64
	err := tx.Model(&model.Character{}).Where("id IN ?", charIDs).Pluck("account_id", &ids).Error
	return ids, err
}

func (v *View) charIDs() []int64 {
	ids := make([]int64, len(v.Members))
	for i, m := range v.Members {
		ids[i] = m.CharID
	}
	return ids
}

// change runs fn on a party inside a transaction, bumps the version and
// returns the fresh view plus the accounts to notify. fn returns the extra
// character ids to notify (removed members).
type change func(tx *gorm.DB, p *model.Party, cols map[string]any) ([]int64, error)

func (svc *Service) apply(ctx context.Context, load func(tx *gorm.DB) (*model.Party, error), fn change) (*View, []int64, error) {
	var (
		v          *View
		recipients []int64
	)
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		p, err := load(tx)
		if err != nil {
			return err
		}
		cols := map[string]any{}
		extra, err := fn(tx, p, cols)
		if err != nil {
			return err
		}
		if err := db.UpdateVersioned(tx, &model.Party{}, p.ID, p.Version, cols); err != nil {
			return err
		}
		var fresh model.Party
		if err := tx.Preload("Members", membersOrdered).First(&fresh, p.ID).Error; err != nil {
			return err
		}
		if v, err = svc.view(tx, &fresh); err != nil {
			return err
		}
		recipients, err = accountsOf(tx, append(v.charIDs(), extra...)...)
		return err
	})
	return v, recipients, err
}

// Create starts a party led by charID.
func (svc *Service) Create(ctx context.Context, charID int64) (*View, error) {
	var v *View
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		ch := model.Character{}
		if err := tx.First(&ch, charID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPlayerNotFound
			}
			return err
		}
		if _, err := partyOf(tx, charID); err == nil {
			return ErrInParty
		} else if !errors.Is(err, ErrNotInParty) {
			return err
		}
		p := &model.Party{
			LeaderID:   charID,
			LootMode:   model.LootFreeForAll,
			ExpShare:   true,
			MaxMembers: svc.cfg.MaxPartySize,
		}
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		leader := model.PartyMember{PartyID: p.ID, CharID: charID, CharName: ch.Name, IsLeader: true, JoinedAt: svc.now()}
		if err := tx.Create(&leader).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return ErrInParty
			}
			return err
		}
		p.Members = []model.PartyMember{leader}
		var err error
		v, err = svc.view(tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Info("party created", zap.Int64("party_id", v.ID), zap.Int64("leader", charID))
	return v, nil
}

// Mine returns the party of charID.
func (svc *Service) Mine(ctx context.Context, charID int64) (*View, error) {
	tx := svc.db.WithContext(ctx)
	p, err := partyOf(tx, charID)
	if err != nil {
		return nil, err
	}
	return svc.view(tx, p)
}

// resolveTarget finds a character by numeric id, character name, or account
// username (that account's most recently played character).
func resolveTarget(tx *gorm.DB, target string) (*model.Character, error) {
	target = strings.TrimSpace(target)
	var ch model.Character
	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		err = tx.First(&ch, id).Error
		if err == nil {
			return &ch, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	err := tx.Where("name = ?", target).First(&ch).Error
	if err == nil {
		return &ch, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	err = tx.Joins("JOIN accounts ON accounts.id = characters.account_id").
		Where("accounts.username = ?", target).
		Order("characters.last_played_at DESC").First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// Invite adds target to the caller's party directly. target is a character
// id, character name or account username.
func (svc *Service) Invite(ctx context.Context, charID int64, target string) (*View, error) {
	var joined *model.Character
	v, recipients, err := svc.apply(ctx,
		func(tx *gorm.DB) (*model.Party, error) { return leaderParty(tx, charID) },
		func(tx *gorm.DB, p *model.Party, _ map[string]any) ([]int64, error) {
			ch, err := resolveTarget(tx, target)
			if err != nil {
				return nil, err
			}
			if len(p.Members) >= p.MaxMembers {
				return nil, ErrFull
			}
			var n int64
			if err := tx.Model(&model.PartyMember{}).Where("char_id = ?", ch.ID).Count(&n).Error; err != nil {
				return nil, err
			}
			if n > 0 {
				return nil, ErrTargetInParty
			}
			m := model.PartyMember{PartyID: p.ID, CharID: ch.ID, CharName: ch.Name, JoinedAt: svc.now()}
			if err := tx.Create(&m).Error; err != nil {
				if db.IsUniqueViolation(err) {
					return nil, ErrTargetInParty
				}
				return nil, err
			}
			joined = ch
			return nil, nil
		})
	if err != nil {
		return nil, err
	}
	svc.pub.Publish(ctx, events.PartyUpdated, v, recipients...)
	if svc.quests != nil {
		svc.quests.Track(ctx, joined.AccountID, ActionJoinParty, 1)
	}
	svc.logger.Info("party member added", zap.Int64("party_id", v.ID), zap.Int64("char_id", joined.ID))
	return v, nil
}

// Leave removes charID from its party. A leader leaving alone disbands the
// party and nil is returned; otherwise leadership passes to the earliest
// joined remaining member.
func (svc *Service) Leave(ctx context.Context, charID int64) (*View, error) {
	var disband bool
	v, recipients, err := svc.apply(ctx,
		func(tx *gorm.DB) (*model.Party, error) { return partyOf(tx, charID) },
		func(tx *gorm.DB, p *model.Party, cols map[string]any) ([]int64, error) {
			if p.LeaderID == charID && len(p.Members) == 1 {
				disband = true
				return []int64{charID}, svc.disband(tx, p, cols)
			}
			if err := tx.Where("party_id = ? AND char_id = ?", p.ID, charID).Delete(&model.PartyMember{}).Error; err != nil {
				return nil, err
			}
			if p.LeaderID == charID {
				for _, m := range p.Members {
					if m.CharID != charID {
						if err := setLeader(tx, p, m.CharID, cols); err != nil {
							return nil, err
						}
						break
					}
				}
			}
			return []int64{charID}, nil
		})
	if err != nil {
		return nil, err
	}
	if disband {
		svc.pub.Publish(ctx, events.PartyDisbanded, map[string]int64{"party_id": v.ID}, recipients...)
		svc.logger.Info("party disbanded", zap.Int64("party_id", v.ID), zap.String("reason", "leader left"))
		return nil, nil
	}
	svc.pub.Publish(ctx, events.PartyUpdated, v, recipients...)
	return v, nil
}

func setLeader(tx *gorm.DB, p *model.Party, newLeader int64, cols map[string]any) error {
	if err := tx.Model(&model.PartyMember{}).Where("party_id = ?", p.ID).
		Update("is_leader", gorm.Expr("char_id = ?", newLeader)).Error; err != nil {
		return err
	}
	cols["leader_id"] = newLeader
	return nil
}

func (svc *Service) disband(tx *gorm.DB, p *model.Party, cols map[string]any) error {
	if err := tx.Where("party_id = ?", p.ID).Delete(&model.PartyMember{}).Error; err != nil {
		return err
	}
	cols["disbanded"] = true
	cols["disbanded_at"] = svc.now()
	return nil
}

// Kick removes memberID from the caller's party. The leader stays even when
// left alone.
func (svc *Service) Kick(ctx context.Context, charID, memberID int64) (*View, error) {
	if charID == memberID {
		return nil, ErrKickSelf
	}
	v, recipients, err := svc.apply(ctx,
		func(tx *gorm.DB) (*model.Party, error) { return leaderParty(tx, charID) },
		func(tx *gorm.DB, p *model.Party, _ map[string]any) ([]int64, error) {
			if _, ok := memberOf(p, memberID); !ok {
				return nil, ErrNotMember
			}
			if err := tx.Where("party_id = ? AND char_id = ?", p.ID, memberID).Delete(&model.PartyMember{}).Error; err != nil {
				return nil, err
			}
			return []int64{memberID}, nil
		})
	if err != nil {
		return nil, err
	}
	svc.pub.Publish(ctx, events.PartyUpdated, v, recipients...)
	svc.logger.Info("party member kicked", zap.Int64("party_id", v.ID), zap.Int64("char_id", memberID))
	return v, nil
}

// Transfer hands leadership to another member.
func (svc *Service) Transfer(ctx context.Context, charID, newLeaderID int64) (*View, error) {
	if charID == newLeaderID {
		return nil, ErrAlreadyLeader
	}
	v, recipients, err := svc.apply(ctx,
		func(tx *gorm.DB) (*model.Party, error) { return leaderParty(tx, charID) },
		func(tx *gorm.DB, p *model.Party, cols map[string]any) ([]int64, error) {
			if _, ok := memberOf(p, newLeaderID); !ok {
				return nil, ErrNotMember
			}
			return nil, setLeader(tx, p, newLeaderID, cols)
		})
	if err != nil {
		return nil, err
	}
	svc.pub.Publish(ctx, events.PartyUpdated, v, recipients...)
	return v, nil
}

// Disband dissolves the caller's party.
func (svc *Service) Disband(ctx context.Context, charID int64) error {
	var members []int64
	v, recipients, err := svc.apply(ctx,
		func(tx *gorm.DB) (*model.Party, error) { return leaderParty(tx, charID) },
		func(tx *gorm.DB, p *model.Party, cols map[string]any) ([]int64, error) {
			for _, m := range p.Members {
				members = append(members, m.CharID)
			}
			return members, svc.disband(tx, p, cols)
		})
	if err != nil {
		return err
	}
	svc.pub.Publish(ctx, events.PartyDisbanded, map[string]int64{"party_id": v.ID}, recipients...)
	svc.logger.Info("party disbanded", zap.Int64("party_id", v.ID), zap.Int("members", len(members)))
	return nil
}

// UpdateSettings changes loot mode and exp sharing.
func (svc *Service) UpdateSettings(ctx context.Context, charID int64, s Settings) (*View, error) {
	if s.LootMode != nil && !s.LootMode.Valid() {
		return nil, ErrBadLootMode
	}
	v, recipients, err := svc.apply(ctx,
		func(tx *gorm.DB) (*model.Party, error) { return leaderParty(tx, charID) },
		func(_ *gorm.DB, _ *model.Party, cols map[string]any) ([]int64, error) {
			if s.LootMode != nil {
				cols["loot_mode"] = *s.LootMode
			}
			if s.ExpShare != nil {
				cols["exp_share"] = *s.ExpShare
			}
			return nil, nil
		})
	if err != nil {
		return nil, err
	}
	svc.pub.Publish(ctx, events.PartyUpdated, v, recipients...)
	return v, nil
}
