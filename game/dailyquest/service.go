package dailyquest

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/kasuganosora/kadim/server/apperr"
	"github.com/kasuganosora/kadim/server/config"
	"github.com/kasuganosora/kadim/server/db"
	"github.com/kasuganosora/kadim/server/game/premium"
	"github.com/kasuganosora/kadim/server/game/wallet"
	"github.com/kasuganosora/kadim/server/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrBadType         = apperr.Validation("unknown quest type")
	ErrBadAmount       = apperr.Validation("amount must be positive")
	ErrQuestNotFound   = apperr.NotFound("quest not found")
	ErrNotCompleted    = apperr.Validation("quest not completed")
	ErrAlreadyClaimed  = apperr.Conflict("reward already claimed")
	ErrNotAllCompleted = apperr.Validation("not all quests are completed")
	ErrBonusClaimed    = apperr.Conflict("bonus already claimed")
	ErrNoCharacter     = apperr.NotFound("character not found")
)

// View is one day of quests.
type View struct {
	Date         string                  `json:"date"`
	Quests       []model.DailyQuestEntry `json:"quests"`
	AllCompleted bool                    `json:"all_completed"`
	BonusClaimed bool                    `json:"bonus_claimed"`
	BonusReward  model.QuestReward       `json:"bonus_reward"`
}

// ClaimResult reports what a claim paid out.
type ClaimResult struct {
	Reward    model.QuestReward `json:"reward"`
	CharID    int64             `json:"char_id"`
	CharGold  int64             `json:"char_gold"`
	CharExp   int64             `json:"char_exp"`
	TotalGems int64             `json:"total_gems"`
	Day       *View             `json:"day"`
}

// Boosts reports event reward multipliers for a character, read inside tx.
type Boosts interface {
	Multipliers(tx *gorm.DB, ch *model.Character) (gold, exp float64, err error)
}

// Service keeps per-account daily quest progress.
type Service struct {
	db      *gorm.DB
	boosts  Boosts
	cfg     config.GameConfig
	logger  *zap.Logger
	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
}

// NewService creates a new daily quest Service.
func NewService(db *gorm.DB, cfg config.GameConfig, logger *zap.Logger) *Service {
	return &Service{db: db, cfg: cfg, logger: logger, now: time.Now, shuffle: rand.Shuffle}
}

// UseBoosts applies event multipliers on top of premium ones to quest rewards.
func (svc *Service) UseBoosts(b Boosts) { svc.boosts = b }

func (svc *Service) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return db.RunTx(ctx, svc.db, svc.cfg.TxRetries, fn)
}

func (svc *Service) today() string { return svc.now().UTC().Format("2006-01-02") }

func viewOf(p *model.DailyQuestProgress) *View {
	quests := p.Quests.Data()
	if quests == nil {
		quests = []model.DailyQuestEntry{}
	}
	return &View{
		Date:         p.Date,
		Quests:       quests,
		AllCompleted: p.AllCompleted,
		BonusClaimed: p.BonusClaimed,
		BonusReward:  Bonus,
	}
}

// character returns charID if it belongs to the account, or the account's
// most recently played character when charID is zero.
func character(tx *gorm.DB, accountID, charID int64) (*model.Character, error) {
	var ch model.Character
	q := tx.Where("account_id = ?", accountID)
	if charID != 0 {
		q = q.Where("id = ?", charID)
	}
	err := q.Order("last_played_at DESC, id DESC").First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoCharacter
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// load returns today's progress row, drawing quests when there is none.
func (svc *Service) load(tx *gorm.DB, accountID, charID int64) (*model.DailyQuestProgress, error) {
	date := svc.today()
	var p model.DailyQuestProgress
	err := tx.Where("account_id = ? AND date = ?", accountID, date).First(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	level := 1
	if ch, err := character(tx, accountID, charID); err == nil {
		level = ch.Level
	} else if !errors.Is(err, ErrNoCharacter) {
		return nil, err
	}
	count := svc.cfg.DailyQuestCount
	if count <= 0 {
		count = 5
	}
	p = model.DailyQuestProgress{
		AccountID: accountID,
		Date:      date,
		Quests:    datatypes.NewJSONType(entriesOf(draw(level, count, svc.shuffle))),
	}
	if err := tx.Create(&p).Error; err != nil {
		if db.IsUniqueViolation(err) {
			// another request drew today's quests first
			return nil, db.ErrStaleWrite
		}
		return nil, err
	}
	return &p, nil
}

func save(tx *gorm.DB, p *model.DailyQuestProgress, quests []model.DailyQuestEntry, cols map[string]any) error {
	if cols == nil {
		cols = map[string]any{}
	}
	cols["quests"] = datatypes.NewJSONType(quests)
	if err := db.UpdateVersioned(tx, &model.DailyQuestProgress{}, p.ID, p.Version, cols); err != nil {
		return err
	}
	p.Quests = datatypes.NewJSONType(quests)
	p.Version++
	return nil
}

// Progress returns today's quests, drawing them on the first call of the day
// for the level of charID (or the latest character when zero).
func (svc *Service) Progress(ctx context.Context, accountID, charID int64) (*View, error) {
	var p *model.DailyQuestProgress
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		var err error
		p, err = svc.load(tx, accountID, charID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return viewOf(p), nil
}

// Update adds amount to every incomplete quest of type typ, clamping at the
// target.
func (svc *Service) Update(ctx context.Context, accountID int64, typ string, amount int) (*View, error) {
	if !ValidType(typ) {
		return nil, ErrBadType
	}
	if amount <= 0 {
		return nil, ErrBadAmount
	}
	var p *model.DailyQuestProgress
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		var err error
		if p, err = svc.load(tx, accountID, 0); err != nil {
			return err
		}
		quests := p.Quests.Data()
		changed := false
		all := len(quests) > 0
		for i := range quests {
			q := &quests[i]
			if q.Type == typ && !q.Completed {
				q.Current += amount
				if q.Current >= q.Target {
					q.Current = q.Target
					q.Completed = true
				}
				changed = true
			}
			all = all && q.Completed
		}
		if !changed {
			return nil
		}
		if err := save(tx, p, quests, map[string]any{"all_completed": all}); err != nil {
			return err
		}
		p.AllCompleted = all
		return nil
	})
	if err != nil {
		return nil, err
	}
	return viewOf(p), nil
}

// Track reports progress from other services. Failures are logged, never
// returned.
func (svc *Service) Track(ctx context.Context, accountID int64, action string, amount int) {
	if _, err := svc.Update(ctx, accountID, action, amount); err != nil {
		svc.logger.Warn("daily quest track failed",
			zap.Int64("account_id", accountID), zap.String("action", action), zap.Error(err))
	}
}

// pay grants r to the character (gold and exp scaled by the account's premium
// tier) and gems to the account.
func (svc *Service) pay(tx *gorm.DB, accountID, charID int64, r model.QuestReward, scale bool) (*ClaimResult, error) {
	ch, err := character(tx, accountID, charID)
	if err != nil {
		return nil, err
	}
	acc, err := wallet.Account(tx, accountID)
	if err != nil {
		return nil, err
	}
	paid := r
	if scale {
		gm, em := premium.Multipliers(acc.ActiveTier(svc.now()))
		if svc.boosts != nil {
			bg, be, err := svc.boosts.Multipliers(tx, ch)
			if err != nil {
				return nil, err
			}
			gm, em = gm*bg, em*be
		}
		paid.Gold = premium.Scale(r.Gold, gm)
		paid.Exp = premium.Scale(r.Exp, em)
	}
	if err := wallet.Grant(tx, ch, paid.Gold, paid.Exp); err != nil {
		return nil, err
	}
	if err := wallet.AdjustGems(tx, acc, paid.Gems); err != nil {
		return nil, err
	}
	return &ClaimResult{
		Reward:    paid,
		CharID:    ch.ID,
		CharGold:  ch.Gold,
		CharExp:   ch.Exp,
		TotalGems: acc.Gems,
	}, nil
}

// Claim pays out a completed quest once.
func (svc *Service) Claim(ctx context.Context, accountID, charID int64, questID string) (*ClaimResult, error) {
	var (
		p   *model.DailyQuestProgress
		res *ClaimResult
	)
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		var err error
		if p, err = svc.load(tx, accountID, charID); err != nil {
			return err
		}
		quests := p.Quests.Data()
		idx := -1
		for i := range quests {
			if quests[i].QuestID == questID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrQuestNotFound
		}
		q := &quests[idx]
		if !q.Completed {
			return ErrNotCompleted
		}
		if q.Claimed {
			return ErrAlreadyClaimed
		}
		q.Claimed = true
		if err := save(tx, p, quests, nil); err != nil {
			return err
		}
		res, err = svc.pay(tx, accountID, charID, q.Reward, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.Day = viewOf(p)
	svc.logger.Info("daily quest claimed",
		zap.Int64("account_id", accountID), zap.String("quest", questID), zap.Int64("gold", res.Reward.Gold))
	return res, nil
}

// ClaimBonus pays the all-complete bonus once per day.
func (svc *Service) ClaimBonus(ctx context.Context, accountID, charID int64) (*ClaimResult, error) {
	var (
		p   *model.DailyQuestProgress
		res *ClaimResult
	)
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		var err error
		if p, err = svc.load(tx, accountID, charID); err != nil {
			return err
		}
		if !p.AllCompleted {
			return ErrNotAllCompleted
		}
		if p.BonusClaimed {
			return ErrBonusClaimed
		}
		if err := save(tx, p, p.Quests.Data(), map[string]any{"bonus_claimed": true}); err != nil {
			return err
		}
		p.BonusClaimed = true
		res, err = svc.pay(tx, accountID, charID, Bonus, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.Day = viewOf(p)
	return res, nil
}
