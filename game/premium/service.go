package premium

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kasuganosora/kadim/server/apperr"
	"github.com/kasuganosora/kadim/server/audit"
	"github.com/kasuganosora/kadim/server/config"
	"github.com/kasuganosora/kadim/server/db"
	"github.com/kasuganosora/kadim/server/game/wallet"
	"github.com/kasuganosora/kadim/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// claimHistoryDays is how long daily claim rows are kept.
const claimHistoryDays = 30

var (
	ErrBadPackage     = apperr.Validation("invalid package")
	ErrDowngrade      = apperr.Validation("cannot downgrade, wait for the current premium to expire")
	ErrNoPremium      = apperr.Validation("no active premium")
	ErrAlreadyClaimed = apperr.Conflict("already claimed today")
)

// Mailer delivers a system notice to an account.
type Mailer interface {
	SendAccountMail(ctx context.Context, accountID int64, subject, message string) error
}

// Status is an account's premium standing.
type Status struct {
	Tier          model.PremiumTier `json:"tier"`
	ExpiresAt     *time.Time        `json:"expires_at"`
	TotalSpent    int64             `json:"total_spent"`
	Gems          int64             `json:"gems"`
	Benefits      *Benefits         `json:"benefits"`
	CanClaimDaily bool              `json:"can_claim_daily"`
}

// ClaimResult reports a daily stipend.
type ClaimResult struct {
	Tier      model.PremiumTier `json:"tier"`
	Gems      int64             `json:"gems_received"`
	TotalGems int64             `json:"total_gems"`
}

// Service sells premium tiers and pays the daily gem stipend. Tier and
// expiry live on the account row.
type Service struct {
	db     *gorm.DB
	mailer Mailer
	audit  audit.Recorder
	cfg    config.GameConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new premium Service. mailer may be nil.
func NewService(db *gorm.DB, mailer Mailer, rec audit.Recorder, cfg config.GameConfig, logger *zap.Logger) *Service {
	return &Service{db: db, mailer: mailer, audit: rec, cfg: cfg, logger: logger, now: time.Now}
}

func (svc *Service) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return db.RunTx(ctx, svc.db, svc.cfg.TxRetries, fn)
}

func day(t time.Time) string { return t.UTC().Format("2006-01-02") }

// expire clears a lapsed tier on acc.
func expire(tx *gorm.DB, acc *model.Account, now time.Time) error {
	if acc.PremiumTier == model.TierNone || acc.ActiveTier(now) != model.TierNone {
		return nil
	}
	if err := db.UpdateVersioned(tx, &model.Account{}, acc.ID, acc.Version, map[string]any{
		"premium_tier":  model.TierNone,
		"premium_until": nil,
	}); err != nil {
		return err
	}
	acc.PremiumTier = model.TierNone
	acc.PremiumUntil = nil
	acc.Version++
	return nil
}

func claimedOn(tx *gorm.DB, accountID int64, date string) (bool, error) {
	var n int64
	err := tx.Model(&model.PremiumDailyClaim{}).
		Where("account_id = ? AND date = ?", accountID, date).Count(&n).Error
	return n > 0, err
}

// TierOf returns the tier in force for an account. It does not write.
func TierOf(tx *gorm.DB, accountID int64, now time.Time) (model.PremiumTier, error) {
	acc, err := wallet.Account(tx, accountID)
	if err != nil {
		return model.TierNone, err
	}
	return acc.ActiveTier(now), nil
}

// Status returns the account's premium standing, clearing a lapsed tier.
func (svc *Service) Status(ctx context.Context, accountID int64) (*Status, error) {
	now := svc.now()
	var st *Status
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		acc, err := wallet.Account(tx, accountID)
		if err != nil {
			return err
		}
		if err := expire(tx, acc, now); err != nil {
			return err
		}
		var spent int64
		if err := tx.Model(&model.PremiumPurchase{}).Where("account_id = ?", accountID).
			Select("COALESCE(SUM(gem_cost), 0)").Scan(&spent).Error; err != nil {
			return err
		}
		st = &Status{
			Tier:       acc.ActiveTier(now),
			ExpiresAt:  acc.PremiumUntil,
			TotalSpent: spent,
			Gems:       acc.Gems,
			Benefits:   BenefitsOf(acc.ActiveTier(now)),
		}
		if st.Tier != model.TierNone {
			claimed, err := claimedOn(tx, accountID, day(now))
			if err != nil {
				return err
			}
			st.CanClaimDaily = !claimed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Purchase buys a package with gems. Buying the current tier extends it
// from its expiry; a higher tier starts from now; a lower tier is refused.
func (svc *Service) Purchase(ctx context.Context, accountID int64, tier model.PremiumTier, days int) (*Status, error) {
	pkg, ok := FindPackage(tier, days)
	if !ok {
		return nil, ErrBadPackage
	}
	now := svc.now()
	var acc *model.Account
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		var err error
		if acc, err = wallet.Account(tx, accountID); err != nil {
			return err
		}
		current := acc.ActiveTier(now)
		if pkg.Tier.Rank() < current.Rank() {
			return ErrDowngrade
		}
		start := now
		if current == pkg.Tier {
			start = *acc.PremiumUntil
		}
		expires := start.AddDate(0, 0, pkg.Days).UTC()
		if err := wallet.AdjustGems(tx, acc, -pkg.Price); err != nil {
			return err
		}
		if err := db.UpdateVersioned(tx, &model.Account{}, acc.ID, acc.Version, map[string]any{
			"premium_tier":  pkg.Tier,
			"premium_until": expires,
		}); err != nil {
			return err
		}
		acc.PremiumTier = pkg.Tier
		acc.PremiumUntil = &expires
		acc.Version++
		return tx.Create(&model.PremiumPurchase{
			AccountID: accountID,
			Tier:      pkg.Tier,
			Days:      pkg.Days,
			GemCost:   pkg.Price,
			ExpiresAt: expires,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	svc.audit.Log(ctx, audit.AuditEntry{
		AccountID: audit.Int64(accountID),
		Action:    audit.ActionPremiumPurchase,
		Target:    string(pkg.Tier),
		Detail:    map[string]any{"days": pkg.Days, "price": pkg.Price, "expires_at": acc.PremiumUntil},
	})
	svc.logger.Info("premium purchased",
		zap.Int64("account_id", accountID), zap.String("tier", string(pkg.Tier)), zap.Int("days", pkg.Days))
	if svc.mailer != nil {
		subject := fmt.Sprintf("%s premium activated", strings.ToUpper(string(pkg.Tier)))
		msg := fmt.Sprintf("Your %s premium is active until %s.", pkg.Tier, acc.PremiumUntil.UTC().Format(time.RFC1123))
		if err := svc.mailer.SendAccountMail(ctx, accountID, subject, msg); err != nil {
			svc.logger.Warn("premium notice mail failed", zap.Int64("account_id", accountID), zap.Error(err))
		}
	}
	return &Status{
		Tier:      acc.PremiumTier,
		ExpiresAt: acc.PremiumUntil,
		Gems:      acc.Gems,
		Benefits:  BenefitsOf(acc.PremiumTier),
	}, nil
}

// ClaimDaily pays the tier's daily gems once per UTC day.
func (svc *Service) ClaimDaily(ctx context.Context, accountID int64) (*ClaimResult, error) {
	now := svc.now()
	today := day(now)
	var res *ClaimResult
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		acc, err := wallet.Account(tx, accountID)
		if err != nil {
			return err
		}
		tier := acc.ActiveTier(now)
		if tier == model.TierNone {
			return ErrNoPremium
		}
		claimed, err := claimedOn(tx, accountID, today)
		if err != nil {
			return err
		}
		if claimed {
			return ErrAlreadyClaimed
		}
		gems := Tiers[tier].DailyGems
		claim := &model.PremiumDailyClaim{AccountID: accountID, Date: today, Tier: tier, Gems: gems}
		if err := tx.Create(claim).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return ErrAlreadyClaimed
			}
			return err
		}
		if err := wallet.AdjustGems(tx, acc, gems); err != nil {
			return err
		}
		res = &ClaimResult{Tier: tier, Gems: gems, TotalGems: acc.Gems}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SweepExpired clears lapsed tiers and prunes old claim rows. It returns the
// number of accounts that lost their tier.
func (svc *Service) SweepExpired(ctx context.Context) (int, error) {
	now := svc.now().UTC()
	res := svc.db.WithContext(ctx).Model(&model.Account{}).
		Where("premium_tier <> ? AND (premium_until IS NULL OR premium_until <= ?)", model.TierNone, now).
		Updates(map[string]any{
			"premium_tier":  model.TierNone,
			"premium_until": nil,
			"version":       gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	cutoff := day(now.AddDate(0, 0, -claimHistoryDays))
	if err := svc.db.WithContext(ctx).Where("date < ?", cutoff).Delete(&model.PremiumDailyClaim{}).Error; err != nil {
		return int(res.RowsAffected), err
	}
	if res.RowsAffected > 0 {
		svc.logger.Info("premium tiers expired", zap.Int64("accounts", res.RowsAffected))
	}
	return int(res.RowsAffected), nil
}
