package trade

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kasuganosora/kadim/server/apperr"
	"github.com/kasuganosora/kadim/server/audit"
	"github.com/kasuganosora/kadim/server/cache"
	"github.com/kasuganosora/kadim/server/config"
	"github.com/kasuganosora/kadim/server/db"
	"github.com/kasuganosora/kadim/server/events"
	"github.com/kasuganosora/kadim/server/game/wallet"
	"github.com/kasuganosora/kadim/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = apperr.NotFound("trade not found")
	ErrTargetNotFound = apperr.NotFound("target character not found")
	ErrSelfTrade      = apperr.Validation("cannot trade with yourself")
	ErrNegativeGold   = apperr.Validation("gold must not be negative")
	ErrBadQty         = apperr.Validation("quantity must be positive")
	ErrAlreadyTrading = apperr.Conflict("already in a trade")
	ErrTargetTrading  = apperr.Conflict("target is in a trade")
	ErrNotPending     = apperr.Conflict("trade offers are locked")
	ErrClosed         = apperr.Conflict("trade is closed")
	ErrAlreadyOffered = apperr.Conflict("item already offered")
	ErrChanged        = apperr.Conflict("trade changed, review the offer")
	ErrSettling       = apperr.Unavailable("trade settlement in progress", cache.ErrLocked)
)

// Service negotiates and settles two-party trades. All state lives in the
// database; concurrent requests are ordered by the trade's version column.
type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	pub    events.Publisher
	audit  audit.Recorder
	cfg    config.GameConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new trade Service.
func NewService(db *gorm.DB, c cache.Cache, pub events.Publisher, rec audit.Recorder, cfg config.GameConfig, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		cache:  c,
		pub:    pub,
		audit:  rec,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (svc *Service) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return db.RunTx(ctx, svc.db, svc.cfg.TxRetries, fn)
}

func load(tx *gorm.DB, id int64) (*model.Trade, error) {
	var t model.Trade
	err := tx.Preload("Offers", func(q *gorm.DB) *gorm.DB { return q.Order("id") }).First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// loadFor loads a trade that charID takes part in. Outsiders see not found.
func loadFor(tx *gorm.DB, id, charID int64) (*model.Trade, error) {
	t, err := load(tx, id)
	if err != nil {
		return nil, err
	}
	if !t.Participant(charID) {
		return nil, ErrNotFound
	}
	return t, nil
}

func hasOpenTrade(tx *gorm.DB, charID int64) (bool, error) {
	var n int64
	err := tx.Model(&model.Trade{}).
		Where("(initiator_id = ? OR target_id = ?) AND status IN ?", charID, charID,
			[]model.TradeStatus{model.TradePending, model.TradeConfirmed}).
		Count(&n).Error
	return n > 0, err
}

// slotRows reads both characters in id order. Request reads them before the
// open trade check and bumps their versions after it, so two requests racing
// for the same character cannot both commit.
func slotRows(tx *gorm.DB, charIDs ...int64) ([]*model.Character, error) {
	sort.Slice(charIDs, func(i, j int) bool { return charIDs[i] < charIDs[j] })
	rows := make([]*model.Character, 0, len(charIDs))
	for _, id := range charIDs {
		ch, err := wallet.Character(tx, id)
		if err != nil {
			return nil, err
		}
		rows = append(rows, ch)
	}
	return rows, nil
}

func accountsOf(tx *gorm.DB, charIDs ...int64) ([]int64, error) {
	var ids []int64
	err := tx.Model(&model.Character{}).Where("id IN ?", charIDs).Pluck("account_id", &ids).Error
	return ids, err
}

// Request opens a PENDING trade from charID to targetID.
func (svc *Service) Request(ctx context.Context, charID, targetID int64) (*model.Trade, error) {
	if charID == targetID {
		return nil, ErrSelfTrade
	}
	var (
		t          *model.Trade
		recipients []int64
	)
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		rows, err := slotRows(tx, charID, targetID)
		if err != nil {
			if errors.Is(err, wallet.ErrCharNotFound) {
				return ErrTargetNotFound
			}
			return err
		}
		busy, err := hasOpenTrade(tx, charID)
		if err != nil {
			return err
		}
		if busy {
			return ErrAlreadyTrading
		}
		if busy, err = hasOpenTrade(tx, targetID); err != nil {
			return err
		}
		if busy {
			return ErrTargetTrading
		}
		for _, ch := range rows {
			if err := db.UpdateVersioned(tx, &model.Character{}, ch.ID, ch.Version, map[string]any{}); err != nil {
				return err
			}
		}
		t = &model.Trade{InitiatorID: charID, TargetID: targetID, Status: model.TradePending}
		if err := tx.Create(t).Error; err != nil {
			return err
		}
		recipients, err = accountsOf(tx, charID, targetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	t.Offers = []model.TradeOffer{}
	svc.pub.Publish(ctx, events.TradeRequested, t, recipients...)
	svc.logger.Info("trade requested",
		zap.Int64("trade_id", t.ID), zap.Int64("from", charID), zap.Int64("to", targetID))
	return t, nil
}

// Get returns a trade the character takes part in.
func (svc *Service) Get(ctx context.Context, charID, tradeID int64) (*model.Trade, error) {
	return loadFor(svc.db.WithContext(ctx), tradeID, charID)
}

// ListMine returns the open trades of a character, newest first.
func (svc *Service) ListMine(ctx context.Context, charID int64) ([]model.Trade, error) {
	var trades []model.Trade
	err := svc.db.WithContext(ctx).
		Preload("Offers", func(q *gorm.DB) *gorm.DB { return q.Order("id") }).
		Where("(initiator_id = ? OR target_id = ?) AND status IN ?", charID, charID,
			[]model.TradeStatus{model.TradePending, model.TradeConfirmed}).
		Order("created_at DESC, id DESC").
		Find(&trades).Error
	return trades, err
}

// mutate applies fn to a PENDING trade the caller takes part in, resets both
// confirmations and bumps the version.
func (svc *Service) mutate(ctx context.Context, charID, tradeID int64, fn func(tx *gorm.DB, t *model.Trade, cols map[string]any) error) (*model.Trade, error) {
	var (
		t          *model.Trade
		recipients []int64
	)
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		var err error
		if t, err = loadFor(tx, tradeID, charID); err != nil {
			return err
		}
		if t.Status != model.TradePending {
			return ErrNotPending
		}
		cols := map[string]any{"initiator_confirmed": false, "target_confirmed": false}
		if err := fn(tx, t, cols); err != nil {
			return err
		}
		if err := db.UpdateVersioned(tx, &model.Trade{}, t.ID, t.Version, cols); err != nil {
			return err
		}
		if t, err = load(tx, t.ID); err != nil {
			return err
		}
		recipients, err = accountsOf(tx, t.InitiatorID, t.TargetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	svc.pub.Publish(ctx, events.TradeUpdated, t, recipients...)
	return t, nil
}

// AddItem offers qty units of one of the caller's bag items.
func (svc *Service) AddItem(ctx context.Context, charID, tradeID, inventoryID int64, qty int) (*model.Trade, error) {
	if qty <= 0 {
		return nil, ErrBadQty
	}
	return svc.mutate(ctx, charID, tradeID, func(tx *gorm.DB, t *model.Trade, _ map[string]any) error {
		inv, err := wallet.OwnedItem(tx, charID, inventoryID)
		if err != nil {
			return err
		}
		if inv.Equipped() || inv.Qty < qty {
			return wallet.ErrItemUnavailable
		}
		for _, o := range t.Offers {
			if o.InventoryID == inventoryID {
				return ErrAlreadyOffered
			}
		}
		return tx.Create(&model.TradeOffer{
			TradeID:     t.ID,
			CharID:      charID,
			InventoryID: inventoryID,
			Qty:         qty,
			Item:        inv.Item.Split(qty),
		}).Error
	})
}

// SetGold sets the gold the caller offers.
func (svc *Service) SetGold(ctx context.Context, charID, tradeID, amount int64) (*model.Trade, error) {
	if amount < 0 {
		return nil, ErrNegativeGold
	}
	return svc.mutate(ctx, charID, tradeID, func(tx *gorm.DB, t *model.Trade, cols map[string]any) error {
		ch, err := wallet.Character(tx, charID)
		if err != nil {
			return err
		}
		if ch.Gold < amount {
			return wallet.ErrInsufficientGold
		}
		if t.InitiatorID == charID {
			cols["initiator_gold"] = amount
		} else {
			cols["target_gold"] = amount
		}
		return nil
	})
}

// Confirm sets the caller's confirmation. When expectVersion is given it must
// match the trade's current version, so a side never confirms an offer it has
// not seen. Once both sides have confirmed the trade is settled immediately.
// A CONFIRMED trade whose settlement was rejected is settled again.
func (svc *Service) Confirm(ctx context.Context, charID, tradeID int64, expectVersion *int64) (*model.Trade, error) {
	var (
		t          *model.Trade
		recipients []int64
	)
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		var err error
		if t, err = loadFor(tx, tradeID, charID); err != nil {
			return err
		}
		if !t.Status.Open() {
			return ErrClosed
		}
		if expectVersion != nil && *expectVersion != t.Version {
			return ErrChanged
		}
		if t.Status == model.TradeConfirmed {
			return nil
		}
		cols := map[string]any{}
		if t.InitiatorID == charID {
			cols["initiator_confirmed"] = true
			t.InitiatorConfirmed = true
		} else {
			cols["target_confirmed"] = true
			t.TargetConfirmed = true
		}
		if t.InitiatorConfirmed && t.TargetConfirmed {
			cols["status"] = model.TradeConfirmed
			t.Status = model.TradeConfirmed
		}
		if err := db.UpdateVersioned(tx, &model.Trade{}, t.ID, t.Version, cols); err != nil {
			return err
		}
		t.Version++
		recipients, err = accountsOf(tx, t.InitiatorID, t.TargetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if t.Status != model.TradeConfirmed {
		svc.pub.Publish(ctx, events.TradeUpdated, t, recipients...)
		return t, nil
	}
	return svc.settle(ctx, t.ID, charID)
}

// settle exchanges both offers in one transaction. A business rule failure
// leaves the trade CONFIRMED and is reported as a conflict. A trade settled by
// a concurrent call is returned as is.
func (svc *Service) settle(ctx context.Context, tradeID, actorID int64) (*model.Trade, error) {
	var head model.Trade
	if err := svc.db.WithContext(ctx).Select("id", "initiator_id", "target_id").First(&head, tradeID).Error; err != nil {
		return nil, err
	}
	release, err := cache.Lock(ctx, svc.cache, cache.TradeLockKey(head.InitiatorID, head.TargetID), svc.cfg.SettleLockTTL)
	if errors.Is(err, cache.ErrLocked) {
		return nil, ErrSettling
	}
	if err != nil {
		return nil, apperr.Unavailable("trade lock unavailable", err)
	}
	defer release()

	var (
		t          *model.Trade
		recipients []int64
		moved      int
		settled    bool
	)
	err = svc.tx(ctx, func(tx *gorm.DB) error {
		var err error
		if t, err = load(tx, tradeID); err != nil {
			return err
		}
		if t.Status == model.TradeCompleted {
			settled = true
			return nil
		}
		if t.Status != model.TradeConfirmed {
			return ErrClosed
		}
		if moved, err = exchange(tx, t); err != nil {
			return err
		}
		now := svc.now()
		if err := db.UpdateVersioned(tx.Where("status = ?", model.TradeConfirmed), &model.Trade{}, t.ID, t.Version, map[string]any{
			"status":       model.TradeCompleted,
			"completed_at": now,
		}); err != nil {
			return err
		}
		t.Status = model.TradeCompleted
		t.CompletedAt = &now
		t.Version++
		recipients, err = accountsOf(tx, t.InitiatorID, t.TargetID)
		return err
	})
	if err != nil {
		if k := apperr.KindOf(err); k == apperr.KindValidation || k == apperr.KindNotFound {
			svc.logger.Info("trade settlement rejected", zap.Int64("trade_id", tradeID), zap.Error(err))
			return nil, apperr.Conflict("settlement rejected: %s", apperr.Message(err))
		}
		return nil, err
	}
	if settled {
		return t, nil
	}

	svc.pub.Publish(ctx, events.TradeCompleted, t, recipients...)
	svc.audit.Log(ctx, audit.AuditEntry{
		CharID: audit.Int64(actorID),
		Action: audit.ActionTradeSettled,
		Target: fmt.Sprintf("trade:%d", t.ID),
		Detail: map[string]any{
			"initiator_id":   t.InitiatorID,
			"target_id":      t.TargetID,
			"initiator_gold": t.InitiatorGold,
			"target_gold":    t.TargetGold,
			"items":          moved,
		},
	})
	svc.logger.Info("trade committed", zap.Int64("trade_id", t.ID), zap.Int("items", moved))
	return t, nil
}

// exchange moves every offered item and the gold of both sides. It re-reads
// every row it touches and returns the number of item records moved.
func exchange(tx *gorm.DB, t *model.Trade) (int, error) {
	initiator, err := wallet.Character(tx, t.InitiatorID)
	if err != nil {
		return 0, err
	}
	target, err := wallet.Character(tx, t.TargetID)
	if err != nil {
		return 0, err
	}
	if initiator.Gold < t.InitiatorGold || target.Gold < t.TargetGold {
		return 0, wallet.ErrInsufficientGold
	}

	for _, o := range t.Offers {
		inv, err := wallet.OwnedItem(tx, o.CharID, o.InventoryID)
		if err != nil {
			return 0, err
		}
		if _, err := wallet.MoveItem(tx, inv, t.Counterpart(o.CharID), o.Qty); err != nil {
			return 0, err
		}
	}

	if err := wallet.AdjustGold(tx, initiator, t.TargetGold-t.InitiatorGold); err != nil {
		return 0, err
	}
	if err := wallet.AdjustGold(tx, target, t.InitiatorGold-t.TargetGold); err != nil {
		return 0, err
	}
	return len(t.Offers), nil
}

// Cancel ends an open trade. Nothing moves.
func (svc *Service) Cancel(ctx context.Context, charID, tradeID int64) (*model.Trade, error) {
	var (
		t          *model.Trade
		recipients []int64
	)
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		var err error
		if t, err = loadFor(tx, tradeID, charID); err != nil {
			return err
		}
		if err := cancel(tx, t, &charID, svc.now()); err != nil {
			return err
		}
		recipients, err = accountsOf(tx, t.InitiatorID, t.TargetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	svc.pub.Publish(ctx, events.TradeCancelled, t, recipients...)
	svc.logger.Info("trade cancelled", zap.Int64("trade_id", t.ID), zap.Int64("by", charID))
	return t, nil
}

func cancel(tx *gorm.DB, t *model.Trade, by *int64, now time.Time) error {
	if !t.Status.Open() {
		return ErrClosed
	}
	if err := db.UpdateVersioned(tx, &model.Trade{}, t.ID, t.Version, map[string]any{
		"status":       model.TradeCancelled,
		"cancelled_by": by,
		"cancelled_at": now,
	}); err != nil {
		return err
	}
	t.Status = model.TradeCancelled
	t.CancelledBy = by
	t.CancelledAt = &now
	t.Version++
	return nil
}

// ExpireStale cancels open trades that have not changed for the configured
// trade TTL and returns how many were cancelled. This includes CONFIRMED
// trades whose settlement was rejected.
func (svc *Service) ExpireStale(ctx context.Context) (int, error) {
	if svc.cfg.TradeTTL <= 0 {
		return 0, nil
	}
	var ids []int64
	cutoff := svc.now().Add(-svc.cfg.TradeTTL)
	if err := svc.db.WithContext(ctx).Model(&model.Trade{}).
		Where("status IN ? AND updated_at < ?", []model.TradeStatus{model.TradePending, model.TradeConfirmed}, cutoff).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}

	n := 0
	for _, id := range ids {
		var (
			t          *model.Trade
			recipients []int64
		)
		err := svc.tx(ctx, func(tx *gorm.DB) error {
			var err error
			if t, err = load(tx, id); err != nil {
				return err
			}
			if !t.Status.Open() || !t.UpdatedAt.Before(cutoff) {
				t = nil
				return nil
			}
			if err := cancel(tx, t, nil, svc.now()); err != nil {
				return err
			}
			recipients, err = accountsOf(tx, t.InitiatorID, t.TargetID)
			return err
		})
		if err != nil {
			svc.logger.Warn("trade expiry failed", zap.Int64("trade_id", id), zap.Error(err))
			continue
		}
		if t != nil {
			n++
			svc.pub.Publish(ctx, events.TradeCancelled, t, recipients...)
		}
	}
	if n > 0 {
		svc.logger.Info("stale trades expired", zap.Int("count", n))
	}
	return n, nil
}
