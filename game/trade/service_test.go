package trade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kasuganosora/kadim/server/apperr"
	"github.com/kasuganosora/kadim/server/audit"
	"github.com/kasuganosora/kadim/server/cache"
	"github.com/kasuganosora/kadim/server/config"
	"github.com/kasuganosora/kadim/server/events"
	"github.com/kasuganosora/kadim/server/model"
	"github.com/kasuganosora/kadim/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc   *Service
	db    *gorm.DB
	cache cache.Cache
	ev    *testutil.Events
	audit *audit.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	f := &fixture{db: db, cache: c, ev: &testutil.Events{}, audit: &audit.Memory{}}
	f.svc = NewService(db, c, f.ev, f.audit, config.Defaults().Game, zap.NewNop())
	return f
}

func confirmBoth(t *testing.T, f *fixture, a, b, tradeID int64) *model.Trade {
	t.Helper()
	ctx := context.Background()
	tr, err := f.svc.Confirm(ctx, a, tradeID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.TradePending, tr.Status)
	tr, err = f.svc.Confirm(ctx, b, tradeID, nil)
	require.NoError(t, err)
	return tr
}

func TestRequest_CreatesPendingTrade(t *testing.T) {
	f := newFixture(t)
	accA, a := testutil.CreatePlayer(t, f.db, "alice")
	accB, b := testutil.CreatePlayer(t, f.db, "bobby")

	tr, err := f.svc.Request(context.Background(), a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TradePending, tr.Status)
	assert.Equal(t, a.ID, tr.InitiatorID)
	assert.Equal(t, b.ID, tr.TargetID)

	ev, ok := f.ev.Last(events.TradeRequested)
	require.True(t, ok)
	assert.ElementsMatch(t, []int64{accA.ID, accB.ID}, ev.Recipients)
}

func TestRequest_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")
	_, c := testutil.CreatePlayer(t, f.db, "carol")

	_, err := f.svc.Request(ctx, a.ID, a.ID)
	assert.ErrorIs(t, err, ErrSelfTrade)

	_, err = f.svc.Request(ctx, a.ID, 9999)
	assert.ErrorIs(t, err, ErrTargetNotFound)

	_, err = f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)

	_, err = f.svc.Request(ctx, a.ID, c.ID)
	assert.ErrorIs(t, err, ErrAlreadyTrading)

	_, err = f.svc.Request(ctx, c.ID, b.ID)
	assert.ErrorIs(t, err, ErrTargetTrading)
}

func TestSettlement_GoldForItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")
	sword := testutil.GiveItem(t, f.db, b.ID, model.KindWeapon, "Sword", 1)

	tr, err := f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.svc.SetGold(ctx, a.ID, tr.ID, 100)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, b.ID, tr.ID, sword.ID, 1)
	require.NoError(t, err)

	done := confirmBoth(t, f, a.ID, b.ID, tr.ID)
	assert.Equal(t, model.TradeCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	assert.Equal(t, model.StartingGold-100, testutil.Reload[model.Character](t, f.db, a.ID).Gold)
	assert.Equal(t, model.StartingGold+100, testutil.Reload[model.Character](t, f.db, b.ID).Gold)
	assert.Equal(t, a.ID, testutil.Reload[model.InventoryItem](t, f.db, sword.ID).CharID)

	assert.Equal(t, []string{audit.ActionTradeSettled}, f.audit.Actions())
	_, ok := f.ev.Last(events.TradeCompleted)
	assert.True(t, ok)
}

func TestSettlement_PartialStackSplits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")
	potions := testutil.GiveItem(t, f.db, a.ID, model.KindConsumable, "Potion", 5)

	tr, err := f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, a.ID, tr.ID, potions.ID, 2)
	require.NoError(t, err)
	done := confirmBoth(t, f, a.ID, b.ID, tr.ID)
	require.Equal(t, model.TradeCompleted, done.Status)

	assert.Equal(t, 3, testutil.Reload[model.InventoryItem](t, f.db, potions.ID).Qty)
	var got []model.InventoryItem
	require.NoError(t, f.db.Where("char_id = ?", b.ID).Find(&got).Error)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Qty)
	assert.Equal(t, "Potion", got[0].Name)
}

func TestSettlement_AtomicWhenSideCannotPay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")
	sword := testutil.GiveItem(t, f.db, b.ID, model.KindWeapon, "Sword", 1)

	tr, err := f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.svc.SetGold(ctx, a.ID, tr.ID, 800)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, b.ID, tr.ID, sword.ID, 1)
	require.NoError(t, err)

	// alice spends her gold elsewhere before settlement
	require.NoError(t, f.db.Model(&model.Character{}).Where("id = ?", a.ID).
		Updates(map[string]any{"gold": 50, "version": gorm.Expr("version + 1")}).Error)

	_, err = f.svc.Confirm(ctx, a.ID, tr.ID, nil)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, b.ID, tr.ID, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	assert.Equal(t, int64(50), testutil.Reload[model.Character](t, f.db, a.ID).Gold)
	assert.Equal(t, model.StartingGold, testutil.Reload[model.Character](t, f.db, b.ID).Gold)
	assert.Equal(t, b.ID, testutil.Reload[model.InventoryItem](t, f.db, sword.ID).CharID)

	stuck := testutil.Reload[model.Trade](t, f.db, tr.ID)
	assert.Equal(t, model.TradeConfirmed, stuck.Status)
	assert.Empty(t, f.audit.Actions())

	// the trade can still be cancelled and nothing moves
	cancelled, err := f.svc.Cancel(ctx, b.ID, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TradeCancelled, cancelled.Status)
	assert.Equal(t, b.ID, testutil.Reload[model.InventoryItem](t, f.db, sword.ID).CharID)
}

func TestSettlement_RetriedByConfirmAfterRejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")

	tr, err := f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.svc.SetGold(ctx, a.ID, tr.ID, 500)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.Character{}).Where("id = ?", a.ID).Update("gold", 10).Error)

	_, err = f.svc.Confirm(ctx, a.ID, tr.ID, nil)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, b.ID, tr.ID, nil)
	require.Error(t, err)

	require.NoError(t, f.db.Model(&model.Character{}).Where("id = ?", a.ID).Update("gold", 600).Error)
	done, err := f.svc.Confirm(ctx, a.ID, tr.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.TradeCompleted, done.Status)
	assert.Equal(t, int64(100), testutil.Reload[model.Character](t, f.db, a.ID).Gold)
}

func TestSettlement_ItemGoneRollsBackGold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")
	ring := testutil.GiveItem(t, f.db, b.ID, model.KindRing, "Ring", 1)

	tr, err := f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.svc.SetGold(ctx, a.ID, tr.ID, 200)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, b.ID, tr.ID, ring.ID, 1)
	require.NoError(t, err)

	// bobby equips the ring before settlement
	require.NoError(t, f.db.Model(ring).Update("equip_slot", model.SlotRing).Error)

	_, err = f.svc.Confirm(ctx, a.ID, tr.ID, nil)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, b.ID, tr.ID, nil)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	assert.Equal(t, model.StartingGold, testutil.Reload[model.Character](t, f.db, a.ID).Gold)
	assert.Equal(t, model.StartingGold, testutil.Reload[model.Character](t, f.db, b.ID).Gold)
	assert.Equal(t, b.ID, testutil.Reload[model.InventoryItem](t, f.db, ring.ID).CharID)
}

func TestOfferChange_ResetsConfirmations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")

	tr, err := f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)
	confirmed, err := f.svc.Confirm(ctx, a.ID, tr.ID, nil)
	require.NoError(t, err)
	assert.True(t, confirmed.InitiatorConfirmed)

	changed, err := f.svc.SetGold(ctx, b.ID, tr.ID, 10)
	require.NoError(t, err)
	assert.False(t, changed.InitiatorConfirmed)
	assert.False(t, changed.TargetConfirmed)
	assert.Greater(t, changed.Version, confirmed.Version)

	// bobby confirming alone does not settle
	after, err := f.svc.Confirm(ctx, b.ID, tr.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.TradePending, after.Status)
}

func TestConfirm_StaleVersionRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")

	tr, err := f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)
	seen := tr.Version
	_, err = f.svc.SetGold(ctx, a.ID, tr.ID, 10)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, b.ID, tr.ID, &seen)
	assert.ErrorIs(t, err, ErrChanged)
	assert.False(t, testutil.Reload[model.Trade](t, f.db, tr.ID).TargetConfirmed)
}

func TestOffers_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")
	_, c := testutil.CreatePlayer(t, f.db, "carol")
	sword := testutil.GiveItem(t, f.db, a.ID, model.KindWeapon, "Sword", 1)
	helm := testutil.GiveItem(t, f.db, a.ID, model.KindHelmet, "Helm", 1)
	require.NoError(t, f.db.Model(helm).Update("equip_slot", model.SlotHelmet).Error)
	foreign := testutil.GiveItem(t, f.db, b.ID, model.KindWeapon, "Axe", 1)

	tr, err := f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)

	_, err = f.svc.SetGold(ctx, a.ID, tr.ID, -1)
	assert.ErrorIs(t, err, ErrNegativeGold)
	_, err = f.svc.SetGold(ctx, a.ID, tr.ID, model.StartingGold+1)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.AddItem(ctx, a.ID, tr.ID, helm.ID, 1)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "equipped items cannot be offered")
	_, err = f.svc.AddItem(ctx, a.ID, tr.ID, foreign.ID, 1)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "only own items can be offered")
	_, err = f.svc.AddItem(ctx, a.ID, tr.ID, sword.ID, 2)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = f.svc.AddItem(ctx, a.ID, tr.ID, sword.ID, 0)
	assert.ErrorIs(t, err, ErrBadQty)

	_, err = f.svc.AddItem(ctx, a.ID, tr.ID, sword.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, a.ID, tr.ID, sword.ID, 1)
	assert.ErrorIs(t, err, ErrAlreadyOffered)

	// outsiders cannot see or touch the trade
	_, err = f.svc.Get(ctx, c.ID, tr.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.SetGold(ctx, c.ID, tr.ID, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")

	tr, err := f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)
	got, err := f.svc.Cancel(ctx, b.ID, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TradeCancelled, got.Status)
	require.NotNil(t, got.CancelledBy)
	assert.Equal(t, b.ID, *got.CancelledBy)

	_, err = f.svc.Cancel(ctx, a.ID, tr.ID)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.svc.SetGold(ctx, a.ID, tr.ID, 1)
	assert.ErrorIs(t, err, ErrNotPending)

	// a closed trade frees both sides
	_, err = f.svc.Request(ctx, b.ID, a.ID)
	assert.NoError(t, err)
}

func TestConfirmedTrade_OffersLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")

	tr, err := f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.Trade{}).Where("id = ?", tr.ID).Update("status", model.TradeConfirmed).Error)

	_, err = f.svc.SetGold(ctx, a.ID, tr.ID, 1)
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestSettlement_LockHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")

	tr, err := f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)

	release, err := cache.Lock(ctx, f.cache, cache.TradeLockKey(b.ID, a.ID), time.Minute)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, a.ID, tr.ID, nil)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, b.ID, tr.ID, nil)
	assert.True(t, apperr.IsRetryable(err))
	assert.Equal(t, model.TradeConfirmed, testutil.Reload[model.Trade](t, f.db, tr.ID).Status)

	release()
	done, err := f.svc.Confirm(ctx, b.ID, tr.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.TradeCompleted, done.Status)
}

func TestListMine_OnlyOpenTrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")

	first, err := f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, a.ID, first.ID)
	require.NoError(t, err)
	second, err := f.svc.Request(ctx, b.ID, a.ID)
	require.NoError(t, err)

	mine, err := f.svc.ListMine(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, second.ID, mine[0].ID)
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")
	_, c := testutil.CreatePlayer(t, f.db, "carol")
	_, d := testutil.CreatePlayer(t, f.db, "david")

	old, err := f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)
	fresh, err := f.svc.Request(ctx, c.ID, d.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.Trade{}).Where("id = ?", old.ID).
		UpdateColumn("updated_at", time.Now().Add(-2*time.Hour)).Error)

	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.TradeCancelled, testutil.Reload[model.Trade](t, f.db, old.ID).Status)
	assert.Nil(t, testutil.Reload[model.Trade](t, f.db, old.ID).CancelledBy)
	assert.Equal(t, model.TradePending, testutil.Reload[model.Trade](t, f.db, fresh.ID).Status)
}

func TestExpireStale_CancelsRejectedSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")
	_, c := testutil.CreatePlayer(t, f.db, "carol")

	tr, err := f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.svc.SetGold(ctx, a.ID, tr.ID, 800)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.Character{}).Where("id = ?", a.ID).
		Updates(map[string]any{"gold": 50, "version": gorm.Expr("version + 1")}).Error)
	_, err = f.svc.Confirm(ctx, a.ID, tr.ID, nil)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, b.ID, tr.ID, nil)
	require.Error(t, err)
	require.Equal(t, model.TradeConfirmed, testutil.Reload[model.Trade](t, f.db, tr.ID).Status)

	_, err = f.svc.Request(ctx, a.ID, c.ID)
	assert.ErrorIs(t, err, ErrAlreadyTrading)

	require.NoError(t, f.db.Model(&model.Trade{}).Where("id = ?", tr.ID).
		UpdateColumn("updated_at", time.Now().Add(-2*time.Hour)).Error)
	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	expired := testutil.Reload[model.Trade](t, f.db, tr.ID)
	assert.Equal(t, model.TradeCancelled, expired.Status)
	assert.Nil(t, expired.CancelledBy)
	_, ok := f.ev.Last(events.TradeCancelled)
	assert.True(t, ok)

	_, err = f.svc.Request(ctx, a.ID, c.ID)
	assert.NoError(t, err)
}

func TestRequest_RetriesWhenCharacterChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")

	fired := testutil.Interleave(t, f.db, "update", "characters",
		"UPDATE characters SET version = version + 1 WHERE id = ?", a.ID)
	tr, err := f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fired.Load())

	var open int64
	require.NoError(t, f.db.Model(&model.Trade{}).Where("status = ?", model.TradePending).Count(&open).Error)
	assert.Equal(t, int64(1), open, "the lost attempt left nothing behind")
	assert.Equal(t, model.TradePending, testutil.Reload[model.Trade](t, f.db, tr.ID).Status)
	assert.Equal(t, a.Version+1, testutil.Reload[model.Character](t, f.db, a.ID).Version)
	assert.Equal(t, b.Version+1, testutil.Reload[model.Character](t, f.db, b.ID).Version)
}

func TestRequest_ConcurrentOpensOneTrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	targets := make([]int64, 6)
	for i := range targets {
		_, ch := testutil.CreatePlayer(t, f.db, "target"+string(rune('a'+i)))
		targets[i] = ch.ID
	}

	errs := testutil.Race(len(targets), func(i int) error {
		_, err := f.svc.Request(ctx, a.ID, targets[i])
		return err
	})
	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyTrading)
	}
	assert.Equal(t, 1, ok)

	mine, err := f.svc.ListMine(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestConfirm_ConcurrentSettlesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")
	sword := testutil.GiveItem(t, f.db, b.ID, model.KindWeapon, "Sword", 1)

	tr, err := f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.svc.SetGold(ctx, a.ID, tr.ID, 100)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, b.ID, tr.ID, sword.ID, 1)
	require.NoError(t, err)

	errs := testutil.Race(8, func(i int) error {
		side := a.ID
		if i%2 == 1 {
			side = b.ID
		}
		_, err := f.svc.Confirm(ctx, side, tr.ID, nil)
		return err
	})
	for _, err := range errs {
		if err != nil {
			assert.True(t, errors.Is(err, ErrClosed) || errors.Is(err, ErrSettling), err.Error())
		}
	}

	assert.Equal(t, model.TradeCompleted, testutil.Reload[model.Trade](t, f.db, tr.ID).Status)
	assert.Equal(t, model.StartingGold-100, testutil.Reload[model.Character](t, f.db, a.ID).Gold)
	assert.Equal(t, model.StartingGold+100, testutil.Reload[model.Character](t, f.db, b.ID).Gold)
	assert.Equal(t, a.ID, testutil.Reload[model.InventoryItem](t, f.db, sword.ID).CharID)
	assert.Equal(t, []string{audit.ActionTradeSettled}, f.audit.Actions())
	completed := 0
	for _, typ := range f.ev.Types() {
		if typ == events.TradeCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestSettle_AlreadyCompletedIsQuiet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := testutil.CreatePlayer(t, f.db, "alice")
	_, b := testutil.CreatePlayer(t, f.db, "bobby")

	tr, err := f.svc.Request(ctx, a.ID, b.ID)
	require.NoError(t, err)
	done := confirmBoth(t, f, a.ID, b.ID, tr.ID)
	require.Equal(t, model.TradeCompleted, done.Status)

	again, err := f.svc.settle(ctx, tr.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TradeCompleted, again.Status)
	assert.Len(t, f.audit.Actions(), 1)
}
