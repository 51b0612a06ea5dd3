package dailyquest

import (
	"context"
	"testing"
	"time"

	"github.com/kasuganosora/kadim/server/config"
	"github.com/kasuganosora/kadim/server/model"
	"github.com/kasuganosora/kadim/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func noShuffle(int, func(i, j int)) {}

func reverse(n int, swap func(i, j int)) {
	for i := 0; i < n/2; i++ {
		swap(i, n-1-i)
	}
}

type fixture struct {
	svc   *Service
	db    *gorm.DB
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: testutil.SetupTestDB(t), clock: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	f.svc = NewService(f.db, config.Defaults().Game, zap.NewNop())
	f.svc.now = func() time.Time { return f.clock }
	f.svc.shuffle = noShuffle
	return f
}

func ids(entries []model.DailyQuestEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.QuestID
	}
	return out
}

func TestDraw_PrefersDistinctTypes(t *testing.T) {
	got := draw(1, 5, noShuffle)
	want := []string{"kill_10_mobs", "use_10_skills", "collect_1000_gold", "join_party", "send_mail"}
	require.Len(t, got, 5)
	for i, tpl := range got {
		assert.Equal(t, want[i], tpl.ID)
	}

	types := map[string]bool{}
	for _, tpl := range draw(1, 5, reverse) {
		assert.False(t, types[tpl.Type], "type %s drawn twice", tpl.Type)
		types[tpl.Type] = true
	}
}

func TestDraw_LevelFilter(t *testing.T) {
	for _, tpl := range draw(1, len(Pool), noShuffle) {
		assert.Zero(t, tpl.MinLevel, tpl.ID)
	}
	assert.Len(t, draw(1, len(Pool), noShuffle), 8)
	assert.Len(t, draw(10, len(Pool), noShuffle), len(Pool))
}

func TestDraw_FillsWithDuplicates(t *testing.T) {
	got := draw(1, 8, noShuffle)
	require.Len(t, got, 8)
	seen := map[string]bool{}
	for _, tpl := range got {
		assert.False(t, seen[tpl.ID])
		seen[tpl.ID] = true
	}
}

func TestProgress_GeneratesOncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc, _ := testutil.CreatePlayer(t, f.db, "alice")

	v, err := f.svc.Progress(ctx, acc.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "2026-05-01", v.Date)
	require.Len(t, v.Quests, 5)
	assert.Equal(t, Bonus, v.BonusReward)

	f.svc.shuffle = reverse
	again, err := f.svc.Progress(ctx, acc.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, ids(v.Quests), ids(again.Quests))

	var n int64
	require.NoError(t, f.db.Model(&model.DailyQuestProgress{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	f.clock = f.clock.Add(24 * time.Hour)
	next, err := f.svc.Progress(ctx, acc.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "2026-05-02", next.Date)
	assert.NotEqual(t, ids(v.Quests), ids(next.Quests))
}

func TestProgress_UsesCharacterLevel(t *testing.T) {
	f := newFixture(t)
	acc, ch := testutil.CreatePlayer(t, f.db, "alice")
	require.NoError(t, f.db.Model(ch).Update("level", 10).Error)
	f.svc.cfg.DailyQuestCount = len(Pool)

	v, err := f.svc.Progress(context.Background(), acc.ID, ch.ID)
	require.NoError(t, err)
	assert.Len(t, v.Quests, len(Pool))
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc, _ := testutil.CreatePlayer(t, f.db, "alice")

	_, err := f.svc.Update(ctx, acc.ID, "dance", 1)
	assert.ErrorIs(t, err, ErrBadType)
	_, err = f.svc.Update(ctx, acc.ID, TypeKillMobs, 0)
	assert.ErrorIs(t, err, ErrBadAmount)

	v, err := f.svc.Update(ctx, acc.ID, TypeKillMobs, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Quests[0].Current)
	assert.False(t, v.Quests[0].Completed)

	v, err = f.svc.Update(ctx, acc.ID, TypeKillMobs, 40)
	require.NoError(t, err)
	assert.Equal(t, 10, v.Quests[0].Current, "clamped at target")
	assert.True(t, v.Quests[0].Completed)
	assert.False(t, v.AllCompleted)

	// unmatched types leave the row alone
	_, err = f.svc.Update(ctx, acc.ID, TypeWinDuel, 1)
	require.NoError(t, err)
}

func completeAll(t *testing.T, f *fixture, accountID int64) {
	t.Helper()
	ctx := context.Background()
	for typ, n := range map[string]int{
		TypeKillMobs: 10, TypeUseSkills: 10, TypeCollectGold: 1000, TypeJoinParty: 1, TypeSendMail: 1,
	} {
		_, err := f.svc.Update(ctx, accountID, typ, n)
		require.NoError(t, err)
	}
}

func TestClaim_Once(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc, ch := testutil.CreatePlayer(t, f.db, "alice")

	_, err := f.svc.Claim(ctx, acc.ID, ch.ID, "kill_10_mobs")
	assert.ErrorIs(t, err, ErrNotCompleted)
	_, err = f.svc.Claim(ctx, acc.ID, ch.ID, "nope")
	assert.ErrorIs(t, err, ErrQuestNotFound)

	_, err = f.svc.Update(ctx, acc.ID, TypeKillMobs, 10)
	require.NoError(t, err)

	res, err := f.svc.Claim(ctx, acc.ID, ch.ID, "kill_10_mobs")
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.Reward.Gold)
	assert.Equal(t, int64(200), res.Reward.Exp)
	assert.Equal(t, model.StartingGold+500, res.CharGold)
	assert.True(t, res.Day.Quests[0].Claimed)

	_, err = f.svc.Claim(ctx, acc.ID, ch.ID, "kill_10_mobs")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	got := testutil.Reload[model.Character](t, f.db, ch.ID)
	assert.Equal(t, model.StartingGold+500, got.Gold)
	assert.Equal(t, int64(200), got.Exp)
}

func TestClaim_GemsAndPremiumScaling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc, ch := testutil.CreatePlayer(t, f.db, "alice")
	until := f.clock.Add(72 * time.Hour)
	require.NoError(t, f.db.Model(acc).Updates(map[string]any{
		"premium_tier": model.TierGold, "premium_until": until,
	}).Error)

	completeAll(t, f, acc.ID)
	res, err := f.svc.Claim(ctx, acc.ID, ch.ID, "kill_10_mobs")
	require.NoError(t, err)
	assert.Equal(t, int64(750), res.Reward.Gold)
	assert.Equal(t, int64(300), res.Reward.Exp)

	res, err = f.svc.Claim(ctx, acc.ID, 0, "collect_1000_gold")
	require.NoError(t, err)
	assert.Equal(t, ch.ID, res.CharID)
	assert.Equal(t, int64(5), res.Reward.Gems)
	assert.Equal(t, int64(5), testutil.Reload[model.Account](t, f.db, acc.ID).Gems)
}

func TestClaim_ForeignCharacter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc, _ := testutil.CreatePlayer(t, f.db, "alice")
	_, other := testutil.CreatePlayer(t, f.db, "bobby")

	_, err := f.svc.Update(ctx, acc.ID, TypeKillMobs, 10)
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, acc.ID, other.ID, "kill_10_mobs")
	assert.ErrorIs(t, err, ErrNoCharacter)

	v, err := f.svc.Progress(ctx, acc.ID, 0)
	require.NoError(t, err)
	assert.False(t, v.Quests[0].Claimed, "failed claim rolled back")
}

func TestClaimBonus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc, ch := testutil.CreatePlayer(t, f.db, "alice")

	_, err := f.svc.ClaimBonus(ctx, acc.ID, ch.ID)
	assert.ErrorIs(t, err, ErrNotAllCompleted)

	completeAll(t, f, acc.ID)
	res, err := f.svc.ClaimBonus(ctx, acc.ID, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, Bonus, res.Reward)
	assert.True(t, res.Day.AllCompleted)
	assert.True(t, res.Day.BonusClaimed)

	_, err = f.svc.ClaimBonus(ctx, acc.ID, ch.ID)
	assert.ErrorIs(t, err, ErrBonusClaimed)

	got := testutil.Reload[model.Character](t, f.db, ch.ID)
	assert.Equal(t, model.StartingGold+5000, got.Gold)
	assert.Equal(t, int64(25), testutil.Reload[model.Account](t, f.db, acc.ID).Gems)
}

func TestTrack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc, _ := testutil.CreatePlayer(t, f.db, "alice")

	f.svc.Track(ctx, acc.ID, TypeJoinParty, 1)
	f.svc.Track(ctx, acc.ID, "unknown", 1)

	v, err := f.svc.Progress(ctx, acc.ID, 0)
	require.NoError(t, err)
	for _, q := range v.Quests {
		if q.Type == TypeJoinParty {
			assert.True(t, q.Completed)
		}
	}
}

type boosts struct {
	gold, exp float64
	seen      []int64
}

func (b *boosts) Multipliers(_ *gorm.DB, ch *model.Character) (float64, float64, error) {
	b.seen = append(b.seen, ch.ID)
	return b.gold, b.exp, nil
}

func TestClaim_EventBoostsStackWithPremium(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc, ch := testutil.CreatePlayer(t, f.db, "alice")
	b := &boosts{gold: 1.5, exp: 2}
	f.svc.UseBoosts(b)

	_, err := f.svc.Update(ctx, acc.ID, TypeKillMobs, 10)
	require.NoError(t, err)
	res, err := f.svc.Claim(ctx, acc.ID, ch.ID, "kill_10_mobs")
	require.NoError(t, err)
	assert.Equal(t, int64(750), res.Reward.Gold)
	assert.Equal(t, int64(400), res.Reward.Exp)
	assert.Equal(t, []int64{ch.ID}, b.seen)

	until := f.clock.Add(72 * time.Hour)
	require.NoError(t, f.db.Model(acc).Updates(map[string]any{
		"premium_tier": model.TierGold, "premium_until": until,
	}).Error)
	completeAll(t, f, acc.ID)
	res, err = f.svc.Claim(ctx, acc.ID, ch.ID, "use_10_skills")
	require.NoError(t, err)
	assert.Equal(t, int64(675), res.Reward.Gold, "300 gold, premium 1.5 times event 1.5")
}
