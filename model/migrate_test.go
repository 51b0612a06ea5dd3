package model_test

import (
	"testing"
	"time"

	"github.com/kasuganosora/kadim/server/model"
	"github.com/kasuganosora/kadim/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	acc := &model.Account{Username: "test_user", Email: "t@example.com", PasswordHash: "hash", PremiumTier: model.TierNone}
	require.NoError(t, db.Create(acc).Error)
	assert.Greater(t, acc.ID, int64(0))

	char, ok := model.NewCharacter(acc.ID, "Hero", model.ClassWarrior, time.Now())
	require.True(t, ok)
	require.NoError(t, db.Create(char).Error)
	assert.Equal(t, 150, char.MaxHP)
	assert.Equal(t, model.StartingGold, char.Gold)

	inv := &model.InventoryItem{CharID: char.ID, Item: model.Item{
		TemplateID: "WA_W_T1", Name: "Rusty Sword", Kind: model.KindWeapon, Rarity: model.RarityCommon,
		Stats: datatypes.NewJSONType(model.ItemStats{Damage: 12, CritChance: 1}), Qty: 1,
	}}
	require.NoError(t, db.Create(inv).Error)

	var loaded model.InventoryItem
	require.NoError(t, db.First(&loaded, inv.ID).Error)
	assert.Equal(t, 12, loaded.Stats.Data().Damage)
	assert.False(t, loaded.Equipped())

	guild := &model.Guild{Name: "TestGuild", Tag: "TG", Level: 1, LeaderID: char.ID, MaxMembers: 30}
	require.NoError(t, db.Create(guild).Error)
	gm := &model.GuildMember{GuildID: guild.ID, CharID: char.ID, CharName: char.Name, Role: model.RoleLeader, JoinedAt: time.Now()}
	require.NoError(t, db.Create(gm).Error)

	party := &model.Party{LeaderID: char.ID, LootMode: model.LootFreeForAll, ExpShare: true, MaxMembers: 5}
	require.NoError(t, db.Create(party).Error)
	require.NoError(t, db.Create(&model.PartyMember{PartyID: party.ID, CharID: char.ID, CharName: char.Name, IsLeader: true, JoinedAt: time.Now()}).Error)

	var p model.Party
	require.NoError(t, db.Preload("Members").First(&p, party.ID).Error)
	require.Len(t, p.Members, 1)
	assert.True(t, p.Members[0].IsLeader)

	mail := &model.Mail{RecipientID: char.ID, RecipientName: char.Name, SenderName: model.SystemSender,
		Subject: "Welcome", Type: model.MailSystem, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, db.Create(mail).Error)

	dq := &model.DailyQuestProgress{AccountID: acc.ID, Date: "2026-01-02",
		Quests: datatypes.NewJSONType([]model.DailyQuestEntry{{QuestID: "send_mail", Type: "send_mail", Target: 1}})}
	require.NoError(t, db.Create(dq).Error)
	var dqLoaded model.DailyQuestProgress
	require.NoError(t, db.First(&dqLoaded, dq.ID).Error)
	assert.Len(t, dqLoaded.Quests.Data(), 1)

	al := &model.AuditLog{TraceID: "trace-001", Action: "login"}
	require.NoError(t, db.Create(al).Error)
}

func TestItemValidate(t *testing.T) {
	it := model.Item{TemplateID: "POT", Name: "Potion", Kind: model.KindConsumable, Qty: 5}
	require.NoError(t, it.Validate())
	assert.Equal(t, model.RarityCommon, it.Rarity)

	sword := model.Item{TemplateID: "SW", Name: "Sword", Kind: model.KindWeapon, Qty: 2}
	assert.ErrorIs(t, sword.Validate(), model.ErrItemQty)

	bad := model.Item{TemplateID: "X", Name: "X", Kind: "spaceship"}
	assert.ErrorIs(t, bad.Validate(), model.ErrItemKind)

	slot, ok := model.KindRing.Slot()
	assert.True(t, ok)
	assert.Equal(t, model.SlotRing, slot)
	_, ok = model.KindMaterial.Slot()
	assert.False(t, ok)
}

func TestGuildRoleOrder(t *testing.T) {
	assert.True(t, model.RoleLeader.Outranks(model.RoleViceLeader))
	assert.True(t, model.RoleViceLeader.Outranks(model.RoleOfficer))
	assert.True(t, model.RoleOfficer.Outranks(model.RoleMember))
	assert.False(t, model.RoleOfficer.Outranks(model.RoleOfficer))
	assert.False(t, model.GuildRole("KING").Outranks(model.RoleMember))
}

func TestAccountActiveTier(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	assert.Equal(t, model.TierNone, (&model.Account{PremiumTier: model.TierGold, PremiumUntil: &past}).ActiveTier(now))
	assert.Equal(t, model.TierGold, (&model.Account{PremiumTier: model.TierGold, PremiumUntil: &future}).ActiveTier(now))
	assert.Equal(t, model.TierNone, (&model.Account{}).ActiveTier(now))
}
