package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kasuganosora/kadim/server/cache"
	"github.com/kasuganosora/kadim/server/config"
	dbadapter "github.com/kasuganosora/kadim/server/db"
	"github.com/kasuganosora/kadim/server/model"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// SetupTestDB creates a private in-memory SQLite DB and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := fmt.Sprintf("testdb_%d", dbSeq.Add(1))
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode:       dbadapter.ModeMemory,
		SQLitePath: name,
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() { _ = dbadapter.Close(db) })
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// CreateAccount inserts an account whose password is "password".
func CreateAccount(t *testing.T, db *gorm.DB, username string) *model.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	acc := &model.Account{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		PremiumTier:  model.TierNone,
	}
	require.NoError(t, db.Create(acc).Error)
	return acc
}

// CreateCharacter inserts a level-1 warrior owned by accountID.
func CreateCharacter(t *testing.T, db *gorm.DB, accountID int64, name string) *model.Character {
	t.Helper()
	ch, ok := model.NewCharacter(accountID, name, model.ClassWarrior, time.Now())
	require.True(t, ok)
	require.NoError(t, db.Create(ch).Error)
	return ch
}

// CreatePlayer creates an account and one character with the same name.
func CreatePlayer(t *testing.T, db *gorm.DB, name string) (*model.Account, *model.Character) {
	t.Helper()
	acc := CreateAccount(t, db, name)
	return acc, CreateCharacter(t, db, acc.ID, name)
}

// GiveItem puts an item record into a character's bag.
func GiveItem(t *testing.T, db *gorm.DB, charID int64, kind model.ItemKind, name string, qty int) *model.InventoryItem {
	t.Helper()
	inv := &model.InventoryItem{CharID: charID, Item: model.Item{
		TemplateID: strings.ToUpper(string(kind)) + "_" + name,
		Name:       name,
		Kind:       kind,
		Rarity:     model.RarityCommon,
		Tier:       1,
		Stats:      datatypes.NewJSONType(model.ItemStats{Damage: 5}),
		Qty:        qty,
	}}
	require.NoError(t, db.Create(inv).Error)
	return inv
}

// Reload fetches a fresh copy of dest by primary key.
func Reload[T any](t *testing.T, db *gorm.DB, id int64) *T {
	t.Helper()
	var v T
	require.NoError(t, db.First(&v, id).Error)
	return &v
}
