package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("does-not-exist.yaml")
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, 5, cfg.Game.MaxPartySize)
	assert.Equal(t, 30, cfg.Game.GuildMaxMembers)
	assert.Equal(t, int64(10), cfg.Game.MailCost)
	assert.Equal(t, 720*time.Hour, cfg.Game.MailTTL)
	assert.Equal(t, 168*time.Hour, cfg.Security.JWTTTLH)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte("server:\n  port: 9000\ngame:\n  max_party_size: 4\n  trade_ttl: 5m\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o644))

	t.Setenv("KADIM_GAME_MAX_PARTY_SIZE", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Game.MaxPartySize)
	assert.Equal(t, 5*time.Minute, cfg.Game.TradeTTL)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("KADIM_DATABASE_MODE=memory\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("KADIM_DATABASE_MODE") })

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Mode)
}

func TestLoadBadYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 5, cfg.Game.MaxPartySize)
	assert.Equal(t, 30*time.Minute, cfg.Game.TradeTTL)
	assert.Equal(t, int64(10), cfg.Game.MailCost)
	assert.Equal(t, time.Hour, cfg.Scheduler.MailPurgeInterval)
}

func TestLoadClampsPartySize(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("game:\n  max_party_size: 12\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, PartySizeCap, cfg.Game.MaxPartySize)

	t.Setenv("KADIM_GAME_MAX_PARTY_SIZE", "0")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, PartySizeCap, cfg.Game.MaxPartySize)
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
