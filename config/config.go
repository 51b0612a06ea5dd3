package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Events    EventsConfig    `mapstructure:"events"`
	Game      GameConfig      `mapstructure:"game"`
	Security  SecurityConfig  `mapstructure:"security"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	Mode        string        `mapstructure:"mode"` // sqlite | memory | mysql | postgres
	SQLitePath  string        `mapstructure:"sqlite_path"`
	MySQLDSN    string        `mapstructure:"mysql_dsn"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLife     time.Duration `mapstructure:"max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

// EventsConfig controls the optional NATS mirror of domain events.
type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type GameConfig struct {
	MaxCharacters   int           `mapstructure:"max_characters"`
	MaxPartySize    int           `mapstructure:"max_party_size"`
	GuildMaxMembers int           `mapstructure:"guild_max_members"`
	MailCost        int64         `mapstructure:"mail_cost"`
	MailTTL         time.Duration `mapstructure:"mail_ttl"`
	MailPageSize    int           `mapstructure:"mail_page_size"`
	TradeTTL        time.Duration `mapstructure:"trade_ttl"`
	SettleLockTTL   time.Duration `mapstructure:"settle_lock_ttl"`
	TxRetries       int           `mapstructure:"tx_retries"`
	DailyQuestCount int           `mapstructure:"daily_quest_count"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AdminIPs restricts /api/admin. Empty allows any IP holding the admin key.
	AdminIPs []string `mapstructure:"admin_ips"`
	// AllowedOrigins lists the SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type SchedulerConfig struct {
	MailPurgeInterval    time.Duration `mapstructure:"mail_purge_interval"`
	PremiumSweepInterval time.Duration `mapstructure:"premium_sweep_interval"`
	TradeExpiryInterval  time.Duration `mapstructure:"trade_expiry_interval"`
	AuditFlushInterval   time.Duration `mapstructure:"audit_flush_interval"`
}

// Load reads config from the given YAML file path. A .env file in the working
// directory is loaded first, and KADIM_* environment variables override both
// (KADIM_DATABASE_MODE overrides database.mode). A missing YAML file is not an
// error: defaults and environment are used instead.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("KADIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.Game.clamp()
	return cfg, nil
}

// PartySizeCap is the largest party the server allows.
const PartySizeCap = 5

func (g *GameConfig) clamp() {
	if g.MaxPartySize <= 0 || g.MaxPartySize > PartySizeCap {
		g.MaxPartySize = PartySizeCap
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.admin_key", "")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/game.db")
	v.SetDefault("database.mysql_dsn", "")
	v.SetDefault("database.postgres_dsn", "")
	v.SetDefault("database.max_open", 50)
	v.SetDefault("database.max_idle", 10)
	v.SetDefault("database.max_life", "1h")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "kadim.events")
	v.SetDefault("game.max_characters", 3)
	v.SetDefault("game.max_party_size", 5)
	v.SetDefault("game.guild_max_members", 30)
	v.SetDefault("game.mail_cost", 10)
	v.SetDefault("game.mail_ttl", "720h")
	v.SetDefault("game.mail_page_size", 20)
	v.SetDefault("game.trade_ttl", "30m")
	v.SetDefault("game.settle_lock_ttl", "10s")
	v.SetDefault("game.tx_retries", 3)
	v.SetDefault("game.daily_quest_count", 5)
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_ttl_h", "168h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("security.admin_ips", []string{})
	v.SetDefault("security.allowed_origins", []string{})
	v.SetDefault("scheduler.mail_purge_interval", "1h")
	v.SetDefault("scheduler.premium_sweep_interval", "10m")
	v.SetDefault("scheduler.trade_expiry_interval", "1m")
	v.SetDefault("scheduler.audit_flush_interval", "2s")
}

// Defaults returns the configuration used when neither a file nor the
// environment sets anything.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}
