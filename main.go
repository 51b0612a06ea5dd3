package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/kadim/server/api/rest"
	"github.com/kasuganosora/kadim/server/api/sse"
	"github.com/kasuganosora/kadim/server/api/ws"
	"github.com/kasuganosora/kadim/server/audit"
	"github.com/kasuganosora/kadim/server/cache"
	"github.com/kasuganosora/kadim/server/config"
	dbadapter "github.com/kasuganosora/kadim/server/db"
	"github.com/kasuganosora/kadim/server/events"
	"github.com/kasuganosora/kadim/server/game/dailyquest"
	"github.com/kasuganosora/kadim/server/game/event"
	"github.com/kasuganosora/kadim/server/game/guild"
	"github.com/kasuganosora/kadim/server/game/mail"
	"github.com/kasuganosora/kadim/server/game/party"
	"github.com/kasuganosora/kadim/server/game/premium"
	"github.com/kasuganosora/kadim/server/game/trade"
	mw "github.com/kasuganosora/kadim/server/middleware"
	"github.com/kasuganosora/kadim/server/model"
	"github.com/kasuganosora/kadim/server/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}
	if cfg.Security.JWTSecret == "" {
		logger.Fatal("security.jwt_secret must be set")
	}

	// ---- Database ----
	if cfg.Database.Mode == dbadapter.ModeSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0o755); err != nil {
			logger.Fatal("db dir", zap.Error(err))
		}
	}
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	defer dbadapter.Close(db)
	if err := model.AutoMigrate(db); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger, cfg.Scheduler.AuditFlushInterval)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		logger.Fatal("pubsub", zap.Error(err))
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Events ----
	var mirror events.Mirror
	if cfg.Events.NATSURL != "" {
		nm, err := events.DialNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			logger.Warn("nats mirror disabled", zap.Error(err))
		} else {
			mirror = nm
			logger.Info("NATS mirror connected", zap.String("url", cfg.Events.NATSURL))
		}
	}
	bus := events.NewBus(pubsub, mirror, logger)
	defer bus.Close()

	// ---- Services ----
	eventSvc := event.NewService(db, logger)
	if _, err := eventSvc.SeedDefaults(context.Background()); err != nil {
		logger.Warn("seeding default events failed", zap.Error(err))
	}
	questSvc := dailyquest.NewService(db, cfg.Game, logger)
	questSvc.UseBoosts(eventSvc)
	partySvc := party.NewService(db, bus, questSvc, cfg.Game, logger)
	guildSvc := guild.NewService(db, bus, auditSvc, cfg.Game, logger)
	tradeSvc := trade.NewService(db, c, bus, auditSvc, cfg.Game, logger)
	mailSvc := mail.NewService(db, bus, questSvc, auditSvc, cfg.Game, logger)
	premiumSvc := premium.NewService(db, mailSvc, auditSvc, cfg.Game, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	sweeps := []struct {
		name     string
		interval time.Duration
		fn       func(ctx context.Context) (int, error)
	}{
		{"mail_purge", cfg.Scheduler.MailPurgeInterval, mailSvc.PurgeExpired},
		{"premium_expiry", cfg.Scheduler.PremiumSweepInterval, premiumSvc.SweepExpired},
		{"trade_expiry", cfg.Scheduler.TradeExpiryInterval, tradeSvc.ExpireStale},
	}
	for _, s := range sweeps {
		if s.interval <= 0 {
			continue
		}
		task := sweepTask(s.name, s.fn, logger)
		sched.AddTicker(s.name, s.interval, task)
		sched.AddDelay(s.name+"_startup", 5*time.Second, task)
	}

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", apirest.Health)

	apirest.Register(r, apirest.Handlers{
		Auth:       apirest.NewAuthHandler(db, c, cfg.Security, logger),
		Character:  apirest.NewCharacterHandler(db, cfg.Game, logger),
		Party:      apirest.NewPartyHandler(db, partySvc, logger),
		Guild:      apirest.NewGuildHandler(db, guildSvc, logger),
		Trade:      apirest.NewTradeHandler(db, tradeSvc, logger),
		Mail:       apirest.NewMailHandler(db, mailSvc, logger),
		DailyQuest: apirest.NewDailyQuestHandler(db, questSvc, logger),
		Premium:    apirest.NewPremiumHandler(premiumSvc, logger),
		Event:      apirest.NewEventHandler(db, eventSvc, bus, auditSvc, logger),
		Admin:      apirest.NewAdminHandler(db, c, mailSvc, bus, sched, auditSvc, logger),
	}, mw.Auth(cfg.Security, c), apirest.AdminGuards(cfg.Server.AdminKey, cfg.Security.AdminIPs)...)

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	// ---- WebSocket ----
	hub := ws.NewHub(logger)
	wsH := ws.NewHandler(pubsub, c, cfg.Security, ws.NewRouter(logger), hub, logger)
	r.GET("/ws", wsH.ServeWS)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	logger.Info("closing ws sessions", zap.Int("count", hub.Count()))
	hub.CloseAll()
}

// sweepTask adapts a counting sweep to a scheduler task.
func sweepTask(name string, fn func(ctx context.Context) (int, error), logger *zap.Logger) scheduler.TaskFn {
	return func(ctx context.Context) error {
		n, err := fn(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if n > 0 {
			logger.Info("sweep finished", zap.String("task", name), zap.Int("rows", n))
		}
		return nil
	}
}
