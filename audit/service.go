package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	mw "github.com/kasuganosora/kadim/server/middleware"
	"github.com/kasuganosora/kadim/server/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionTradeSettled    = "trade.settled"
	ActionGuildTransfer   = "guild.transfer"
	ActionGuildDonate     = "guild.donate"
	ActionGuildDisband    = "guild.disband"
	ActionPremiumPurchase = "premium.purchase"
	ActionMailCollect     = "mail.collect"
	ActionAccountBan      = "account.ban"
	ActionAccountUnban    = "account.unban"
	ActionSystemMail      = "mail.system"
	ActionEventCreate     = "event.create"
	ActionEventUpdate     = "event.update"
	ActionEventDelete     = "event.delete"
)

// AuditEntry holds one audit event to be logged.
type AuditEntry struct {
	TraceID   string
	AccountID *int64
	CharID    *int64
	Action    string
	Target    string
	Detail    interface{}
	Error     string
	IP        string
}

// Recorder accepts audit entries. Services depend on this instead of *Service.
type Recorder interface {
	Log(ctx context.Context, entry AuditEntry)
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	db       *gorm.DB
	ch       chan *model.AuditLog
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	interval time.Duration
	logger   *zap.Logger
}

// New creates a new audit Service and starts its background worker.
// flushEvery <= 0 uses two seconds.
func New(db *gorm.DB, logger *zap.Logger, flushEvery time.Duration) *Service {
	if flushEvery <= 0 {
		flushEvery = 2 * time.Second
	}
	svc := &Service{
		db:       db,
		ch:       make(chan *model.AuditLog, 1024),
		stopCh:   make(chan struct{}),
		interval: flushEvery,
		logger:   logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an audit entry for async DB write. A missing TraceID is taken
// from ctx.
func (svc *Service) Log(ctx context.Context, entry AuditEntry) {
	if entry.TraceID == "" && ctx != nil {
		entry.TraceID = mw.TraceIDFrom(ctx)
	}
	var detail datatypes.JSON
	if entry.Detail != nil {
		raw, err := json.Marshal(entry.Detail)
		if err != nil {
			svc.logger.Warn("audit detail marshal failed", zap.String("action", entry.Action), zap.Error(err))
		} else {
			detail = datatypes.JSON(raw)
		}
	}
	record := &model.AuditLog{
		TraceID:   entry.TraceID,
		AccountID: entry.AccountID,
		CharID:    entry.CharID,
		Action:    entry.Action,
		Target:    entry.Target,
		Detail:    detail,
		Error:     entry.Error,
		IP:        entry.IP,
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.stopOnce.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.interval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Int64 returns a pointer to v, for AuditEntry id fields.
func Int64(v int64) *int64 { return &v }

// Discard is a Recorder that drops every entry.
type Discard struct{}

func (Discard) Log(context.Context, AuditEntry) {}

// Memory is a Recorder that keeps entries in memory.
type Memory struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (m *Memory) Log(_ context.Context, entry AuditEntry) {
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
}

// Actions returns the recorded actions in order.
func (m *Memory) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Action
	}
	return out
}
