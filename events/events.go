// Package events delivers domain notifications to connected accounts after
// the change that caused them has committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/kadim/server/cache"
	"go.uber.org/zap"
)

type Type string

const (
	TradeRequested Type = "trade.requested"
	TradeUpdated   Type = "trade.updated"
	TradeCompleted Type = "trade.completed"
	TradeCancelled Type = "trade.cancelled"
	PartyUpdated   Type = "party.updated"
	PartyDisbanded Type = "party.disbanded"
	GuildUpdated   Type = "guild.updated"
	GuildDisbanded Type = "guild.disbanded"
	MailReceived   Type = "mail.received"
	AccountBanned  Type = "account.banned"
	Announcement   Type = "announce"
)

// AnnounceChannel carries server-wide announcements.
const AnnounceChannel = "announce"

// AccountChannel is the pub/sub channel of one account.
func AccountChannel(accountID int64) string { return fmt.Sprintf("account:%d", accountID) }

// Event is one notification. Recipients are account ids.
type Event struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	Data       json.RawMessage `json:"data"`
	At         time.Time       `json:"at"`
	Recipients []int64         `json:"-"`
}

// Publisher accepts events. Publish must be called after commit and never fails
// the caller: delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, typ Type, data any, recipients ...int64)
}

// Mirror forwards a serialized event to an external bus.
type Mirror interface {
	Forward(typ Type, payload []byte) error
	Close()
}

// Bus publishes events on cache pub/sub and optionally mirrors them.
type Bus struct {
	ps     cache.PubSub
	mirror Mirror
	logger *zap.Logger
	now    func() time.Time
}

// NewBus creates a Bus. mirror may be nil.
func NewBus(ps cache.PubSub, mirror Mirror, logger *zap.Logger) *Bus {
	return &Bus{ps: ps, mirror: mirror, logger: logger, now: time.Now}
}

func (b *Bus) Publish(ctx context.Context, typ Type, data any, recipients ...int64) {
	raw, err := json.Marshal(data)
	if err != nil {
		b.logger.Error("event marshal failed", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	ev := Event{ID: uuid.NewString(), Type: typ, Data: raw, At: b.now(), Recipients: recipients}
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("event marshal failed", zap.String("type", string(typ)), zap.Error(err))
		return
	}

	seen := make(map[int64]struct{}, len(recipients))
	for _, id := range recipients {
		if _, dup := seen[id]; dup || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		if err := b.ps.Publish(ctx, AccountChannel(id), string(payload)); err != nil {
			b.logger.Warn("event publish failed",
				zap.String("type", string(typ)), zap.Int64("account_id", id), zap.Error(err))
		}
	}

	if b.mirror != nil {
		if err := b.mirror.Forward(typ, payload); err != nil {
			b.logger.Warn("event mirror failed", zap.String("type", string(typ)), zap.Error(err))
		}
	}
}

// Announce sends a server-wide message to every connected client.
func (b *Bus) Announce(ctx context.Context, message string) error {
	payload, err := json.Marshal(Event{
		ID:   uuid.NewString(),
		Type: Announcement,
		Data: mustJSON(map[string]string{"message": message}),
		At:   b.now(),
	})
	if err != nil {
		return err
	}
	return b.ps.Publish(ctx, AnnounceChannel, string(payload))
}

// Close releases the mirror connection.
func (b *Bus) Close() {
	if b.mirror != nil {
		b.mirror.Close()
	}
}

func mustJSON(v any) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Type, any, ...int64) {}
