package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandlerFunc processes a decoded WS message payload.
type HandlerFunc func(ctx context.Context, s *Session, payload json.RawMessage) error

// Router dispatches incoming WS packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a Router with the built-in ping handler.
func NewRouter(logger *zap.Logger) *Router {
	r := &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
	r.On("ping", handlePing)
	return r
}

// On registers a HandlerFunc for the given message type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch decodes raw bytes, validates seq, and invokes the appropriate handler.
func (r *Router) Dispatch(s *Session, raw []byte) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet",
			zap.Int64("account_id", s.AccountID),
			zap.Error(err))
		s.SendError("malformed packet")
		return
	}

	// Seq == 0 means the client does not track sequence numbers.
	if pkt.Seq != 0 && pkt.Seq <= s.LastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.Int64("account_id", s.AccountID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", s.LastSeq))
		return
	}
	if pkt.Seq != 0 {
		s.LastSeq = pkt.Seq
	}

	s.TraceID = uuid.NewString()
	ctx := context.WithValue(context.Background(), ctxKeyTraceID{}, s.TraceID)

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.Int64("account_id", s.AccountID))
		s.SendError("unknown type: " + pkt.Type)
		return
	}

	if err := fn(ctx, s, pkt.Payload); err != nil {
		r.logger.Warn("handler error",
			zap.String("type", pkt.Type),
			zap.Int64("account_id", s.AccountID),
			zap.String("trace_id", s.TraceID),
			zap.Error(err))
		s.SendError(err.Error())
	}
}

type pingPayload struct {
	ClientTS int64 `json:"client_ts"`
}

type pongPayload struct {
	ClientTS int64 `json:"client_ts"`
	ServerTS int64 `json:"server_ts"`
}

func handlePing(_ context.Context, s *Session, payload json.RawMessage) error {
	var req pingPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return err
		}
	}
	out, _ := json.Marshal(pongPayload{ClientTS: req.ClientTS, ServerTS: time.Now().UnixMilli()})
	s.Send(&Packet{Type: "pong", Payload: out})
	return nil
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
