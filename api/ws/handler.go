package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/kadim/server/cache"
	"github.com/kasuganosora/kadim/server/config"
	"github.com/kasuganosora/kadim/server/events"
	mw "github.com/kasuganosora/kadim/server/middleware"
	"go.uber.org/zap"
)

// Handler is the Gin handler for GET /ws. It pushes the same events as
// the SSE stream over a WebSocket.
type Handler struct {
	pubsub   cache.PubSub
	cache    cache.Cache
	sec      config.SecurityConfig
	router   *Router
	hub      *Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which origins are accepted; an empty slice
// permits all origins.
func NewHandler(pubsub cache.PubSub, c cache.Cache, sec config.SecurityConfig, router *Router, hub *Hub, logger *zap.Logger) *Handler {
	allowed := sec.AllowedOrigins
	return &Handler{
		pubsub: pubsub,
		cache:  c,
		sec:    sec,
		router: router,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxFrameBytes,
			WriteBufferSize: maxFrameBytes,
			CheckOrigin: func(r *http.Request) bool {
				return mw.OriginAllowed(allowed, r.Header.Get("Origin"))
			},
		},
	}
}

// ServeWS handles GET /ws?token=<jwt>.
func (h *Handler) ServeWS(c *gin.Context) {
	if !mw.OriginAllowed(h.sec.AllowedOrigins, c.GetHeader("Origin")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}
	claims, err := mw.Authenticate(c.Request.Context(), h.sec, h.cache, mw.StreamToken(c))
	if err != nil {
		c.JSON(mw.AuthStatus(err), gin.H{"error": err.Error()})
		return
	}

	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, events.AnnounceChannel, events.AccountChannel(claims.AccountID))
	if err != nil {
		h.logger.Error("ws subscribe failed", zap.Int64("account_id", claims.AccountID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream unavailable", "retryable": true})
		return
	}
	defer unsub()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	sess := NewSession(claims.AccountID, conn, h.logger)
	h.hub.Register(sess)
	h.logger.Info("ws connected", zap.Int64("account_id", sess.AccountID))

	hello, _ := json.Marshal(map[string]int64{"account_id": claims.AccountID})
	sess.Send(&Packet{Type: "connected", Payload: hello})

	go h.forward(sess, msgCh)
	h.readPump(sess)

	sess.Close()
	h.hub.Unregister(sess)
	h.logger.Info("ws disconnected", zap.Int64("account_id", sess.AccountID))
}

// forward relays pub/sub events to the session until it closes.
func (h *Handler) forward(s *Session, msgCh <-chan *cache.Message) {
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				s.Close()
				return
			}
			var head struct {
				Type events.Type `json:"type"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &head); err != nil || head.Type == "" {
				h.logger.Debug("ws skipped untyped event", zap.String("channel", msg.Channel))
				continue
			}
			s.Send(&Packet{Type: string(head.Type), Payload: json.RawMessage(msg.Payload)})
			if head.Type == events.AccountBanned {
				s.Close()
				return
			}
		case <-s.Done():
			return
		}
	}
}

// readPump reads client packets until the connection fails. The write
// goroutine closes the connection when the session ends.
func (h *Handler) readPump(s *Session) {
	s.extendRead()
	s.Conn.SetPongHandler(func(string) error {
		s.extendRead()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) && !s.IsClosed() {
				h.logger.Warn("ws unexpected close",
					zap.Int64("account_id", s.AccountID),
					zap.Error(err))
			}
			return
		}
		s.extendRead()
		h.router.Dispatch(s, raw)
	}
}
