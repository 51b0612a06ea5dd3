package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/kadim/server/cache"
	"github.com/kasuganosora/kadim/server/config"
	"github.com/kasuganosora/kadim/server/events"
	mw "github.com/kasuganosora/kadim/server/middleware"
	"go.uber.org/zap"
)

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub    cache.PubSub
	sec       config.SecurityConfig
	c         cache.Cache
	logger    *zap.Logger
	keepalive time.Duration
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, c: c, sec: sec, logger: logger, keepalive: 30 * time.Second}
}

// eventName picks the SSE event name from a published payload.
func eventName(payload string) string {
	var head struct {
		Type events.Type `json:"type"`
	}
	if err := json.Unmarshal([]byte(payload), &head); err != nil || head.Type == "" {
		return "message"
	}
	return string(head.Type)
}

// ServeSSE handles GET /sse?token=<jwt>.
// It streams the caller's account events and server-wide announcements.
func (h *Handler) ServeSSE(c *gin.Context) {
	if !mw.OriginAllowed(h.sec.AllowedOrigins, c.GetHeader("Origin")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}
	claims, err := mw.Authenticate(c.Request.Context(), h.sec, h.c, mw.StreamToken(c))
	if err != nil {
		c.JSON(mw.AuthStatus(err), gin.H{"error": err.Error()})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, events.AnnounceChannel, events.AccountChannel(claims.AccountID))
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Int64("account_id", claims.AccountID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream unavailable", "retryable": true})
		return
	}
	defer unsub()

	// Set SSE headers.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"account_id\":%d}\n\n", claims.AccountID)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			name := eventName(msg.Payload)
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", name, msg.Payload)
			c.Writer.Flush()
			if name == string(events.AccountBanned) {
				return
			}

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
