package ws

import (
	"sync"

	"go.uber.org/zap"
)

// Hub tracks the live session of each account. A second connection from
// the same account displaces the first.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	logger   *zap.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{sessions: make(map[int64]*Session), logger: logger}
}

// Register adds s, closing any previous session of the same account.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.sessions[s.AccountID]; ok && old != s {
		old.Close()
		h.logger.Info("duplicate ws session displaced", zap.Int64("account_id", s.AccountID))
	}
	h.sessions[s.AccountID] = s
}

// Unregister removes s if it is still the account's current session.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.sessions[s.AccountID]; ok && cur == s {
		delete(h.sessions, s.AccountID)
	}
}

// Get returns the account's session, or nil.
func (h *Hub) Get(accountID int64) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[accountID]
}

// Count returns the number of connected sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll closes and forgets every session.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		s.Close()
		delete(h.sessions, id)
	}
}
