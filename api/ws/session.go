package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 64
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
	maxFrameBytes = 4096
)

// Packet is the unified WS message envelope.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is one connected event stream.
type Session struct {
	AccountID int64
	Conn      *websocket.Conn
	TraceID   string
	LastSeq   uint64

	sendChan  chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

// NewSession creates a Session and starts its write goroutine.
func NewSession(accountID int64, conn *websocket.Conn, logger *zap.Logger) *Session {
	s := &Session{
		AccountID: accountID,
		Conn:      conn,
		sendChan:  make(chan []byte, sendChanBuf),
		done:      make(chan struct{}),
		logger:    logger,
	}
	if conn != nil {
		go s.writePump()
	}
	return s
}

// writePump drains the send queue and pings the peer.
// It is the only goroutine that writes to Conn.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data := <-s.sendChan:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error", zap.Int64("account_id", s.AccountID), zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			s.flush()
			_ = s.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeDeadline))
			return
		}
	}
}

// flush writes whatever is still queued when the session closes.
func (s *Session) flush() {
	for {
		select {
		case data := <-s.sendChan:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Send encodes pkt and queues it. Drops the packet if the queue is full.
func (s *Session) Send(pkt *Packet) {
	if s.IsClosed() {
		return
	}
	data, err := json.Marshal(pkt)
	if err != nil {
		return
	}
	select {
	case s.sendChan <- data:
	case <-s.done:
	default:
		s.logger.Warn("send queue full, dropping packet",
			zap.Int64("account_id", s.AccountID),
			zap.String("type", pkt.Type))
	}
}

// SendError queues an error packet.
func (s *Session) SendError(msg string) {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	s.Send(&Packet{Type: "error", Payload: payload})
}

// Close signals the write goroutine to shut down. Safe to call twice.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) extendRead() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}
