package ws

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second // server-side WS ping
)

// Packet is the unified WS message envelope.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is one authenticated WebSocket connection. An account may hold
// several at once.
type Session struct {
	ID        string
	AccountID int64

	Conn     *websocket.Conn
	SendChan chan []byte
	Done     chan struct{}
	TraceID  string
	LastSeq  uint64

	mu     sync.Mutex
	subs   map[string]func() // battle id → unsubscribe
	logger *zap.Logger
}

// NewSession creates a Session and starts its write pump.
func NewSession(accountID int64, conn *websocket.Conn, logger *zap.Logger) *Session {
	s := newSession(accountID, logger)
	s.Conn = conn
	go s.writePump()
	return s
}

func newSession(accountID int64, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		ID:        uuid.NewString(),
		AccountID: accountID,
		SendChan:  make(chan []byte, sendChanBuf),
		Done:      make(chan struct{}),
		subs:      make(map[string]func()),
		logger:    logger,
	}
}

// writePump drains SendChan and writes to the WebSocket connection.
// Also sends periodic WebSocket pings to detect dead connections quickly.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data := <-s.SendChan:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error",
					zap.Int64("account_id", s.AccountID),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.Done:
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes pkt and queues it without blocking. Packets for a closed
// session or a full queue are dropped.
func (s *Session) Send(pkt *Packet) {
	if s.IsClosed() {
		return
	}
	data, err := json.Marshal(pkt)
	if err != nil {
		s.logger.Error("marshal packet", zap.String("type", pkt.Type), zap.Error(err))
		return
	}
	select {
	case s.SendChan <- data:
	case <-s.Done:
	default:
		s.logger.Warn("send channel full, dropping packet",
			zap.Int64("account_id", s.AccountID),
			zap.String("type", pkt.Type))
	}
}

// Reply sends a packet whose payload is v encoded as JSON.
func (s *Session) Reply(msgType string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("marshal payload", zap.String("type", msgType), zap.Error(err))
		return
	}
	s.Send(&Packet{Type: msgType, Payload: payload})
}

// Close signals the write pump to shut down and ends every subscription.
func (s *Session) Close() {
	s.mu.Lock()
	select {
	case <-s.Done:
	default:
		close(s.Done)
	}
	subs := s.subs
	s.subs = make(map[string]func())
	s.mu.Unlock()

	for _, cancel := range subs {
		cancel()
	}
}

// IsClosed returns true if the session has been closed.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// SetReadDeadline pushes the WebSocket read deadline forward.
func (s *Session) SetReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}

// AddSubscription records the cancel func of a battle subscription. It
// reports false, without keeping cancel, when the battle is already
// subscribed or the session is closed.
func (s *Session) AddSubscription(battleID string, cancel func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IsClosed() {
		return false
	}
	if _, ok := s.subs[battleID]; ok {
		return false
	}
	s.subs[battleID] = cancel
	return true
}

// RemoveSubscription cancels a battle subscription. Unknown ids are ignored.
func (s *Session) RemoveSubscription(battleID string) bool {
	s.mu.Lock()
	cancel, ok := s.subs[battleID]
	delete(s.subs, battleID)
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Subscriptions returns the subscribed battle ids in order.
func (s *Session) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subs))
	for id := range s.subs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
