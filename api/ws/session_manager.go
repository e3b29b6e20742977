package ws

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionManager maintains the registry of connected sessions.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session // session id →
	logger   *zap.Logger
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Register adds a session.
func (sm *SessionManager) Register(s *Session) {
	sm.mu.Lock()
	sm.sessions[s.ID] = s
	sm.mu.Unlock()
	sm.logger.Info("ws session registered",
		zap.String("session_id", s.ID),
		zap.Int64("account_id", s.AccountID))
}

// Unregister removes a session by id.
func (sm *SessionManager) Unregister(id string) {
	sm.mu.Lock()
	delete(sm.sessions, id)
	sm.mu.Unlock()
	sm.logger.Info("ws session unregistered", zap.String("session_id", id))
}

// Count returns the number of connected sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// ByAccount returns the sessions of one account.
func (sm *SessionManager) ByAccount(accountID int64) []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	var out []*Session
	for _, s := range sm.sessions {
		if s.AccountID == accountID {
			out = append(out, s)
		}
	}
	return out
}

// CloseAll closes every session and waits up to timeout for their read
// pumps to unregister them.
func (sm *SessionManager) CloseAll(timeout time.Duration) {
	sm.mu.RLock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	sm.mu.RUnlock()

	sm.logger.Info("closing all sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if sm.Count() == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}
