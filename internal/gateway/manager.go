// ABOUTME: Live session set owned by the dispatcher
// ABOUTME: Tracks connections per bot and supports graceful drain

package gateway

import (
	"log/slog"
	"sync"
)

// Manager tracks the live sessions on this gateway instance. Double
// connections for one bot are permitted (reconnect races); response
// ownership is enforced by the interaction store, not here.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session // session ID -> session
	logger   *slog.Logger
}

// NewManager creates a session manager. Pass nil logger for default.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		logger:   logger.With("component", "sessions"),
	}
}

// Add registers a live session.
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info("session registered",
		"session_id", s.id,
		"bot_user_id", s.BotUserID())
}

// Remove forgets a session after it closes.
func (m *Manager) Remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()

	m.logger.Info("session removed",
		"session_id", s.id,
		"bot_user_id", s.BotUserID())
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CountForBot returns the number of live sessions for one bot.
func (m *Manager) CountForBot(botUserID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, s := range m.sessions {
		if s.BotUserID() == botUserID {
			count++
		}
	}
	return count
}

// CloseAll requests teardown of every live session and waits for each
// to finish. Used during graceful shutdown.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.close()
	}
	for _, s := range sessions {
		<-s.done
	}
}
