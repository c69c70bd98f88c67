package guardrails

import (
	"sync"
	"time"
)

// SessionState tracks metrics for one agent session.
type SessionState struct {
	SessionID  string
	CreatedAt  time.Time
	LastActive time.Time

	TotalTokens  int
	RequestCount int

	// Last N prompts, kept for loop detection.
	PromptHistory []promptEntry

	// tool name -> call timestamps
	ToolCalls map[string][]time.Time

	ConsecutiveErrors int
}

type promptEntry struct {
	Text      string
	Timestamp time.Time
}

const maxPromptHistory = 20

// Manager holds all active sessions and expires idle ones.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*SessionState
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a session manager that removes sessions idle longer
// than ttl. Call Stop to terminate the cleanup loop.
func NewManager(ttl time.Duration) *Manager {
	m := &Manager{
		sessions: make(map[string]*SessionState),
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// GetOrCreate returns the session for the given ID, creating one if needed.
func (m *Manager) GetOrCreate(sessionID string) *SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		s = &SessionState{
			SessionID: sessionID,
			CreatedAt: time.Now(),
			ToolCalls: make(map[string][]time.Time),
		}
		m.sessions[sessionID] = s
	}
	return s
}

// RecordRequest updates session state before a request is forwarded upstream.
func (m *Manager) RecordRequest(sessionID string, promptText string, toolNames []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	now := time.Now()
	s.LastActive = now
	s.RequestCount++

	if promptText != "" {
		s.PromptHistory = append(s.PromptHistory, promptEntry{Text: promptText, Timestamp: now})
		if len(s.PromptHistory) > maxPromptHistory {
			s.PromptHistory = s.PromptHistory[len(s.PromptHistory)-maxPromptHistory:]
		}
	}

	for _, tool := range toolNames {
		s.ToolCalls[tool] = append(s.ToolCalls[tool], now)
	}
}

// RecordResponse updates session state after the upstream response arrives.
func (m *Manager) RecordResponse(sessionID string, tokens int, isError bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	s.TotalTokens += tokens

	if isError {
		s.ConsecutiveErrors++
	} else {
		s.ConsecutiveErrors = 0
	}
}

// SessionTokens returns the running token total for a session.
func (m *Manager) SessionTokens(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		return s.TotalTokens
	}
	return 0
}

// Remove deletes a session (used when a guardrail terminates it).
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Stop terminates the cleanup loop.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for id, s := range m.sessions {
				if now.Sub(s.LastActive) > m.ttl {
					delete(m.sessions, id)
				}
			}
			m.mu.Unlock()
		}
	}
}
