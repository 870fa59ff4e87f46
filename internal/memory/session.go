package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leeseongmin/maum/internal/extract"
)

// Status tracks whether a session has been ended. Ended sessions are kept in
// the registry and still accept turns; the status exists for observability.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// TopicLister labels a transcript with short topic keywords.
type TopicLister interface {
	Topics(ctx context.Context, exchanges []extract.Exchange) []string
}

// DefaultMaxTurns bounds session history when no explicit limit is given.
const DefaultMaxTurns = 50

// summaryWindow is how many recent turns feed topic extraction.
const summaryWindow = 5

// SessionMemory holds the bounded conversation history and extracted context
// for one session.
type SessionMemory struct {
	id       string
	maxTurns int

	mu      sync.RWMutex
	status  Status
	turns   []Turn
	context map[string]any
}

func NewSessionMemory(sessionID string, maxTurns int) *SessionMemory {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &SessionMemory{
		id:       sessionID,
		maxTurns: maxTurns,
		status:   StatusActive,
		context:  make(map[string]any),
	}
}

func (m *SessionMemory) ID() string { return m.id }

func (m *SessionMemory) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// AddTurn appends a turn and evicts the oldest entries beyond the bound.
// It always succeeds.
func (m *SessionMemory) AddTurn(userText, agentText string, metadata map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.turns = append(m.turns, Turn{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		UserText:  userText,
		AgentText: agentText,
		Metadata:  metadata,
	})
	if len(m.turns) > m.maxTurns {
		m.turns = append([]Turn(nil), m.turns[len(m.turns)-m.maxTurns:]...)
	}
}

func (m *SessionMemory) TurnCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// RecentContext returns a copy of the last n turns in original order, fewer
// when history is shorter.
func (m *SessionMemory) RecentContext(n int) []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n <= 0 || len(m.turns) == 0 {
		return nil
	}
	if n > len(m.turns) {
		n = len(m.turns)
	}
	out := make([]Turn, n)
	copy(out, m.turns[len(m.turns)-n:])
	return out
}

// ExtractInformation upserts a context entry; repeated writes overwrite.
func (m *SessionMemory) ExtractInformation(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.context[key] = value
}

func (m *SessionMemory) GetContext(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.context[key]
	return v, ok
}

// AllContext returns a copy of the context map.
func (m *SessionMemory) AllContext() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.context))
	for k, v := range m.context {
		out[k] = v
	}
	return out
}

// Summarize derives the session summary, asking the topic lister about the
// most recent turns.
func (m *SessionMemory) Summarize(ctx context.Context, topics TopicLister) SessionSummary {
	recent := m.RecentContext(summaryWindow)

	summary := SessionSummary{
		SessionID:  m.id,
		TotalTurns: m.TurnCount(),
		Context:    m.AllContext(),
	}
	if topics != nil && len(recent) > 0 {
		exchanges := make([]extract.Exchange, len(recent))
		for i, turn := range recent {
			exchanges[i] = extract.Exchange{User: turn.UserText, Agent: turn.AgentText}
		}
		summary.RecentTopics = topics.Topics(ctx, exchanges)
	}
	return summary
}

func (m *SessionMemory) markEnded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = StatusEnded
}
