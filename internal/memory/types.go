package memory

import "time"

// Turn is one user/agent exchange. Turns are immutable once appended and
// owned by the session memory that recorded them.
type Turn struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	UserText  string         `json:"user"`
	AgentText string         `json:"agent"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SessionSummary is derived from a session memory at summarize time; it is
// never stored on its own.
type SessionSummary struct {
	SessionID    string         `json:"session_id"`
	TotalTurns   int            `json:"total_turns"`
	Context      map[string]any `json:"context"`
	RecentTopics []string       `json:"recent_topics"`
}

// Preference is one durable user preference value.
type Preference struct {
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile is a user's durable cross-session state.
type Profile struct {
	UserID      string                `json:"user_id"`
	CreatedAt   time.Time             `json:"created_at"`
	Preferences map[string]Preference `json:"preferences"`
}

// SessionRecord is one entry in a user's session log.
type SessionRecord struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
	Summary   SessionSummary `json:"summary"`
}

// UserContext seeds a fresh session with a user's long-term state.
type UserContext struct {
	Profile        Profile         `json:"profile"`
	RecentSessions []SessionRecord `json:"recent_sessions"`
}
