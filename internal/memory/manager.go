package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/leeseongmin/maum/internal/extract"
	"github.com/leeseongmin/maum/internal/observability"
	"github.com/leeseongmin/maum/internal/policy"
)

// FactExtractor maps one conversational turn to structured facts. It must
// not fail; degradation to a weaker tier is its own concern.
type FactExtractor interface {
	Extract(ctx context.Context, userText, agentText string) (extract.Facts, extract.Tier)
}

// ManagerConfig tunes the memory manager.
type ManagerConfig struct {
	// MaxTurns bounds each session's history; 0 means DefaultMaxTurns.
	MaxTurns int
	// RecentSessionLimit caps the session log slice in GetUserContext;
	// 0 means 3.
	RecentSessionLimit int
	// RedactPII masks emails, phone numbers, card numbers and resident
	// registration numbers before turn text enters memory.
	RedactPII bool
}

// Manager owns the registry of session memories and the single profile
// store. All mutation of either happens through its entry points.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*SessionMemory

	store   ProfileStore
	prefs   FactExtractor
	topics  TopicLister
	cfg     ManagerConfig
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewManager(store ProfileStore, prefs FactExtractor, topics TopicLister, cfg ManagerConfig, metrics *observability.Metrics, log zerolog.Logger) *Manager {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.RecentSessionLimit <= 0 {
		cfg.RecentSessionLimit = 3
	}
	return &Manager{
		sessions: make(map[string]*SessionMemory),
		store:    store,
		prefs:    prefs,
		topics:   topics,
		cfg:      cfg,
		metrics:  metrics,
		log:      log,
	}
}

// SessionMemory returns the memory for a session, creating it on first
// reference. Creation is idempotent.
func (m *Manager) SessionMemory(sessionID string) *SessionMemory {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		sess = NewSessionMemory(sessionID, m.cfg.MaxTurns)
		m.sessions[sessionID] = sess
		m.log.Info().Str("session_id", sessionID).Msg("session memory created")
		m.metrics.ObserveSessionEvent("created")
	}
	return sess
}

// LookupSession returns an existing session memory without creating one.
func (m *Manager) LookupSession(sessionID string) (*SessionMemory, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	return sess, ok
}

// ActiveSessionCount reports sessions not yet ended.
func (m *Manager) ActiveSessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, sess := range m.sessions {
		if sess.Status() == StatusActive {
			count++
		}
	}
	return count
}

// Profiles exposes the long-term store for read paths.
func (m *Manager) Profiles() ProfileStore {
	return m.store
}

// ProcessTurn appends the turn to session memory and runs preference
// extraction, propagating any facts to both the session context and the
// profile store. It always succeeds from the caller's perspective: backend
// failures degrade to the fallback tier and store failures are logged and
// counted, never surfaced.
func (m *Manager) ProcessTurn(ctx context.Context, sessionID, userID, userText, agentText string, metadata map[string]any) *SessionMemory {
	if m.cfg.RedactPII {
		if redacted, changed := policy.RedactPII(userText); changed {
			userText = redacted
			m.log.Debug().Str("session_id", sessionID).Msg("redacted user text")
		}
		if redacted, changed := policy.RedactPII(agentText); changed {
			agentText = redacted
			m.log.Debug().Str("session_id", sessionID).Msg("redacted agent text")
		}
	}

	sess := m.SessionMemory(sessionID)
	sess.AddTurn(userText, agentText, metadata)
	m.metrics.ObserveTurn()
	m.log.Info().
		Str("session_id", sessionID).
		Str("user_id", userID).
		Int("total_turns", sess.TurnCount()).
		Msg("turn added to session memory")

	m.extractAndStore(ctx, sess, userID, userText, agentText)
	return sess
}

func (m *Manager) extractAndStore(ctx context.Context, sess *SessionMemory, userID, userText, agentText string) {
	started := time.Now()
	facts, tier := m.prefs.Extract(ctx, userText, agentText)
	m.metrics.ObserveExtractionLatency(time.Since(started))
	m.metrics.ObserveExtraction("preference", string(tier))

	if facts.Empty() {
		return
	}

	if facts.Name != "" {
		sess.ExtractInformation(ContextKeyUserName, facts.Name)
		m.savePreference(ctx, userID, PreferenceKeyName, facts.Name)
	}
	if facts.PreferredBranch != "" {
		sess.ExtractInformation(ContextKeyPreferredBranch, facts.PreferredBranch)
		m.savePreference(ctx, userID, PreferenceKeyPreferredBranch, facts.PreferredBranch)
	}
	if facts.ServicePreference != "" {
		sess.ExtractInformation(ContextKeyServicePref, facts.ServicePreference)
		m.savePreference(ctx, userID, PreferenceKeyServicePref, facts.ServicePreference)
	}
	if facts.Other != "" {
		// Misc facts stay session-scoped; they are not durable preferences.
		sess.ExtractInformation(ContextKeyOtherInfo, facts.Other)
	}

	m.log.Info().
		Str("session_id", sess.ID()).
		Str("user_id", userID).
		Str("tier", string(tier)).
		Msg("preferences extracted")
}

func (m *Manager) savePreference(ctx context.Context, userID, key string, value any) {
	if err := m.store.SaveUserPreference(ctx, userID, key, value); err != nil {
		m.metrics.ObserveStoreError("save_preference")
		m.log.Error().Err(err).Str("user_id", userID).Str("key", key).Msg("preference write failed")
		return
	}
	m.log.Info().Str("user_id", userID).Str("key", key).Msg("preference saved")
}

// EndSession summarizes the session, records it in the user's session log
// and runs the narrow session-end extraction pass. Unknown sessions are a
// silent no-op. The session stays in the registry; later writes to the same
// id keep accumulating.
func (m *Manager) EndSession(ctx context.Context, sessionID, userID string) {
	sess, ok := m.LookupSession(sessionID)
	if !ok {
		return
	}

	summary := sess.Summarize(ctx, m.topics)
	sess.markEnded()
	m.metrics.ObserveSessionEvent("ended")

	record := SessionRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Summary:   summary,
	}
	if err := m.store.RecordSession(ctx, userID, record); err != nil {
		m.metrics.ObserveStoreError("record_session")
		m.log.Error().Err(err).Str("session_id", sessionID).Str("user_id", userID).Msg("session record write failed")
	}

	if err := ExtractPreferencesFromSession(ctx, m.store, userID, summary); err != nil {
		m.metrics.ObserveStoreError("session_extraction")
		m.log.Error().Err(err).Str("session_id", sessionID).Str("user_id", userID).Msg("session-end preference pass failed")
	}

	m.log.Info().
		Str("session_id", sessionID).
		Str("user_id", userID).
		Int("total_turns", summary.TotalTurns).
		Strs("topics", summary.RecentTopics).
		Msg("session ended")
}

// GetUserContext returns the user's profile and most recent session records
// for seeding a fresh session with prior knowledge.
func (m *Manager) GetUserContext(ctx context.Context, userID string) (UserContext, error) {
	profile, err := m.store.GetUserProfile(ctx, userID)
	if err != nil {
		return UserContext{}, err
	}
	recent, err := m.store.GetUserSessions(ctx, userID, m.cfg.RecentSessionLimit)
	if err != nil {
		return UserContext{}, err
	}
	return UserContext{Profile: profile, RecentSessions: recent}, nil
}
