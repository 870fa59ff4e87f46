package memory

import (
	"context"
	"sync"
	"time"
)

// ProfileStore persists durable per-user preferences and session logs.
// Reads of unknown users or keys are absent values, never errors.
type ProfileStore interface {
	SaveUserPreference(ctx context.Context, userID, key string, value any) error
	GetUserPreference(ctx context.Context, userID, key string) (any, bool, error)
	GetUserProfile(ctx context.Context, userID string) (Profile, error)
	RecordSession(ctx context.Context, userID string, record SessionRecord) error
	GetUserSessions(ctx context.Context, userID string, limit int) ([]SessionRecord, error)
	Close() error
}

// Context keys promoted to durable preferences at session end.
const (
	ContextKeyUserName        = "user_name"
	ContextKeyPreferredBranch = "preferred_branch"
	ContextKeyServicePref     = "service_preference"
	ContextKeyOtherInfo       = "other_info"

	PreferenceKeyName            = "name"
	PreferenceKeyPreferredBranch = "preferred_branch"
	PreferenceKeyServicePref     = "service_preference"
)

// ExtractPreferencesFromSession is the narrow session-end pass: it promotes
// the well-known summary context keys to durable preferences and ignores
// everything else. It runs in addition to per-turn extraction so context
// refined during the session gets one more chance to persist.
func ExtractPreferencesFromSession(ctx context.Context, store ProfileStore, userID string, summary SessionSummary) error {
	if branch, ok := summary.Context[ContextKeyPreferredBranch]; ok {
		if err := store.SaveUserPreference(ctx, userID, PreferenceKeyPreferredBranch, branch); err != nil {
			return err
		}
	}
	if name, ok := summary.Context[ContextKeyUserName]; ok {
		if err := store.SaveUserPreference(ctx, userID, PreferenceKeyName, name); err != nil {
			return err
		}
	}
	return nil
}

// InMemoryProfileStore is the default in-process store. A single lock
// serializes writes across users; write volume is one upsert per turn.
type InMemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	sessions map[string][]SessionRecord
}

func NewInMemoryProfileStore() *InMemoryProfileStore {
	return &InMemoryProfileStore{
		profiles: make(map[string]*Profile),
		sessions: make(map[string][]SessionRecord),
	}
}

func (s *InMemoryProfileStore) SaveUserPreference(_ context.Context, userID, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[userID]
	if !ok {
		profile = &Profile{
			UserID:      userID,
			CreatedAt:   time.Now().UTC(),
			Preferences: make(map[string]Preference),
		}
		s.profiles[userID] = profile
	}
	profile.Preferences[key] = Preference{Value: value, UpdatedAt: time.Now().UTC()}
	return nil
}

func (s *InMemoryProfileStore) GetUserPreference(_ context.Context, userID, key string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, false, nil
	}
	pref, ok := profile.Preferences[key]
	if !ok {
		return nil, false, nil
	}
	return pref.Value, true, nil
}

func (s *InMemoryProfileStore) GetUserProfile(_ context.Context, userID string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return Profile{}, nil
	}

	out := Profile{
		UserID:      profile.UserID,
		CreatedAt:   profile.CreatedAt,
		Preferences: make(map[string]Preference, len(profile.Preferences)),
	}
	for k, v := range profile.Preferences {
		out.Preferences[k] = v
	}
	return out, nil
}

func (s *InMemoryProfileStore) RecordSession(_ context.Context, userID string, record SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = append(s.sessions[userID], record)
	return nil
}

func (s *InMemoryProfileStore) GetUserSessions(_ context.Context, userID string, limit int) ([]SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.sessions[userID]
	if len(records) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}
	out := make([]SessionRecord, limit)
	copy(out, records[len(records)-limit:])
	return out, nil
}

func (s *InMemoryProfileStore) Close() error { return nil }
