package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/leeseongmin/maum/internal/extract"
	"github.com/leeseongmin/maum/internal/llm"
)

type stubFacts struct {
	facts extract.Facts
	tier  extract.Tier
	calls int
}

func (s *stubFacts) Extract(_ context.Context, _, _ string) (extract.Facts, extract.Tier) {
	s.calls++
	return s.facts, s.tier
}

type failingStore struct {
	InMemoryProfileStore
}

func (f *failingStore) SaveUserPreference(context.Context, string, string, any) error {
	return errors.New("store down")
}

func (f *failingStore) RecordSession(context.Context, string, SessionRecord) error {
	return errors.New("store down")
}

func newTestManager(store ProfileStore, prefs FactExtractor, topics TopicLister) *Manager {
	return NewManager(store, prefs, topics, ManagerConfig{}, nil, zerolog.Nop())
}

func TestManagerSessionGetOrCreate(t *testing.T) {
	mgr := newTestManager(NewInMemoryProfileStore(), &stubFacts{}, &stubTopics{})

	a := mgr.SessionMemory("sess-1")
	b := mgr.SessionMemory("sess-1")
	if a != b {
		t.Fatal("repeated lookup created a new session memory")
	}

	if _, ok := mgr.LookupSession("sess-2"); ok {
		t.Fatal("LookupSession created a session")
	}
	if got := mgr.ActiveSessionCount(); got != 1 {
		t.Fatalf("active sessions = %d, want 1", got)
	}
}

func TestManagerProcessTurnPropagatesFacts(t *testing.T) {
	store := NewInMemoryProfileStore()
	prefs := &stubFacts{
		facts: extract.Facts{Name: "성민", PreferredBranch: "강남", Other: "주말 선호"},
		tier:  extract.TierPrimary,
	}
	mgr := newTestManager(store, prefs, &stubTopics{})
	ctx := context.Background()

	sess := mgr.ProcessTurn(ctx, "sess-1", "user-1", "내 이름은 성민이야, 강남점이 좋아", "네, 알겠습니다!", nil)

	if sess.TurnCount() != 1 {
		t.Fatalf("turn count = %d, want 1", sess.TurnCount())
	}
	if prefs.calls != 1 {
		t.Fatalf("extractor calls = %d, want 1", prefs.calls)
	}

	// Session context and the durable store both receive the facts.
	if v, _ := sess.GetContext(ContextKeyUserName); v != "성민" {
		t.Fatalf("session user_name = %v", v)
	}
	if v, _ := sess.GetContext(ContextKeyPreferredBranch); v != "강남" {
		t.Fatalf("session preferred_branch = %v", v)
	}
	if v, _ := sess.GetContext(ContextKeyOtherInfo); v != "주말 선호" {
		t.Fatalf("session other_info = %v", v)
	}

	name, ok, _ := store.GetUserPreference(ctx, "user-1", PreferenceKeyName)
	if !ok || name != "성민" {
		t.Fatalf("stored name = %v (ok=%v)", name, ok)
	}
	branch, ok, _ := store.GetUserPreference(ctx, "user-1", PreferenceKeyPreferredBranch)
	if !ok || branch != "강남" {
		t.Fatalf("stored branch = %v (ok=%v)", branch, ok)
	}
	// Misc facts are session-only.
	if _, ok, _ := store.GetUserPreference(ctx, "user-1", ContextKeyOtherInfo); ok {
		t.Fatal("other_info leaked into durable preferences")
	}
}

func TestManagerProcessTurnSurvivesStoreFailure(t *testing.T) {
	prefs := &stubFacts{facts: extract.Facts{Name: "성민"}, tier: extract.TierFallback}
	mgr := newTestManager(&failingStore{}, prefs, &stubTopics{})

	sess := mgr.ProcessTurn(context.Background(), "sess-1", "user-1", "내 이름은 성민이야", "반가워요", nil)

	if sess.TurnCount() != 1 {
		t.Fatalf("turn count = %d, want 1", sess.TurnCount())
	}
	// Session context still updated even though the durable write failed.
	if v, _ := sess.GetContext(ContextKeyUserName); v != "성민" {
		t.Fatalf("session user_name = %v", v)
	}
}

func TestManagerEndSessionRoundTrip(t *testing.T) {
	store := NewInMemoryProfileStore()
	prefs := &stubFacts{
		facts: extract.Facts{PreferredBranch: "부산"},
		tier:  extract.TierPrimary,
	}
	topics := &stubTopics{topics: []string{"location_preference", "appointment"}}
	mgr := newTestManager(store, prefs, topics)
	ctx := context.Background()

	mgr.ProcessTurn(ctx, "sess-1", "user-1", "부산점으로 예약할게요", "네, 부산점으로 예약했습니다.", nil)
	mgr.EndSession(ctx, "sess-1", "user-1")

	sess, ok := mgr.LookupSession("sess-1")
	if !ok {
		t.Fatal("ended session removed from registry")
	}
	if sess.Status() != StatusEnded {
		t.Fatalf("status = %q, want ended", sess.Status())
	}
	if got := mgr.ActiveSessionCount(); got != 0 {
		t.Fatalf("active sessions after end = %d, want 0", got)
	}

	uc, err := mgr.GetUserContext(ctx, "user-1")
	if err != nil {
		t.Fatalf("user context: %v", err)
	}
	if len(uc.RecentSessions) != 1 {
		t.Fatalf("recent sessions = %d, want 1", len(uc.RecentSessions))
	}
	record := uc.RecentSessions[0]
	if record.SessionID != "sess-1" {
		t.Fatalf("record session id = %q", record.SessionID)
	}
	if record.ID == "" {
		t.Fatal("record id not assigned")
	}
	if record.Summary.TotalTurns != 1 {
		t.Fatalf("summary total turns = %d, want 1", record.Summary.TotalTurns)
	}
	if len(record.Summary.RecentTopics) != 2 {
		t.Fatalf("summary topics = %v", record.Summary.RecentTopics)
	}

	pref, ok := uc.Profile.Preferences[PreferenceKeyPreferredBranch]
	if !ok || pref.Value != "부산" {
		t.Fatalf("profile branch = %+v (ok=%v)", pref, ok)
	}
}

func TestManagerEndSessionUnknownIsNoop(t *testing.T) {
	store := NewInMemoryProfileStore()
	mgr := newTestManager(store, &stubFacts{}, &stubTopics{})
	ctx := context.Background()

	mgr.EndSession(ctx, "never-seen", "user-1")

	records, err := store.GetUserSessions(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if records != nil {
		t.Fatalf("unexpected records for unknown session end: %v", records)
	}
	if _, ok := mgr.LookupSession("never-seen"); ok {
		t.Fatal("EndSession created a session")
	}
}

type deadProvider struct{}

func (deadProvider) Generate(context.Context, string, llm.GenerateOptions) (string, error) {
	return "", errors.New("backend unreachable")
}

func (deadProvider) Chat(context.Context, []llm.Message, llm.GenerateOptions) (string, error) {
	return "", errors.New("backend unreachable")
}

func (deadProvider) Name() string  { return "dead" }
func (deadProvider) Model() string { return "dead" }

func TestManagerSurvivesDeadBackendEndToEnd(t *testing.T) {
	store := NewInMemoryProfileStore()
	prefs := extract.NewPreferenceExtractor(deadProvider{}, zerolog.Nop())
	topics := extract.NewTopicExtractor(deadProvider{}, zerolog.Nop())
	mgr := newTestManager(store, prefs, topics)
	ctx := context.Background()

	sess := mgr.ProcessTurn(ctx, "sess-1", "user-1", "내 이름은 성민이야, 부산점으로 갈래", "네!", nil)
	if sess.TurnCount() != 1 {
		t.Fatalf("turn count = %d, want 1", sess.TurnCount())
	}

	// Fallback rules still extract and propagate.
	if v, _ := sess.GetContext(ContextKeyPreferredBranch); v != "부산" {
		t.Fatalf("session preferred_branch = %v", v)
	}
	branch, ok, _ := store.GetUserPreference(ctx, "user-1", PreferenceKeyPreferredBranch)
	if !ok || branch != "부산" {
		t.Fatalf("stored branch = %v (ok=%v)", branch, ok)
	}

	mgr.EndSession(ctx, "sess-1", "user-1")
	records, err := store.GetUserSessions(ctx, "user-1", 3)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("recorded sessions = %d, want 1", len(records))
	}
	// Keyword fallback topics from the transcript.
	topicsGot := records[0].Summary.RecentTopics
	want := map[string]bool{"user_identity": true, "location_preference": true}
	if len(topicsGot) != len(want) {
		t.Fatalf("topics = %v", topicsGot)
	}
	for _, topic := range topicsGot {
		if !want[topic] {
			t.Fatalf("unexpected topic %q in %v", topic, topicsGot)
		}
	}
}

func TestManagerRedactsPIIWhenEnabled(t *testing.T) {
	mgr := NewManager(
		NewInMemoryProfileStore(),
		&stubFacts{},
		&stubTopics{},
		ManagerConfig{RedactPII: true},
		nil,
		zerolog.Nop(),
	)

	sess := mgr.ProcessTurn(context.Background(), "sess-1", "user-1",
		"제 이메일은 sam@example.com 이에요", "확인했습니다", nil)

	recent := sess.RecentContext(1)
	if len(recent) != 1 {
		t.Fatalf("turn count = %d, want 1", len(recent))
	}
	if got := recent[0].UserText; got != "제 이메일은 [REDACTED_EMAIL] 이에요" {
		t.Fatalf("stored user text = %q", got)
	}
}

func TestManagerEndedSessionKeepsAccumulating(t *testing.T) {
	mgr := newTestManager(NewInMemoryProfileStore(), &stubFacts{}, &stubTopics{})
	ctx := context.Background()

	mgr.ProcessTurn(ctx, "sess-1", "user-1", "안녕", "안녕하세요", nil)
	mgr.EndSession(ctx, "sess-1", "user-1")
	sess := mgr.ProcessTurn(ctx, "sess-1", "user-1", "다시 왔어요", "어서오세요", nil)

	if sess.TurnCount() != 2 {
		t.Fatalf("turn count after resumption = %d, want 2", sess.TurnCount())
	}
}
