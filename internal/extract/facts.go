package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/leeseongmin/maum/internal/llm"
)

// Facts is the structured result of analyzing one conversational turn.
// Empty fields mean "not present in this turn".
type Facts struct {
	Name              string `json:"name"`
	PreferredBranch   string `json:"preferred_branch"`
	ServicePreference string `json:"service_preference"`
	Other             string `json:"other"`
}

// Empty reports whether nothing was extracted.
func (f Facts) Empty() bool {
	return f == Facts{}
}

// Tier identifies which extraction strategy produced a result.
type Tier string

const (
	TierPrimary  Tier = "primary"
	TierFallback Tier = "fallback"
)

const nameMarker = "이름은"

var nameTrailers = []string{"이야", "입니다", "이에요"}

const preferencePrompt = `다음 대화에서 사용자의 개인정보와 선호도를 추출해 주세요.

사용자 입력: %s
어시스턴트 응답: %s

추출할 정보:
1. 이름 (name): 사용자가 언급한 자신의 이름
2. 선호 지점 (preferred_branch): 강남/부산/서울/대전 중 선호하는 지점
3. 서비스 선호도 (service_preference): 선호하는 서비스나 요구사항
4. 기타 개인정보 (other): 나이, 직업 등 기타 정보

결과를 JSON으로 반환하세요. 정보가 없으면 null을 사용하세요.
예: {"name": "김민수", "preferred_branch": "강남", "service_preference": null, "other": null}`

// PreferenceExtractor maps one (user, agent) exchange to Facts. The primary
// strategy asks the backend for a four-key JSON object; any backend or parse
// failure degrades to the deterministic rule-based tier. Extraction itself
// never fails: an empty Facts is a normal outcome.
type PreferenceExtractor struct {
	provider llm.Provider
	log      zerolog.Logger
}

func NewPreferenceExtractor(provider llm.Provider, log zerolog.Logger) *PreferenceExtractor {
	return &PreferenceExtractor{provider: provider, log: log}
}

// Extract analyzes one turn and reports which tier produced the result.
func (e *PreferenceExtractor) Extract(ctx context.Context, userText, agentText string) (Facts, Tier) {
	facts, err := e.extractPrimary(ctx, userText, agentText)
	if err != nil {
		e.log.Warn().Err(err).Msg("preference extraction degraded to fallback")
		return FallbackFacts(userText), TierFallback
	}
	return facts, TierPrimary
}

func (e *PreferenceExtractor) extractPrimary(ctx context.Context, userText, agentText string) (Facts, error) {
	prompt := fmt.Sprintf(preferencePrompt, userText, agentText)
	response, err := e.provider.Generate(ctx, prompt, llm.GenerateOptions{
		Temperature: 0.1,
		MaxTokens:   200,
	})
	if err != nil {
		return Facts{}, fmt.Errorf("backend generate: %w", err)
	}

	var facts Facts
	if err := json.Unmarshal([]byte(StripCodeFence(response)), &facts); err != nil {
		return Facts{}, fmt.Errorf("parse backend response %q: %w", response, err)
	}

	if facts.PreferredBranch != "" {
		normalized, ok := NormalizeBranch(facts.PreferredBranch)
		if !ok {
			// Whitelist, not validation: unknown branches vanish silently.
			e.log.Debug().Str("branch", facts.PreferredBranch).Msg("dropping off-whitelist branch")
			facts.PreferredBranch = ""
		} else {
			facts.PreferredBranch = normalized
		}
	}
	return facts, nil
}

// FallbackFacts is the deterministic rule-based tier. It inspects only the
// user's text, cannot fail, and yields only canonical branch values.
func FallbackFacts(userText string) Facts {
	var facts Facts

	if idx := strings.Index(userText, nameMarker); idx >= 0 {
		name := strings.TrimSpace(userText[idx+len(nameMarker):])
		for _, trailer := range nameTrailers {
			name = strings.ReplaceAll(name, trailer, "")
		}
		name = strings.ReplaceAll(name, ".", "")
		facts.Name = strings.TrimSpace(name)
	}

	// Prefer the explicit "<branch>점" form before bare branch names.
	for _, branch := range CanonicalBranches {
		if strings.Contains(userText, branch+"점") {
			facts.PreferredBranch = branch
			break
		}
	}
	if facts.PreferredBranch == "" {
		for _, branch := range CanonicalBranches {
			if strings.Contains(userText, branch) {
				facts.PreferredBranch = branch
				break
			}
		}
	}

	return facts
}

// StripCodeFence removes an optional leading ```json fence and trailing ```
// so fenced backend output stays parseable.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
