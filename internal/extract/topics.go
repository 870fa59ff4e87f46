package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/leeseongmin/maum/internal/llm"
)

// Exchange is one user/agent text pair handed to the topic extractor.
// It deliberately carries no session state.
type Exchange struct {
	User  string
	Agent string
}

const maxPrimaryTopics = 3

const topicPrompt = `다음 대화에서 주요 토픽을 추출해 주세요. 각 토픽을 영어 키워드로 반환하세요.

대화:
%s

토픽 카테고리:
- user_identity: 사용자 신원/이름 관련
- appointment: 예약/일정 관련
- location_preference: 지점/위치 선호도
- service_inquiry: 서비스 문의
- complaint: 불만/문제
- compliment: 칭찬/만족
- general: 일반 대화

주요 토픽 3개를 JSON 배열로 반환하세요 (예: ["user_identity", "appointment", "location_preference"])`

// TopicExtractor labels recent conversation with short topic keywords. The
// primary tier asks the backend for a JSON array capped at three labels; the
// fallback tier is keyword matching and returns every matched label. The cap
// asymmetry matches the behavior callers already depend on.
type TopicExtractor struct {
	provider llm.Provider
	log      zerolog.Logger
}

func NewTopicExtractor(provider llm.Provider, log zerolog.Logger) *TopicExtractor {
	return &TopicExtractor{provider: provider, log: log}
}

// Topics returns topic labels for the given exchanges. It never fails; an
// unusable backend degrades to keyword matching.
func (e *TopicExtractor) Topics(ctx context.Context, exchanges []Exchange) []string {
	if len(exchanges) == 0 {
		return nil
	}

	topics, err := e.topicsPrimary(ctx, exchanges)
	if err != nil {
		e.log.Warn().Err(err).Msg("topic extraction degraded to fallback")
		return fallbackTopics(exchanges)
	}
	return topics
}

func (e *TopicExtractor) topicsPrimary(ctx context.Context, exchanges []Exchange) ([]string, error) {
	var transcript strings.Builder
	for _, exchange := range exchanges {
		transcript.WriteString("사용자: " + exchange.User + "\n")
		transcript.WriteString("어시스턴트: " + exchange.Agent + "\n")
	}

	response, err := e.provider.Generate(ctx, fmt.Sprintf(topicPrompt, transcript.String()), llm.GenerateOptions{
		Temperature: 0.1,
		MaxTokens:   100,
	})
	if err != nil {
		return nil, fmt.Errorf("backend generate: %w", err)
	}

	var topics []string
	if err := json.Unmarshal([]byte(StripCodeFence(response)), &topics); err != nil {
		return nil, fmt.Errorf("parse backend response %q: %w", response, err)
	}
	if len(topics) > maxPrimaryTopics {
		topics = topics[:maxPrimaryTopics]
	}
	return topics, nil
}

func fallbackTopics(exchanges []Exchange) []string {
	var topics []string
	seen := make(map[string]bool)
	add := func(topic string) {
		if !seen[topic] {
			seen[topic] = true
			topics = append(topics, topic)
		}
	}

	for _, exchange := range exchanges {
		if strings.Contains(exchange.User, "이름") {
			add("user_identity")
		}
		if strings.Contains(exchange.User, "예약") {
			add("appointment")
		}
		if strings.Contains(exchange.User, "지점") || strings.Contains(exchange.User, "강남") || strings.Contains(exchange.User, "부산") {
			add("location_preference")
		}
	}
	return topics
}
