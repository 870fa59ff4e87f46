package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockProvider produces deterministic local replies so the service and its
// tests run without any backend credentials.
type MockProvider struct {
	model string
}

func NewMockProvider() *MockProvider {
	return &MockProvider{model: "mock-model"}
}

func (p *MockProvider) Generate(ctx context.Context, prompt string, _ GenerateOptions) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	switch {
	case strings.Contains(prompt, "안녕") || strings.Contains(strings.ToLower(prompt), "hello"):
		return "안녕하세요! 반갑습니다.", nil
	case strings.Contains(prompt, "강남"):
		return "강남점에 대한 정보를 도와드리겠습니다.", nil
	case strings.Contains(prompt, "예약"):
		return "예약 관련 도움을 제공하겠습니다.", nil
	case strings.Contains(prompt, "이름"):
		return "저는 마음 테스트용 AI 어시스턴트입니다.", nil
	default:
		return fmt.Sprintf("[Mock Response] 입력하신 내용: %s", truncate(prompt, 50)), nil
	}
}

func (p *MockProvider) Chat(ctx context.Context, messages []Message, opts GenerateOptions) (string, error) {
	if len(messages) == 0 {
		return "[Mock] 메시지가 없습니다.", nil
	}
	return p.Generate(ctx, messages[len(messages)-1].Content, opts)
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Model() string { return p.model }

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
