package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewProviderModeSelection(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{"explicit mock", Config{Mode: "mock"}, "mock", false},
		{"auto without keys", Config{Mode: "auto"}, "mock", false},
		{"auto prefers openai", Config{Mode: "auto", OpenAIAPIKey: "sk-test", AnthropicAPIKey: "ak-test"}, "openai", false},
		{"auto picks anthropic", Config{Mode: "auto", AnthropicAPIKey: "ak-test"}, "anthropic", false},
		{"empty mode is auto", Config{}, "mock", false},
		{"openai without key", Config{Mode: "openai"}, "", true},
		{"anthropic without key", Config{Mode: "anthropic"}, "", true},
		{"unknown mode", Config{Mode: "bedrock"}, "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewProvider(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("NewProvider() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider() error = %v", err)
			}
			if p.Name() != tc.want {
				t.Fatalf("provider name = %q, want %q", p.Name(), tc.want)
			}
		})
	}
}

func TestOpenAIProviderGenerate(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  완료했습니다.  "}},
			},
		})
	}))
	defer ts.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: ts.URL})
	out, err := p.Generate(context.Background(), "테스트", GenerateOptions{System: "you are terse", Temperature: 0.1, MaxTokens: 64})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "완료했습니다." {
		t.Fatalf("Generate() = %q, want trimmed content", out)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("Authorization = %q, want bearer key", gotAuth)
	}
	msgs, _ := gotPayload["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages sent = %d, want system + user", len(msgs))
	}
}

func TestOpenAIProviderSurfacesHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer ts.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-bad", BaseURL: ts.URL})
	_, err := p.Generate(context.Background(), "테스트", GenerateOptions{})
	if err == nil {
		t.Fatalf("Generate() succeeded, want error")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Fatalf("error %q does not carry the status code", err)
	}
}

func TestOpenAIProviderRetriesServerErrors(t *testing.T) {
	var hits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		if hits == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "done"}},
			},
		})
	}))
	defer ts.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: ts.URL})
	out, err := p.Generate(context.Background(), "테스트", GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "done" {
		t.Fatalf("Generate() = %q, want recovered response", out)
	}
	if hits != 2 {
		t.Fatalf("backend hits = %d, want 2", hits)
	}
}

func TestMockProviderDeterministicReplies(t *testing.T) {
	p := NewMockProvider()

	out, err := p.Generate(context.Background(), "안녕하세요", GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "안녕하세요! 반갑습니다." {
		t.Fatalf("greeting reply = %q", out)
	}

	out, err = p.Chat(context.Background(), []Message{
		{Role: "user", Content: "처음 메시지"},
		{Role: "user", Content: "강남점 위치 알려줘"},
	}, GenerateOptions{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !strings.Contains(out, "강남점") {
		t.Fatalf("Chat() = %q, want branch reply for last message", out)
	}

	out, err = p.Chat(context.Background(), nil, GenerateOptions{})
	if err != nil {
		t.Fatalf("Chat() with no messages error = %v", err)
	}
	if !strings.Contains(out, "메시지가 없습니다") {
		t.Fatalf("Chat() with no messages = %q", out)
	}
}
