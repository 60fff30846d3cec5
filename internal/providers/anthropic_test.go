package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAnthropic_ChatToolUse(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Errorf("missing version header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"model": "claude-sonnet-4-5",
			"stop_reason": "tool_use",
			"content": [
				{"type": "text", "text": "Downloading first."},
				{"type": "tool_use", "id": "toolu_1", "name": "download_youtube_video", "input": {"url": "https://youtu.be/x"}}
			],
			"usage": {"input_tokens": 321, "output_tokens": 45}
		}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", srv.URL, "")
	resp, err := p.Chat(context.Background(), ChatRequest{
		System: "sys",
		Messages: []Message{
			{Role: RoleUser, Content: "analyze"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "toolu_0", Name: "noop"}}},
			{Role: RoleUser, ToolResults: []ToolResult{{ToolCallID: "toolu_0", Content: "{}", IsError: true}}},
		},
		Tools: []ToolDefinition{{
			Type:     "function",
			Function: ToolFunctionSchema{Name: "download_youtube_video", Parameters: map[string]interface{}{"type": "object"}},
		}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if got.Model != anthropicDefaultModel || got.MaxTokens != anthropicDefaultMaxToks {
		t.Errorf("defaults not applied: model=%s max_tokens=%d", got.Model, got.MaxTokens)
	}
	if len(got.Tools) != 1 || got.Tools[0].InputSchema["type"] != "object" {
		t.Errorf("tools not rendered: %+v", got.Tools)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(got.Messages))
	}
	if b := got.Messages[1].Content[0]; b.Type != "tool_use" || b.ID != "toolu_0" || string(b.Input) != "{}" {
		t.Errorf("assistant tool_use block = %+v", b)
	}
	if b := got.Messages[2].Content[0]; b.Type != "tool_result" || b.ToolUseID != "toolu_0" || !b.IsError {
		t.Errorf("tool_result block = %+v", b)
	}

	if resp.FinishReason != FinishToolCalls {
		t.Errorf("finish = %s, want %s", resp.FinishReason, FinishToolCalls)
	}
	if resp.Content != "Downloading first." {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Arguments["url"] != "https://youtu.be/x" {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.Usage == nil || resp.Usage.PromptTokens != 321 || resp.Usage.CompletionTokens != 45 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestAnthropic_ImagesBeforeText(t *testing.T) {
	blocks := contentBlocks(Message{
		Role:    RoleUser,
		Content: "describe",
		Images:  []ImageContent{{MimeType: "image/jpeg", Data: "AAA"}},
	})
	if len(blocks) != 2 || blocks[0].Type != "image" || blocks[1].Type != "text" {
		t.Fatalf("blocks = %+v", blocks)
	}
	if blocks[0].Source.MediaType != "image/jpeg" {
		t.Errorf("media type = %s", blocks[0].Source.MediaType)
	}
}

func TestAnthropic_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("retry-after", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", srv.URL, "m")
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if !httpErr.RateLimited() || httpErr.RetryAfter != "7" {
		t.Errorf("error = %+v", httpErr)
	}
}

func TestAnthropic_MissingKey(t *testing.T) {
	p := NewAnthropicProvider("", "", "")
	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Error("expected error without API key")
	}
}

type countingProvider struct{ calls int }

func (c *countingProvider) Name() string         { return "counting" }
func (c *countingProvider) DefaultModel() string { return "m" }
func (c *countingProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	c.calls++
	return &ChatResponse{Content: "ok"}, nil
}

func TestWithRateLimit_Disabled(t *testing.T) {
	inner := &countingProvider{}
	if p := WithRateLimit(inner, 0, 0); p != Provider(inner) {
		t.Error("rpm=0 should return the provider unchanged")
	}
}

func TestWithRateLimit_WaitHonorsContext(t *testing.T) {
	inner := &countingProvider{}
	p := WithRateLimit(inner, 1, 1)

	if _, err := p.Chat(context.Background(), ChatRequest{}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Chat(ctx, ChatRequest{}); err == nil {
		t.Error("second call inside the window should fail on context deadline")
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}
