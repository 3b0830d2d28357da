package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestConvertMessages_Alternating(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "question"},
		{Role: RoleAssistant, Content: "answer"},
		{Role: RoleUser, Content: "follow-up"},
	}
	if out := convertMessages(msgs); len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
}

func TestConvertMessages_MergesSameRole(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "context"},
		{Role: RoleUser, Content: "question"},
		{Role: "system", Content: "ignored"},
		{Role: RoleAssistant, Content: "answer"},
	}
	out := convertMessages(msgs)
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if len(out[0].Content) != 2 {
		t.Errorf("expected merged user turn with 2 blocks, got %d", len(out[0].Content))
	}
}

func TestNewAnthropicProvider(t *testing.T) {
	p := NewAnthropicProvider("test-api-key", "")
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
	if p.defaultModel != defaultAnthropicModel {
		t.Errorf("defaultModel = %q, want %q", p.defaultModel, defaultAnthropicModel)
	}
}

func TestAnthropicChat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "你好"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 7, "output_tokens": 3}
		}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", srv.URL+"/")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:        "claude-test",
		SystemPrompt: "be brief",
		Messages:     []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "你好" || resp.StopReason != "end_turn" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Usage.TotalTokens != 10 {
		t.Errorf("TotalTokens = %d, want 10", resp.Usage.TotalTokens)
	}
	if body["model"] != "claude-test" {
		t.Errorf("request model = %v", body["model"])
	}
	if mt, _ := body["max_tokens"].(float64); int(mt) != defaultMaxTokens {
		t.Errorf("request max_tokens = %v", body["max_tokens"])
	}
}
