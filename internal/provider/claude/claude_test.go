package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vnmchuo/storyloom/internal/provider"
)

func TestComplete_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("Expected x-api-key header, got %q", got)
		}
		resp := claudeResponse{
			ID: "msg-1",
			Content: []claudeContent{
				{Type: "text", Text: "A gentle tale begins."},
			},
			Model: "claude-3-sonnet",
			Usage: claudeUsage{InputTokens: 10, OutputTokens: 30},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := &ClaudeProvider{apiKey: "test-key", baseURL: server.URL}

	resp, err := p.Complete(context.Background(), &provider.Request{
		Model: "claude-3-sonnet",
		Messages: []provider.Message{
			{Role: "system", Content: "you write children's stories"},
			{Role: "user", Content: "tell a story"},
		},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Content != "A gentle tale begins." {
		t.Errorf("Expected tale content, got %s", resp.Content)
	}
	if resp.InputTokens != 10 || resp.OutputTokens != 30 {
		t.Errorf("Expected 10/30 tokens, got %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestMapRequest_SystemMessageLifted(t *testing.T) {
	p := &ClaudeProvider{}

	req := p.mapRequest(&provider.Request{
		Model: "claude-3-opus",
		Messages: []provider.Message{
			{Role: "system", Content: "be kind"},
			{Role: "user", Content: "hi"},
		},
	})

	if req.System != "be kind" {
		t.Errorf("Expected system message lifted, got %q", req.System)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Errorf("Expected one user message, got %+v", req.Messages)
	}
	if req.MaxTokens != 4096 {
		t.Errorf("Expected default max tokens 4096, got %d", req.MaxTokens)
	}
}

func TestName(t *testing.T) {
	p := New("key")
	if p.Name() != "claude" {
		t.Errorf("Expected 'claude', got %s", p.Name())
	}
}

func TestSupportedModels(t *testing.T) {
	p := New("key")
	models := p.SupportedModels()
	found := false
	for _, m := range models {
		if m == "claude-3-opus" {
			found = true
			break
		}
	}
	if !found {
		t.Error("claude-3-opus should be in supported models")
	}
}
