package provider

import (
	"context"
)

type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	// Metadata for routing decisions
	PrincipalID string
	RequestID   string
}

type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

type Response struct {
	ID           string
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
	Provider     string
	LatencyMs    int64
}

type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Name() string
	SupportedModels() []string
}
