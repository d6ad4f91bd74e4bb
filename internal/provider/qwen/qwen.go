// Package qwen talks to Alibaba Cloud's DashScope service through its
// OpenAI-compatible endpoint.
package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vnmchuo/storyloom/internal/provider"
)

type QwenProvider struct {
	apiKey  string
	baseURL string
}

type qwenRequest struct {
	Model       string        `json:"model"`
	Messages    []qwenMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type qwenMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type qwenResponse struct {
	ID      string       `json:"id"`
	Choices []qwenChoice `json:"choices"`
	Usage   qwenUsage    `json:"usage"`
	Model   string       `json:"model"`
}

type qwenChoice struct {
	Message qwenMessage `json:"message"`
}

type qwenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func New(apiKey string) provider.Provider {
	return &QwenProvider{
		apiKey:  apiKey,
		baseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1",
	}
}

func (p *QwenProvider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	qwenReq := p.mapRequest(req)
	body, err := json.Marshal(qwenReq)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/chat/completions", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("qwen api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var qwenResp qwenResponse
	if err := json.NewDecoder(resp.Body).Decode(&qwenResp); err != nil {
		return nil, err
	}

	if len(qwenResp.Choices) == 0 {
		return nil, fmt.Errorf("qwen api returned no choices")
	}

	return &provider.Response{
		ID:           qwenResp.ID,
		Content:      qwenResp.Choices[0].Message.Content,
		InputTokens:  qwenResp.Usage.PromptTokens,
		OutputTokens: qwenResp.Usage.CompletionTokens,
		Model:        qwenResp.Model,
		Provider:     p.Name(),
	}, nil
}

func (p *QwenProvider) mapRequest(req *provider.Request) qwenRequest {
	messages := make([]qwenMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = qwenMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}

	return qwenRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

func (p *QwenProvider) Name() string {
	return "qwen"
}

func (p *QwenProvider) SupportedModels() []string {
	return []string{"qwen-max", "qwen-plus"}
}
