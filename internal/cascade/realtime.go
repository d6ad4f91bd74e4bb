package cascade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/vnmchuo/storyloom/internal/pricing"
	"github.com/vnmchuo/storyloom/internal/provider"
	"github.com/vnmchuo/storyloom/internal/quality"
	"github.com/vnmchuo/storyloom/internal/story"
)

// Router picks a healthy provider for the requested model. Each provider
// sits behind its own circuit breaker so one flapping upstream does not
// take the realtime strategy down with it.
type Router struct {
	providers []provider.Provider
	breakers  map[string]*gobreaker.CircuitBreaker
}

func NewRouter(providers []provider.Provider) *Router {
	breakers := make(map[string]*gobreaker.CircuitBreaker)
	for _, p := range providers {
		settings := gobreaker.Settings{
			Name:        p.Name(),
			MaxRequests: 3,
			Interval:    5 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}
		breakers[p.Name()] = gobreaker.NewCircuitBreaker(settings)
	}
	return &Router{
		providers: providers,
		breakers:  breakers,
	}
}

func (r *Router) Route(ctx context.Context, model string) (provider.Provider, error) {
	for _, p := range r.providers {
		cb := r.breakers[p.Name()]
		if cb.State() == gobreaker.StateOpen {
			continue
		}
		for _, m := range p.SupportedModels() {
			if m == model {
				return p, nil
			}
		}
	}
	return nil, fmt.Errorf("no available provider for model %q", model)
}

func (r *Router) Execute(ctx context.Context, req *provider.Request, p provider.Provider) (*provider.Response, error) {
	cb := r.breakers[p.Name()]
	result, err := cb.Execute(func() (interface{}, error) {
		return p.Complete(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*provider.Response), nil
}

// RealtimeStrategy generates a fresh story with an upstream model. It is
// the only strategy that spends real money; billed tokens are priced into
// the artifact's usage so the recorder charges the exact amount.
type RealtimeStrategy struct {
	router  *Router
	rates   *pricing.Table
	timeout time.Duration
}

func NewRealtimeStrategy(router *Router, rates *pricing.Table, timeout time.Duration) *RealtimeStrategy {
	return &RealtimeStrategy{router: router, rates: rates, timeout: timeout}
}

func (s *RealtimeStrategy) Name() string { return "realtime" }

// storyPayload is the JSON shape the model is instructed to emit.
type storyPayload struct {
	Title      string            `json:"title"`
	Pages      []story.Page      `json:"pages"`
	Characters []story.Character `json:"characters"`
}

func (s *RealtimeStrategy) Generate(ctx context.Context, req *story.Request, target story.TargetParams) (*story.Story, error) {
	if req.Model == "" {
		return nil, errors.New("no model requested")
	}
	return s.complete(ctx, req, buildStoryPrompt(req, target))
}

// Revise sends the draft back with the gate's findings. One round only;
// the runner falls through if the revision still misses.
func (s *RealtimeStrategy) Revise(ctx context.Context, req *story.Request, draft *story.Story, report *quality.Report) (*story.Story, error) {
	prompt := buildRevisionPrompt(draft, report)
	revised, err := s.complete(ctx, req, prompt)
	if err != nil {
		return nil, err
	}
	// Revision spend accumulates on top of the original draft's.
	revised.Usage.InputTokens += draft.Usage.InputTokens
	revised.Usage.OutputTokens += draft.Usage.OutputTokens
	revised.Usage.CostUSD += draft.Usage.CostUSD
	return revised, nil
}

func (s *RealtimeStrategy) complete(ctx context.Context, req *story.Request, messages []provider.Message) (*story.Story, error) {
	p, err := s.router.Route(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.router.Execute(ctx, &provider.Request{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.WordTarget*3 + 1000,
		Temperature: 0.8,
		PrincipalID: req.PrincipalID,
		RequestID:   req.ID,
	}, p)
	if err != nil {
		return nil, err
	}

	st, err := parseStory(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parse %s response: %w", p.Name(), err)
	}
	st.ID = uuid.New().String()
	st.Theme = req.Theme
	st.Usage = story.Usage{
		Model:        req.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		CostUSD:      s.rates.Price(req.Model, resp.InputTokens, resp.OutputTokens),
	}
	return st, nil
}

func buildStoryPrompt(req *story.Request, target story.TargetParams) []provider.Message {
	hero := req.HeroName
	if hero == "" {
		hero = "Alex"
	}
	system := "You are a children's story writer. Respond with a single JSON object: " +
		`{"title": string, "pages": [{"number": int, "text": string, "illustration_prompt": string, "interaction_prompt": string}], ` +
		`"characters": [{"name": string, "personality": string, "visual_description": string, "role": string}]}. No other text.`
	user := fmt.Sprintf(
		"Write an illustrated story for children aged %s about %s. The hero is named %s. "+
			"Use about %d pages of roughly %d words each. Keep sentences between %d and %d words. "+
			"Include %d to %d characters, each with a visual description, and about %d interaction prompts spread across pages.",
		req.AgeGroup, req.Theme, hero,
		target.PageCount, target.WordsPerPage,
		target.Length.Min, target.Length.Max,
		target.CharacterMin, target.CharacterMax,
		target.InteractionPoints,
	)
	return []provider.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

func buildRevisionPrompt(draft *story.Story, report *quality.Report) []provider.Message {
	var b strings.Builder
	b.WriteString("Revise the following story JSON. Problems found:\n")
	for _, issue := range report.Issues {
		fmt.Fprintf(&b, "- [%s] %s\n", issue.Severity, issue.Message)
	}
	for _, s := range report.Suggestions {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	b.WriteString("\nReturn the corrected story as the same JSON shape. No other text.\n\n")
	raw, _ := json.Marshal(storyPayload{Title: draft.Title, Pages: draft.Pages, Characters: draft.Characters})
	b.Write(raw)
	return []provider.Message{
		{Role: "system", Content: "You are a children's story editor. Respond with a single JSON object only."},
		{Role: "user", Content: b.String()},
	}
}

// parseStory tolerates prose or code fences around the JSON object.
func parseStory(content string) (*story.Story, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, errors.New("no JSON object in response")
	}
	var payload storyPayload
	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		return nil, err
	}
	if len(payload.Pages) == 0 {
		return nil, errors.New("story has no pages")
	}
	return &story.Story{
		Title:      payload.Title,
		Pages:      payload.Pages,
		Characters: payload.Characters,
	}, nil
}
