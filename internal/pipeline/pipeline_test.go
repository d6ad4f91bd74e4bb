package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vnmchuo/storyloom/internal/budget"
	"github.com/vnmchuo/storyloom/internal/cascade"
	"github.com/vnmchuo/storyloom/internal/pricing"
	"github.com/vnmchuo/storyloom/internal/quality"
	"github.com/vnmchuo/storyloom/internal/story"
)

type memCache struct {
	mu       sync.Mutex
	counters map[string]float64
	lists    map[string][]string
}

func newMemCache() *memCache {
	return &memCache{counters: make(map[string]float64), lists: make(map[string][]string)}
}

func (c *memCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.counters[key]
	if !ok {
		return "", budget.ErrCacheMiss
	}
	return strconv.FormatFloat(v, 'f', -1, 64), nil
}

func (c *memCache) IncrByFloat(ctx context.Context, key string, value float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key] += value
	return c.counters[key], nil
}

func (c *memCache) Expire(ctx context.Context, key string, ttl time.Duration) error { return nil }

func (c *memCache) LPush(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[key] = append([]string{value}, c.lists[key]...)
	return nil
}

func (c *memCache) LTrim(ctx context.Context, key string, start, stop int64) error { return nil }

func (c *memCache) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lists[key]...), nil
}

// acceptableStory passes the gate for the "6-8" targets.
const acceptablePage = "The little fox walked slowly across the bright green meadow today. " +
	"The fox sang and the owl hummed a quiet song. " +
	"A warm wind drifted gently over the tall golden grass. " +
	"The badger dug fast but the hole stayed very small. " +
	"The owl smiled because the morning felt calm and new. " +
	"Three small birds watched quietly from the old oak tree. " +
	"The sun rose higher so the friends walked on happily. " +
	"Every path looked bright under the soft morning light there."

func acceptableStory(model string, cost float64) *story.Story {
	s := &story.Story{ID: "s1", Title: "Acceptable", Theme: "friendship"}
	for i := 0; i < 20; i++ {
		p := story.Page{Number: i + 1, Text: acceptablePage}
		if i < 6 {
			p.InteractionPrompt = "What happens next?"
		}
		s.Pages = append(s.Pages, p)
	}
	s.Characters = []story.Character{
		{Name: "Mira", VisualDescription: "small fox with a red scarf"},
		{Name: "Toby", VisualDescription: "round badger in blue boots"},
		{Name: "Una", VisualDescription: "grey owl with golden eyes"},
	}
	s.Usage = story.Usage{Model: model, InputTokens: 500, OutputTokens: 2000, CostUSD: cost}
	return s
}

type stubStrategy struct {
	name      string
	cost      float64
	fail      bool
	lastModel string
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Generate(ctx context.Context, req *story.Request, target story.TargetParams) (*story.Story, error) {
	s.lastModel = req.Model
	if s.fail {
		return nil, errors.New(s.name + " unavailable")
	}
	return acceptableStory(req.Model, s.cost), nil
}

func (s *stubStrategy) Revise(ctx context.Context, req *story.Request, draft *story.Story, report *quality.Report) (*story.Story, error) {
	return nil, cascade.ErrNoRevision
}

func testRates() *pricing.Table {
	return &pricing.Table{
		Models: map[string]pricing.Rate{
			"mega": {InputPer1K: 2.0, OutputPer1K: 2.0, TokensPerSecond: 40},
			"mini": {InputPer1K: 0.6, OutputPer1K: 0.6, TokensPerSecond: 40},
		},
		BlendedPer1K: 0.05,
		DefaultTPS:   40,
	}
}

func setup(cache *memCache, strategies ...cascade.Strategy) *Service {
	ledger := budget.NewLedger(cache, budget.DefaultTiers())
	controller := budget.NewController(ledger, testRates(), budget.Chains{"mega": {"mini"}})
	recorder := budget.NewRecorder(ledger, cache, nil)
	tracer := noop.NewTracerProvider().Tracer("test")
	runner := cascade.NewRunner(strategies, quality.NewGate(), 0, tracer)
	return NewService(controller, runner, recorder)
}

func request(model string) *story.Request {
	return &story.Request{
		ID:          "req-1",
		PrincipalID: "u1",
		Tier:        "standard",
		Kind:        story.KindStory,
		Model:       model,
		Theme:       "friendship",
		AgeGroup:    "6-8",
		WordTarget:  1000,
	}
}

func TestGenerate_AdmittedAndRecorded(t *testing.T) {
	cache := newMemCache()
	realtime := &stubStrategy{name: "realtime", cost: 0.9}
	svc := setup(cache, realtime, &stubStrategy{name: "emergency"})

	outcome, err := svc.Generate(context.Background(), budget.Principal{ID: "u1", Tier: "standard"}, request("mini"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if outcome.Story == nil || outcome.Strategy != "realtime" {
		t.Fatalf("Expected realtime story, got %+v", outcome)
	}
	if outcome.FallbackUsed {
		t.Error("First strategy must not count as fallback")
	}
	if outcome.CostUSD != 0.9 {
		t.Errorf("Expected recorded cost 0.9, got %f", outcome.CostUSD)
	}

	key := "cost:daily:u1:" + time.Now().Format("2006-01-02")
	if got := cache.counters[key]; got != 0.9 {
		t.Errorf("Expected ledger charged 0.9, got %f", got)
	}
}

func TestGenerate_DeniedAppliesBestAlternative(t *testing.T) {
	cache := newMemCache()
	// Standard tier daily ceiling 20; remaining 2.0. The "mega" estimate
	// ($5.00 margined to $6.00) is denied; alternatives exist.
	cache.counters["cost:daily:u1:"+time.Now().Format("2006-01-02")] = 18.0

	realtime := &stubStrategy{name: "realtime", cost: 0.1}
	svc := setup(cache, realtime, &stubStrategy{name: "emergency"})

	outcome, err := svc.Generate(context.Background(), budget.Principal{ID: "u1", Tier: "standard"}, request("mega"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if outcome.Applied == nil {
		t.Fatal("Expected an applied alternative")
	}
	if !outcome.FallbackUsed {
		t.Error("Applying an alternative must set FallbackUsed")
	}
	if outcome.BudgetExceeded {
		t.Error("A denial with alternatives is not budget exhaustion")
	}
	if realtime.lastModel != outcome.Applied.Request.Model {
		t.Errorf("Strategy saw model %q, applied alternative says %q", realtime.lastModel, outcome.Applied.Request.Model)
	}
}

func TestGenerate_ExhaustedServesTerminalUngated(t *testing.T) {
	cache := newMemCache()
	cache.counters["cost:daily:u1:"+time.Now().Format("2006-01-02")] = 25.0

	realtime := &stubStrategy{name: "realtime", cost: 0.1}
	terminal := &stubStrategy{name: "emergency"}
	svc := setup(cache, realtime, terminal)

	outcome, err := svc.Generate(context.Background(), budget.Principal{ID: "u1", Tier: "standard"}, request("mini"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !outcome.BudgetExceeded {
		t.Error("Expected BudgetExceeded on the outcome")
	}
	if outcome.Strategy != "emergency" {
		t.Errorf("Expected the terminal strategy, got %s", outcome.Strategy)
	}
	if realtime.lastModel != "" {
		t.Error("Intermediate strategies must not run once the budget is exhausted")
	}
	if outcome.Quality != nil {
		t.Error("Terminal artifact is served ungated")
	}
}

func TestGenerate_NothingServedReturnsError(t *testing.T) {
	cache := newMemCache()
	svc := setup(cache, &stubStrategy{name: "realtime", fail: true}, &stubStrategy{name: "emergency", fail: true})

	_, err := svc.Generate(context.Background(), budget.Principal{ID: "u1", Tier: "standard"}, request("mini"))
	if !errors.Is(err, ErrNotServed) {
		t.Fatalf("Expected ErrNotServed, got %v", err)
	}
}
