package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/vnmchuo/storyloom/internal/billing"
	"github.com/vnmchuo/storyloom/internal/story"
)

// CostUnknown marks a usage whose billed cost was never reported (e.g. a
// provider call that timed out after tokens were consumed).
const CostUnknown = -1.0

// Partial-cost fallback: elapsed-time-proportional, capped at a fraction of
// the original estimate.
const (
	partialCostPerSecond = 0.01
	partialCostCap       = 0.3
)

const (
	logTTL     = 7 * 24 * time.Hour
	logMaxSize = 10000
)

// Usage describes what one generation attempt actually consumed.
type Usage struct {
	Request       *story.Request
	Strategy      string
	Model         string
	InputTokens   int
	OutputTokens  int
	ActualCost    float64 // CostUnknown when the provider never reported
	EstimatedCost float64
	Elapsed       time.Duration
	Succeeded     bool
}

type logEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id"`
	Model         string    `json:"model"`
	Strategy      string    `json:"strategy"`
	ActualCost    float64   `json:"actual_cost"`
	EstimatedCost float64   `json:"estimated_cost"`
	Succeeded     bool      `json:"succeeded"`
}

// Recorder commits actual spend: atomic ledger increments, a time-windowed
// analytics log in the shared store, and a durable row in Postgres. It runs
// regardless of generation outcome.
type Recorder struct {
	ledger *Ledger
	cache  Cache
	store  billing.Store // optional
	now    func() time.Time
}

func NewRecorder(ledger *Ledger, cache Cache, store billing.Store) *Recorder {
	return &Recorder{ledger: ledger, cache: cache, store: store, now: time.Now}
}

func logKey(principalID string, t time.Time) string {
	return fmt.Sprintf("cost:log:%s:%s", principalID, t.Format("2006-01-02"))
}

// Record resolves the billable cost and writes it everywhere it belongs.
// Returns the resolved cost; partial failures are joined so the caller can
// log them without losing the successful writes.
func (r *Recorder) Record(ctx context.Context, p Principal, u Usage) (float64, error) {
	cost := u.ActualCost
	if cost < 0 {
		cost = min(u.Elapsed.Seconds()*partialCostPerSecond, u.EstimatedCost*partialCostCap)
	}

	var errs []error
	if err := r.ledger.Add(ctx, p.ID, cost); err != nil {
		errs = append(errs, err)
	}
	if err := r.appendLog(ctx, p.ID, u, cost); err != nil {
		errs = append(errs, err)
	}
	if r.store != nil {
		if err := r.store.LogUsage(ctx, &billing.UsageLog{
			PrincipalID:  p.ID,
			RequestID:    u.Request.ID,
			Model:        u.Model,
			Strategy:     u.Strategy,
			Kind:         string(u.Request.Kind),
			InputTokens:  u.InputTokens,
			OutputTokens: u.OutputTokens,
			CostUSD:      cost,
			EstimatedUSD: u.EstimatedCost,
			Succeeded:    u.Succeeded,
			LatencyMs:    u.Elapsed.Milliseconds(),
		}); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		log.Printf("recorder: partial failure for %s: %v", p.ID, errors.Join(errs...))
	}
	return cost, errors.Join(errs...)
}

func (r *Recorder) appendLog(ctx context.Context, principalID string, u Usage, cost float64) error {
	entry := logEntry{
		Timestamp:     r.now(),
		RequestID:     u.Request.ID,
		Model:         u.Model,
		Strategy:      u.Strategy,
		ActualCost:    cost,
		EstimatedCost: u.EstimatedCost,
		Succeeded:     u.Succeeded,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	key := logKey(principalID, r.now())
	if err := r.cache.LPush(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("append usage log: %w", err)
	}
	if err := r.cache.LTrim(ctx, key, 0, logMaxSize-1); err != nil {
		return fmt.Errorf("trim usage log: %w", err)
	}
	if err := r.cache.Expire(ctx, key, logTTL); err != nil {
		return fmt.Errorf("expire usage log: %w", err)
	}
	return nil
}

// Analytics is a windowed spend report for one principal.
type Analytics struct {
	WindowDays     int                `json:"window_days"`
	TotalCost      float64            `json:"total_cost"`
	AverageDaily   float64            `json:"average_daily"`
	DailyBreakdown map[string]float64 `json:"daily_breakdown"`
	ModelBreakdown map[string]float64 `json:"model_breakdown"`
}

// Analytics aggregates the last windowDays of counters and splits today's
// spend by model from the usage log.
func (r *Recorder) Analytics(ctx context.Context, principalID string, windowDays int) (*Analytics, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	now := r.now()

	a := &Analytics{
		WindowDays:     windowDays,
		DailyBreakdown: make(map[string]float64, windowDays),
		ModelBreakdown: make(map[string]float64),
	}

	for i := 0; i < windowDays; i++ {
		day := now.AddDate(0, 0, -i)
		cost, err := r.ledger.counter(ctx, dailyKey(principalID, day))
		if err != nil {
			return nil, err
		}
		a.DailyBreakdown[day.Format("2006-01-02")] = cost
		a.TotalCost += cost
	}
	a.AverageDaily = a.TotalCost / float64(windowDays)

	entries, err := r.cache.LRange(ctx, logKey(principalID, now), 0, -1)
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		return nil, fmt.Errorf("read usage log: %w", err)
	}
	for _, raw := range entries {
		var e logEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue // skip corrupt entries, keep the report usable
		}
		a.ModelBreakdown[e.Model] += e.ActualCost
	}

	return a, nil
}
