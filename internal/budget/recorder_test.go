package budget

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/vnmchuo/storyloom/internal/story"
)

func testRecorder(cache *fakeCache) *Recorder {
	l := testLedger(cache)
	r := NewRecorder(l, cache, nil)
	r.now = l.now
	return r
}

func recordedUsage() Usage {
	return Usage{
		Request:       &story.Request{ID: "req-1", Kind: story.KindStory},
		Strategy:      "realtime",
		Model:         "qwen-max",
		InputTokens:   500,
		OutputTokens:  2000,
		ActualCost:    0.013,
		EstimatedCost: 0.015,
		Elapsed:       40 * time.Second,
		Succeeded:     true,
	}
}

func TestRecord_IncrementsLedgerByExactCost(t *testing.T) {
	cache := newFakeCache()
	r := testRecorder(cache)
	ctx := context.Background()
	p := Principal{ID: "u1", Tier: "standard"}

	before, _ := r.ledger.Snapshot(ctx, p)
	cost, err := r.Record(ctx, p, recordedUsage())
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	after, _ := r.ledger.Snapshot(ctx, p)

	if cost != 0.013 {
		t.Errorf("Expected resolved cost 0.013, got %f", cost)
	}
	if diff := after.DailyUsed - before.DailyUsed - cost; math.Abs(diff) > 1e-9 {
		t.Errorf("Daily counter moved by %f, expected %f", after.DailyUsed-before.DailyUsed, cost)
	}
	if diff := after.MonthlyUsed - before.MonthlyUsed - cost; math.Abs(diff) > 1e-9 {
		t.Errorf("Monthly counter moved by %f, expected %f", after.MonthlyUsed-before.MonthlyUsed, cost)
	}
}

func TestRecord_UnknownCostUsesPartialEstimate(t *testing.T) {
	cache := newFakeCache()
	r := testRecorder(cache)

	u := recordedUsage()
	u.Succeeded = false
	u.ActualCost = CostUnknown
	u.EstimatedCost = 2.0
	u.Elapsed = 10 * time.Second

	cost, err := r.Record(context.Background(), Principal{ID: "u1"}, u)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	// min(10s * 0.01, 2.0 * 0.3) = 0.10
	if math.Abs(cost-0.10) > 1e-9 {
		t.Errorf("Expected partial cost 0.10, got %f", cost)
	}
}

func TestRecord_UnknownCostCappedByEstimateFraction(t *testing.T) {
	cache := newFakeCache()
	r := testRecorder(cache)

	u := recordedUsage()
	u.Succeeded = false
	u.ActualCost = CostUnknown
	u.EstimatedCost = 0.5
	u.Elapsed = 300 * time.Second // uncapped would be 3.00

	cost, err := r.Record(context.Background(), Principal{ID: "u1"}, u)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if math.Abs(cost-0.15) > 1e-9 {
		t.Errorf("Expected capped partial cost 0.15, got %f", cost)
	}
}

func TestRecord_FailedGenerationStillRecorded(t *testing.T) {
	cache := newFakeCache()
	r := testRecorder(cache)
	ctx := context.Background()
	p := Principal{ID: "u1", Tier: "standard"}

	u := recordedUsage()
	u.Succeeded = false
	u.ActualCost = 0.007 // provider billed before failing

	if _, err := r.Record(ctx, p, u); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	snap, _ := r.ledger.Snapshot(ctx, p)
	if snap.DailyUsed != 0.007 {
		t.Errorf("Failed generation must still charge the ledger, got %f", snap.DailyUsed)
	}
}

func TestAnalytics_WindowedBreakdown(t *testing.T) {
	cache := newFakeCache()
	r := testRecorder(cache)
	ctx := context.Background()
	p := Principal{ID: "u1", Tier: "standard"}

	// Seed today's and yesterday's counters directly.
	today := r.now()
	cache.set(dailyKey("u1", today), 1.5)
	cache.set(dailyKey("u1", today.AddDate(0, 0, -1)), 2.5)

	u := recordedUsage()
	if _, err := r.Record(ctx, p, u); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	a, err := r.Analytics(ctx, "u1", 7)
	if err != nil {
		t.Fatalf("Analytics failed: %v", err)
	}
	if a.WindowDays != 7 || len(a.DailyBreakdown) != 7 {
		t.Errorf("Expected 7-day breakdown, got %d days", len(a.DailyBreakdown))
	}
	wantToday := 1.5 + 0.013
	if got := a.DailyBreakdown[today.Format("2006-01-02")]; math.Abs(got-wantToday) > 1e-9 {
		t.Errorf("Expected today %f, got %f", wantToday, got)
	}
	if math.Abs(a.TotalCost-(wantToday+2.5)) > 1e-9 {
		t.Errorf("Expected total %f, got %f", wantToday+2.5, a.TotalCost)
	}
	if got := a.ModelBreakdown["qwen-max"]; math.Abs(got-0.013) > 1e-9 {
		t.Errorf("Expected model breakdown 0.013 for qwen-max, got %f", got)
	}
}
