package budget

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"
)

// fakeCache is an in-memory Cache with the same atomicity guarantees the
// real store provides.
type fakeCache struct {
	mu      sync.Mutex
	values  map[string]float64
	lists   map[string][]string
	getErr  error
	incrErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]float64{}, lists: map[string][]string{}}
}

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.values[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return strconv.FormatFloat(v, 'f', -1, 64), nil
}

func (f *fakeCache) IncrByFloat(_ context.Context, key string, value float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	f.values[key] += value
	return f.values[key], nil
}

func (f *fakeCache) Expire(_ context.Context, _ string, _ time.Duration) error { return nil }

func (f *fakeCache) LPush(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[key] = append([]string{value}, f.lists[key]...)
	return nil
}

func (f *fakeCache) LTrim(_ context.Context, key string, start, stop int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.lists[key]
	if stop >= int64(len(l)) {
		stop = int64(len(l)) - 1
	}
	if start > stop {
		f.lists[key] = nil
		return nil
	}
	f.lists[key] = l[start : stop+1]
	return nil
}

func (f *fakeCache) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.lists[key]
	if stop < 0 || stop >= int64(len(l)) {
		stop = int64(len(l)) - 1
	}
	if start > stop {
		return nil, nil
	}
	return append([]string(nil), l[start:stop+1]...), nil
}

func (f *fakeCache) set(key string, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = v
}

func testLedger(cache Cache) *Ledger {
	l := NewLedger(cache, DefaultTiers())
	l.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	return l
}

func TestSnapshot_EmptyLedger(t *testing.T) {
	l := testLedger(newFakeCache())

	snap, err := l.Snapshot(context.Background(), Principal{ID: "u1", Tier: "standard"})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.DailyUsed != 0 || snap.MonthlyUsed != 0 {
		t.Errorf("Expected zero usage, got %+v", snap)
	}
	if snap.DailyLimit != 20.0 || snap.MonthlyLimit != 500.0 {
		t.Errorf("Expected standard tier limits, got %+v", snap)
	}
	if snap.Status != StatusSafe {
		t.Errorf("Expected safe status, got %s", snap.Status)
	}
}

func TestSnapshot_StatusThresholds(t *testing.T) {
	cases := []struct {
		used float64
		want Status
	}{
		{0, StatusSafe},
		{13.9, StatusSafe},
		{14.0, StatusWarning}, // 70%
		{17.9, StatusWarning},
		{18.0, StatusCritical}, // 90%
		{19.9, StatusCritical},
		{20.0, StatusExceeded}, // 100%
		{25.0, StatusExceeded},
	}

	for _, tc := range cases {
		cache := newFakeCache()
		l := testLedger(cache)
		cache.set(dailyKey("u1", l.now()), tc.used)

		snap, err := l.Snapshot(context.Background(), Principal{ID: "u1", Tier: "standard"})
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if snap.Status != tc.want {
			t.Errorf("used=%.1f: expected %s, got %s", tc.used, tc.want, snap.Status)
		}
	}
}

func TestSnapshot_UnknownTierFallsBackToStandard(t *testing.T) {
	l := testLedger(newFakeCache())

	snap, err := l.Snapshot(context.Background(), Principal{ID: "u1", Tier: "platinum"})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.DailyLimit != 20.0 {
		t.Errorf("Expected standard ceiling for unknown tier, got %f", snap.DailyLimit)
	}
}

func TestAdd_ReflectedInSnapshot(t *testing.T) {
	l := testLedger(newFakeCache())
	ctx := context.Background()

	if err := l.Add(ctx, "u1", 3.25); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	snap, err := l.Snapshot(ctx, Principal{ID: "u1", Tier: "standard"})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.DailyUsed != 3.25 {
		t.Errorf("Expected daily used 3.25, got %f", snap.DailyUsed)
	}
	if snap.MonthlyUsed != 3.25 {
		t.Errorf("Expected monthly used 3.25, got %f", snap.MonthlyUsed)
	}
	if snap.RemainingDaily != 16.75 {
		t.Errorf("Expected remaining 16.75, got %f", snap.RemainingDaily)
	}
}

func TestAdd_ConcurrentIncrementsSum(t *testing.T) {
	l := testLedger(newFakeCache())
	ctx := context.Background()

	const n = 100
	const each = 0.05

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Add(ctx, "u1", each); err != nil {
				t.Errorf("Add failed: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, err := l.Snapshot(ctx, Principal{ID: "u1", Tier: "standard"})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	want := float64(n) * each
	if diff := snap.DailyUsed - want; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("Expected %f after %d concurrent adds, got %f", want, n, snap.DailyUsed)
	}
}
