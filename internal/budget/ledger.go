package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Principal is the billing identity a request is charged against.
type Principal struct {
	ID   string `json:"id"`
	Tier string `json:"tier"`
}

// Status classifies budget pressure from the daily usage ratio.
type Status string

const (
	StatusSafe     Status = "safe"     // <70%
	StatusWarning  Status = "warning"  // 70-90%
	StatusCritical Status = "critical" // 90-100%
	StatusExceeded Status = "exceeded" // >=100%
)

// Snapshot is a point-in-time read of a principal's spend. It is stale the
// moment it is returned; callers treat it as a hint, never a lock.
type Snapshot struct {
	DailyLimit       float64 `json:"daily_limit"`
	MonthlyLimit     float64 `json:"monthly_limit"`
	DailyUsed        float64 `json:"daily_used"`
	MonthlyUsed      float64 `json:"monthly_used"`
	RemainingDaily   float64 `json:"remaining_daily"`
	RemainingMonthly float64 `json:"remaining_monthly"`
	Status           Status  `json:"status"`
}

// Counter lifetimes. A day key outlives its day so late recordings still
// land; both bounds keep ledger storage finite.
const (
	dailyTTL   = 48 * time.Hour
	monthlyTTL = 35 * 24 * time.Hour
)

// Ledger reads and updates per-principal spend counters in the shared
// store. Workers are stateless; the ledger's atomic increments are the only
// cross-request coordination in the system.
type Ledger struct {
	cache Cache
	tiers TierTable
	now   func() time.Time
}

func NewLedger(cache Cache, tiers TierTable) *Ledger {
	return &Ledger{cache: cache, tiers: tiers, now: time.Now}
}

func dailyKey(principalID string, t time.Time) string {
	return fmt.Sprintf("cost:daily:%s:%s", principalID, t.Format("2006-01-02"))
}

func monthlyKey(principalID string, t time.Time) string {
	return fmt.Sprintf("cost:monthly:%s:%s", principalID, t.Format("2006-01"))
}

// Snapshot reads current aggregates and applies the principal's tier
// ceilings.
func (l *Ledger) Snapshot(ctx context.Context, p Principal) (*Snapshot, error) {
	now := l.now()

	daily, err := l.counter(ctx, dailyKey(p.ID, now))
	if err != nil {
		return nil, fmt.Errorf("read daily counter: %w", err)
	}
	monthly, err := l.counter(ctx, monthlyKey(p.ID, now))
	if err != nil {
		return nil, fmt.Errorf("read monthly counter: %w", err)
	}

	ceiling := l.tiers.Ceiling(p.Tier)
	return &Snapshot{
		DailyLimit:       ceiling.Daily,
		MonthlyLimit:     ceiling.Monthly,
		DailyUsed:        daily,
		MonthlyUsed:      monthly,
		RemainingDaily:   max(0, ceiling.Daily-daily),
		RemainingMonthly: max(0, ceiling.Monthly-monthly),
		Status:           classify(daily, ceiling.Daily),
	}, nil
}

// Add atomically charges cost against both windows and refreshes their
// expiry. Safe under concurrent calls from other workers.
func (l *Ledger) Add(ctx context.Context, principalID string, cost float64) error {
	now := l.now()

	dk := dailyKey(principalID, now)
	if _, err := l.cache.IncrByFloat(ctx, dk, cost); err != nil {
		return fmt.Errorf("increment daily counter: %w", err)
	}
	if err := l.cache.Expire(ctx, dk, dailyTTL); err != nil {
		return fmt.Errorf("expire daily counter: %w", err)
	}

	mk := monthlyKey(principalID, now)
	if _, err := l.cache.IncrByFloat(ctx, mk, cost); err != nil {
		return fmt.Errorf("increment monthly counter: %w", err)
	}
	if err := l.cache.Expire(ctx, mk, monthlyTTL); err != nil {
		return fmt.Errorf("expire monthly counter: %w", err)
	}
	return nil
}

func (l *Ledger) counter(ctx context.Context, key string) (float64, error) {
	val, err := l.cache.Get(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt counter %q: %w", key, err)
	}
	return f, nil
}

func classify(used, limit float64) Status {
	if limit <= 0 {
		return StatusExceeded
	}
	switch ratio := used / limit; {
	case ratio >= 1.0:
		return StatusExceeded
	case ratio >= 0.9:
		return StatusCritical
	case ratio >= 0.7:
		return StatusWarning
	default:
		return StatusSafe
	}
}
