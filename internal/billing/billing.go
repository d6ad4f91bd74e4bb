package billing

import (
	"context"
	"time"
)

// UsageLog is one append-only generation record. Rows are written once by
// the usage recorder and never updated; they exist whether or not the
// generation succeeded.
type UsageLog struct {
	ID            string
	PrincipalID   string
	RequestID     string
	Model         string
	Strategy      string
	Kind          string
	InputTokens   int
	OutputTokens  int
	CostUSD       float64
	EstimatedUSD  float64
	Succeeded     bool
	LatencyMs     int64
	CreatedAt     time.Time
}

type Store interface {
	LogUsage(ctx context.Context, log *UsageLog) error
	GetUsageByPrincipal(ctx context.Context, principalID string, from, to time.Time) ([]*UsageLog, error)
	GetTotalCostByPrincipal(ctx context.Context, principalID string, from, to time.Time) (float64, error)
}
