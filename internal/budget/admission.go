package budget

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/vnmchuo/storyloom/internal/pricing"
	"github.com/vnmchuo/storyloom/internal/story"
)

// ErrBudgetExceeded means admission was denied and no affordable
// alternative exists. It is the only budget error surfaced to callers.
var ErrBudgetExceeded = errors.New("budget exceeded with no affordable alternative")

// Multiplier applied to estimates before the budget test, absorbing
// estimation error on the conservative side.
const safetyMargin = 1.2

// Flat cost assumed for serving from the precomputed library, and the
// minimum remaining budget at which that substitute is offered.
const (
	precomputedCost      = 0.10
	precomputedThreshold = 0.50
)

var contentReductions = []float64{0.8, 0.6, 0.4}

// Alternative is a cheaper way to serve a denied request. Every returned
// alternative has itself passed the budget test.
type Alternative struct {
	Type          string         `json:"type"` // model_downgrade | content_reduction | precomputed
	Description   string         `json:"description"`
	Request       *story.Request `json:"request"`
	EstimatedCost float64        `json:"estimated_cost"`
	Saving        float64        `json:"saving"`
}

// Decision is the admission verdict plus everything the caller needs to
// react to it: the estimate, budget state, ranked alternatives when denied,
// and non-blocking hints when the budget is tight.
type Decision struct {
	Allowed        bool             `json:"allowed"`
	Status         Status           `json:"status"`
	Estimate       pricing.Estimate `json:"estimate"`
	RemainingDaily float64          `json:"remaining_daily"`
	Alternatives   []Alternative    `json:"alternatives,omitempty"`
	Hints          []string         `json:"hints,omitempty"`
	FailedOpen     bool             `json:"failed_open,omitempty"`
}

// Err maps a denial with no way out to ErrBudgetExceeded.
func (d *Decision) Err() error {
	if !d.Allowed && len(d.Alternatives) == 0 {
		return ErrBudgetExceeded
	}
	return nil
}

// Best returns the highest-saving alternative, or nil.
func (d *Decision) Best() *Alternative {
	if len(d.Alternatives) == 0 {
		return nil
	}
	return &d.Alternatives[0]
}

// Controller performs the pre-request admission check. The check is
// advisory, not a reservation: concurrent admissions for one principal can
// both pass and jointly overshoot the ceiling by at most the sum of their
// margined estimates. That bounded overshoot is accepted instead of
// serializing all requests per principal.
type Controller struct {
	ledger *Ledger
	rates  *pricing.Table
	chains Chains
}

func NewController(ledger *Ledger, rates *pricing.Table, chains Chains) *Controller {
	return &Controller{ledger: ledger, rates: rates, chains: chains}
}

// Admit estimates the request, applies the safety margin, and tests both
// remaining windows. A ledger outage fails open: refusing all generation
// over an accounting outage is worse than briefly under-tracking spend.
func (c *Controller) Admit(ctx context.Context, p Principal, req *story.Request) *Decision {
	est := c.rates.Estimate(req)

	snap, err := c.ledger.Snapshot(ctx, p)
	if err != nil {
		log.Printf("admission: ledger unavailable, failing open for %s: %v", p.ID, err)
		return &Decision{Allowed: true, Status: StatusSafe, Estimate: est, FailedOpen: true}
	}

	d := &Decision{
		Allowed:        affords(snap, est.CostUSD),
		Status:         snap.Status,
		Estimate:       est,
		RemainingDaily: snap.RemainingDaily,
	}

	if !d.Allowed {
		d.Alternatives = c.alternatives(snap, req, est.CostUSD)
		return d
	}

	if snap.Status == StatusWarning || snap.Status == StatusCritical {
		d.Hints = c.hintsFor(req)
	}
	return d
}

func affords(snap *Snapshot, cost float64) bool {
	required := cost * safetyMargin
	return snap.RemainingDaily >= required && snap.RemainingMonthly >= required
}

// alternatives builds the ranked downgrade menu: cheaper models from the
// configured chain, proportional content reductions, and the precomputed
// substitute. Only options that pass the same budget test are kept.
func (c *Controller) alternatives(snap *Snapshot, req *story.Request, originalCost float64) []Alternative {
	var alts []Alternative

	for _, model := range c.chains[req.Model] {
		alt := req.Clone()
		alt.Model = model
		est := c.rates.Estimate(alt)
		if !affords(snap, est.CostUSD) {
			continue
		}
		alts = append(alts, Alternative{
			Type:          "model_downgrade",
			Description:   fmt.Sprintf("use %s instead of %s", model, req.Model),
			Request:       alt,
			EstimatedCost: est.CostUSD,
			Saving:        originalCost - est.CostUSD,
		})
	}

	for _, ratio := range contentReductions {
		alt := req.Clone()
		alt.WordTarget = int(float64(req.WordTarget) * ratio)
		est := c.rates.Estimate(alt)
		if !affords(snap, est.CostUSD) {
			continue
		}
		alts = append(alts, Alternative{
			Type:          "content_reduction",
			Description:   fmt.Sprintf("shorten the story by %d%%", int((1-ratio)*100)),
			Request:       alt,
			EstimatedCost: est.CostUSD,
			Saving:        originalCost - est.CostUSD,
		})
	}

	if snap.RemainingDaily >= precomputedThreshold {
		alt := req.Clone()
		alt.Model = "" // no realtime provider; cascade serves from the library
		alts = append(alts, Alternative{
			Type:          "precomputed",
			Description:   "serve a matching story from the precomputed library",
			Request:       alt,
			EstimatedCost: precomputedCost,
			Saving:        originalCost - precomputedCost,
		})
	}

	sort.Slice(alts, func(i, j int) bool { return alts[i].Saving > alts[j].Saving })
	return alts
}

func (c *Controller) hintsFor(req *story.Request) []string {
	hints := []string{
		"batch related requests to cut per-call overhead",
		"reuse adapted templates for recurring themes",
	}
	if chain := c.chains[req.Model]; len(chain) > 0 {
		hints = append([]string{
			fmt.Sprintf("switching from %s to %s keeps most quality at a fraction of the cost", req.Model, chain[0]),
		}, hints...)
	}
	return hints
}
