// Package pipeline ties admission, generation, and recording into the
// single flow both the HTTP handlers and the async worker run.
package pipeline

import (
	"context"
	"errors"
	"log"

	"github.com/vnmchuo/storyloom/internal/budget"
	"github.com/vnmchuo/storyloom/internal/cascade"
	"github.com/vnmchuo/storyloom/internal/quality"
	"github.com/vnmchuo/storyloom/internal/story"
)

// ErrNotServed means the cascade ended without an artifact. With a
// healthy terminal strategy this does not happen.
var ErrNotServed = errors.New("no strategy produced a story")

type Service struct {
	controller *budget.Controller
	runner     *cascade.Runner
	recorder   *budget.Recorder
}

func NewService(controller *budget.Controller, runner *cascade.Runner, recorder *budget.Recorder) *Service {
	return &Service{controller: controller, runner: runner, recorder: recorder}
}

// Outcome is the full account of one generation: what was served, how,
// and what the admission check had to say about it.
type Outcome struct {
	Story          *story.Story        `json:"story"`
	Strategy       string              `json:"strategy"`
	FallbackUsed   bool                `json:"fallback_used"`
	Quality        *quality.Report     `json:"quality,omitempty"`
	Admission      *budget.Decision    `json:"admission"`
	Applied        *budget.Alternative `json:"applied_alternative,omitempty"`
	BudgetExceeded bool                `json:"budget_exceeded,omitempty"`
	CostUSD        float64             `json:"cost_usd"`
	Attempts       []cascade.Attempt   `json:"attempts"`
}

// Generate runs the flow end to end. A denial with alternatives silently
// applies the best one; a denial with none still serves the terminal
// strategy at zero cost, flagged on the outcome. Recording failures are
// logged, never surfaced: the story was already served.
func (s *Service) Generate(ctx context.Context, p budget.Principal, req *story.Request) (*Outcome, error) {
	dec := s.controller.Admit(ctx, p, req)

	admitted := req
	var applied *budget.Alternative
	if !dec.Allowed {
		if best := dec.Best(); best != nil {
			admitted = best.Request
			applied = best
		} else {
			return s.serveTerminal(ctx, p, req, dec)
		}
	}

	result := s.runner.Run(ctx, admitted)
	if result.Story == nil {
		s.record(ctx, p, admitted, result, dec.Estimate.CostUSD, false)
		return nil, ErrNotServed
	}

	cost := s.record(ctx, p, admitted, result, dec.Estimate.CostUSD, true)
	return &Outcome{
		Story:        result.Story,
		Strategy:     result.Strategy,
		FallbackUsed: result.FallbackUsed || applied != nil,
		Quality:      result.Report,
		Admission:    dec,
		Applied:      applied,
		CostUSD:      cost,
		Attempts:     result.Attempts,
	}, nil
}

func (s *Service) serveTerminal(ctx context.Context, p budget.Principal, req *story.Request, dec *budget.Decision) (*Outcome, error) {
	result := s.runner.Terminal(ctx, req)
	if result.Story == nil {
		return nil, ErrNotServed
	}
	cost := s.record(ctx, p, req, result, dec.Estimate.CostUSD, true)
	return &Outcome{
		Story:          result.Story,
		Strategy:       result.Strategy,
		FallbackUsed:   true,
		Admission:      dec,
		BudgetExceeded: true,
		CostUSD:        cost,
		Attempts:       result.Attempts,
	}, nil
}

func (s *Service) record(ctx context.Context, p budget.Principal, req *story.Request, result *cascade.Result, estimated float64, succeeded bool) float64 {
	u := budget.Usage{
		Request:       req,
		Strategy:      result.Strategy,
		EstimatedCost: estimated,
		Elapsed:       result.Elapsed,
		Succeeded:     succeeded,
	}
	if result.Story != nil {
		u.Model = result.Story.Usage.Model
		u.InputTokens = result.Story.Usage.InputTokens
		u.OutputTokens = result.Story.Usage.OutputTokens
		u.ActualCost = result.Story.Usage.CostUSD
	} else {
		u.Strategy = "none"
		u.ActualCost = budget.CostUnknown
	}

	cost, err := s.recorder.Record(ctx, p, u)
	if err != nil {
		log.Printf("pipeline: usage recording incomplete for %s: %v", p.ID, err)
	}
	return cost
}
