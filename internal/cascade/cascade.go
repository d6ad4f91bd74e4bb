// Package cascade runs generation strategies in descending cost order
// until one produces an acceptable story. The final strategy is terminal:
// it does no I/O and always yields an artifact, so a request that reaches
// it still gets a story.
package cascade

import (
	"context"
	"errors"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnmchuo/storyloom/internal/quality"
	"github.com/vnmchuo/storyloom/internal/story"
)

// ErrNoRevision is returned by strategies that cannot improve a draft.
var ErrNoRevision = errors.New("strategy does not support revision")

// Strategy produces a story for a request. Generate returns an error when
// the strategy cannot serve the request at all; the runner moves on.
type Strategy interface {
	Name() string
	Generate(ctx context.Context, req *story.Request, target story.TargetParams) (*story.Story, error)
	Revise(ctx context.Context, req *story.Request, draft *story.Story, report *quality.Report) (*story.Story, error)
}

// Attempt records one strategy's outcome for the result trace.
type Attempt struct {
	Strategy string        `json:"strategy"`
	Verdict  string        `json:"verdict,omitempty"`
	Error    string        `json:"error,omitempty"`
	Elapsed  time.Duration `json:"-"`
}

// Result is what the cascade hands back. Story is nil only if the runner
// was built without a terminal strategy.
type Result struct {
	Story        *story.Story    `json:"story"`
	Strategy     string          `json:"strategy"`
	FallbackUsed bool            `json:"fallback_used"`
	Report       *quality.Report `json:"quality,omitempty"`
	Attempts     []Attempt       `json:"attempts"`
	Elapsed      time.Duration   `json:"-"`
}

type Runner struct {
	strategies []Strategy
	gate       *quality.Gate
	wallClock  time.Duration
	tracer     trace.Tracer
	now        func() time.Time
}

// NewRunner orders strategies most- to least-expensive. The last one is
// treated as terminal: served ungated and expected never to fail.
func NewRunner(strategies []Strategy, gate *quality.Gate, wallClock time.Duration, tracer trace.Tracer) *Runner {
	return &Runner{
		strategies: strategies,
		gate:       gate,
		wallClock:  wallClock,
		tracer:     tracer,
		now:        time.Now,
	}
}

// Run walks the chain. A draft that the gate marks revisable gets one
// revision from the same strategy before the runner falls through. Once
// the wall clock budget is spent, intermediate strategies are skipped and
// the terminal one serves directly.
func (r *Runner) Run(ctx context.Context, req *story.Request) *Result {
	ctx, span := r.tracer.Start(ctx, "cascade.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("request_id", req.ID),
		attribute.String("model", req.Model),
		attribute.String("age_group", req.AgeGroup),
	)

	target := story.TargetsForAge(req.AgeGroup)
	start := r.now()
	result := &Result{}

	for i, s := range r.strategies {
		terminal := i == len(r.strategies)-1
		if !terminal && r.wallClock > 0 && r.now().Sub(start) > r.wallClock {
			result.Attempts = append(result.Attempts, Attempt{Strategy: s.Name(), Error: "wall clock budget spent"})
			continue
		}

		attemptStart := r.now()
		draft, err := s.Generate(ctx, req, target)
		if err != nil || draft == nil {
			msg := "no artifact"
			if err != nil {
				msg = err.Error()
			}
			log.Printf("cascade: strategy %s failed for request %s: %s", s.Name(), req.ID, msg)
			result.Attempts = append(result.Attempts, Attempt{Strategy: s.Name(), Error: msg, Elapsed: r.now().Sub(attemptStart)})
			continue
		}
		draft.Source = s.Name()

		if terminal {
			result.Attempts = append(result.Attempts, Attempt{Strategy: s.Name(), Verdict: "served", Elapsed: r.now().Sub(attemptStart)})
			return r.finish(span, result, draft, s.Name(), nil, start)
		}

		report := r.gate.Validate(draft, target)
		verdict := report.Verdict()
		result.Attempts = append(result.Attempts, Attempt{Strategy: s.Name(), Verdict: verdict.String(), Elapsed: r.now().Sub(attemptStart)})

		switch verdict {
		case quality.Accept:
			return r.finish(span, result, draft, s.Name(), report, start)
		case quality.Revise:
			revised, rerr := s.Revise(ctx, req, draft, report)
			if rerr != nil || revised == nil {
				if rerr != nil && !errors.Is(rerr, ErrNoRevision) {
					log.Printf("cascade: revision by %s failed for request %s: %v", s.Name(), req.ID, rerr)
				}
				continue
			}
			revised.Source = s.Name()
			rereport := r.gate.Validate(revised, target)
			result.Attempts = append(result.Attempts, Attempt{Strategy: s.Name(), Verdict: "revised " + rereport.Verdict().String()})
			if rereport.Verdict() == quality.Accept {
				return r.finish(span, result, revised, s.Name(), rereport, start)
			}
		}
	}

	// Only reachable with a misbuilt chain whose terminal strategy failed.
	result.Elapsed = r.now().Sub(start)
	span.SetAttributes(attribute.Bool("served", false))
	return result
}

// Terminal runs only the last strategy, skipping the gate. Used when a
// request is denied outright but the caller must still answer with
// something readable.
func (r *Runner) Terminal(ctx context.Context, req *story.Request) *Result {
	result := &Result{}
	if len(r.strategies) == 0 {
		return result
	}
	s := r.strategies[len(r.strategies)-1]
	start := r.now()
	target := story.TargetsForAge(req.AgeGroup)

	st, err := s.Generate(ctx, req, target)
	if err != nil || st == nil {
		msg := "no artifact"
		if err != nil {
			msg = err.Error()
		}
		result.Attempts = append(result.Attempts, Attempt{Strategy: s.Name(), Error: msg})
		return result
	}
	st.Source = s.Name()
	result.Story = st
	result.Strategy = s.Name()
	result.FallbackUsed = true
	result.Attempts = append(result.Attempts, Attempt{Strategy: s.Name(), Verdict: "served"})
	result.Elapsed = r.now().Sub(start)
	return result
}

func (r *Runner) finish(span trace.Span, result *Result, s *story.Story, strategy string, report *quality.Report, start time.Time) *Result {
	result.Story = s
	result.Strategy = strategy
	result.Report = report
	result.Elapsed = r.now().Sub(start)
	if len(r.strategies) > 0 {
		result.FallbackUsed = strategy != r.strategies[0].Name()
	}
	span.SetAttributes(
		attribute.String("strategy", strategy),
		attribute.Bool("fallback_used", result.FallbackUsed),
	)
	return result
}
