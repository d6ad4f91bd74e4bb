package cascade

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vnmchuo/storyloom/internal/library"
	"github.com/vnmchuo/storyloom/internal/quality"
	"github.com/vnmchuo/storyloom/internal/story"
)

// Substitute stories are billed at a flat internal rate rather than free:
// the inventory costs money to produce and refresh.
const precomputedCost = 0.10

// Minimum match score: the theme must match, age alone is not enough to
// hand out an unrelated story.
const precomputedMinScore = 0.7

// PrecomputedStrategy serves a finished story from the inventory.
type PrecomputedStrategy struct {
	library *library.Library
}

func NewPrecomputedStrategy(l *library.Library) *PrecomputedStrategy {
	return &PrecomputedStrategy{library: l}
}

func (s *PrecomputedStrategy) Name() string { return "precomputed" }

func (s *PrecomputedStrategy) Generate(ctx context.Context, req *story.Request, target story.TargetParams) (*story.Story, error) {
	st, score := s.library.MatchPrecomputed(req.Theme, req.AgeGroup)
	if st == nil || score < precomputedMinScore {
		return nil, fmt.Errorf("no precomputed story for theme %q", req.Theme)
	}
	st.ID = uuid.New().String()
	st.Usage = story.Usage{CostUSD: precomputedCost}
	return st, nil
}

func (s *PrecomputedStrategy) Revise(ctx context.Context, req *story.Request, draft *story.Story, report *quality.Report) (*story.Story, error) {
	return nil, ErrNoRevision
}
