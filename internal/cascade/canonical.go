package cascade

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/vnmchuo/storyloom/internal/library"
	"github.com/vnmchuo/storyloom/internal/quality"
	"github.com/vnmchuo/storyloom/internal/story"
)

// CanonicalStrategy serves a classic tale. Looser matching than the
// precomputed shelf: any classic beats no story.
type CanonicalStrategy struct {
	library *library.Library
}

func NewCanonicalStrategy(l *library.Library) *CanonicalStrategy {
	return &CanonicalStrategy{library: l}
}

func (s *CanonicalStrategy) Name() string { return "canonical" }

func (s *CanonicalStrategy) Generate(ctx context.Context, req *story.Request, target story.TargetParams) (*story.Story, error) {
	st := s.library.Classic(req.Theme)
	if st == nil {
		return nil, errors.New("classic shelf is empty")
	}
	st.ID = uuid.New().String()
	return st, nil
}

func (s *CanonicalStrategy) Revise(ctx context.Context, req *story.Request, draft *story.Story, report *quality.Report) (*story.Story, error) {
	return nil, ErrNoRevision
}
