package cascade

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vnmchuo/storyloom/internal/library"
	"github.com/vnmchuo/storyloom/internal/quality"
	"github.com/vnmchuo/storyloom/internal/story"
)

// TemplateStrategy personalizes a library skeleton. No provider calls,
// no spend.
type TemplateStrategy struct {
	library *library.Library
}

func NewTemplateStrategy(l *library.Library) *TemplateStrategy {
	return &TemplateStrategy{library: l}
}

func (s *TemplateStrategy) Name() string { return "template" }

func (s *TemplateStrategy) Generate(ctx context.Context, req *story.Request, target story.TargetParams) (*story.Story, error) {
	tpl := s.library.BestTemplate(req.Theme, req.AgeGroup)
	if tpl == nil {
		return nil, fmt.Errorf("no template for theme %q", req.Theme)
	}
	st := tpl.Adapt(req.HeroName, req.Theme)
	st.ID = uuid.New().String()
	return st, nil
}

func (s *TemplateStrategy) Revise(ctx context.Context, req *story.Request, draft *story.Story, report *quality.Report) (*story.Story, error) {
	return nil, ErrNoRevision
}
