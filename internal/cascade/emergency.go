package cascade

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vnmchuo/storyloom/internal/quality"
	"github.com/vnmchuo/storyloom/internal/story"
)

// EmergencyStrategy is the terminal fallback: builds a minimal story
// in-process. No I/O, no spend, and Generate never returns an error, so
// every request that reaches it is served.
type EmergencyStrategy struct{}

func NewEmergencyStrategy() *EmergencyStrategy { return &EmergencyStrategy{} }

func (s *EmergencyStrategy) Name() string { return "emergency" }

func (s *EmergencyStrategy) Generate(ctx context.Context, req *story.Request, target story.TargetParams) (*story.Story, error) {
	hero := req.HeroName
	if hero == "" {
		hero = "Alex"
	}
	theme := req.Theme
	if theme == "" {
		theme = "a quiet adventure"
	}

	return &story.Story{
		ID:    uuid.New().String(),
		Title: fmt.Sprintf("%s's Little Story", hero),
		Theme: theme,
		Pages: []story.Page{
			{Number: 1, Text: fmt.Sprintf("%s went outside to think about %s.", hero, theme)},
			{Number: 2, Text: fmt.Sprintf("Along the way, %s met a friendly bird who listened carefully.", hero), InteractionPrompt: "What would you ask the bird?"},
			{Number: 3, Text: fmt.Sprintf("By bedtime, %s understood a little more, and that was enough for today.", hero)},
		},
		Characters: []story.Character{
			{Name: hero, Personality: "curious", VisualDescription: "a small child with a warm smile", Role: "protagonist"},
			{Name: "Bird", Personality: "patient", VisualDescription: "a round blue bird", Role: "friend"},
		},
	}, nil
}

func (s *EmergencyStrategy) Revise(ctx context.Context, req *story.Request, draft *story.Story, report *quality.Report) (*story.Story, error) {
	return nil, ErrNoRevision
}
