// Package library holds the offline story inventory: adaptable templates,
// fully precomputed stories, and classic tales. It backs the cheaper
// cascade strategies so a budget-constrained or provider-less request can
// still be served.
package library

import (
	"strings"

	"github.com/vnmchuo/storyloom/internal/story"
)

// Template is a story skeleton with {hero} and {theme} placeholders,
// personalized at serve time.
type Template struct {
	ID        string
	Themes    []string
	AgeGroups []string
	Title     string
	Pages     []story.Page
	Characters []story.Character
}

// Entry is a finished story ready to serve as-is.
type Entry struct {
	ID        string
	Themes    []string
	AgeGroups []string
	Story     story.Story
}

type Library struct {
	templates   []Template
	precomputed []Entry
	classics    []Entry
}

func New(templates []Template, precomputed, classics []Entry) *Library {
	return &Library{templates: templates, precomputed: precomputed, classics: classics}
}

// BestTemplate returns the template best matching theme and age group, or
// nil when nothing fits the theme at all.
func (l *Library) BestTemplate(theme, ageGroup string) *Template {
	var best *Template
	bestScore := 0.0
	for i := range l.templates {
		t := &l.templates[i]
		score := matchScore(t.Themes, t.AgeGroups, theme, ageGroup)
		if score > bestScore {
			best, bestScore = t, score
		}
	}
	return best
}

// MatchPrecomputed finds the closest finished story and its match score.
func (l *Library) MatchPrecomputed(theme, ageGroup string) (*story.Story, float64) {
	var best *Entry
	bestScore := 0.0
	for i := range l.precomputed {
		e := &l.precomputed[i]
		score := matchScore(e.Themes, e.AgeGroups, theme, ageGroup)
		if score > bestScore {
			best, bestScore = e, score
		}
	}
	if best == nil {
		return nil, 0
	}
	s := best.Story
	return &s, bestScore
}

// Classic returns a classic tale for the theme, or any classic when the
// theme is unmatched, or nil when the shelf is empty.
func (l *Library) Classic(theme string) *story.Story {
	for i := range l.classics {
		e := &l.classics[i]
		if hasTheme(e.Themes, theme) {
			s := e.Story
			return &s
		}
	}
	if len(l.classics) == 0 {
		return nil
	}
	s := l.classics[0].Story
	return &s
}

// Adapt personalizes a template: placeholders substituted, hero named.
func (t *Template) Adapt(hero, theme string) *story.Story {
	if hero == "" {
		hero = "Alex"
	}
	replace := strings.NewReplacer("{hero}", hero, "{theme}", theme)

	s := &story.Story{
		Title: replace.Replace(t.Title),
		Theme: theme,
	}
	for _, p := range t.Pages {
		s.Pages = append(s.Pages, story.Page{
			Number:             p.Number,
			Text:               replace.Replace(p.Text),
			IllustrationPrompt: replace.Replace(p.IllustrationPrompt),
			InteractionPrompt:  replace.Replace(p.InteractionPrompt),
		})
	}
	for _, c := range t.Characters {
		s.Characters = append(s.Characters, story.Character{
			Name:              replace.Replace(c.Name),
			Personality:       c.Personality,
			VisualDescription: c.VisualDescription,
			Role:              c.Role,
		})
	}
	return s
}

func matchScore(themes, ageGroups []string, theme, ageGroup string) float64 {
	score := 0.0
	if hasTheme(themes, theme) {
		score += 0.7
	}
	for _, a := range ageGroups {
		if a == ageGroup {
			score += 0.3
			break
		}
	}
	return score
}

func hasTheme(themes []string, theme string) bool {
	theme = strings.ToLower(strings.TrimSpace(theme))
	for _, t := range themes {
		if strings.ToLower(t) == theme {
			return true
		}
	}
	return false
}
