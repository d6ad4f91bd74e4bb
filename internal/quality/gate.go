package quality

import (
	"fmt"
	"math"
	"strings"

	"github.com/vnmchuo/storyloom/internal/story"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Issue struct {
	Severity   Severity `json:"severity"`
	Category   string   `json:"category"` // structure | language | plot
	Message    string   `json:"message"`
	Actual     string   `json:"actual"`
	Expected   string   `json:"expected"`
	Suggestion string   `json:"suggestion"`
}

// Report is computed fresh per artifact and never mutated afterwards.
type Report struct {
	Pass          bool     `json:"pass"`
	OverallScore  float64  `json:"overall_score"`
	StructureScore float64 `json:"structure_score"`
	LanguageScore float64  `json:"language_score"`
	PlotScore     float64  `json:"plot_score"`
	Issues        []Issue  `json:"issues"`
	Suggestions   []string `json:"suggestions"`
}

type Verdict int

const (
	Accept Verdict = iota
	Revise
	Reject
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case Revise:
		return "revise"
	default:
		return "reject"
	}
}

// Verdict maps the report onto the cascade's three-way decision: accept on
// pass, revise when the artifact is close enough to be worth one retry,
// reject otherwise.
func (r *Report) Verdict() Verdict {
	switch {
	case r.Pass:
		return Accept
	case r.OverallScore >= reviseFloor:
		return Revise
	default:
		return Reject
	}
}

// Scoring weights: structure and language carry the reading experience,
// plot shape is secondary. They sum to 1 and are deliberately fixed.
const (
	structureWeight = 0.4
	languageWeight  = 0.4
	plotWeight      = 0.2

	passThreshold = 0.7
	reviseFloor   = 0.4
)

// Gate validates generated stories against target parameters.
type Gate struct{}

func NewGate() *Gate { return &Gate{} }

// Validate scores the artifact on three independent axes and combines them
// into the weighted overall score. Pass requires the threshold AND zero
// error-severity issues.
func (g *Gate) Validate(s *story.Story, target story.TargetParams) *Report {
	var issues []Issue

	structScore, structIssues := validateStructure(s, target)
	issues = append(issues, structIssues...)

	langScore, langIssues := validateLanguage(s, target)
	issues = append(issues, langIssues...)

	plotScore, plotIssues := validatePlot(s, target)
	issues = append(issues, plotIssues...)

	overall := structureWeight*structScore + languageWeight*langScore + plotWeight*plotScore

	hasErrors := false
	for _, i := range issues {
		if i.Severity == SeverityError {
			hasErrors = true
			break
		}
	}

	return &Report{
		Pass:           overall >= passThreshold && !hasErrors,
		OverallScore:   overall,
		StructureScore: structScore,
		LanguageScore:  langScore,
		PlotScore:      plotScore,
		Issues:         issues,
		Suggestions:    buildSuggestions(issues),
	}
}

// validateStructure checks page count and words-per-page against the
// target, with tolerance bands: small deviations warn, large ones are
// errors, and each flags a proportional score penalty.
func validateStructure(s *story.Story, target story.TargetParams) (float64, []Issue) {
	var issues []Issue
	score := 1.0

	pageCount := len(s.Pages)
	if target.PageCount > 0 {
		deviation := math.Abs(float64(pageCount-target.PageCount)) / float64(target.PageCount)
		if deviation > 0.2 {
			sev := SeverityWarning
			penalty := 0.15
			if deviation > 0.3 {
				sev = SeverityError
				penalty = 0.3
			}
			issues = append(issues, Issue{
				Severity:   sev,
				Category:   "structure",
				Message:    "page count deviates from target",
				Actual:     fmt.Sprintf("%d", pageCount),
				Expected:   fmt.Sprintf("%d", target.PageCount),
				Suggestion: fmt.Sprintf("aim for about %d pages", target.PageCount),
			})
			score -= penalty
		}
	}

	if pageCount > 0 && target.WordsPerPage > 0 {
		counts := make([]float64, pageCount)
		var total float64
		for i, p := range s.Pages {
			counts[i] = float64(story.CountWords(p.Text))
			total += counts[i]
		}
		avg := total / float64(pageCount)

		deviation := math.Abs(avg-float64(target.WordsPerPage)) / float64(target.WordsPerPage)
		if deviation > 0.15 {
			sev := SeverityWarning
			penalty := 0.15
			if deviation > 0.25 {
				sev = SeverityError
				penalty = 0.3
			}
			issues = append(issues, Issue{
				Severity:   sev,
				Category:   "structure",
				Message:    "average words per page deviates from target",
				Actual:     fmt.Sprintf("%.1f", avg),
				Expected:   fmt.Sprintf("%d", target.WordsPerPage),
				Suggestion: fmt.Sprintf("keep pages between %d and %d words", int(float64(target.WordsPerPage)*0.9), int(float64(target.WordsPerPage)*1.1)),
			})
			score -= penalty
		}

		// Uneven page lengths read badly aloud; flag high variation.
		if pageCount > 1 && avg > 0 {
			var sumSq float64
			for _, c := range counts {
				sumSq += (c - avg) * (c - avg)
			}
			cv := math.Sqrt(sumSq/float64(pageCount-1)) / avg
			if cv > 0.3 {
				issues = append(issues, Issue{
					Severity:   SeverityInfo,
					Category:   "structure",
					Message:    "page lengths are uneven",
					Actual:     fmt.Sprintf("coefficient of variation %.2f", cv),
					Expected:   "<0.30",
					Suggestion: "balance word counts across pages",
				})
				score -= 0.05
			}
		}
	}

	return math.Max(0, score), issues
}

// Marker keywords used to bucket sentences. A sentence with a subordinate
// marker counts as complex even if it also coordinates.
var (
	compoundMarkers = []string{" and ", " but ", " or ", " then ", " so "}
	complexMarkers  = []string{"because", "although", "if ", "when ", "while ", "unless", "even though", "after ", "before "}
)

func validateLanguage(s *story.Story, target story.TargetParams) (float64, []Issue) {
	var issues []Issue
	score := 1.0

	var sentences []string
	for _, p := range s.Pages {
		sentences = append(sentences, splitSentences(p.Text)...)
	}

	if len(sentences) == 0 {
		issues = append(issues, Issue{
			Severity:   SeverityError,
			Category:   "language",
			Message:    "story has no readable content",
			Actual:     "0 sentences",
			Expected:   ">0",
			Suggestion: "generate non-empty story text",
		})
		return 0, issues
	}

	simple, compound, complexCount := bucketSentences(sentences)
	total := float64(len(sentences))

	actual := map[string]float64{
		"simple":   float64(simple) / total * 100,
		"compound": float64(compound) / total * 100,
		"complex":  float64(complexCount) / total * 100,
	}
	expected := map[string]float64{
		"simple":   target.Sentences.SimplePct,
		"compound": target.Sentences.CompoundPct,
		"complex":  target.Sentences.ComplexPct,
	}

	for _, bucket := range []string{"simple", "compound", "complex"} {
		exp := expected[bucket]
		if exp <= 0 {
			continue
		}
		deviation := math.Abs(actual[bucket]-exp) / exp
		if deviation > 0.3 {
			sev := SeverityWarning
			penalty := 0.15
			if deviation >= 0.5 {
				sev = SeverityError
				penalty = 0.25
			}
			issues = append(issues, Issue{
				Severity:   sev,
				Category:   "language",
				Message:    fmt.Sprintf("%s sentence share deviates from target", bucket),
				Actual:     fmt.Sprintf("%.1f%%", actual[bucket]),
				Expected:   fmt.Sprintf("%.0f%%", exp),
				Suggestion: fmt.Sprintf("rebalance toward %.0f%% %s sentences", exp, bucket),
			})
			score -= penalty
		}
	}

	var totalWords, overlong int
	for _, sent := range sentences {
		words := story.CountWords(sent)
		totalWords += words
		if target.Length.Max > 0 && words > target.Length.Max*3/2 {
			overlong++
		}
	}
	avgLen := float64(totalWords) / total

	if target.Length.Avg > 0 {
		targetAvg := float64(target.Length.Avg)
		if math.Abs(avgLen-targetAvg) > targetAvg*0.3 {
			issues = append(issues, Issue{
				Severity:   SeverityWarning,
				Category:   "language",
				Message:    "average sentence length deviates from target",
				Actual:     fmt.Sprintf("%.1f words", avgLen),
				Expected:   fmt.Sprintf("%d words", target.Length.Avg),
				Suggestion: fmt.Sprintf("keep sentences between %d and %d words", target.Length.Min, target.Length.Max),
			})
			score -= 0.1
		}
	}

	if float64(overlong) > total*0.1 {
		issues = append(issues, Issue{
			Severity:   SeverityInfo,
			Category:   "language",
			Message:    "too many overlong sentences",
			Actual:     fmt.Sprintf("%d sentences past 1.5x max", overlong),
			Expected:   "<10%",
			Suggestion: "split long sentences",
		})
		score -= 0.05
	}

	return math.Max(0, score), issues
}

func validatePlot(s *story.Story, target story.TargetParams) (float64, []Issue) {
	var issues []Issue
	score := 1.0

	charCount := len(s.Characters)
	if target.CharacterMax > 0 {
		if charCount < target.CharacterMin || charCount > target.CharacterMax {
			sev := SeverityWarning
			penalty := 0.1
			if charCount < target.CharacterMin-1 || charCount > target.CharacterMax+1 {
				sev = SeverityError
				penalty = 0.2
			}
			issues = append(issues, Issue{
				Severity:   sev,
				Category:   "plot",
				Message:    "character count out of range",
				Actual:     fmt.Sprintf("%d", charCount),
				Expected:   fmt.Sprintf("%d-%d", target.CharacterMin, target.CharacterMax),
				Suggestion: fmt.Sprintf("use %d to %d characters", target.CharacterMin, target.CharacterMax),
			})
			score -= penalty
		}
	}

	for i, ch := range s.Characters {
		if strings.TrimSpace(ch.VisualDescription) == "" {
			issues = append(issues, Issue{
				Severity:   SeverityWarning,
				Category:   "plot",
				Message:    fmt.Sprintf("character %d (%s) has no visual description", i+1, ch.Name),
				Actual:     "missing",
				Expected:   "appearance details",
				Suggestion: "describe the character so illustrations stay consistent",
			})
			score -= 0.05
		}
	}

	if target.InteractionPoints > 0 {
		interactions := 0
		for _, p := range s.Pages {
			if strings.TrimSpace(p.InteractionPrompt) != "" {
				interactions++
			}
		}
		expected := float64(target.InteractionPoints)
		if math.Abs(float64(interactions)-expected) > expected*0.5 {
			issues = append(issues, Issue{
				Severity:   SeverityInfo,
				Category:   "plot",
				Message:    "interaction point count off target",
				Actual:     fmt.Sprintf("%d", interactions),
				Expected:   fmt.Sprintf("~%d", target.InteractionPoints),
				Suggestion: fmt.Sprintf("add reader prompts on about %d pages", target.InteractionPoints),
			})
			score -= 0.05
		}
	}

	return math.Max(0, score), issues
}

func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func bucketSentences(sentences []string) (simple, compound, complexCount int) {
	for _, s := range sentences {
		lower := " " + strings.ToLower(s) + " "
		switch {
		case containsAny(lower, complexMarkers):
			complexCount++
		case containsAny(lower, compoundMarkers):
			compound++
		default:
			simple++
		}
	}
	return
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func buildSuggestions(issues []Issue) []string {
	var errs, warns []Issue
	for _, i := range issues {
		switch i.Severity {
		case SeverityError:
			errs = append(errs, i)
		case SeverityWarning:
			warns = append(warns, i)
		}
	}

	var out []string
	if len(errs) > 0 {
		out = append(out, fmt.Sprintf("%d blocking issues need fixing first", len(errs)))
		for _, e := range errs[:min(3, len(errs))] {
			out = append(out, fmt.Sprintf("%s: %s", e.Message, e.Suggestion))
		}
	}
	if len(warns) > 0 {
		out = append(out, fmt.Sprintf("%d warnings worth addressing", len(warns)))
		for _, w := range warns[:min(2, len(warns))] {
			out = append(out, fmt.Sprintf("%s: %s", w.Message, w.Suggestion))
		}
	}
	if len(out) == 0 {
		out = append(out, "story meets all targets")
	}
	return out
}
