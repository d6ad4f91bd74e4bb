package quality

import (
	"strings"
	"testing"

	"github.com/vnmchuo/storyloom/internal/story"
)

func targetParams() story.TargetParams {
	return story.TargetParams{
		PageCount:    20,
		WordsPerPage: 80,
		Sentences:    story.SentenceMix{SimplePct: 50, CompoundPct: 40, ComplexPct: 10},
		Length:       story.SentenceLength{Min: 8, Max: 15, Avg: 11},
		CharacterMin: 3, CharacterMax: 5,
		InteractionPoints: 6,
	}
}

// pageOfWords builds a page whose text has exactly n words split into
// sentences of ten words each.
func pageOfWords(number, n int) story.Page {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString("word")
		if (i+1)%10 == 0 || i == n-1 {
			b.WriteString(". ")
		} else {
			b.WriteString(" ")
		}
	}
	return story.Page{Number: number, Text: strings.TrimSpace(b.String())}
}

func storyWithPages(pages, wordsPerPage int) *story.Story {
	s := &story.Story{ID: "s1", Title: "Test", Theme: "friendship"}
	for i := 0; i < pages; i++ {
		s.Pages = append(s.Pages, pageOfWords(i+1, wordsPerPage))
	}
	s.Characters = []story.Character{
		{Name: "Mira", VisualDescription: "small fox with a red scarf"},
		{Name: "Toby", VisualDescription: "round badger in blue boots"},
		{Name: "Una", VisualDescription: "grey owl with golden eyes"},
	}
	return s
}

func TestValidate_PerfectStructureScoresOne(t *testing.T) {
	g := NewGate()
	s := storyWithPages(20, 80)

	report := g.Validate(s, targetParams())

	if report.StructureScore != 1.0 {
		t.Errorf("Expected structure score 1.0, got %f (issues: %+v)", report.StructureScore, report.Issues)
	}
}

func TestValidate_FiftyPercentExtraPagesIsError(t *testing.T) {
	g := NewGate()
	s := storyWithPages(30, 80) // target 20, +50%

	report := g.Validate(s, targetParams())

	var found bool
	for _, i := range report.Issues {
		if i.Category == "structure" && i.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected error-severity structure issue, got %+v", report.Issues)
	}
	if report.Pass {
		t.Error("Report with an error issue must not pass")
	}
}

func TestValidate_SlightPageDeviationIsWarning(t *testing.T) {
	g := NewGate()
	s := storyWithPages(25, 80) // +25%: past warning band, inside error band

	report := g.Validate(s, targetParams())

	for _, i := range report.Issues {
		if i.Category == "structure" && i.Message == "page count deviates from target" {
			if i.Severity != SeverityWarning {
				t.Errorf("Expected warning, got %s", i.Severity)
			}
			return
		}
	}
	t.Errorf("Expected a page count issue, got %+v", report.Issues)
}

func TestValidate_EmptyStoryFailsLanguage(t *testing.T) {
	g := NewGate()
	s := &story.Story{ID: "s1", Pages: []story.Page{{Number: 1, Text: ""}}}

	report := g.Validate(s, targetParams())

	if report.LanguageScore != 0 {
		t.Errorf("Expected language score 0 for empty story, got %f", report.LanguageScore)
	}
	if report.Pass {
		t.Error("Empty story must not pass")
	}
}

func TestValidate_MissingVisualDescriptionFlagged(t *testing.T) {
	g := NewGate()
	s := storyWithPages(20, 80)
	s.Characters[1].VisualDescription = ""

	report := g.Validate(s, targetParams())

	var found bool
	for _, i := range report.Issues {
		if i.Category == "plot" && strings.Contains(i.Message, "no visual description") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected missing visual description issue, got %+v", report.Issues)
	}
}

func TestValidate_CharacterCountFarOutOfRangeIsError(t *testing.T) {
	g := NewGate()
	s := storyWithPages(20, 80)
	s.Characters = s.Characters[:1] // target min 3; 1 is below min-1

	report := g.Validate(s, targetParams())

	var found bool
	for _, i := range report.Issues {
		if i.Category == "plot" && i.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected error for character count far out of range, got %+v", report.Issues)
	}
}

func TestVerdict_Mapping(t *testing.T) {
	cases := []struct {
		report Report
		want   Verdict
	}{
		{Report{Pass: true, OverallScore: 0.9}, Accept},
		{Report{Pass: false, OverallScore: 0.65}, Revise},
		{Report{Pass: false, OverallScore: 0.4}, Revise},
		{Report{Pass: false, OverallScore: 0.39}, Reject},
		{Report{Pass: false, OverallScore: 0.1}, Reject},
	}
	for _, tc := range cases {
		if got := tc.report.Verdict(); got != tc.want {
			t.Errorf("score=%.2f pass=%v: expected %s, got %s", tc.report.OverallScore, tc.report.Pass, tc.want, got)
		}
	}
}

func TestBucketSentences(t *testing.T) {
	sentences := []string{
		"The fox ran home",                      // simple
		"The fox ran and the owl flew",          // compound
		"The fox hid because the rain was loud", // complex
		"When the sun rose the fox woke",        // complex
	}
	simple, compound, complexCount := bucketSentences(sentences)
	if simple != 1 || compound != 1 || complexCount != 2 {
		t.Errorf("Expected 1/1/2, got %d/%d/%d", simple, compound, complexCount)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two! Three? ")
	if len(got) != 3 {
		t.Fatalf("Expected 3 sentences, got %d: %v", len(got), got)
	}
	if got[2] != "Three" {
		t.Errorf("Expected trailing punctuation stripped, got %q", got[2])
	}
}

func TestOverallScore_WeightedCombination(t *testing.T) {
	g := NewGate()
	s := storyWithPages(20, 80)

	report := g.Validate(s, targetParams())

	want := 0.4*report.StructureScore + 0.4*report.LanguageScore + 0.2*report.PlotScore
	if diff := report.OverallScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Overall score %f is not the weighted combination %f", report.OverallScore, want)
	}
}
