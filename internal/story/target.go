package story

import "strings"

// SentenceMix is a target percentage distribution over sentence types.
type SentenceMix struct {
	SimplePct   float64 `yaml:"simple" json:"simple"`
	CompoundPct float64 `yaml:"compound" json:"compound"`
	ComplexPct  float64 `yaml:"complex" json:"complex"`
}

// SentenceLength bounds sentence length in words.
type SentenceLength struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
	Avg int `yaml:"avg" json:"avg"`
}

// TargetParams are the structural and complexity parameters a generated
// story is validated against.
type TargetParams struct {
	PageCount         int            `json:"page_count"`
	WordsPerPage      int            `json:"words_per_page"`
	Sentences         SentenceMix    `json:"sentences"`
	Length            SentenceLength `json:"length"`
	CharacterMin      int            `json:"character_min"`
	CharacterMax      int            `json:"character_max"`
	InteractionPoints int            `json:"interaction_points"`
}

// Developmental parameter sets by age band. Values follow early-literacy
// guidance: short simple sentences for preschoolers, longer compound and
// complex structures as reading age rises.
var ageTargets = map[string]TargetParams{
	"3-5": {
		PageCount:    14,
		WordsPerPage: 30,
		Sentences:    SentenceMix{SimplePct: 90, CompoundPct: 10, ComplexPct: 0},
		Length:       SentenceLength{Min: 4, Max: 8, Avg: 6},
		CharacterMin: 1, CharacterMax: 3,
		InteractionPoints: 4,
	},
	"6-8": {
		PageCount:    20,
		WordsPerPage: 80,
		Sentences:    SentenceMix{SimplePct: 50, CompoundPct: 40, ComplexPct: 10},
		Length:       SentenceLength{Min: 8, Max: 15, Avg: 11},
		CharacterMin: 3, CharacterMax: 5,
		InteractionPoints: 6,
	},
	"9-11": {
		PageCount:    32,
		WordsPerPage: 150,
		Sentences:    SentenceMix{SimplePct: 20, CompoundPct: 50, ComplexPct: 30},
		Length:       SentenceLength{Min: 12, Max: 25, Avg: 16},
		CharacterMin: 5, CharacterMax: 10,
		InteractionPoints: 11,
	},
}

// TargetsForAge returns the parameter set for an age band, defaulting to
// the middle band for unknown input.
func TargetsForAge(ageGroup string) TargetParams {
	if t, ok := ageTargets[strings.TrimSpace(ageGroup)]; ok {
		return t
	}
	return ageTargets["6-8"]
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

// CountWords reports the number of whitespace-separated words in text.
func CountWords(text string) int {
	return countWords(text)
}
