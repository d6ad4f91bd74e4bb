package story

// Kind classifies a generation request for cost estimation purposes.
type Kind string

const (
	KindStory        Kind = "story"
	KindIllustration Kind = "illustration"
)

// Request describes one story to generate. It is a value object: the
// admission controller may hand back a mutated copy (cheaper model, smaller
// word target), but an admitted request is never changed again.
type Request struct {
	ID          string `json:"id"`
	PrincipalID string `json:"principal_id"`
	Tier        string `json:"tier"`
	Kind        Kind   `json:"kind"`
	Model       string `json:"model"`
	Theme       string `json:"theme"`
	HeroName    string `json:"hero_name"`
	AgeGroup    string `json:"age_group"`   // "3-5", "6-8", "9-11"
	WordTarget  int    `json:"word_target"` // desired total words
}

// Clone returns a copy safe to mutate into an alternative.
func (r *Request) Clone() *Request {
	c := *r
	return &c
}

type Page struct {
	Number             int    `json:"number"`
	Text               string `json:"text"`
	IllustrationPrompt string `json:"illustration_prompt,omitempty"`
	InteractionPrompt  string `json:"interaction_prompt,omitempty"`
}

type Character struct {
	Name              string `json:"name"`
	Personality       string `json:"personality,omitempty"`
	VisualDescription string `json:"visual_description,omitempty"`
	Role              string `json:"role,omitempty"`
}

// Usage carries what a generation actually consumed, for the recorder.
type Usage struct {
	Model        string  `json:"model,omitempty"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Story is the generated artifact.
type Story struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Theme      string      `json:"theme"`
	Pages      []Page      `json:"pages"`
	Characters []Character `json:"characters"`
	Source     string      `json:"source"` // strategy that produced it
	Usage      Usage       `json:"usage"`
}

func (s *Story) WordCount() int {
	total := 0
	for _, p := range s.Pages {
		total += countWords(p.Text)
	}
	return total
}
