package pricing

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vnmchuo/storyloom/internal/story"
)

// Rate holds per-model pricing in USD per 1k tokens plus a throughput
// constant used for latency estimates.
type Rate struct {
	InputPer1K      float64 `yaml:"input_per_1k"`
	OutputPer1K     float64 `yaml:"output_per_1k"`
	TokensPerSecond float64 `yaml:"tokens_per_second"`
}

// Table is the provider rate table. Unknown models are estimated at the
// blended rate instead of failing.
type Table struct {
	Models       map[string]Rate `yaml:"models"`
	BlendedPer1K float64         `yaml:"blended_per_1k"`
	DefaultTPS   float64         `yaml:"default_tokens_per_second"`
}

// DefaultTable mirrors published list prices (USD per 1k tokens).
func DefaultTable() *Table {
	return &Table{
		Models: map[string]Rate{
			"claude-3-opus":   {InputPer1K: 0.015, OutputPer1K: 0.075, TokensPerSecond: 20},
			"claude-3-sonnet": {InputPer1K: 0.003, OutputPer1K: 0.015, TokensPerSecond: 40},
			"gpt-4-turbo":     {InputPer1K: 0.010, OutputPer1K: 0.030, TokensPerSecond: 30},
			"gpt-3.5-turbo":   {InputPer1K: 0.001, OutputPer1K: 0.002, TokensPerSecond: 60},
			"qwen-max":        {InputPer1K: 0.002, OutputPer1K: 0.006, TokensPerSecond: 50},
			"qwen-plus":       {InputPer1K: 0.001, OutputPer1K: 0.003, TokensPerSecond: 80},
		},
		BlendedPer1K: 0.05,
		DefaultTPS:   40,
	}
}

// LoadTable reads a rate table from a YAML file. Missing blended/default
// fields fall back to the compiled-in values.
func LoadTable(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate table: %w", err)
	}
	t := &Table{}
	if err := yaml.Unmarshal(raw, t); err != nil {
		return nil, fmt.Errorf("parse rate table: %w", err)
	}
	def := DefaultTable()
	if t.BlendedPer1K == 0 {
		t.BlendedPer1K = def.BlendedPer1K
	}
	if t.DefaultTPS == 0 {
		t.DefaultTPS = def.DefaultTPS
	}
	if len(t.Models) == 0 {
		t.Models = def.Models
	}
	return t, nil
}

// Breakdown splits an estimate into its components.
type Breakdown struct {
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	Model      string  `json:"model"`
}

// Estimate is advisory: created fresh per candidate request, never stored.
type Estimate struct {
	TotalTokens int           `json:"total_tokens"`
	CostUSD     float64       `json:"cost_usd"`
	Latency     time.Duration `json:"-"`
	LatencySecs float64       `json:"latency_seconds"`
	Confidence  float64       `json:"confidence"`
	Breakdown   Breakdown     `json:"breakdown"`
}

// Estimation accuracy against billed cost, measured offline. There is no
// online learning; the constant is revisited when rates change.
const estimateConfidence = 0.85

const latencyOverhead = 2 * time.Second

// Price converts billed token counts into USD using the table's rates.
// Unknown models fall back to the blended rate.
func (t *Table) Price(model string, inTokens, outTokens int) float64 {
	rate, known := t.Models[model]
	if !known {
		return float64(inTokens+outTokens) / 1000 * t.BlendedPer1K
	}
	return float64(inTokens)/1000*rate.InputPer1K + float64(outTokens)/1000*rate.OutputPer1K
}

// Estimate derives token counts from the request's word target and prices
// them from the table. Deterministic and side-effect-free.
//
// Story generation weights output roughly 2x the word target (prose plus
// illustration and interaction prompts) with a capped prompt side. A single
// illustration request has constant token shape.
func (t *Table) Estimate(req *story.Request) Estimate {
	words := float64(req.WordTarget)
	if words <= 0 {
		words = 1000
	}

	var inTokens, outTokens float64
	switch req.Kind {
	case story.KindIllustration:
		inTokens, outTokens = 500, 100
	case story.KindStory:
		inTokens = min(words*0.5, 2000)
		outTokens = words * 2
	default:
		inTokens = words * 0.8
		outTokens = words * 0.3
	}

	var inputCost, outputCost float64
	rate, known := t.Models[req.Model]
	if known {
		inputCost = inTokens / 1000 * rate.InputPer1K
		outputCost = outTokens / 1000 * rate.OutputPer1K
	} else {
		// Unknown model: blended average rate rather than an error.
		blended := (inTokens + outTokens) / 1000 * t.BlendedPer1K
		inputCost = blended * inTokens / (inTokens + outTokens)
		outputCost = blended - inputCost
	}

	tps := t.DefaultTPS
	if known && rate.TokensPerSecond > 0 {
		tps = rate.TokensPerSecond
	}
	latency := time.Duration((inTokens+outTokens)/tps*float64(time.Second)) + latencyOverhead

	return Estimate{
		TotalTokens: int(inTokens + outTokens),
		CostUSD:     inputCost + outputCost,
		Latency:     latency,
		LatencySecs: latency.Seconds(),
		Confidence:  estimateConfidence,
		Breakdown: Breakdown{
			InputCost:  inputCost,
			OutputCost: outputCost,
			Model:      req.Model,
		},
	}
}
