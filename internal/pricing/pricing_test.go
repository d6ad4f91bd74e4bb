package pricing

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/vnmchuo/storyloom/internal/story"
)

func TestEstimate_StoryKind(t *testing.T) {
	table := DefaultTable()
	req := &story.Request{Model: "gpt-3.5-turbo", Kind: story.KindStory, WordTarget: 1000}

	est := table.Estimate(req)

	// input = min(500, 2000) = 500, output = 2000
	if est.TotalTokens != 2500 {
		t.Errorf("Expected 2500 tokens, got %d", est.TotalTokens)
	}
	want := 500.0/1000*0.001 + 2000.0/1000*0.002
	if math.Abs(est.CostUSD-want) > 1e-9 {
		t.Errorf("Expected cost %f, got %f", want, est.CostUSD)
	}
	if est.Confidence != 0.85 {
		t.Errorf("Expected confidence 0.85, got %f", est.Confidence)
	}
}

func TestEstimate_InputCap(t *testing.T) {
	table := DefaultTable()
	req := &story.Request{Model: "qwen-plus", Kind: story.KindStory, WordTarget: 10000}

	est := table.Estimate(req)

	// input capped at 2000, output = 20000
	if est.TotalTokens != 22000 {
		t.Errorf("Expected 22000 tokens, got %d", est.TotalTokens)
	}
}

func TestEstimate_IllustrationIsConstant(t *testing.T) {
	table := DefaultTable()
	small := table.Estimate(&story.Request{Model: "qwen-max", Kind: story.KindIllustration, WordTarget: 100})
	large := table.Estimate(&story.Request{Model: "qwen-max", Kind: story.KindIllustration, WordTarget: 9000})

	if small.TotalTokens != large.TotalTokens || small.CostUSD != large.CostUSD {
		t.Errorf("Illustration estimates should not depend on word target: %+v vs %+v", small, large)
	}
	if small.TotalTokens != 600 {
		t.Errorf("Expected 600 tokens, got %d", small.TotalTokens)
	}
}

func TestEstimate_UnknownModelUsesBlendedRate(t *testing.T) {
	table := DefaultTable()
	req := &story.Request{Model: "mystery-xl", Kind: story.KindStory, WordTarget: 1000}

	est := table.Estimate(req)

	want := 2500.0 / 1000 * table.BlendedPer1K
	if math.Abs(est.CostUSD-want) > 1e-9 {
		t.Errorf("Expected blended cost %f, got %f", want, est.CostUSD)
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	table := DefaultTable()
	req := &story.Request{Model: "claude-3-opus", Kind: story.KindStory, WordTarget: 840}

	a := table.Estimate(req)
	b := table.Estimate(req)
	if a != b {
		t.Errorf("Estimate not deterministic: %+v vs %+v", a, b)
	}
}

func TestEstimate_LatencyScalesWithThroughput(t *testing.T) {
	table := DefaultTable()
	slow := table.Estimate(&story.Request{Model: "claude-3-opus", Kind: story.KindStory, WordTarget: 1000})
	fast := table.Estimate(&story.Request{Model: "qwen-plus", Kind: story.KindStory, WordTarget: 1000})

	if slow.Latency <= fast.Latency {
		t.Errorf("Expected opus (20 tps) slower than qwen-plus (80 tps): %v vs %v", slow.Latency, fast.Latency)
	}
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rates.yaml")
	data := `
models:
  tiny-model:
    input_per_1k: 0.0005
    output_per_1k: 0.001
    tokens_per_second: 100
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}
	if _, ok := table.Models["tiny-model"]; !ok {
		t.Error("Expected tiny-model in loaded table")
	}
	if table.BlendedPer1K != DefaultTable().BlendedPer1K {
		t.Errorf("Expected blended rate fallback, got %f", table.BlendedPer1K)
	}
}
