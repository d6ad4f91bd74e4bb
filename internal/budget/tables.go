package budget

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Ceiling is a tier's spend limits in USD.
type Ceiling struct {
	Daily   float64 `yaml:"daily"`
	Monthly float64 `yaml:"monthly"`
}

// TierTable maps subscription tiers to spend ceilings.
type TierTable map[string]Ceiling

const defaultTier = "standard"

// Ceiling returns the limits for a tier, falling back to the standard tier
// for unknown input.
func (t TierTable) Ceiling(tier string) Ceiling {
	if c, ok := t[tier]; ok {
		return c
	}
	return t[defaultTier]
}

// Chains maps a model to its ordered cheaper substitutes.
type Chains map[string][]string

// TierConfig bundles the loadable budget tables so new tiers and downgrade
// paths don't require a rebuild.
type TierConfig struct {
	Tiers  TierTable `yaml:"tiers"`
	Chains Chains    `yaml:"downgrade_chains"`
}

func DefaultTiers() TierTable {
	return TierTable{
		"free":     {Daily: 5.0, Monthly: 100.0},
		"standard": {Daily: 20.0, Monthly: 500.0},
		"premium":  {Daily: 100.0, Monthly: 2000.0},
		"family":   {Daily: 150.0, Monthly: 3000.0},
	}
}

func DefaultChains() Chains {
	return Chains{
		"claude-3-opus":   {"claude-3-sonnet", "qwen-max", "qwen-plus"},
		"claude-3-sonnet": {"qwen-max", "qwen-plus"},
		"gpt-4-turbo":     {"gpt-3.5-turbo", "qwen-max", "qwen-plus"},
		"gpt-3.5-turbo":   {"qwen-plus"},
		"qwen-max":        {"qwen-plus"},
		"qwen-plus":       nil,
	}
}

// LoadTierConfig reads tier ceilings and downgrade chains from YAML,
// filling either table from defaults when absent.
func LoadTierConfig(path string) (*TierConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tier config: %w", err)
	}
	cfg := &TierConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse tier config: %w", err)
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = DefaultTiers()
	}
	if _, ok := cfg.Tiers[defaultTier]; !ok {
		cfg.Tiers[defaultTier] = DefaultTiers()[defaultTier]
	}
	if len(cfg.Chains) == 0 {
		cfg.Chains = DefaultChains()
	}
	return cfg, nil
}
