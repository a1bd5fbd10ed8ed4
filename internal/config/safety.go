package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed safety.yaml
var defaultSafetyYAML []byte

// RiskKeywords are the plain-text keyword lists for the risk pre-filter.
// Matching is case-insensitive on word boundaries.
type RiskKeywords struct {
	High   []string `yaml:"high"`
	Medium []string `yaml:"medium"`
}

// DistressSignals are regex patterns per severity tier.
type DistressSignals struct {
	Crisis   []string `yaml:"crisis"`
	Severe   []string `yaml:"severe"`
	Moderate []string `yaml:"moderate"`
	Mild     []string `yaml:"mild"`
}

// SafetyRules is the versioned, data-driven safety configuration. It is
// loaded once at startup and treated as immutable afterwards.
type SafetyRules struct {
	Version         int             `yaml:"version"`
	RiskKeywords    RiskKeywords    `yaml:"risk_keywords"`
	DistressSignals DistressSignals `yaml:"distress_signals"`
}

// LoadSafetyRules parses the safety-rules artifact. With an empty path the
// embedded default artifact is used.
func LoadSafetyRules(path string) (*SafetyRules, error) {
	raw := defaultSafetyYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read safety rules %s: %w", path, err)
		}
		raw = b
	}

	var rules SafetyRules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("parse safety rules: %w", err)
	}
	if err := rules.validate(); err != nil {
		return nil, err
	}
	return &rules, nil
}

func (r *SafetyRules) validate() error {
	if r.Version <= 0 {
		return fmt.Errorf("safety rules: missing version")
	}
	if len(r.RiskKeywords.High) == 0 {
		return fmt.Errorf("safety rules: high-severity keyword list is empty")
	}
	if len(r.RiskKeywords.Medium) == 0 {
		return fmt.Errorf("safety rules: medium-severity keyword list is empty")
	}
	if len(r.DistressSignals.Crisis) == 0 || len(r.DistressSignals.Severe) == 0 ||
		len(r.DistressSignals.Moderate) == 0 || len(r.DistressSignals.Mild) == 0 {
		return fmt.Errorf("safety rules: every distress tier must have at least one pattern")
	}
	return nil
}
