package volatility

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings tune stop derivation.
type Settings struct {
	ATRMultiplier   float64 `yaml:"atr_multiplier"`
	RiskReward      float64 `yaml:"risk_reward"`
	FallbackRiskPct float64 `yaml:"fallback_risk_pct"`
	Interval        string  `yaml:"interval"`
	Period          int     `yaml:"period"`
}

// DefaultSettings returns the built-in stop parameters.
func DefaultSettings() Settings {
	return Settings{
		ATRMultiplier:   1.5,
		RiskReward:      2,
		FallbackRiskPct: 0.02,
		Interval:        "1h",
		Period:          14,
	}
}

// LoadSettings reads overrides from a YAML file on top of the defaults.
// Fields left out of the file keep their default values. An empty path
// means no overrides.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return DefaultSettings(), fmt.Errorf("parse %s: %w", path, err)
	}
	d := DefaultSettings()
	if s.ATRMultiplier <= 0 {
		s.ATRMultiplier = d.ATRMultiplier
	}
	if s.RiskReward <= 0 {
		s.RiskReward = d.RiskReward
	}
	if s.FallbackRiskPct <= 0 {
		s.FallbackRiskPct = d.FallbackRiskPct
	}
	if s.Interval == "" {
		s.Interval = d.Interval
	}
	if s.Period <= 0 {
		s.Period = d.Period
	}
	return s, nil
}
