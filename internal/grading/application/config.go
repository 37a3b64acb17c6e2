package application

import (
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	grading "poultry-core/internal/grading/domain"
)

// Config carries the grading rules. Version is stamped on every generated
// snapshot so historical rows stay attributable to the rules that made them.
type Config struct {
	Version             int                `yaml:"version"`
	Thresholds          ThresholdConfig    `yaml:"thresholds"`
	BonusRates          map[string]float64 `yaml:"bonus_rates"`
	PenaltyRates        map[string]float64 `yaml:"penalty_rates"`
	BonusCap            float64            `yaml:"bonus_cap"`
	PenaltyCap          float64            `yaml:"penalty_cap"`
	SuspensionThreshold float64            `yaml:"suspension_threshold"`
}

// ThresholdConfig holds the inclusive score minimums per band.
type ThresholdConfig struct {
	APlus float64 `yaml:"a_plus"`
	A     float64 `yaml:"a"`
	B     float64 `yaml:"b"`
	C     float64 `yaml:"c"`
	D     float64 `yaml:"d"`
}

// DefaultConfig returns the shipped grading rules.
func DefaultConfig() Config {
	return Config{
		Version: 1,
		Thresholds: ThresholdConfig{
			APlus: 0.50,
			A:     0.30,
			B:     0.10,
			C:     -0.10,
			D:     -0.30,
		},
		BonusRates: map[string]float64{
			string(grading.GradeAPlus): 8.00,
			string(grading.GradeA):     6.00,
			string(grading.GradeB):     3.00,
		},
		PenaltyRates: map[string]float64{
			string(grading.GradeD): 5.00,
			string(grading.GradeE): 10.00,
		},
		BonusCap:            5000,
		PenaltyCap:          10000,
		SuspensionThreshold: -200,
	}
}

// LoadConfig loads config from yaml, falling back to defaults. The path
// comes from the GRADING_CONFIG environment variable when empty.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv("GRADING_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DomainThresholds converts the configured minimums to decimals.
func (c Config) DomainThresholds() grading.Thresholds {
	return grading.Thresholds{
		APlus: decimal.NewFromFloat(c.Thresholds.APlus),
		A:     decimal.NewFromFloat(c.Thresholds.A),
		B:     decimal.NewFromFloat(c.Thresholds.B),
		C:     decimal.NewFromFloat(c.Thresholds.C),
		D:     decimal.NewFromFloat(c.Thresholds.D),
	}
}

// BonusRate returns the per-kg bonus rate of a grade, zero when absent.
func (c Config) BonusRate(grade grading.Grade) decimal.Decimal {
	return decimal.NewFromFloat(c.BonusRates[string(grade)])
}

// PenaltyRate returns the per-kg penalty rate of a grade, zero when absent.
func (c Config) PenaltyRate(grade grading.Grade) decimal.Decimal {
	return decimal.NewFromFloat(c.PenaltyRates[string(grade)])
}
