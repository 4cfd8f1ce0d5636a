package config

import (
	"fmt"

	"github.com/channelmix/budget-allocator/pkg/constants"
)

// Default sampling ranges for synthetic benchmark metrics.
var (
	defaultCpcRange = []float64{0.5, 3.0}
	defaultCtrRange = []float64{0.01, 0.08}
	defaultCvrRange = []float64{0.005, 0.04}
)

// SynthConfig holds the sampling ranges for synthetic benchmark generation.
type SynthConfig struct {
	RandomSeed int64     `yaml:"randomSeed,omitempty" mapstructure:"randomSeed"`
	CpcRange   []float64 `yaml:"cpcRange,omitempty" mapstructure:"cpcRange"`
	CtrRange   []float64 `yaml:"ctrRange,omitempty" mapstructure:"ctrRange"`
	CvrRange   []float64 `yaml:"cvrRange,omitempty" mapstructure:"cvrRange"`
}

// Normalize fills unset sampling ranges and the random seed with defaults.
func (s *SynthConfig) Normalize() {
	if s == nil {
		return
	}
	if s.RandomSeed == 0 {
		s.RandomSeed = constants.DefaultRandomSeed
	}
	if len(s.CpcRange) == 0 {
		s.CpcRange = defaultCpcRange
	}
	if len(s.CtrRange) == 0 {
		s.CtrRange = defaultCtrRange
	}
	if len(s.CvrRange) == 0 {
		s.CvrRange = defaultCvrRange
	}
}

// Validate returns an error when any sampling range is malformed.
func (s *SynthConfig) Validate() error {
	if s == nil {
		return fmt.Errorf("synth configuration cannot be nil")
	}

	s.Normalize()

	ranges := []struct {
		name   string
		bounds []float64
	}{
		{"cpcRange", s.CpcRange},
		{"ctrRange", s.CtrRange},
		{"cvrRange", s.CvrRange},
	}
	for _, r := range ranges {
		if len(r.bounds) != 2 {
			return fmt.Errorf("synth %s must hold exactly [low, high], got %d values", r.name, len(r.bounds))
		}
		if r.bounds[0] <= 0 {
			return fmt.Errorf("synth %s lower bound %v must be positive", r.name, r.bounds[0])
		}
		if r.bounds[0] > r.bounds[1] {
			return fmt.Errorf("synth %s lower bound %v exceeds upper bound %v", r.name, r.bounds[0], r.bounds[1])
		}
	}
	return nil
}
