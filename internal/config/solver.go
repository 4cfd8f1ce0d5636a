package config

import (
	"fmt"
	"strings"

	"github.com/channelmix/budget-allocator/internal/solver"
	"github.com/channelmix/budget-allocator/pkg/constants"
)

// SolverConfig defines how the allocation search runs.
type SolverConfig struct {
	Solver        string  `yaml:"solver,omitempty" mapstructure:"solver"`
	MaxIterations int     `yaml:"maxIterations,omitempty" mapstructure:"maxIterations"`
	Tolerance     float64 `yaml:"tolerance,omitempty" mapstructure:"tolerance"`
	TrackHistory  bool    `yaml:"trackHistory,omitempty" mapstructure:"trackHistory"`
}

// CanonicalSolverMethod returns the canonical identifier for a solver method.
func CanonicalSolverMethod(value string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return constants.DefaultSolverMethod
	}
	switch trimmed {
	case "marginal", "marginal-return", "marginal_return":
		return constants.DefaultSolverMethod
	case "gradient", "gradient-ascent", "gradient_ascent":
		return constants.GradientSolverMethod
	default:
		return trimmed
	}
}

// Normalize ensures defaults and canonical values are applied before validation.
func (s *SolverConfig) Normalize() {
	if s == nil {
		return
	}
	s.Solver = CanonicalSolverMethod(s.Solver)
	if s.MaxIterations <= 0 {
		s.MaxIterations = constants.DefaultMaxIterations
	}
	if s.Tolerance <= 0 {
		s.Tolerance = constants.DefaultTolerance
	}
}

// Validate returns an error when the solver configuration is unsupported.
func (s *SolverConfig) Validate() error {
	if s == nil {
		return fmt.Errorf("solver configuration cannot be nil")
	}

	s.Normalize()

	switch s.Solver {
	case constants.DefaultSolverMethod, constants.GradientSolverMethod:
		// supported methods
	default:
		return fmt.Errorf("solver method %q is not supported", s.Solver)
	}
	return nil
}

// Options maps the configuration onto solver options.
func (s SolverConfig) Options() solver.Options {
	return solver.Options{
		Method:        CanonicalSolverMethod(s.Solver),
		MaxIterations: s.MaxIterations,
		Tolerance:     s.Tolerance,
		TrackHistory:  s.TrackHistory,
	}
}
