// Package config defines the data structures related to configuration and
// includes functions for loading and validating the config.
package config

import (
	"fmt"

	"github.com/channelmix/budget-allocator/internal/curve"
	"github.com/channelmix/budget-allocator/pkg/format"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for budget-allocator.
type Configuration struct {
	Budget       BudgetConfig    `yaml:"budget"`
	Channels     []ChannelConfig `yaml:"channels"`
	Synth        SynthConfig     `yaml:"synth,omitempty"`
	Optimization SolverConfig    `yaml:"optimization,omitempty"`
	Logging      LoggingConfig   `yaml:"logging,omitempty"`
	Output       OutputConfig    `yaml:"output,omitempty"`
}

// BudgetConfig holds the total budget the allocation must spend.
type BudgetConfig struct {
	Total float64 `yaml:"total"`
}

// ChannelConfig describes one marketing channel. Efficiency and Saturation
// are optional when curve parameters come from a benchmarks CSV instead of
// the config file.
type ChannelConfig struct {
	Name       string  `yaml:"name"`
	MinSpend   float64 `yaml:"minSpend"`
	MaxSpend   float64 `yaml:"maxSpend"`
	Efficiency float64 `yaml:"efficiency,omitempty"`
	Saturation float64 `yaml:"saturation,omitempty"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`      // debug, info, warn, error
	Format     string `yaml:"format,omitempty"`     // json, console
	OutputFile string `yaml:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty"` // pretty, csv
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there.
func LoadConfiguration(configPath string) (*Configuration, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()

	viper.SetConfigType("yml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}

	var configuration Configuration
	err := viper.Unmarshal(&configuration)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}

	return &configuration, nil
}

// Validate checks the invariants an allocation cannot run without and
// returns the first hard error found. Soft concerns surface through
// ValidateConfiguration instead.
func (conf *Configuration) Validate() error {
	if conf.Budget.Total <= 0 {
		return fmt.Errorf("budget total must be positive, got %s", format.Currency(conf.Budget.Total))
	}
	if len(conf.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	seen := make(map[string]bool, len(conf.Channels))
	totalMin := 0.0
	for _, ch := range conf.Channels {
		if ch.Name == "" {
			return fmt.Errorf("every channel requires a name")
		}
		if seen[ch.Name] {
			return fmt.Errorf("channel %s is defined more than once", ch.Name)
		}
		seen[ch.Name] = true
		if ch.MinSpend < 0 {
			return fmt.Errorf("channel %s: minSpend must not be negative", ch.Name)
		}
		if ch.MaxSpend < ch.MinSpend {
			return fmt.Errorf("channel %s: maxSpend %s is less than minSpend %s",
				ch.Name, format.Currency(ch.MaxSpend), format.Currency(ch.MinSpend))
		}
		totalMin += ch.MinSpend
	}
	if totalMin > conf.Budget.Total {
		return fmt.Errorf("channel minimum spends total %s, exceeding the budget %s",
			format.Currency(totalMin), format.Currency(conf.Budget.Total))
	}
	if err := conf.Synth.Validate(); err != nil {
		return err
	}
	return conf.Optimization.Validate()
}

// ValidateConfiguration performs general validation of the configuration and returns warnings
func (conf *Configuration) ValidateConfiguration() []string {
	var warnings []string
	totalUsable := 0.0
	for _, ch := range conf.Channels {
		if ch.Efficiency <= 0 {
			warnings = append(warnings, fmt.Sprintf(
				"channel %s has no curve parameters in the config; supply a benchmarks CSV or set efficiency/saturation", ch.Name))
			totalUsable += ch.MaxSpend
			continue
		}
		c := channelCurve(ch)
		if peak := c.PeakPoint(); ch.MinSpend > peak {
			warnings = append(warnings, fmt.Sprintf(
				"channel %s minimum spend %s sits past its saturation peak %s; marginal returns there are negative",
				ch.Name, format.Currency(ch.MinSpend), format.Currency(peak)))
		}
		totalUsable += c.UsableMax()
	}
	if totalUsable < conf.Budget.Total {
		warnings = append(warnings, fmt.Sprintf(
			"budget %s exceeds the total usable spend %s; some channels will be pushed past their saturation peaks",
			format.Currency(conf.Budget.Total), format.Currency(totalUsable)))
	}
	return warnings
}

// CurvesFromConfig converts the configured channels into response curves.
// It fails when any channel lacks curve parameters, since the solver cannot
// run without them.
func (conf *Configuration) CurvesFromConfig() ([]curve.Curve, error) {
	curves := make([]curve.Curve, len(conf.Channels))
	for i, ch := range conf.Channels {
		if ch.Efficiency <= 0 {
			return nil, fmt.Errorf("channel %s has no curve parameters; supply a benchmarks CSV or set efficiency/saturation", ch.Name)
		}
		curves[i] = channelCurve(ch)
	}
	return curves, nil
}

func channelCurve(ch ChannelConfig) curve.Curve {
	return curve.Curve{
		Channel:    ch.Name,
		Efficiency: ch.Efficiency,
		Saturation: ch.Saturation,
		MinSpend:   ch.MinSpend,
		MaxSpend:   ch.MaxSpend,
	}
}
