// Package curve models how conversions respond to ad spend on a single
// marketing channel.
package curve

import (
	"fmt"
	"math"

	"github.com/channelmix/budget-allocator/pkg/mathutil"
)

// Curve describes diminishing returns on one channel via the concave
// quadratic f(x) = Efficiency*x - Saturation*x^2. Efficiency is the marginal
// conversions per dollar at zero spend; Saturation controls how quickly
// returns fall off. A Curve is never mutated after construction and is safe
// for concurrent reads.
type Curve struct {
	Channel    string
	Efficiency float64
	Saturation float64
	MinSpend   float64
	MaxSpend   float64
}

// ValidationError reports a channel parameter that violates the response
// model's preconditions.
type ValidationError struct {
	Channel string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("channel %s: invalid %s: %s", e.Channel, e.Field, e.Reason)
}

// Evaluate returns the expected conversions at spend x.
func (c Curve) Evaluate(x float64) float64 {
	return c.Efficiency*x - c.Saturation*x*x
}

// EvaluateAll returns the expected conversions at each of the given spend levels.
func (c Curve) EvaluateAll(spends []float64) []float64 {
	conversions := make([]float64, len(spends))
	for i, x := range spends {
		conversions[i] = c.Evaluate(x)
	}
	return conversions
}

// Marginal returns the additional conversions gained per extra dollar at spend x.
func (c Curve) Marginal(x float64) float64 {
	return c.Efficiency - 2*c.Saturation*x
}

// PeakPoint returns the spend at which conversions stop growing. A channel
// with zero saturation never peaks and returns +Inf.
func (c Curve) PeakPoint() float64 {
	if c.Saturation == 0 {
		return math.Inf(1)
	}
	return c.Efficiency / (2 * c.Saturation)
}

// UsableMax returns the effective spend ceiling for the channel: MaxSpend
// capped at the saturation peak, but never below MinSpend. Spend bounds win
// over the peak cap, so a channel whose floor sits past its peak keeps that
// floor even though marginal returns there are negative.
func (c Curve) UsableMax() float64 {
	return mathutil.Max(c.MinSpend, mathutil.Min(c.MaxSpend, c.PeakPoint()))
}

// Validate checks the curve parameters against the response model's
// preconditions and returns a *ValidationError naming the offending field.
func (c Curve) Validate() error {
	name := c.Channel
	if name == "" {
		return &ValidationError{Channel: "(unnamed)", Field: "name", Reason: "channel name is required"}
	}
	fields := []struct {
		field string
		value float64
	}{
		{"efficiency", c.Efficiency},
		{"saturation", c.Saturation},
		{"minSpend", c.MinSpend},
		{"maxSpend", c.MaxSpend},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &ValidationError{Channel: name, Field: f.field, Reason: "must be a finite number"}
		}
	}
	if c.Efficiency <= 0 {
		return &ValidationError{Channel: name, Field: "efficiency", Reason: "must be positive"}
	}
	if c.Saturation < 0 {
		return &ValidationError{Channel: name, Field: "saturation", Reason: "must not be negative"}
	}
	if c.MinSpend < 0 {
		return &ValidationError{Channel: name, Field: "minSpend", Reason: "must not be negative"}
	}
	if c.MaxSpend < c.MinSpend {
		return &ValidationError{Channel: name, Field: "maxSpend", Reason: "must not be less than minSpend"}
	}
	return nil
}
