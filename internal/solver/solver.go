// Package solver computes budget allocations across channel response curves.
package solver

import (
	"fmt"
	"math"

	"github.com/channelmix/budget-allocator/internal/curve"
	"github.com/channelmix/budget-allocator/pkg/constants"
	"github.com/channelmix/budget-allocator/pkg/format"
	"github.com/channelmix/budget-allocator/pkg/mathutil"
	"go.uber.org/zap"
)

// Problem is a budget allocation request: the channel response curves and
// the total budget to split across them. Channel order determines result
// order.
type Problem struct {
	Channels    []curve.Curve
	TotalBudget float64
}

// InfeasibleError reports a budget that no allocation within the channel
// spend bounds can match.
type InfeasibleError struct {
	Budget   float64
	MinTotal float64
	MaxTotal float64
}

func (e *InfeasibleError) Error() string {
	if e.Budget < e.MinTotal {
		return fmt.Sprintf("budget %s is below the total minimum spend %s",
			format.Currency(e.Budget), format.Currency(e.MinTotal))
	}
	return fmt.Sprintf("budget %s exceeds the total maximum spend %s",
		format.Currency(e.Budget), format.Currency(e.MaxTotal))
}

// ChannelResult is the allocation for a single channel.
type ChannelResult struct {
	Channel     string  `json:"channel"`
	Spend       float64 `json:"spend"`
	Conversions float64 `json:"conversions"`
	Marginal    float64 `json:"marginal"`
}

// CPA returns the cost per acquisition for the channel, or 0 when the
// allocation produces no conversions.
func (c ChannelResult) CPA() float64 {
	if c.Conversions <= 0 {
		return 0
	}
	return c.Spend / c.Conversions
}

// TraceStep captures one search iteration.
type TraceStep struct {
	Iteration   int       `json:"iteration"`
	Objective   float64   `json:"objective"`
	BudgetError float64   `json:"budgetError"`
	Spend       []float64 `json:"spend"`
}

// Trace is the per-iteration history of a solve. Spend values follow the
// channel order recorded in Channels.
type Trace struct {
	Channels []string    `json:"channels"`
	Steps    []TraceStep `json:"steps"`
}

func newTrace(p Problem) *Trace {
	names := make([]string, len(p.Channels))
	for i, c := range p.Channels {
		names[i] = c.Channel
	}
	return &Trace{Channels: names}
}

func (t *Trace) record(iteration int, objective, budgetError float64, spend []float64) {
	if t == nil {
		return
	}
	copied := make([]float64, len(spend))
	copy(copied, spend)
	t.Steps = append(t.Steps, TraceStep{
		Iteration:   iteration,
		Objective:   objective,
		BudgetError: budgetError,
		Spend:       copied,
	})
}

// Result is a finished allocation. Channels appear in problem order.
type Result struct {
	Channels         []ChannelResult `json:"channels"`
	TotalBudget      float64         `json:"totalBudget"`
	TotalSpend       float64         `json:"totalSpend"`
	TotalConversions float64         `json:"totalConversions"`
	Method           string          `json:"method"`
	Iterations       int             `json:"iterations"`
	Converged        bool            `json:"converged"`
	Notes            []string        `json:"notes,omitempty"`
	Trace            *Trace          `json:"-"`
}

// Channel returns the allocation for the named channel.
func (r *Result) Channel(name string) (ChannelResult, bool) {
	for _, c := range r.Channels {
		if c.Channel == name {
			return c, true
		}
	}
	return ChannelResult{}, false
}

// BudgetUtilization returns total spend as a percentage of the budget.
func (r *Result) BudgetUtilization() float64 {
	return mathutil.CalculatePercentage(r.TotalSpend, r.TotalBudget)
}

// Solver computes an allocation for a problem.
type Solver interface {
	Solve(problem Problem) (*Result, error)
}

// Options configures a solver built by New.
type Options struct {
	Method        string
	MaxIterations int
	Tolerance     float64
	TrackHistory  bool
}

// Normalize fills defaults for unset options.
func (o *Options) Normalize() {
	if o.Method == "" {
		o.Method = constants.DefaultSolverMethod
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = constants.DefaultMaxIterations
	}
	if o.Tolerance <= 0 {
		o.Tolerance = constants.DefaultTolerance
	}
}

// New returns the solver implementing the named search method.
func New(logger *zap.Logger, opts Options) (Solver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.Normalize()
	switch opts.Method {
	case constants.DefaultSolverMethod:
		return &marginalSolver{logger: logger, opts: opts}, nil
	case constants.GradientSolverMethod:
		return &gradientSolver{logger: logger, opts: opts}, nil
	default:
		return nil, fmt.Errorf("solver method %q is not supported", opts.Method)
	}
}

func validateProblem(p Problem) error {
	if len(p.Channels) == 0 {
		return &curve.ValidationError{Field: "channels", Reason: "at least one channel is required"}
	}
	if math.IsNaN(p.TotalBudget) || math.IsInf(p.TotalBudget, 0) {
		return fmt.Errorf("total budget must be a finite number")
	}
	if p.TotalBudget <= 0 {
		return fmt.Errorf("total budget must be positive, got %s", format.Currency(p.TotalBudget))
	}
	seen := make(map[string]bool, len(p.Channels))
	for _, c := range p.Channels {
		if err := c.Validate(); err != nil {
			return err
		}
		if seen[c.Channel] {
			return &curve.ValidationError{Channel: c.Channel, Field: "name", Reason: "duplicate channel name"}
		}
		seen[c.Channel] = true
	}
	lower, upper := spendBounds(p)
	minTotal := mathutil.Sum(lower)
	maxTotal := mathutil.Sum(upper)
	if minTotal-p.TotalBudget > constants.BudgetConservationTolerance ||
		p.TotalBudget-maxTotal > constants.BudgetConservationTolerance {
		return &InfeasibleError{Budget: p.TotalBudget, MinTotal: minTotal, MaxTotal: maxTotal}
	}
	return nil
}

func spendBounds(p Problem) (lower, upper []float64) {
	lower = make([]float64, len(p.Channels))
	upper = make([]float64, len(p.Channels))
	for i, c := range p.Channels {
		lower[i] = c.MinSpend
		upper[i] = c.MaxSpend
	}
	return lower, upper
}

// boundaryAllocation handles the degenerate budgets that pin every channel
// to the same side of its spend bounds. The second return is false when the
// budget sits strictly between the bound totals and a search is required.
func boundaryAllocation(p Problem, lower, upper []float64) ([]float64, bool) {
	if mathutil.WithinTolerance(p.TotalBudget, mathutil.Sum(lower), constants.BudgetConservationTolerance) {
		spend := make([]float64, len(lower))
		copy(spend, lower)
		return spend, true
	}
	if mathutil.WithinTolerance(p.TotalBudget, mathutil.Sum(upper), constants.BudgetConservationTolerance) {
		spend := make([]float64, len(upper))
		copy(spend, upper)
		return spend, true
	}
	return nil, false
}

// initialAllocation splits the budget proportionally to channel efficiency,
// clamps each share into its spend bounds, and pushes any remainder onto
// channels that still have slack.
func initialAllocation(p Problem, lower, upper []float64) []float64 {
	totalEfficiency := 0.0
	for _, c := range p.Channels {
		totalEfficiency += c.Efficiency
	}
	spend := make([]float64, len(p.Channels))
	for i, c := range p.Channels {
		share := p.TotalBudget * c.Efficiency / totalEfficiency
		spend[i] = mathutil.Clamp(share, lower[i], upper[i])
	}
	distributeResidual(spend, p.TotalBudget-mathutil.Sum(spend), lower, upper)
	return spend
}

// distributeResidual spreads delta across the allocation without leaving the
// spend bounds and returns whatever could not be absorbed.
func distributeResidual(spend []float64, delta float64, lower, upper []float64) float64 {
	for i := range spend {
		if math.Abs(delta) < 1e-12 {
			return 0
		}
		if delta > 0 {
			room := upper[i] - spend[i]
			if room <= 0 {
				continue
			}
			take := mathutil.Min(room, delta)
			spend[i] += take
			delta -= take
		} else {
			room := spend[i] - lower[i]
			if room <= 0 {
				continue
			}
			take := mathutil.Min(room, -delta)
			spend[i] -= take
			delta += take
		}
	}
	return delta
}

// finishAllocation rounds spends to whole cents and spreads the leftover
// across channels with remaining slack so the total matches the budget.
func finishAllocation(p Problem, spend []float64, lower, upper []float64) error {
	for i := range spend {
		spend[i] = mathutil.Clamp(mathutil.Round(spend[i]), lower[i], upper[i])
	}
	leftover := distributeResidual(spend, p.TotalBudget-mathutil.Sum(spend), lower, upper)
	if math.Abs(leftover) > constants.BudgetConservationTolerance {
		return fmt.Errorf("allocation failed budget conservation: %s left undistributed", format.Currency(leftover))
	}
	return nil
}

func totalConversions(p Problem, spend []float64) float64 {
	total := 0.0
	for i, c := range p.Channels {
		total += c.Evaluate(spend[i])
	}
	return total
}

func packageResult(p Problem, spend []float64, method string, iterations int, converged bool, notes []string, trace *Trace) *Result {
	channels := make([]ChannelResult, len(p.Channels))
	conversions := 0.0
	for i, c := range p.Channels {
		converted := c.Evaluate(spend[i])
		channels[i] = ChannelResult{
			Channel:     c.Channel,
			Spend:       spend[i],
			Conversions: converted,
			Marginal:    c.Marginal(spend[i]),
		}
		conversions += converted
		if peak := c.PeakPoint(); spend[i] > peak+constants.CurrencyTolerance {
			if c.MinSpend > peak {
				notes = append(notes, fmt.Sprintf("channel %s minimum spend %s holds it past its saturation peak %s",
					c.Channel, format.Currency(c.MinSpend), format.Currency(peak)))
			} else {
				notes = append(notes, fmt.Sprintf("channel %s spends past its saturation peak %s to absorb the budget",
					c.Channel, format.Currency(peak)))
			}
		}
	}
	return &Result{
		Channels:         channels,
		TotalBudget:      p.TotalBudget,
		TotalSpend:       mathutil.Sum(spend),
		TotalConversions: conversions,
		Method:           method,
		Iterations:       iterations,
		Converged:        converged,
		Notes:            notes,
		Trace:            trace,
	}
}

func logResult(logger *zap.Logger, result *Result) {
	logger.Info("allocation complete",
		zap.String("method", result.Method),
		zap.Float64("budget", result.TotalBudget),
		zap.Float64("totalSpend", result.TotalSpend),
		zap.Float64("totalConversions", result.TotalConversions),
		zap.Int("iterations", result.Iterations),
		zap.Bool("converged", result.Converged),
	)
}
