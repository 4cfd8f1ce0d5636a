package solver

import (
	"fmt"
	"math"

	"github.com/channelmix/budget-allocator/pkg/format"
	"github.com/channelmix/budget-allocator/pkg/mathutil"
	"go.uber.org/zap"
)

// marginalSolver equalizes marginal conversions per dollar across channels.
// The budget constraint's shadow price lambda fixes every channel's spend at
// clamp((efficiency - lambda) / (2 * saturation), minSpend, maxSpend), and
// total spend is non-increasing in lambda, so a bisection on lambda finds
// the allocation whose total matches the budget.
type marginalSolver struct {
	logger *zap.Logger
	opts   Options
}

func (s *marginalSolver) Solve(problem Problem) (*Result, error) {
	if err := validateProblem(problem); err != nil {
		return nil, err
	}
	lower, upper := spendBounds(problem)

	if spend, ok := boundaryAllocation(problem, lower, upper); ok {
		if err := finishAllocation(problem, spend, lower, upper); err != nil {
			return nil, err
		}
		result := packageResult(problem, spend, s.opts.Method, 0, true, nil, nil)
		logResult(s.logger, result)
		return result, nil
	}

	var trace *Trace
	if s.opts.TrackHistory {
		trace = newTrace(problem)
	}

	lo, hi := lambdaBracket(problem, lower, upper)
	spend := make([]float64, len(problem.Channels))
	gap := math.Inf(1)
	iterations := 0
	for iterations < s.opts.MaxIterations {
		lambda := lo + (hi-lo)/2
		spendAtLambda(problem, lambda, lower, upper, spend)
		gap = mathutil.Sum(spend) - problem.TotalBudget
		iterations++
		trace.record(iterations, totalConversions(problem, spend), gap, spend)
		if math.Abs(gap) <= s.opts.Tolerance {
			break
		}
		if gap > 0 {
			lo = lambda
		} else {
			hi = lambda
		}
	}

	// Channels with no saturation make total spend step where lambda crosses
	// their efficiency, so the bisection can collapse its bracket astride the
	// step without closing the budget gap. Spend held by channels whose
	// marginal sits inside the collapsed bracket is free to absorb the
	// difference without changing the objective.
	const tieBracketEpsilon = 1e-9
	if math.Abs(gap) > s.opts.Tolerance && hi-lo <= tieBracketEpsilon {
		distributeAmongMarginalTies(problem, spend, problem.TotalBudget-mathutil.Sum(spend), lower, upper, lo, hi)
		gap = mathutil.Sum(spend) - problem.TotalBudget
	}

	converged := math.Abs(gap) <= s.opts.Tolerance
	var notes []string
	if !converged {
		notes = append(notes, fmt.Sprintf("search stopped after %d iterations with budget gap %s; leftover spread across channels with slack",
			iterations, format.Currency(math.Abs(gap))))
	}

	if err := finishAllocation(problem, spend, lower, upper); err != nil {
		return nil, err
	}
	result := packageResult(problem, spend, s.opts.Method, iterations, converged, notes, trace)
	logResult(s.logger, result)
	return result, nil
}

// lambdaBracket returns shadow-price bounds that pin every channel to its
// upper bound at the low end and its lower bound at the high end.
func lambdaBracket(p Problem, lower, upper []float64) (float64, float64) {
	lo := math.Inf(1)
	hi := math.Inf(-1)
	for i, c := range p.Channels {
		lo = mathutil.Min(lo, c.Marginal(upper[i]))
		hi = mathutil.Max(hi, c.Marginal(lower[i]))
	}
	return lo - 1, hi + 1
}

// spendAtLambda fills spend with each channel's best response to the budget
// shadow price lambda, clamped into the spend bounds.
func spendAtLambda(p Problem, lambda float64, lower, upper, spend []float64) {
	for i, c := range p.Channels {
		if c.Saturation == 0 {
			if c.Efficiency > lambda {
				spend[i] = upper[i]
			} else {
				spend[i] = lower[i]
			}
			continue
		}
		spend[i] = mathutil.Clamp((c.Efficiency-lambda)/(2*c.Saturation), lower[i], upper[i])
	}
}

// distributeAmongMarginalTies spreads delta across channels whose marginal
// return lies within the final bisection bracket [lo, hi]. Any split among
// such channels leaves the objective unchanged to first order, so moving
// their spend repairs the budget without losing optimality.
func distributeAmongMarginalTies(p Problem, spend []float64, delta float64, lower, upper []float64, lo, hi float64) float64 {
	for i := range spend {
		if math.Abs(delta) < 1e-12 {
			return 0
		}
		marginal := p.Channels[i].Marginal(spend[i])
		if marginal < lo || marginal > hi {
			continue
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
