package solver

import (
	"fmt"
	"math"

	"github.com/channelmix/budget-allocator/pkg/mathutil"
	"go.uber.org/zap"
)

// gradientSolver walks the projected conversion gradient. Each iteration
// steps every channel along its marginal return and re-projects the spends
// onto the budget plane inside the bounds. It converges more slowly than the
// marginal search when channel saturations differ widely.
type gradientSolver struct {
	logger *zap.Logger
	opts   Options
}

func (s *gradientSolver) Solve(problem Problem) (*Result, error) {
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

	spend := initialAllocation(problem, lower, upper)
	step := gradientStep(problem)
	objective := totalConversions(problem, spend)
	next := make([]float64, len(spend))
	converged := false
	iterations := 0
	for iterations < s.opts.MaxIterations {
		for i, c := range problem.Channels {
			next[i] = spend[i] + step*c.Marginal(spend[i])
		}
		projectOntoBudget(next, lower, upper, problem.TotalBudget)
		iterations++
		improved := totalConversions(problem, next)
		trace.record(iterations, improved, mathutil.Sum(next)-problem.TotalBudget, next)
		copy(spend, next)
		if math.Abs(improved-objective) <= s.opts.Tolerance {
			converged = true
			break
		}
		objective = improved
	}

	var notes []string
	if !converged {
		notes = append(notes, fmt.Sprintf("objective still improving after %d iterations; result is the last feasible iterate", iterations))
	}

	if err := finishAllocation(problem, spend, lower, upper); err != nil {
		return nil, err
	}
	result := packageResult(problem, spend, s.opts.Method, iterations, converged, notes, trace)
	logResult(s.logger, result)
	return result, nil
}

// gradientStep returns a step size below the reciprocal of the gradient's
// Lipschitz constant. A purely linear curve set has no curvature to bound
// the step, so the budget itself sets the scale.
func gradientStep(p Problem) float64 {
	maxSaturation := 0.0
	for _, c := range p.Channels {
		maxSaturation = mathutil.Max(maxSaturation, c.Saturation)
	}
	if maxSaturation == 0 {
		return p.TotalBudget
	}
	return 1 / (2 * maxSaturation)
}

// projectOntoBudget shifts all spends by a common offset and clamps them into
// their bounds so the total matches the budget. Total clamped spend is
// continuous and non-increasing in the offset, so a bisection on the offset
// always lands on the budget plane.
func projectOntoBudget(spend []float64, lower, upper []float64, budget float64) {
	const projectionTolerance = 1e-12
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range spend {
		lo = mathutil.Min(lo, spend[i]-upper[i])
		hi = mathutil.Max(hi, spend[i]-lower[i])
	}
	lo, hi = lo-1, hi+1
	shift := 0.0
	for iter := 0; iter < 200; iter++ {
		shift = lo + (hi-lo)/2
		total := 0.0
		for i := range spend {
			total += mathutil.Clamp(spend[i]-shift, lower[i], upper[i])
		}
		gap := total - budget
		if math.Abs(gap) <= projectionTolerance {
			break
		}
		if gap > 0 {
			lo = shift
		} else {
			hi = shift
		}
	}
	for i := range spend {
		spend[i] = mathutil.Clamp(spend[i]-shift, lower[i], upper[i])
	}
}
