package solver

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/channelmix/budget-allocator/internal/curve"
	"github.com/channelmix/budget-allocator/pkg/constants"
	formatutil "github.com/channelmix/budget-allocator/pkg/format"
	"go.uber.org/zap"
)

func twoChannelProblem(budget float64) Problem {
	return Problem{
		Channels: []curve.Curve{
			{Channel: "google", Efficiency: 5, Saturation: 0.0002, MinSpend: 0, MaxSpend: 20000},
			{Channel: "meta", Efficiency: 3, Saturation: 0.0001, MinSpend: 0, MaxSpend: 20000},
		},
		TotalBudget: budget,
	}
}

func mustSolver(t *testing.T, opts Options) Solver {
	t.Helper()
	s, err := New(zap.NewNop(), opts)
	if err != nil {
		t.Fatalf("failed to build solver: %v", err)
	}
	return s
}

func TestNewSolverMethods(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		wantErr bool
	}{
		{"Default method", "", false},
		{"Marginal method", constants.DefaultSolverMethod, false},
		{"Gradient method", constants.GradientSolverMethod, false},
		{"Unknown method", "newton", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(zap.NewNop(), Options{Method: tt.method})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for method %q, got solver %T", tt.method, s)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for method %q: %v", tt.method, err)
			}
			if s == nil {
				t.Fatalf("expected solver for method %q", tt.method)
			}
		})
	}
}

func TestNewSolverAcceptsNilLogger(t *testing.T) {
	s, err := New(nil, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Solve(twoChannelProblem(10000)); err != nil {
		t.Fatalf("solve with nil logger failed: %v", err)
	}
}

func TestOptionsNormalize(t *testing.T) {
	opts := Options{}
	opts.Normalize()
	if opts.Method != constants.DefaultSolverMethod {
		t.Errorf("default method = %q, expected %q", opts.Method, constants.DefaultSolverMethod)
	}
	if opts.MaxIterations != constants.DefaultMaxIterations {
		t.Errorf("default max iterations = %d, expected %d", opts.MaxIterations, constants.DefaultMaxIterations)
	}
	if opts.Tolerance != constants.DefaultTolerance {
		t.Errorf("default tolerance = %v, expected %v", opts.Tolerance, constants.DefaultTolerance)
	}

	custom := Options{Method: constants.GradientSolverMethod, MaxIterations: 25, Tolerance: 1e-6}
	custom.Normalize()
	if custom.Method != constants.GradientSolverMethod || custom.MaxIterations != 25 || custom.Tolerance != 1e-6 {
		t.Errorf("Normalize overwrote explicit options: %+v", custom)
	}
}

func TestValidateProblem(t *testing.T) {
	valid := curve.Curve{Channel: "google", Efficiency: 5, Saturation: 0.0002, MinSpend: 0, MaxSpend: 20000}

	tests := []struct {
		name          string
		problem       Problem
		wantField     string
		wantPlainErr  bool
		wantInfeasible bool
	}{
		{
			name:      "Empty channel set",
			problem:   Problem{TotalBudget: 1000},
			wantField: "channels",
		},
		{
			name:         "Zero budget",
			problem:      Problem{Channels: []curve.Curve{valid}, TotalBudget: 0},
			wantPlainErr: true,
		},
		{
			name:         "Negative budget",
			problem:      Problem{Channels: []curve.Curve{valid}, TotalBudget: -500},
			wantPlainErr: true,
		},
		{
			name:         "NaN budget",
			problem:      Problem{Channels: []curve.Curve{valid}, TotalBudget: math.NaN()},
			wantPlainErr: true,
		},
		{
			name: "Invalid channel parameters",
			problem: Problem{
				Channels:    []curve.Curve{{Channel: "google", Efficiency: -1, MaxSpend: 1000}},
				TotalBudget: 1000,
			},
			wantField: "efficiency",
		},
		{
			name: "Duplicate channel names",
			problem: Problem{
				Channels:    []curve.Curve{valid, valid},
				TotalBudget: 1000,
			},
			wantField: "name",
		},
		{
			name: "Budget below total minimum",
			problem: Problem{
				Channels: []curve.Curve{
					{Channel: "google", Efficiency: 5, MinSpend: 6000, MaxSpend: 20000},
					{Channel: "meta", Efficiency: 3, MinSpend: 6000, MaxSpend: 20000},
				},
				TotalBudget: 10000,
			},
			wantInfeasible: true,
		},
		{
			name: "Budget above total maximum",
			problem: Problem{
				Channels:    []curve.Curve{valid},
				TotalBudget: 30000,
			},
			wantInfeasible: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateProblem(tt.problem)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			var vErr *curve.ValidationError
			var iErr *InfeasibleError
			switch {
			case tt.wantField != "":
				if !errors.As(err, &vErr) {
					t.Fatalf("expected *curve.ValidationError, got %T (%v)", err, err)
				}
				if vErr.Field != tt.wantField {
					t.Errorf("validation field = %q, expected %q", vErr.Field, tt.wantField)
				}
			case tt.wantInfeasible:
				if !errors.As(err, &iErr) {
					t.Fatalf("expected *InfeasibleError, got %T (%v)", err, err)
				}
				if iErr.Budget != tt.problem.TotalBudget {
					t.Errorf("infeasible budget = %v, expected %v", iErr.Budget, tt.problem.TotalBudget)
				}
			default:
				if errors.As(err, &vErr) || errors.As(err, &iErr) {
					t.Fatalf("expected plain error, got %T", err)
				}
			}
		})
	}
}

func TestInfeasibleErrorMessages(t *testing.T) {
	below := &InfeasibleError{Budget: 10000, MinTotal: 12000, MaxTotal: 40000}
	if !strings.Contains(below.Error(), formatutil.Currency(12000)) {
		t.Errorf("expected minimum total in message, got %q", below.Error())
	}
	above := &InfeasibleError{Budget: 50000, MinTotal: 0, MaxTotal: 40000}
	if !strings.Contains(above.Error(), formatutil.Currency(40000)) {
		t.Errorf("expected maximum total in message, got %q", above.Error())
	}
}

func TestInfeasibleProblemFailsBeforeSearch(t *testing.T) {
	problem := Problem{
		Channels: []curve.Curve{
			{Channel: "google", Efficiency: 5, Saturation: 0.0002, MinSpend: 8000, MaxSpend: 20000},
			{Channel: "meta", Efficiency: 3, Saturation: 0.0001, MinSpend: 8000, MaxSpend: 20000},
		},
		TotalBudget: 10000,
	}

	for _, method := range []string{constants.DefaultSolverMethod, constants.GradientSolverMethod} {
		s := mustSolver(t, Options{Method: method})
		result, err := s.Solve(problem)
		if err == nil {
			t.Fatalf("method %s: expected infeasibility error, got result %+v", method, result)
		}
		var iErr *InfeasibleError
		if !errors.As(err, &iErr) {
			t.Fatalf("method %s: expected *InfeasibleError, got %T", method, err)
		}
		if math.Abs(iErr.MinTotal-16000) > 1e-9 {
			t.Errorf("method %s: minimum total = %v, expected 16000", method, iErr.MinTotal)
		}
	}
}

func TestBoundaryBudgetAllocations(t *testing.T) {
	channels := []curve.Curve{
		{Channel: "google", Efficiency: 5, Saturation: 0.0002, MinSpend: 2000, MaxSpend: 12000},
		{Channel: "meta", Efficiency: 3, Saturation: 0.0001, MinSpend: 3000, MaxSpend: 18000},
	}

	s := mustSolver(t, Options{})

	atMin, err := s.Solve(Problem{Channels: channels, TotalBudget: 5000})
	if err != nil {
		t.Fatalf("minimum boundary solve failed: %v", err)
	}
	if atMin.Channels[0].Spend != 2000 || atMin.Channels[1].Spend != 3000 {
		t.Errorf("minimum boundary spends = %v / %v, expected 2000 / 3000",
			atMin.Channels[0].Spend, atMin.Channels[1].Spend)
	}
	if !atMin.Converged || atMin.Iterations != 0 {
		t.Errorf("minimum boundary should converge without search, got converged=%v iterations=%d",
			atMin.Converged, atMin.Iterations)
	}

	atMax, err := s.Solve(Problem{Channels: channels, TotalBudget: 30000})
	if err != nil {
		t.Fatalf("maximum boundary solve failed: %v", err)
	}
	if atMax.Channels[0].Spend != 12000 || atMax.Channels[1].Spend != 18000 {
		t.Errorf("maximum boundary spends = %v / %v, expected 12000 / 18000",
			atMax.Channels[0].Spend, atMax.Channels[1].Spend)
	}
	if atMax.BudgetUtilization() != 100 {
		t.Errorf("maximum boundary utilization = %v, expected 100", atMax.BudgetUtilization())
	}
}

func TestResultChannelLookup(t *testing.T) {
	s := mustSolver(t, Options{})
	result, err := s.Solve(twoChannelProblem(10000))
	if err != nil {
		t.Fatalf("solve failed: %v", err)
	}

	if result.Channels[0].Channel != "google" || result.Channels[1].Channel != "meta" {
		t.Fatalf("result order %v does not match problem order", []string{result.Channels[0].Channel, result.Channels[1].Channel})
	}

	google, ok := result.Channel("google")
	if !ok {
		t.Fatalf("expected lookup to find google")
	}
	if google.Spend != result.Channels[0].Spend {
		t.Errorf("lookup spend = %v, expected %v", google.Spend, result.Channels[0].Spend)
	}
	if _, ok := result.Channel("tiktok"); ok {
		t.Errorf("expected lookup miss for unknown channel")
	}
}

func TestChannelResultCPA(t *testing.T) {
	withConversions := ChannelResult{Channel: "google", Spend: 1000, Conversions: 40}
	if cpa := withConversions.CPA(); math.Abs(cpa-25) > 1e-9 {
		t.Errorf("CPA = %v, expected 25", cpa)
	}
	zeroConversions := ChannelResult{Channel: "reddit", Spend: 1000, Conversions: 0}
	if cpa := zeroConversions.CPA(); cpa != 0 {
		t.Errorf("CPA with zero conversions = %v, expected 0", cpa)
	}
}

func TestDistributeResidual(t *testing.T) {
	spend := []float64{5, 5}
	leftover := distributeResidual(spend, 3, []float64{0, 0}, []float64{6, 10})
	if leftover != 0 {
		t.Fatalf("expected full distribution, leftover %v", leftover)
	}
	if spend[0] != 6 || spend[1] != 7 {
		t.Errorf("distributed spends = %v, expected [6 7]", spend)
	}

	spend = []float64{5, 5}
	leftover = distributeResidual(spend, -4, []float64{3, 0}, []float64{10, 10})
	if leftover != 0 {
		t.Fatalf("expected full negative distribution, leftover %v", leftover)
	}
	if spend[0] != 3 || spend[1] != 3 {
		t.Errorf("distributed spends = %v, expected [3 3]", spend)
	}

	spend = []float64{9, 9}
	leftover = distributeResidual(spend, 5, []float64{0, 0}, []float64{10, 10})
	if math.Abs(leftover-3) > 1e-12 {
		t.Errorf("expected leftover 3 when bounds cap distribution, got %v", leftover)
	}
}

func TestInitialAllocationFeasible(t *testing.T) {
	problem := Problem{
		Channels: []curve.Curve{
			{Channel: "google", Efficiency: 5, Saturation: 0.0002, MinSpend: 0, MaxSpend: 5000},
			{Channel: "meta", Efficiency: 3, Saturation: 0.0001, MinSpend: 0, MaxSpend: 20000},
		},
		TotalBudget: 10000,
	}
	lower, upper := spendBounds(problem)
	spend := initialAllocation(problem, lower, upper)

	// The efficiency-weighted share for google (6250) exceeds its bound, so
	// the remainder must land on meta.
	if spend[0] != 5000 {
		t.Errorf("clamped share = %v, expected 5000", spend[0])
	}
	if math.Abs(spend[1]-5000) > 1e-9 {
		t.Errorf("redistributed share = %v, expected 5000", spend[1])
	}
	for i := range spend {
		if spend[i] < lower[i]-1e-12 || spend[i] > upper[i]+1e-12 {
			t.Errorf("initial spend %d = %v outside bounds [%v, %v]", i, spend[i], lower[i], upper[i])
		}
	}
}
