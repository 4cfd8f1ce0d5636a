package output

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/channelmix/budget-allocator/internal/solver"
)

func sampleResult(converged bool) *solver.Result {
	return &solver.Result{
		Channels: []solver.ChannelResult{
			{Channel: "google", Spend: 28000, Conversions: 61.6, Marginal: 0.0004},
			{Channel: "meta", Spend: 22000, Conversions: 41.8, Marginal: 0.0008},
		},
		TotalBudget:      50000,
		TotalSpend:       50000,
		TotalConversions: 103.4,
		Method:           "marginal",
		Iterations:       37,
		Converged:        converged,
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

func TestPrettyFormat(t *testing.T) {
	output := captureStdout(t, func() {
		PrettyFormat(sampleResult(true))
	})

	if !strings.Contains(output, "--- Optimal allocation (marginal) ---") {
		t.Errorf("PrettyFormat missing header")
	}
	if !strings.Contains(output, "Channel    | Spend         | Conversions | CPA       | Marginal") {
		t.Errorf("PrettyFormat missing table header")
	}
	if !strings.Contains(output, "_______    | _____         | ___________ | ___       | ________") {
		t.Errorf("PrettyFormat missing table separator")
	}
	if !strings.Contains(output, "$28,000.00") {
		t.Errorf("PrettyFormat missing grouped spend value")
	}
	if !strings.Contains(output, "$454.55") {
		t.Errorf("PrettyFormat missing CPA value")
	}
	if !strings.Contains(output, "Budget utilization: 100.00% of $50,000.00") {
		t.Errorf("PrettyFormat missing budget utilization line")
	}
	if strings.Contains(output, "WARNING") {
		t.Errorf("PrettyFormat printed a warning for a converged result")
	}
}

func TestPrettyFormatNonConverged(t *testing.T) {
	result := sampleResult(false)
	result.Notes = []string{"search stopped after 37 iterations"}

	output := captureStdout(t, func() {
		PrettyFormat(result)
	})

	if !strings.Contains(output, "WARNING: search did not converge after 37 iterations") {
		t.Errorf("PrettyFormat missing non-convergence warning, got:\n%s", output)
	}
	if !strings.Contains(output, "NOTE: search stopped after 37 iterations") {
		t.Errorf("PrettyFormat missing note line")
	}
}

func TestCsvFormat(t *testing.T) {
	output := captureStdout(t, func() {
		CsvFormat(sampleResult(true))
	})

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 CSV lines, got %d:\n%s", len(lines), output)
	}
	if lines[0] != `"channel","spend","conversions","cpa","marginal"` {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if lines[1] != `"google","28000.00","61.60","454.55","0.000400"` {
		t.Errorf("unexpected first row: %s", lines[1])
	}
	if !strings.HasPrefix(lines[3], `"total","50000.00","103.40"`) {
		t.Errorf("unexpected totals row: %s", lines[3])
	}
	if !strings.HasPrefix(lines[4], `"budget_utilization","100.00"`) {
		t.Errorf("unexpected utilization row: %s", lines[4])
	}
	if !strings.HasPrefix(lines[5], `"converged","true"`) {
		t.Errorf("unexpected converged row: %s", lines[5])
	}
}

func TestWriteHistory(t *testing.T) {
	trace := &solver.Trace{
		Channels: []string{"google", "meta"},
		Steps: []solver.TraceStep{
			{Iteration: 1, Objective: 95.5, BudgetError: 120.25, Spend: []float64{30000, 19879.75}},
			{Iteration: 2, Objective: 103.4, BudgetError: 0, Spend: []float64{28000, 22000}},
		},
	}

	var buf bytes.Buffer
	if err := WriteHistory(&buf, trace); err != nil {
		t.Fatalf("WriteHistory() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 steps, got %d lines", len(lines))
	}
	if lines[0] != "iteration,objective,budget_error,spend_google,spend_meta" {
		t.Errorf("unexpected history header: %s", lines[0])
	}
	if lines[1] != "1,95.5,120.25,30000,19879.75" {
		t.Errorf("unexpected first step: %s", lines[1])
	}
	if lines[2] != "2,103.4,0,28000,22000" {
		t.Errorf("unexpected second step: %s", lines[2])
	}
}

func TestWriteHistoryWithoutTrace(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHistory(&buf, nil); err == nil {
		t.Fatal("expected error when no history was recorded")
	}
}
