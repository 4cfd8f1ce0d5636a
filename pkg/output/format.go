// Package output provides utilities for formatting and displaying allocation results.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/channelmix/budget-allocator/internal/solver"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// PrettyFormat outputs a human-readable rather than machine-readable table.
func PrettyFormat(result *solver.Result) {
	p := message.NewPrinter(language.English)
	fmt.Printf("--- Optimal allocation (%s) ---\n", result.Method)
	fmt.Printf("Channel    | Spend         | Conversions | CPA       | Marginal\n")
	fmt.Printf("_______    | _____         | ___________ | ___       | ________\n")
	for _, ch := range result.Channels {
		_, _ = p.Printf("%s | $%.2f | %.2f | $%.2f | %.6f\n",
			ch.Channel, ch.Spend, ch.Conversions, ch.CPA(), ch.Marginal)
	}
	_, _ = p.Printf("total | $%.2f | %.2f | $%.2f |\n",
		result.TotalSpend, result.TotalConversions, totalCPA(result))
	_, _ = p.Printf("Budget utilization: %.2f%% of $%.2f\n",
		result.BudgetUtilization(), result.TotalBudget)
	if !result.Converged {
		fmt.Printf("WARNING: search did not converge after %d iterations; allocation is the best feasible iterate\n",
			result.Iterations)
	}
	for _, note := range result.Notes {
		fmt.Printf("NOTE: %s\n", note)
	}
}

// CsvFormat outputs in comma-separated value format.
func CsvFormat(result *solver.Result) {
	fmt.Printf(`"channel","spend","conversions","cpa","marginal"`)
	fmt.Printf("\n")
	for _, ch := range result.Channels {
		fmt.Printf(`"%s","%.2f","%.2f","%.2f","%.6f"`,
			ch.Channel, ch.Spend, ch.Conversions, ch.CPA(), ch.Marginal)
		fmt.Printf("\n")
	}
	fmt.Printf(`"total","%.2f","%.2f","%.2f",""`, result.TotalSpend, result.TotalConversions, totalCPA(result))
	fmt.Printf("\n")
	fmt.Printf(`"budget_utilization","%.2f","","",""`, result.BudgetUtilization())
	fmt.Printf("\n")
	fmt.Printf(`"converged","%t","","","%s"`, result.Converged, strings.Join(result.Notes, "; "))
	fmt.Printf("\n")
}

// WriteHistory writes the solver's per-iteration history as CSV with one
// spend column per channel, the record the convergence-viz tooling consumes.
func WriteHistory(w io.Writer, trace *solver.Trace) error {
	if trace == nil {
		return fmt.Errorf("no history recorded; enable optimization.trackHistory")
	}
	writer := csv.NewWriter(w)
	header := []string{"iteration", "objective", "budget_error"}
	for _, name := range trace.Channels {
		header = append(header, "spend_"+name)
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write history header: %w", err)
	}
	for _, step := range trace.Steps {
		record := []string{
			strconv.Itoa(step.Iteration),
			strconv.FormatFloat(step.Objective, 'g', -1, 64),
			strconv.FormatFloat(step.BudgetError, 'g', -1, 64),
		}
		for _, spend := range step.Spend {
			record = append(record, strconv.FormatFloat(spend, 'g', -1, 64))
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write history step %d: %w", step.Iteration, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func totalCPA(result *solver.Result) float64 {
	if result.TotalConversions <= 0 {
		return 0
	}
	return result.TotalSpend / result.TotalConversions
}
