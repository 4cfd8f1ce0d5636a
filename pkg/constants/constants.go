// Package constants provides shared constants for the budget-allocator application.
package constants

// Solver constants
const (
	// DefaultSolverMethod is the allocation search used when the config names none
	DefaultSolverMethod = "marginal"

	// GradientSolverMethod selects projected gradient ascent
	GradientSolverMethod = "gradient"

	// DefaultMaxIterations is the iteration budget for the allocation search
	DefaultMaxIterations = 100

	// DefaultTolerance is the convergence tolerance for the allocation search
	DefaultTolerance = 1e-9

	// BudgetConservationTolerance is the maximum allowed gap between total
	// spend and the configured budget in a finished allocation
	BudgetConservationTolerance = 1e-6
)

// Financial constants
const (
	// DecimalPrecision is the precision for currency rounding (2 decimal places)
	DecimalPrecision = 100

	// CurrencyTolerance is the tolerance for currency comparisons (1 cent)
	CurrencyTolerance = 0.01

	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100.0
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// ExampleConfigFile is the example configuration file name
	ExampleConfigFile = "config.yaml.example"
)

// Synthetic benchmark constants
const (
	// SaturationEfficiencyDrop is the fraction of marginal efficiency lost at
	// max spend in generated curves (b = a * drop / maxSpend)
	SaturationEfficiencyDrop = 0.30

	// DefaultRandomSeed seeds benchmark generation when the config names none
	DefaultRandomSeed = 42
)
