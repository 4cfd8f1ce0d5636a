package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/channelmix/budget-allocator/internal/config"
	"github.com/channelmix/budget-allocator/internal/curve"
	"github.com/channelmix/budget-allocator/internal/solver"
	"github.com/channelmix/budget-allocator/internal/synth"
	"github.com/channelmix/budget-allocator/pkg/constants"
	"github.com/channelmix/budget-allocator/pkg/output"
	"github.com/channelmix/budget-allocator/pkg/validation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// initializeLogger creates a zap logger based on configuration and CLI override
func initializeLogger(loggingConfig config.LoggingConfig, logLevelOverride string) (*zap.Logger, error) {
	// Determine log level (CLI override takes precedence)
	level := loggingConfig.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if level == "" {
		level = "info" // Default to info level
	}

	// Parse log level
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	// Determine output format
	format := loggingConfig.Format
	if format == "" {
		format = "json" // Default to JSON for production
	}

	// Configure encoder
	var zapConfig zap.Config
	switch format {
	case "console":
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)
	case "json":
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}

	// Configure output file if specified
	if loggingConfig.OutputFile != "" {
		// Ensure the directory exists
		if dir := filepath.Dir(loggingConfig.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %v", dir, err)
			}
		}

		// Test if we can create/write to the file
		if file, err := os.OpenFile(loggingConfig.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %v", loggingConfig.OutputFile, err)
		} else {
			_ = file.Close()
		}

		zapConfig.OutputPaths = []string{loggingConfig.OutputFile}
		zapConfig.ErrorOutputPaths = []string{loggingConfig.OutputFile}
	}

	return zapConfig.Build()
}

// loadAndInitialize shares the config-then-logger startup between subcommands.
func loadAndInitialize(configLocation, logLevel string) (*config.Configuration, *zap.Logger) {
	if err := validation.ValidateLogLevel(logLevel); err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"invalid log level override\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}

	conf, err := config.LoadConfiguration(configLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", configLocation, err)
		os.Exit(1)
	}

	logger, err := initializeLogger(conf.Logging, logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}

	return conf, logger
}

func runSolve(args []string) {
	flags := flag.NewFlagSet("solve", flag.ExitOnError)
	configLocation := flags.String("config", constants.DefaultConfigFile, "path to configuration file")
	benchmarksPath := flags.String("benchmarks", "", "path to a benchmarks CSV providing the channel curves")
	outputFormatFlag := flags.String("output-format", "", "type of output override: pretty, csv")
	historyOut := flags.String("history-out", "", "path for the solver iteration history CSV")
	logLevel := flags.String("log-level", "", "log level override (debug, info, warn, error)")
	_ = flags.Parse(args)

	conf, logger := loadAndInitialize(*configLocation, *logLevel)
	defer func() {
		_ = logger.Sync()
	}()

	// Determine output format (CLI override takes precedence over config)
	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = *outputFormatFlag
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty // Default to pretty format
	}

	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		logger.Fatal(err.Error(),
			zap.String("op", "solve"),
		)
	}

	// Validate configuration and display any warnings
	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "solve"),
		)
	}

	if err := conf.Validate(); err != nil {
		logger.Fatal("invalid configuration",
			zap.String("op", "solve"),
			zap.Error(err),
		)
	}

	// Channel curves come from a benchmarks CSV when one is given, otherwise
	// from the channel parameters in the config itself.
	var curves []curve.Curve
	if *benchmarksPath != "" {
		file, err := os.Open(*benchmarksPath)
		if err != nil {
			logger.Fatal("failed to open benchmarks file",
				zap.String("op", "solve"),
				zap.Error(err),
			)
		}
		benchmarks, err := synth.ReadCSV(file)
		_ = file.Close()
		if err != nil {
			logger.Fatal("failed to parse benchmarks file",
				zap.String("op", "solve"),
				zap.Error(err),
			)
		}
		curves = synth.Curves(benchmarks)
		logger.Info("loaded channel curves from benchmarks",
			zap.String("op", "solve"),
			zap.String("path", *benchmarksPath),
			zap.Int("channels", len(curves)),
		)
	} else {
		var err error
		curves, err = conf.CurvesFromConfig()
		if err != nil {
			logger.Fatal("failed to build channel curves from configuration",
				zap.String("op", "solve"),
				zap.Error(err),
			)
		}
	}

	allocator, err := solver.New(logger, conf.Optimization.Options())
	if err != nil {
		logger.Fatal("failed to build solver",
			zap.String("op", "solve"),
			zap.Error(err),
		)
	}

	result, err := allocator.Solve(solver.Problem{
		Channels:    curves,
		TotalBudget: conf.Budget.Total,
	})
	if err != nil {
		logger.Fatal("failed to compute allocation",
			zap.String("op", "solve"),
			zap.Error(err),
		)
	}

	if !result.Converged {
		logger.Warn("allocation did not converge; reporting best feasible iterate",
			zap.String("op", "solve"),
			zap.Int("iterations", result.Iterations),
		)
	}

	if *historyOut != "" {
		writeHistoryFile(logger, *historyOut, result.Trace)
	}

	// Handle output.
	switch outputFormat {
	case constants.OutputFormatPretty:
		output.PrettyFormat(result)
	case constants.OutputFormatCSV:
		output.CsvFormat(result)
	}
}

func writeHistoryFile(logger *zap.Logger, path string, trace *solver.Trace) {
	if trace == nil {
		logger.Warn("no iteration history recorded; set optimization.trackHistory to capture it",
			zap.String("op", "solve"),
		)
		return
	}
	file, err := os.Create(path)
	if err != nil {
		logger.Fatal("failed to create history file",
			zap.String("op", "solve"),
			zap.Error(err),
		)
	}
	defer func() {
		_ = file.Close()
	}()
	if err := output.WriteHistory(file, trace); err != nil {
		logger.Fatal("failed to write history file",
			zap.String("op", "solve"),
			zap.Error(err),
		)
	}
	logger.Info("wrote solver iteration history",
		zap.String("op", "solve"),
		zap.String("path", path),
		zap.Int("steps", len(trace.Steps)),
	)
}

func runSynth(args []string) {
	flags := flag.NewFlagSet("synth", flag.ExitOnError)
	configLocation := flags.String("config", constants.DefaultConfigFile, "path to configuration file")
	outPath := flags.String("out", "channel_benchmarks.csv", "output CSV path for generated benchmarks")
	channelsOut := flags.String("channels-out", "", "optional path for a ready-to-solve channels YAML snippet")
	logLevel := flags.String("log-level", "", "log level override (debug, info, warn, error)")
	_ = flags.Parse(args)

	conf, logger := loadAndInitialize(*configLocation, *logLevel)
	defer func() {
		_ = logger.Sync()
	}()

	if err := conf.Validate(); err != nil {
		logger.Fatal("invalid configuration",
			zap.String("op", "synth"),
			zap.Error(err),
		)
	}

	benchmarks, err := synth.Generate(logger, conf)
	if err != nil {
		logger.Fatal("failed to generate benchmarks",
			zap.String("op", "synth"),
			zap.Error(err),
		)
	}

	if dir := filepath.Dir(*outPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatal("failed to create output directory",
				zap.String("op", "synth"),
				zap.Error(err),
			)
		}
	}
	file, err := os.Create(*outPath)
	if err != nil {
		logger.Fatal("failed to create benchmarks file",
			zap.String("op", "synth"),
			zap.Error(err),
		)
	}
	err = synth.WriteCSV(file, benchmarks)
	_ = file.Close()
	if err != nil {
		logger.Fatal("failed to write benchmarks file",
			zap.String("op", "synth"),
			zap.Error(err),
		)
	}

	logger.Info("generated channel benchmarks",
		zap.String("op", "synth"),
		zap.String("path", *outPath),
		zap.Int("channels", len(benchmarks)),
	)
	for _, benchmark := range benchmarks {
		logger.Info("channel benchmark summary",
			zap.String("op", "synth"),
			zap.String("channel", benchmark.Channel),
			zap.Float64("maxSpend", benchmark.MaxSpend),
			zap.Float64("roiAtMax", benchmark.ROIAtMax()),
		)
	}

	if *channelsOut != "" {
		snippet, err := synth.ChannelsYAML(benchmarks)
		if err != nil {
			logger.Fatal("failed to render channels snippet",
				zap.String("op", "synth"),
				zap.Error(err),
			)
		}
		if err := os.WriteFile(*channelsOut, snippet, 0644); err != nil {
			logger.Fatal("failed to write channels snippet",
				zap.String("op", "synth"),
				zap.Error(err),
			)
		}
		logger.Info("wrote channels snippet",
			zap.String("op", "synth"),
			zap.String("path", *channelsOut),
		)
	}
}

func printUsage() {
	fmt.Printf("usage: budget-allocator <command> [flags]\n\n")
	fmt.Printf("commands:\n")
	fmt.Printf("  solve    compute the optimal budget allocation for the configured channels\n")
	fmt.Printf("  synth    generate synthetic channel benchmarks\n\n")
	fmt.Printf("run 'budget-allocator <command> -h' for the command's flags\n")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "solve":
		runSolve(os.Args[2:])
	case "synth":
		runSynth(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}
