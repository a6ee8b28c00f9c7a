package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/vsinha/mes/pkg/interfaces/cli/commands"
)

type command interface {
	Execute(ctx context.Context) error
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: mes <simulate|run> [flags], see mes <command> -help")
		os.Exit(2)
	}
	name := os.Args[1]

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	var (
		scenarioDir = fs.String("scenario", "", "Path to scenario directory containing CSV files")
		configFile  = fs.String("config", "", "YAML configuration file")
		envFile     = fs.String("env", "", ".env file with MES_* overrides")
		product     = fs.String("product", "", "Product to simulate or produce")
		quantity    = fs.String("quantity", "1", "Quantity to simulate or produce")
		currency    = fs.String("currency", "", "Costing currency")
		facility    = fs.String("facility", "", "Facility of the run and its stock")
		routing     = fs.String("routing", "", "Routing applied to the run")
		reserve     = fs.Bool("reserve", false, "Reserve materials before issuing them")
		declare     = fs.String("declare", "", "Finished goods declared out of a WIP run, e.g. PANEL-A=3,PANEL-B=2")
		metricsFile = fs.String("metrics-file", "", "Write Prometheus metrics to a text file after the run")
		outputDir   = fs.String("output", "", "Output directory for results (optional)")
		format      = fs.String("format", "text", "Output format: text, json")
		verbose     = fs.Bool("verbose", false, "Enable verbose output")
		help        = fs.Bool("help", false, "Show help message")
	)
	_ = fs.Parse(os.Args[2:])

	config := commands.Config{
		ScenarioDir: *scenarioDir,
		ConfigFile:  *configFile,
		EnvFile:     *envFile,
		Product:     *product,
		Quantity:    *quantity,
		Currency:    *currency,
		Facility:    *facility,
		Routing:     *routing,
		Reserve:     *reserve,
		Declare:     *declare,
		MetricsFile: *metricsFile,
		OutputDir:   *outputDir,
		Format:      *format,
		Verbose:     *verbose,
		Help:        *help,
	}

	var cmd command
	switch name {
	case "simulate":
		cmd = commands.NewSimulateCommand(config)
	case "run":
		cmd = commands.NewRunCommand(config)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q, expected simulate or run\n", name)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
