package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	logsetup "github.com/equityrun/equityrun/internal/log"
)

const (
	appName = "EquityRun"
	version = "v1.2.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "equityrun",
		Short:   "Ensemble paper-trading engine for equities",
		Version: version,
		Long: `EquityRun simulates automated equity trading: it blends breakout,
mean-reversion, and momentum signals with regime-aware adaptive
weighting, sizes trades against volatility and risk limits, and
executes them through a simulated broker with realistic fills.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, _ := cmd.Flags().GetString("log-level")
			logFile, _ := cmd.Flags().GetString("log-file")
			logsetup.Setup(level, logFile)
		},
	}

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-file", "", "Rotated log file path (empty = console only)")

	paperCmd := &cobra.Command{
		Use:   "paper",
		Short: "Run the live paper-trading loop",
		Long:  "Steps the decision-and-execution loop on the configured bar interval during market hours",
		RunE:  runPaper,
	}

	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run the engine over synthetic history with no sleeps",
		RunE:  runBacktest,
	}

	for _, cmd := range []*cobra.Command{paperCmd, backtestCmd} {
		cmd.Flags().String("config", "", "Path to YAML config (empty = defaults)")
		cmd.Flags().StringSlice("symbols", nil, "Symbol list override")
		cmd.Flags().String("period", "", "History period override (e.g. 3mo)")
		cmd.Flags().String("interval", "", "Bar interval override (e.g. 1d)")
		cmd.Flags().Float64("cash", 0, "Starting cash override")
		cmd.Flags().Float64("commission-bps", -1, "Commission in basis points override")
		cmd.Flags().Float64("slippage-bps", -1, "Slippage in basis points override")
		cmd.Flags().Int("iterations", 0, "Number of steps to run (0 = until interrupted)")
		cmd.Flags().Bool("ui", false, "Print a per-step status line to stdout")
		cmd.Flags().String("export-dir", "", "Write fills.csv, decisions.json, and report.json here after the run")
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show effective configuration and environment",
		RunE:  runStatus,
	}
	statusCmd.Flags().String("config", "", "Path to YAML config (empty = defaults)")

	rootCmd.AddCommand(paperCmd)
	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(statusCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// isTTY reports whether stdout is attached to a terminal, used to
// decide whether the --ui status line makes sense.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func printBanner() {
	fmt.Printf("%s %s\n", appName, version)
}
