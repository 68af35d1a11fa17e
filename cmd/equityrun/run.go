package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/equityrun/equityrun/internal/config"
	"github.com/equityrun/equityrun/internal/engine"
	httpiface "github.com/equityrun/equityrun/internal/interfaces/http"
	"github.com/equityrun/equityrun/internal/interfaces/output"
	"github.com/equityrun/equityrun/internal/market"
	"github.com/equityrun/equityrun/internal/persistence"
	"github.com/equityrun/equityrun/internal/persistence/postgres"
	"github.com/equityrun/equityrun/internal/schedule"
)

// loadConfig reads a config file when given, otherwise defaults, then
// applies flag overrides. Config problems are fatal before anything
// else starts.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if symbols, _ := cmd.Flags().GetStringSlice("symbols"); len(symbols) > 0 {
		cfg.Symbols = symbols
	}
	if period, _ := cmd.Flags().GetString("period"); period != "" {
		cfg.Period = period
	}
	if interval, _ := cmd.Flags().GetString("interval"); interval != "" {
		cfg.Interval = interval
	}
	if cash, _ := cmd.Flags().GetFloat64("cash"); cash > 0 {
		cfg.StartCash = cash
	}
	if bps, _ := cmd.Flags().GetFloat64("commission-bps"); bps >= 0 {
		cfg.Broker.CommissionBps = bps
	}
	if bps, _ := cmd.Flags().GetFloat64("slippage-bps"); bps >= 0 {
		cfg.Broker.SlippageBps = bps
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", errs[0])
	}
	return cfg, nil
}

// openRepository connects Postgres when a DSN is configured, otherwise
// falls back to the in-memory store. A failed Postgres init is fatal.
func openRepository(ctx context.Context, cfg *config.Config) (persistence.Repository, error) {
	if cfg.Database.DSN == "" {
		log.Info().Msg("No database configured, using in-memory persistence")
		return persistence.NewMemoryRepository(), nil
	}
	repo, err := postgres.Connect(ctx, cfg.Database.DSN, cfg.Database.Timeout)
	if err != nil {
		return nil, fmt.Errorf("persistence init: %w", err)
	}
	return repo, nil
}

// buildProvider assembles the market data path: synthetic source,
// resilience guards, and the optional Redis quote cache.
func buildProvider(cfg *config.Config) market.SnapshotProvider {
	base := market.NewSyntheticProvider(90, 24*time.Hour)

	var provider market.SnapshotProvider = market.NewGuardedProvider(base, market.DefaultGuardConfig())

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		provider = market.NewQuoteCache(provider, rdb, cfg.Redis.QuoteTTL)
	}
	return provider
}

func runPaper(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	metrics := httpiface.NewMetricsRegistry()
	var recorder engine.Recorder = metrics
	if ui, _ := cmd.Flags().GetBool("ui"); ui && isTTY() {
		printBanner()
		recorder = newStatusLine(metrics, os.Stdout)
	}
	opts := []engine.Option{engine.WithRecorder(recorder)}

	if cfg.Stream.URL != "" {
		qs := market.NewQuoteStream(cfg.Stream.URL, cfg.Symbols)
		go func() {
			if err := qs.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Quote stream terminated")
			}
		}()
		opts = append(opts, engine.WithStream(qs))
	}

	eng, err := engine.New(cfg, buildProvider(cfg), repo, opts...)
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}

	if cfg.HTTP.Addr != "" {
		server := httpiface.NewServer(cfg.HTTP.Addr, metrics)
		go func() {
			if err := server.Start(); err != nil {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	iterations, _ := cmd.Flags().GetInt("iterations")

	log.Info().Strs("symbols", cfg.Symbols).Int("iterations", iterations).Msg("Starting paper trading")
	if err := eng.Run(ctx, iterations); err != nil && ctx.Err() == nil {
		return fmt.Errorf("paper run: %w", err)
	}

	if err := exportArtifacts(context.Background(), cmd, cfg, eng, repo); err != nil {
		return err
	}
	return printReport(context.Background(), eng)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Backtests never touch external services
	cfg.Redis.Addr = ""
	cfg.Stream.URL = ""

	iterations, _ := cmd.Flags().GetInt("iterations")
	if iterations <= 0 {
		iterations = 250
	}

	ctx := context.Background()
	repo := persistence.NewMemoryRepository()

	synthetic := market.NewSyntheticProvider(90, 24*time.Hour)
	sched := schedule.New(schedule.Config{BarInterval: time.Nanosecond, MarketHoursOnly: false})

	opts := []engine.Option{engine.WithSchedule(sched)}
	if ui, _ := cmd.Flags().GetBool("ui"); ui && isTTY() {
		printBanner()
		opts = append(opts, engine.WithRecorder(newStatusLine(nil, os.Stdout)))
	}

	eng, err := engine.New(cfg, synthetic, repo, opts...)
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}

	log.Info().Strs("symbols", cfg.Symbols).Int("iterations", iterations).Msg("Starting backtest")
	for i := 0; i < iterations; i++ {
		if err := eng.Step(ctx); err != nil {
			return fmt.Errorf("backtest step %d: %w", i+1, err)
		}
		synthetic.Advance()
	}

	if err := exportArtifacts(ctx, cmd, cfg, eng, repo); err != nil {
		return err
	}
	return printReport(ctx, eng)
}

// exportArtifacts writes run outputs to --export-dir when one is given
func exportArtifacts(ctx context.Context, cmd *cobra.Command, cfg *config.Config, eng *engine.Engine, repo persistence.Repository) error {
	dir, _ := cmd.Flags().GetString("export-dir")
	if dir == "" {
		return nil
	}

	emitter, err := output.NewEmitter(dir)
	if err != nil {
		return err
	}

	fills, err := repo.ListFills(ctx, persistence.TimeRange{})
	if err != nil {
		return fmt.Errorf("list fills for export: %w", err)
	}
	if err := emitter.EmitFillsCSV(fills); err != nil {
		return err
	}

	var decisions []persistence.StrategyDecisionEvent
	for _, symbol := range cfg.Symbols {
		ds, err := repo.ListDecisions(ctx, symbol, persistence.TimeRange{})
		if err != nil {
			return fmt.Errorf("list decisions for export: %w", err)
		}
		decisions = append(decisions, ds...)
	}
	if err := emitter.EmitDecisionsJSON(decisions); err != nil {
		return err
	}

	report, err := eng.BuildReport(ctx)
	if err != nil {
		return fmt.Errorf("build report for export: %w", err)
	}
	if err := emitter.EmitReportJSON(report); err != nil {
		return err
	}

	log.Info().Str("dir", dir).Int("fills", len(fills)).Int("decisions", len(decisions)).
		Msg("Run artifacts exported")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	printBanner()
	fmt.Printf("Symbols:      %v\n", cfg.Symbols)
	fmt.Printf("Start cash:   %.2f\n", cfg.StartCash)
	fmt.Printf("Period:       %s @ %s\n", cfg.Period, cfg.Interval)
	fmt.Printf("Commission:   %.1f bps (min fee %.2f)\n", cfg.Broker.CommissionBps, cfg.Broker.MinFee)
	fmt.Printf("Slippage:     %.1f bps\n", cfg.Broker.SlippageBps)
	fmt.Printf("Database:     %s\n", orDefault(cfg.Database.DSN, "in-memory"))
	fmt.Printf("Redis:        %s\n", orDefault(cfg.Redis.Addr, "disabled"))
	fmt.Printf("HTTP:         %s\n", orDefault(cfg.HTTP.Addr, "disabled"))
	fmt.Printf("Market open:  %v\n", schedule.IsMarketOpen(time.Now()))
	return nil
}

func printReport(ctx context.Context, eng *engine.Engine) error {
	report, err := eng.BuildReport(ctx)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	fmt.Print(report.String())
	return nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
