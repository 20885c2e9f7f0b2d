package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/broker/sim"
	"github.com/rustyeddy/fract/config"
	"github.com/rustyeddy/fract/journal"
	"github.com/rustyeddy/fract/metrics"
	"github.com/rustyeddy/fract/trader"
)

var openCmd = &cobra.Command{
	Use:   "open [instrument...]",
	Short: "Run the trading loop",
	Long: `Run the control loop on the configured instruments, or on the instruments
given as arguments.

Examples:
  fract open --dry-run
  fract open --paper --once EUR_USD USD_JPY
  fract open --log-dir ./log --metrics-addr :9090`,
	RunE: runOpen,
}

var (
	openDryRun       bool
	openQuiet        bool
	openLogDir       string
	openInterval     time.Duration
	openPaper        bool
	openPaperBalance float64
	openPaperCcy     string
	openOnce         bool
	openMetricsAddr  string
)

func init() {
	rootCmd.AddCommand(openCmd)

	f := openCmd.Flags()
	f.BoolVar(&openDryRun, "dry-run", false, "log orders without sending them")
	f.BoolVar(&openQuiet, "quiet", false, "log state lines instead of printing them")
	f.StringVar(&openLogDir, "log-dir", "", "directory for order.jsonl, txn.jsonl and parameter.yml")
	f.DurationVar(&openInterval, "interval", -1, "wait between cycles (overrides loop.interval)")
	f.BoolVar(&openPaper, "paper", false, "trade an in-memory paper account fed by live prices")
	f.Float64Var(&openPaperBalance, "paper-balance", 10000, "starting balance of the paper account")
	f.StringVar(&openPaperCcy, "paper-currency", "USD", "currency of the paper account")
	f.BoolVar(&openOnce, "once", false, "run a single cycle and exit")
	f.StringVar(&openMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics.addr)")
}

// parameters is what parameter.yml records for a run.
func parameters(cfg *config.Config) map[string]any {
	return map[string]any{
		"instruments": cfg.Instruments,
		"feature":     cfg.Feature,
		"model":       cfg.Model,
		"position":    cfg.Position,
	}
}

func applyOpenFlags(cmd *cobra.Command, cfg *config.Config, args []string) error {
	if len(args) > 0 {
		cfg.Instruments = args
	}
	if cmd.Flags().Changed("interval") {
		cfg.Loop.Interval = config.Duration{Duration: openInterval}
	}
	if openLogDir != "" {
		cfg.Log.Dir = openLogDir
	}
	if openQuiet {
		cfg.Log.Quiet = true
	}
	if openMetricsAddr != "" {
		cfg.Metrics.Addr = openMetricsAddr
	}
	return cfg.Validate()
}

func openJournal(cfg *config.Config) (journal.Journal, error) {
	var js journal.Multi
	if cfg.Log.Dir != "" {
		files, err := journal.NewFiles(cfg.Log.Dir)
		if err != nil {
			return nil, err
		}
		js = append(js, files)
		if err := journal.WriteParameters(cfg.Log.Dir, parameters(cfg)); err != nil {
			_ = js.Close()
			return nil, err
		}
	}
	if cfg.Journal.DBPath != "" {
		db, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			_ = js.Close()
			return nil, fmt.Errorf("open journal db: %w", err)
		}
		js = append(js, db)
	}
	if len(js) == 0 {
		return nil, nil
	}
	return js, nil
}

func runOpen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyOpenFlags(cmd, cfg, args); err != nil {
		return err
	}
	log := newLogger(cfg, os.Stderr)

	live, err := newClient(cfg)
	if err != nil {
		return err
	}
	var client broker.Client = live
	if openPaper {
		client = sim.NewEngine(cfg.OANDA.AccountID, openPaperCcy, openPaperBalance).WithFeed(live)
		log.Info().Float64("balance", openPaperBalance).Str("currency", openPaperCcy).Msg("paper trading")
	}

	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	if j != nil {
		defer j.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg, log); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	t, err := trader.New(client, cfg, trader.Options{
		DryRun:  openDryRun,
		Quiet:   cfg.Log.Quiet,
		Out:     cmd.OutOrStdout(),
		Logger:  log,
		Journal: j,
		Metrics: m,
	})
	if err != nil {
		return err
	}
	if err := t.Prepare(ctx); err != nil {
		return err
	}

	log.Info().Strs("instruments", cfg.Instruments).Bool("dry_run", openDryRun).Msg("starting")
	if openOnce {
		return t.RunOnce(ctx)
	}
	if err := t.RunForever(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		log.Info().Msg("shutdown")
	}
	return nil
}

