package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/execution"
	"github.com/rustyeddy/fract/journal"
)

var closeCmd = &cobra.Command{
	Use:   "close [instrument...]",
	Short: "Close open positions",
	Long: `Close the positions on the given instruments, or every open position when
no instrument is given.

Examples:
  fract close
  fract close EUR_USD`,
	RunE: runClose,
}

var (
	closeDryRun bool
	closeLogDir string
)

func init() {
	rootCmd.AddCommand(closeCmd)

	closeCmd.Flags().BoolVar(&closeDryRun, "dry-run", false, "log the closes without sending them")
	closeCmd.Flags().StringVar(&closeLogDir, "log-dir", "", "directory for order.jsonl")
}

// closeTargets picks the positions to close; empty names selects all.
func closeTargets(positions []broker.Position, names []string) []broker.Position {
	if len(names) == 0 {
		return positions
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []broker.Position
	for _, p := range positions {
		if want[p.Instrument] {
			out = append(out, p)
		}
	}
	return out
}

func runClose(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if closeLogDir != "" {
		cfg.Log.Dir = closeLogDir
	}
	log := newLogger(cfg, os.Stderr)
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	return closePositions(cmd, client, args, execution.Options{
		AccountID: cfg.OANDA.AccountID,
		Limits:    cfg.Position.LimitPriceRatio,
		Timeout:   cfg.Loop.Timeout.Duration,
		DryRun:    closeDryRun,
		Logger:    log,
	}, cfg.Log.Dir)
}

func closePositions(cmd *cobra.Command, client broker.Client, names []string, opts execution.Options, logDir string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if logDir != "" {
		j, err := journal.NewFiles(logDir)
		if err != nil {
			return err
		}
		defer j.Close()
		opts.Log = j
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	acct, err := client.GetAccount(cctx, opts.AccountID)
	cancel()
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}

	targets := closeTargets(acct.Positions, names)
	if len(targets) == 0 {
		printf(cmd, "No open positions to close\n")
		return nil
	}

	ex := execution.New(client, opts)
	var failed int
	for _, p := range targets {
		res, err := ex.Close(ctx, p)
		if err != nil {
			failed++
			printf(cmd, "%-8s %s: %v\n", p.Instrument, p.Side, err)
			continue
		}
		if res.DryRun {
			printf(cmd, "%-8s %s: %.0f units (dry run)\n", p.Instrument, p.Side, p.Units)
			continue
		}
		printf(cmd, "%-8s %s: closed %.0f units at %g\n", p.Instrument, p.Side, -res.Response.Units, res.Response.Price)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d closes failed", failed, len(targets))
	}
	return nil
}
