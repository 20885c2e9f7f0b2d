package cmd

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/config"
	"github.com/rustyeddy/fract/journal"
)

var infoCmd = &cobra.Command{
	Use:   "info {account|instruments|prices|positions|transactions|journal}",
	Short: "Print broker or journal state as YAML",
	Long: `Print one view of the account as YAML.

Examples:
  fract info account
  fract info prices
  fract info transactions --count 20
  fract info journal`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"account", "instruments", "prices", "positions", "transactions", "journal"},
	RunE:      runInfo,
}

var infoCount int

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().IntVar(&infoCount, "count", 10, "number of recent transactions to print")
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if args[0] == "journal" {
		v, err := journalInfo(cfg)
		if err != nil {
			return err
		}
		return printYAML(cmd, v)
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Loop.Timeout.Duration)
	defer cancel()

	v, err := brokerInfo(ctx, client, cfg, args[0], infoCount)
	if err != nil {
		return err
	}
	return printYAML(cmd, v)
}

func brokerInfo(ctx context.Context, client broker.Client, cfg *config.Config, target string, count int) (any, error) {
	id := cfg.OANDA.AccountID
	switch target {
	case "account":
		acct, err := client.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		acct.Positions = nil
		return acct, nil
	case "positions":
		acct, err := client.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		return acct.Positions, nil
	case "instruments":
		return client.GetInstruments(ctx, id)
	case "prices":
		rates, err := client.GetPricing(ctx, id, cfg.Instruments)
		if err != nil {
			return nil, err
		}
		sort.Slice(rates, func(i, j int) bool { return rates[i].Instrument < rates[j].Instrument })
		return rates, nil
	case "transactions":
		acct, err := client.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		last, err := strconv.Atoi(acct.LastTransactionID)
		if err != nil {
			return nil, fmt.Errorf("last transaction id %q: %w", acct.LastTransactionID, err)
		}
		since := max(last-count, 0)
		txns, _, err := client.GetTransactionsSince(ctx, id, strconv.Itoa(since))
		if err != nil {
			return nil, err
		}
		return txns, nil
	}
	return nil, fmt.Errorf("unknown info target %q", target)
}

type journalSummary struct {
	RealizedPL   map[string]float64 `yaml:"realized_pl"`
	Total        float64            `yaml:"total"`
	Transactions int                `yaml:"transactions_24h"`
}

func journalInfo(cfg *config.Config) (journalSummary, error) {
	if cfg.Journal.DBPath == "" {
		return journalSummary{}, &config.ConfigurationError{Field: "journal.db_path", Msg: "not set"}
	}
	db, err := journal.NewSQLite(cfg.Journal.DBPath)
	if err != nil {
		return journalSummary{}, err
	}
	defer db.Close()

	pl, err := db.RealizedPL()
	if err != nil {
		return journalSummary{}, err
	}
	var s journalSummary
	s.RealizedPL = pl
	for _, v := range pl {
		s.Total += v
	}
	end := time.Now()
	recent, err := db.ListTransactionsBetween("", end.Add(-24*time.Hour), end)
	if err != nil {
		return journalSummary{}, err
	}
	s.Transactions = len(recent)
	return s, nil
}

func printYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
