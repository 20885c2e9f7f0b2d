package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/fract/broker"
	"github.com/rustyeddy/fract/broker/oanda"
	"github.com/rustyeddy/fract/config"
	"github.com/rustyeddy/fract/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "fract",
	Short: "Automated FX position manager for OANDA",
	Long: `fract watches FX prices over several resolutions, detects trends with an
exponentially weighted moving average and opens, holds, reverses or closes
positions on an OANDA v20 account.

Commands:
  init             write a default configuration file
  config validate  check a configuration file
  open             run the trading loop
  close            close open positions
  info             print account, instruments, prices, positions or transactions`,
	SilenceUsage: true,
}

var (
	configPath string
	logLevel   string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	def := os.Getenv("FRACT_YML")
	if def == "" {
		def = "fract.yml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "file", "f", def, "path to the YAML config [$FRACT_YML]")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	return logging.New(cfg.Log.Level, w)
}

func newClient(cfg *config.Config) (broker.Client, error) {
	if cfg.OANDA.Token == "" {
		return nil, &config.ConfigurationError{Field: "oanda.token", Msg: "missing; set it in the config or OANDA_TOKEN"}
	}
	if cfg.OANDA.AccountID == "" {
		return nil, &config.ConfigurationError{Field: "oanda.account_id", Msg: "missing; set it in the config or OANDA_ACCOUNT_ID"}
	}
	return oanda.NewClient(cfg.OANDA.Token, cfg.Practice()), nil
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
