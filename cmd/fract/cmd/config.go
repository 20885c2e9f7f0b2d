package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/fract/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Create a configuration file with default settings at --file.

Example:
  fract init -f fract.yml`,
	RunE: runInit,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration files",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Check that a configuration file loads and passes validation.

Example:
  fract config validate -f fract.yml`,
	RunE: runConfigValidate,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}
	if err := config.Default().SaveToFile(configPath); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	printf(cmd, "Created default configuration: %s\n", configPath)
	printf(cmd, "Set OANDA_TOKEN and OANDA_ACCOUNT_ID (or a .env file), then run:\n")
	printf(cmd, "  fract open -f %s\n", configPath)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	printf(cmd, "Configuration valid: %s\n", configPath)
	printf(cmd, "  Instruments: %v\n", cfg.Instruments)
	printf(cmd, "  Model: %s (alpha %.3g, band %.3g sigma)\n", cfg.Model.Name, cfg.Model.EWMA.Alpha, cfg.Model.EWMA.SigmaBand)
	printf(cmd, "  Feature: %s over %v\n", cfg.Feature.Type, cfg.Feature.Granularities)
	printf(cmd, "  Bet: %s x%.3g\n", cfg.Position.Bet, cfg.Position.BetMultiplier)
	return nil
}
