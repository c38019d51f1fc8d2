package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgnernvsinjsbt/futurebot/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage futurebot configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  futurebot config init --output futurebot.yaml
  futurebot config validate --file futurebot.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "futurebot.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	_ = configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("created default configuration: %s\n", configInitOutput)
	fmt.Println("add your API credentials, then:")
	fmt.Printf("  futurebot run --config %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("configuration valid: %s\n", configValidatePath)
	fmt.Printf("  exchange: %s\n", cfg.Exchange.BaseURL)
	fmt.Printf("  symbols: %v (leverage %dx, risk %.2f%%)\n",
		cfg.Trading.Symbols, cfg.Trading.Leverage, cfg.Trading.RiskPercent*100)
	fmt.Printf("  timeframes: %s base, %v\n", cfg.Trading.BaseInterval, cfg.Trading.Timeframes)
	fmt.Printf("  journal: %s\n", cfg.Journal.Type)
	return nil
}
