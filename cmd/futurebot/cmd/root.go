package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "futurebot",
	Short: "A crypto-futures trading client",
	Long: `Futurebot is a crypto-futures trading client.

It provides:
  - A signed, rate-limited REST client for the exchange API
  - Live multi-timeframe candle aggregation from the kline stream
  - A protected order executor (entry + stop-loss + take-profit)
  - A trade journal (SQLite or CSV)`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "futurebot.yaml", "config file path")
}
