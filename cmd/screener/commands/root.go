package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	strategyPath string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "screener",
	Short: "ivscreen - option trade screening pipeline",
	Long: `ivscreen unified CLI

Volatility-aware option trade screening: snapshot load, IV percentile
enrichment, acceptance classification, and position sizing, with
invariant gates between every stage.

Usage:
  go run ./cmd/screener [command]

Examples:
  go run ./cmd/screener run --snapshot data/candidates.json --balance 100000
  go run ./cmd/screener ingest --file data/vol_snapshot.csv
  go run ./cmd/screener serve
  go run ./cmd/screener scheduler start`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&strategyPath, "strategy", "config/strategy/default.yaml", "strategy config YAML path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
