package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [symbol]",
	Short: "Show volatility history coverage",
	Long: `Shows how much IV history the store holds per symbol.

Symbols below the configured minimum history produce downgraded
(STRUCTURALLY_READY at best) results until their history matures, so
coverage is the first thing to check when ready rates look low.

Example:
  go run ./cmd/screener status
  go run ./cmd/screener status AAPL`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Volatility history coverage ===")

	ctx := cmd.Context()

	cfg, log, err := initDeps()
	if err != nil {
		return err
	}

	strategy, _, err := loadStrategy()
	if err != nil {
		return err
	}
	minDays := strategy.Volatility.MinHistoryDays

	store, closeStore, err := openHistoryStore(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer closeStore()

	symbols := args
	if len(symbols) == 0 {
		symbols, err = store.Symbols(ctx)
		if err != nil {
			return fmt.Errorf("list symbols: %w", err)
		}
	}

	if len(symbols) == 0 {
		fmt.Println("\nHistory store is empty. Run 'ingest' first.")
		return nil
	}

	fmt.Printf("\n%-10s %8s %12s %12s  %s\n", "SYMBOL", "DAYS", "EARLIEST", "LATEST", "STATUS")
	mature := 0
	for _, symbol := range symbols {
		coverage, err := store.Coverage(ctx, symbol)
		if err != nil {
			return fmt.Errorf("coverage for %s: %w", symbol, err)
		}
		if coverage.ObservationCount == 0 {
			fmt.Printf("%-10s %8d %12s %12s  no history\n", symbol, 0, "-", "-")
			continue
		}

		status := fmt.Sprintf("maturing, ~%d days to go", minDays-coverage.ObservationCount)
		if coverage.ObservationCount >= minDays {
			status = "mature"
			mature++
		}
		fmt.Printf("%-10s %8d %12s %12s  %s\n",
			symbol,
			coverage.ObservationCount,
			coverage.EarliestDate.Format("2006-01-02"),
			coverage.LatestDate.Format("2006-01-02"),
			status,
		)
	}

	fmt.Printf("\n%d of %d symbols mature (min %d days)\n", mature, len(symbols), minDays)
	return nil
}
