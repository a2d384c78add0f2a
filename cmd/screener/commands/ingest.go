package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seolwon/ivscreen/internal/ingest"
	"github.com/seolwon/ivscreen/pkg/httputil"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a volatility snapshot into the history store",
	Long: `Loads a daily volatility snapshot CSV into the history store.

Records are validated row by row: malformed rows are skipped and
counted, never written. Existing (symbol, date) observations are kept;
the store is append-only.

Example:
  go run ./cmd/screener ingest --file data/vol_snapshot.csv
  go run ./cmd/screener ingest --url https://vendor.example.com/iv/latest.csv
  go run ./cmd/screener ingest --file data/vol_snapshot.csv --memory`,
	RunE: runIngest,
}

var (
	ingestFile   string
	ingestURL    string
	ingestMemory bool
)

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "local snapshot CSV path")
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "remote snapshot CSV URL")
	ingestCmd.Flags().BoolVar(&ingestMemory, "memory", false, "use in-process history store (dry run)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	fmt.Println("=== ivscreen snapshot ingest ===")

	if (ingestFile == "") == (ingestURL == "") {
		return fmt.Errorf("exactly one of --file or --url is required")
	}

	ctx := cmd.Context()

	cfg, log, err := initDeps()
	if err != nil {
		return err
	}

	store, closeStore, err := openHistoryStore(ctx, cfg, log, ingestMemory)
	if err != nil {
		return err
	}
	defer closeStore()

	var report ingest.Report
	if ingestFile != "" {
		report, err = ingest.NewLoader(store, log).LoadFile(ctx, ingestFile)
	} else {
		client := httputil.New(log, cfg.Snapshot.RatePerSecond)
		report, err = ingest.NewFetcher(client, store, log).Fetch(ctx, ingestURL)
	}
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	fmt.Printf("\nRows read:     %d\n", report.RowsRead)
	fmt.Printf("Written:       %d\n", report.Written)
	fmt.Printf("Malformed:     %d\n", report.SkippedMalformed)
	fmt.Printf("Invalid:       %d\n", report.SkippedInvalid)
	fmt.Printf("Duplicates:    %d\n", report.SkippedDuplicates)
	return nil
}
