package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/seolwon/ivscreen/internal/contracts"
	"github.com/seolwon/ivscreen/internal/pipeline"
	"github.com/seolwon/ivscreen/internal/selection"
	"github.com/seolwon/ivscreen/internal/strategyconfig"
	"github.com/seolwon/ivscreen/pkg/database"
	"github.com/seolwon/ivscreen/pkg/metrics"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the screening pipeline once",
	Long: `Runs the full screening pipeline over a candidate snapshot.

Stages:
  S0  load and validate the snapshot
  S1  enrich candidates with IV percentile ranks
  S2  classify into acceptance statuses
  S3  select and size READY_NOW candidates

Account balance and snapshot path are required; there are no implicit
defaults for either.

Example:
  go run ./cmd/screener run --snapshot data/candidates.json --balance 100000
  go run ./cmd/screener run --snapshot data/candidates.json --balance 250000 --method kelly
  go run ./cmd/screener run --snapshot data/candidates.json --balance 100000 --memory --no-persist`,
	RunE: runScreening,
}

var (
	runSnapshot      string
	runBalance       float64
	runMethod        string
	runPortfolioRisk float64
	runAsOf          string
	runWorkers       int
	runMemory        bool
	runNoPersist     bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runSnapshot, "snapshot", "", "candidate snapshot file (required)")
	runCmd.Flags().Float64Var(&runBalance, "balance", 0, "account balance in dollars (required)")
	runCmd.Flags().StringVar(&runMethod, "method", string(contracts.SizingFixedFractional), "sizing method: fixed_fractional, kelly, volatility_scaled, equal_weight")
	runCmd.Flags().Float64Var(&runPortfolioRisk, "max-portfolio-risk", 0, "aggregate risk cap as a fraction of balance (default: strategy document value)")
	runCmd.Flags().StringVar(&runAsOf, "as-of", "", "evaluation date YYYY-MM-DD (default today UTC)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 4, "classification fan-out width")
	runCmd.Flags().BoolVar(&runMemory, "memory", false, "use in-process history store instead of ClickHouse")
	runCmd.Flags().BoolVar(&runNoPersist, "no-persist", false, "skip writing results to Postgres")
}

func runScreening(cmd *cobra.Command, args []string) error {
	fmt.Println("=== ivscreen pipeline run ===")

	if runSnapshot == "" {
		return fmt.Errorf("--snapshot is required")
	}
	if runBalance <= 0 {
		return fmt.Errorf("--balance is required and must be > 0")
	}

	asOf := time.Now().UTC()
	if runAsOf != "" {
		parsed, err := time.Parse("2006-01-02", runAsOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of date: %w", err)
		}
		asOf = parsed
	}

	ctx := cmd.Context()

	cfg, log, err := initDeps()
	if err != nil {
		return err
	}

	strategy, rawStrategy, err := loadStrategy()
	if err != nil {
		return err
	}

	store, closeStore, err := openHistoryStore(ctx, cfg, log, runMemory)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, classifier, err := buildEngines(store, strategy, log)
	if err != nil {
		return err
	}

	selector, err := selection.NewEngine(selectionConfig(strategy, runBalance, runMethod, runPortfolioRisk))
	if err != nil {
		return fmt.Errorf("selection engine: %w", err)
	}

	opts := pipeline.Options{Workers: runWorkers}
	if cfg.MetricsEnabled {
		opts.Recorder = metrics.New()
	}
	if !runNoPersist {
		db, err := database.New(cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		opts.Repo = pipeline.NewPostgresRunRepository(db.Pool)
	}

	orchestrator := pipeline.NewOrchestrator(
		pipeline.NewFileSnapshotLoader(log),
		engine,
		classifier,
		selector,
		opts,
		log,
	)

	result, err := orchestrator.Run(ctx, pipeline.RunConfig{
		SnapshotRef: runSnapshot,
		AsOf:        asOf,
	})
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	snapshot, err := strategyconfig.NewDecisionSnapshot(strategy, rawStrategy, result.RunID)
	if err != nil {
		return fmt.Errorf("decision snapshot: %w", err)
	}
	log.WithFields(map[string]interface{}{
		"run_id":      result.RunID,
		"config_hash": snapshot.ConfigHash,
		"strategy_id": snapshot.StrategyID,
	}).Info("Run configuration recorded")

	printRunResult(result, runBalance)
	return nil
}

func printRunResult(result *pipeline.RunResult, balance float64) {
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("                  RUN RESULT")
	fmt.Println(strings.Repeat("=", 50))

	fmt.Printf("Run ID:   %s\n", result.RunID)
	fmt.Printf("Duration: %s\n", result.Duration.Round(time.Millisecond))
	if result.Success {
		fmt.Println("Status:   COMPLETED")
	} else {
		fmt.Println("Status:   ABORTED")
	}

	fmt.Println("\nFunnel")
	fmt.Printf("  Candidates: %d (skipped %d)\n", result.Summary.CandidateCount, result.Summary.SkippedRecords)
	for _, status := range []contracts.Status{
		contracts.StatusReadyNow,
		contracts.StatusStructurallyReady,
		contracts.StatusWait,
		contracts.StatusAvoid,
		contracts.StatusIncomplete,
	} {
		if count := result.Summary.StatusCounts[status]; count > 0 {
			fmt.Printf("  %-20s %d\n", status, count)
		}
	}
	fmt.Printf("  Ready rate: %.1f%%\n", result.Summary.ReadyRate()*100)

	valid := result.Report.ValidSelections()
	fmt.Printf("\nSelections (%d sized, %d excluded)\n", len(valid), len(result.Report.Excluded))
	for _, s := range valid {
		fmt.Printf("  %-8s %-12s %3d contracts  $%10.2f  risk $%8.2f  weight %5.1f%%\n",
			s.Symbol, s.Family, s.ContractCount, s.DollarAllocation, s.MaxRisk, s.PortfolioWeight*100)
	}
	for _, s := range result.Report.Excluded {
		fmt.Printf("  %-8s excluded: %s\n", s.Symbol, s.ExclusionReason)
	}

	fmt.Printf("\nTotal allocation: $%.2f of $%.2f balance\n", result.Report.TotalAllocation(), balance)
	fmt.Printf("Total risk:       $%.2f\n", result.Report.TotalRisk())
}
