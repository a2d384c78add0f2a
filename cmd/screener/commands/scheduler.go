package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/seolwon/ivscreen/internal/contracts"
	"github.com/seolwon/ivscreen/internal/ingest"
	"github.com/seolwon/ivscreen/internal/pipeline"
	"github.com/seolwon/ivscreen/internal/scheduler"
	"github.com/seolwon/ivscreen/internal/scheduler/jobs"
	"github.com/seolwon/ivscreen/internal/selection"
	"github.com/seolwon/ivscreen/pkg/database"
	"github.com/seolwon/ivscreen/pkg/httputil"
	"github.com/seolwon/ivscreen/pkg/metrics"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Scheduler management",
	Long: `Starts the scheduler daemon or manages registered jobs.

Registered jobs:
- daily_snapshot_ingest: weekdays 16:30 (pull the day's volatility snapshot)
- daily_screening:       weekdays 16:45 (run the screening pipeline)

Subcommands:
  start   - start the scheduler daemon
  list    - list registered jobs
  run     - run a job immediately

Example:
  go run ./cmd/screener scheduler start --snapshot data/candidates.json --balance 100000
  go run ./cmd/screener scheduler run daily_screening --snapshot data/candidates.json --balance 100000`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler daemon",
		Long: `Starts the scheduler and registers all jobs.

The ingest job is registered only when SNAPSHOT_BASE_URL is configured.
Stop with Ctrl+C; in-flight jobs are drained before exit.`,
		RunE: runSchedulerStart,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  runSchedulerList,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run a job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchedulerRunNow,
	}

	// Flags shared by start and run
	schedSnapshot      string
	schedBalance       float64
	schedMethod        string
	schedPortfolioRisk float64
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	for _, c := range []*cobra.Command{schedulerStartCmd, schedulerRunCmd} {
		c.Flags().StringVar(&schedSnapshot, "snapshot", "", "standing candidate snapshot location (required)")
		c.Flags().Float64Var(&schedBalance, "balance", 0, "account balance in dollars (required)")
		c.Flags().StringVar(&schedMethod, "method", string(contracts.SizingFixedFractional), "sizing method")
		c.Flags().Float64Var(&schedPortfolioRisk, "max-portfolio-risk", 0, "aggregate risk cap as a fraction of balance (default: strategy document value)")
	}
}

func runSchedulerStart(cmd *cobra.Command, args []string) error {
	fmt.Println("=== ivscreen scheduler ===")

	sched, cleanup, err := buildScheduler(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	sched.Start()
	fmt.Println("\nScheduler started. Registered jobs:")
	for _, name := range sched.Jobs() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("Stopping scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")
	return nil
}

func runSchedulerList(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Registered jobs ===")
	fmt.Println()
	fmt.Println("  daily_snapshot_ingest  weekdays 16:30  pull the day's volatility snapshot")
	fmt.Println("  daily_screening        weekdays 16:45  run the screening pipeline")
	return nil
}

func runSchedulerRunNow(cmd *cobra.Command, args []string) error {
	name := args[0]
	fmt.Printf("=== Running job %q ===\n", name)

	sched, cleanup, err := buildScheduler(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := sched.RunNow(name); err != nil {
		return err
	}

	// RunNow is asynchronous; poll the history for the result.
	deadline := time.Now().Add(35 * time.Minute)
	for time.Now().Before(deadline) {
		time.Sleep(2 * time.Second)
		history, err := sched.History(name)
		if err != nil {
			return err
		}
		latest, ok := history.Latest()
		if !ok {
			continue
		}
		if latest.Success {
			fmt.Printf("Job %q completed in %s (%d attempts)\n", name, latest.Duration.Round(time.Millisecond), latest.Attempts)
			return nil
		}
		return fmt.Errorf("job %q failed: %s", name, latest.Error)
	}
	return fmt.Errorf("job %q did not finish before deadline", name)
}

// buildScheduler assembles the scheduler with both daily jobs. The
// returned cleanup closes every opened connection.
func buildScheduler(cmd *cobra.Command) (*scheduler.Scheduler, func(), error) {
	if schedSnapshot == "" {
		return nil, nil, fmt.Errorf("--snapshot is required")
	}
	if schedBalance <= 0 {
		return nil, nil, fmt.Errorf("--balance is required and must be > 0")
	}

	ctx := cmd.Context()

	cfg, log, err := initDeps()
	if err != nil {
		return nil, nil, err
	}

	strategy, _, err := loadStrategy()
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := openHistoryStore(ctx, cfg, log, false)
	if err != nil {
		return nil, nil, err
	}

	engine, classifier, err := buildEngines(store, strategy, log)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	selector, err := selection.NewEngine(selectionConfig(strategy, schedBalance, schedMethod, schedPortfolioRisk))
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("selection engine: %w", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	opts := pipeline.Options{
		Repo:    pipeline.NewPostgresRunRepository(db.Pool),
		Workers: 4,
	}
	if cfg.MetricsEnabled {
		opts.Recorder = metrics.New()
	}

	orchestrator := pipeline.NewOrchestrator(
		pipeline.NewFileSnapshotLoader(log),
		engine,
		classifier,
		selector,
		opts,
		log,
	)

	sched := scheduler.New(log)

	if cfg.Snapshot.BaseURL != "" {
		client := httputil.New(log, cfg.Snapshot.RatePerSecond)
		fetcher := ingest.NewFetcher(client, store, log)
		if err := sched.AddJob(jobs.NewIngestJob(fetcher, cfg.Snapshot.BaseURL, log)); err != nil {
			closeStore()
			db.Close()
			return nil, nil, err
		}
	} else {
		log.Warn("SNAPSHOT_BASE_URL not set, ingest job not registered")
	}

	if err := sched.AddJob(jobs.NewScreeningJob(orchestrator, schedSnapshot, log)); err != nil {
		closeStore()
		db.Close()
		return nil, nil, err
	}

	cleanup := func() {
		db.Close()
		closeStore()
	}
	return sched, cleanup, nil
}
