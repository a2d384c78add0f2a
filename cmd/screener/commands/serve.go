package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/seolwon/ivscreen/internal/api"
	"github.com/seolwon/ivscreen/internal/api/handlers"
	"github.com/seolwon/ivscreen/internal/pipeline"
	"github.com/seolwon/ivscreen/pkg/database"
	"github.com/seolwon/ivscreen/pkg/redis"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the results API server",
	Long: `Starts the REST API server over persisted run results.

Endpoints:
  GET /health
  GET /metrics
  GET /api/runs/latest
  GET /api/runs/{run_id}
  GET /api/runs/{run_id}/results
  GET /api/runs/{run_id}/selections
  GET /api/coverage
  GET /api/coverage/{symbol}

Example:
  go run ./cmd/screener serve
  go run ./cmd/screener serve --port 8090`,
	RunE: runServe,
}

var (
	servePort      string
	serveRateLimit int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "override listen port")
	serveCmd.Flags().IntVar(&serveRateLimit, "rate-limit", 60, "API requests per minute per client")
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Println("=== ivscreen API server ===")

	ctx := cmd.Context()

	cfg, log, err := initDeps()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Port = servePort
	}

	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing API server")

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	store, closeStore, err := openHistoryStore(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer closeStore()

	repo := pipeline.NewPostgresRunRepository(db.Pool)

	var cache *redis.Cache
	var limiter *redis.RateLimiter
	redisClient, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, caching and rate limiting disabled")
	} else {
		defer redisClient.Close()
		cache = redis.NewCache(redisClient, "ivscreen")
		limiter = redis.NewRateLimiter(redisClient, "ratelimit", serveRateLimit, time.Minute)
	}

	runHandler := handlers.NewRunHandler(repo, cache, log)
	coverageHandler := handlers.NewCoverageHandler(store, log)

	router := api.NewRouter(runHandler, coverageHandler, api.RouterOptions{
		Limiter: limiter,
		Metrics: cfg.MetricsEnabled,
	}, log)

	server := api.New(cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started")
	fmt.Printf("\nServer running on http://localhost:%s\n", cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
