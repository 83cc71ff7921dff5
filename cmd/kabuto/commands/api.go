package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hmuraoka/kabuto/internal/api"
	"github.com/hmuraoka/kabuto/internal/api/handlers"
	"github.com/hmuraoka/kabuto/internal/scheduler"
	"github.com/hmuraoka/kabuto/internal/scheduler/jobs"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API サーバ起動",
	Long: `成果物 API サーバを起動します。

Endpoints:
  GET  /health                         - Health check
  GET  /api/runs                       - 実行台帳 (新しい順)
  GET  /api/runs/{trade_date}          - 決定カード
  GET  /api/runs/{trade_date}/quality  - 品質レポート
  GET  /api/watchlist/{trade_date}     - ウォッチリスト
  GET  /api/live                       - 進捗イベント (websocket)

--with-scheduler をつけるとデイリーパイプラインを同一プロセスで
スケジュールし、その進捗が /api/live に流れます。

Example:
  go run ./cmd/kabuto api
  go run ./cmd/kabuto api --port 8080 --with-scheduler`,
	RunE: runAPIServer,
}

var (
	// Flags
	apiPort          string
	apiWithScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API サーバのポート (既定: PORT)")
	apiCmd.Flags().BoolVar(&apiWithScheduler, "with-scheduler", false, "スケジューラを同一プロセスで起動")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== kabuto API Server ===")

	deps, err := initDeps(cmd.Context(), depsOptions{useStore: true})
	if err != nil {
		return err
	}
	defer deps.Close()

	cfg, log := deps.cfg, deps.log
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// Live progress hub
	hub := api.NewHub(log)

	// Handlers and router
	runsHandler := handlers.NewRunsHandler(deps.st.Runs, deps.st.Watchlists, log)
	router := api.NewRouter(runsHandler, hub, log)
	server := api.New(cfg, log, router)

	// Optional in-process scheduler, publishing to the hub
	var sched *scheduler.Scheduler
	if apiWithScheduler {
		deps.runner.WithProgress(hub)

		sched = scheduler.New(log)
		if err := sched.Add(jobs.NewIngestJob(deps.runner, log)); err != nil {
			return fmt.Errorf("register ingest job: %w", err)
		}
		if err := sched.Add(jobs.NewDailyPipelineJob(deps.runner, cfg.Scheduler.CronSpec, log)); err != nil {
			return fmt.Errorf("register daily job: %w", err)
		}
		if err := sched.Add(jobs.NewArtifactGCJob(cfg.OutputDir, 0, log)); err != nil {
			return fmt.Errorf("register gc job: %w", err)
		}
		sched.Start()
	}

	// Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /api/runs")
	fmt.Println("  GET  /api/runs/{trade_date}")
	fmt.Println("  GET  /api/runs/{trade_date}/quality")
	fmt.Println("  GET  /api/watchlist/{trade_date}")
	fmt.Println("  GET  /api/live (websocket)")
	if sched != nil {
		fmt.Println("\nScheduled jobs:")
		for _, name := range sched.Jobs() {
			fmt.Printf("  - %s\n", name)
		}
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	if sched != nil {
		sched.Stop()
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
