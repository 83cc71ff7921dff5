package commands

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hmuraoka/kabuto/internal/scheduler"
	"github.com/hmuraoka/kabuto/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "スケジューラ管理",
	Long: `スケジューラを起動するかジョブを管理します。

Subcommands:
  start   - スケジューラ起動 (デーモン)
  list    - 登録ジョブの一覧
  run     - 指定ジョブの即時実行
  status  - ジョブ実行統計

Example:
  go run ./cmd/kabuto scheduler start
  go run ./cmd/kabuto scheduler list
  go run ./cmd/kabuto scheduler run daily_pipeline`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "スケジューラ起動",
		Long: `スケジューラを起動し、登録ジョブをスケジュールします。

登録されるジョブ:
- ingest:         平日 17:45 JST (ストアの事前ウォームアップ)
- daily_pipeline: 平日 18:30 JST (ベンダーの日足確定後)
- artifact_gc:    土曜 04:00 JST (古い成果物ディレクトリの削除)

Ctrl+C で終了します。`,
		RunE: runSchedulerStart,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "登録ジョブの一覧",
		RunE:  runSchedulerList,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "指定ジョブの即時実行",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchedulerJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "ジョブ実行統計",
		RunE:  runSchedulerStatus,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)
}

func runSchedulerStart(cmd *cobra.Command, args []string) error {
	fmt.Println("=== kabuto Scheduler ===")

	sched, deps, err := initScheduler(cmd)
	if err != nil {
		return err
	}
	defer deps.Close()

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, name := range sched.Jobs() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func runSchedulerList(cmd *cobra.Command, args []string) error {
	sched, deps, err := initScheduler(cmd)
	if err != nil {
		return err
	}
	defer deps.Close()

	fmt.Println("Registered jobs:")
	for _, name := range sched.Jobs() {
		fmt.Printf("  - %s\n", name)
	}
	return nil
}

func runSchedulerJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	fmt.Printf("Running job: %s\n", jobName)

	sched, deps, err := initScheduler(cmd)
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := sched.RunNow(jobName); err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	// RunNow is asynchronous; a fresh process has an empty history, so
	// the first recorded result is this invocation.
	for {
		time.Sleep(500 * time.Millisecond)
		h, err := sched.JobHistory(jobName)
		if err != nil {
			return err
		}
		last, ok := h.Last()
		if !ok {
			continue
		}
		if !last.Success {
			return fmt.Errorf("job %s failed after %d attempts: %s", jobName, last.Attempts, last.Error)
		}
		fmt.Printf("\n✅ Job completed in %.1fs (%d attempts)\n", last.Duration.Seconds(), last.Attempts)
		return nil
	}
}

func runSchedulerStatus(cmd *cobra.Command, args []string) error {
	sched, deps, err := initScheduler(cmd)
	if err != nil {
		return err
	}
	defer deps.Close()

	stats := sched.Stats()

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Job Statistics:")
	fmt.Println()

	for _, name := range names {
		stat := stats[name]
		fmt.Printf("📊 %s\n", name)
		fmt.Printf("   Schedule: %s\n", stat.Schedule)
		fmt.Printf("   Runs: %d\n", stat.Runs)
		fmt.Printf("   Failures: %d (success %.1f%%)\n", stat.Failures, stat.SuccessRate*100)

		if stat.LastRun != nil {
			fmt.Printf("   Last Run: %s\n", stat.LastRun.Format("2006-01-02 15:04:05"))
		}
		if stat.LastError != "" {
			fmt.Printf("   Last Error: %s\n", stat.LastError)
		}
		fmt.Println()
	}
	return nil
}

// initScheduler wires a scheduler with the standing jobs.
func initScheduler(cmd *cobra.Command) (*scheduler.Scheduler, *appDeps, error) {
	deps, err := initDeps(cmd.Context(), depsOptions{useStore: true})
	if err != nil {
		return nil, nil, err
	}

	sched := scheduler.New(deps.log)
	if err := sched.Add(jobs.NewIngestJob(deps.runner, deps.log)); err != nil {
		deps.Close()
		return nil, nil, fmt.Errorf("register ingest job: %w", err)
	}
	if err := sched.Add(jobs.NewDailyPipelineJob(deps.runner, deps.cfg.Scheduler.CronSpec, deps.log)); err != nil {
		deps.Close()
		return nil, nil, fmt.Errorf("register daily job: %w", err)
	}
	if err := sched.Add(jobs.NewArtifactGCJob(deps.cfg.OutputDir, 0, deps.log)); err != nil {
		deps.Close()
		return nil, nil, fmt.Errorf("register gc job: %w", err)
	}
	return sched, deps, nil
}
