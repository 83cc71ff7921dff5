package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/hmuraoka/kabuto/internal/calendar"
	"github.com/hmuraoka/kabuto/internal/pipeline"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "デイリーパイプライン実行",
	Long: `6段パイプラインを1回実行します。

features → model → gates → watchlist → decision → notify

各段:
- features:  日足から特徴量テーブルを構築
- model:     リッジ回帰で翌営業日ホライズンを学習
- gates:     品質ゲート6種を評価 (fail-closed)
- watchlist: 回転制約つきで銘柄リストを更新
- decision:  決定カードと成果物一式を書き出し
- notify:    Webhook 通知 (失敗時はディスクにフォールバック)

Example:
  go run ./cmd/kabuto run
  go run ./cmd/kabuto run --as-of 2025-03-07
  go run ./cmd/kabuto run --demo --out ./artifacts`,
	RunE: runPipeline,
}

var (
	// Flags
	runAsOf     string
	runRefresh  bool
	runDemo     bool
	runOut      string
	runLookback int
)

func init() {
	rootCmd.AddCommand(runCmd)

	// Flags
	runCmd.Flags().StringVar(&runAsOf, "as-of", "", "入力ウィンドウの終端 (YYYY-MM-DD, 既定: 今日)")
	runCmd.Flags().BoolVar(&runRefresh, "refresh", true, "実行前にベンダーの末尾をストアへ取り込む")
	runCmd.Flags().BoolVar(&runDemo, "demo", false, "決定的なデモデータで実行 (DB・認証不要)")
	runCmd.Flags().StringVar(&runOut, "out", "", "成果物の出力先 (既定: OUTPUT_DIR)")
	runCmd.Flags().IntVar(&runLookback, "lookback", 0, "参照する日足履歴の日数 (既定: 365)")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	fmt.Println("=== kabuto Daily Pipeline ===")

	asOf, err := parseAsOf(runAsOf)
	if err != nil {
		return err
	}

	deps, err := initDeps(cmd.Context(), depsOptions{
		demo:     runDemo,
		useStore: !runDemo,
		outDir:   runOut,
	})
	if err != nil {
		return err
	}
	defer deps.Close()

	if runLookback > 0 {
		deps.runner.WithLookback(runLookback)
	}

	if !asOf.IsZero() {
		fmt.Printf("\n📅 As of: %s\n", asOf.Format("2006-01-02"))
	}
	fmt.Printf("🔧 Demo: %v, Refresh: %v\n\n", runDemo, runRefresh)

	result, err := deps.runner.Run(cmd.Context(), pipeline.RunOptions{
		AsOf:    asOf,
		Refresh: runRefresh,
	})
	if err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}

	printRunResult(result)
	return nil
}

// parseAsOf interprets the flag as end of that day in JST, so the
// day's own bars fall inside the window.
func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	day, err := time.ParseInLocation("2006-01-02", s, calendar.JST)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of date: %w", err)
	}
	return day.Add(23*time.Hour + 59*time.Minute), nil
}

func printRunResult(result *pipeline.RunResult) {
	fmt.Println("\n✅ Pipeline Run Completed")
	fmt.Println()

	// Summary
	fmt.Printf("Run ID: %s\n", result.RunID)
	fmt.Printf("Trade Date: %s\n", result.TradeDate)
	fmt.Printf("Action: %s\n", result.Action)
	fmt.Printf("Duration: %.2fs\n", result.Duration.Seconds())
	fmt.Println()

	// Stages
	fmt.Println("Completed Stages:")
	for _, stage := range result.CompletedStages {
		fmt.Printf("  ✅ %s\n", stage)
	}
	fmt.Println()

	// Results
	if result.Table != nil {
		fmt.Printf("Features: %d rows\n", len(result.Table.Rows))
	}
	if result.Model != nil {
		fmt.Printf("Model: %s on %d rows (train IC %.4f)\n",
			result.Model.Type, result.Model.TrainRows, result.Model.TrainIC)
	}
	if result.Report != nil {
		if result.Report.AllPassed {
			fmt.Println("Gates: all passed")
		} else {
			fmt.Printf("Gates: %d rejection reasons\n", len(result.Report.Reasons))
			for _, reason := range result.Report.Reasons {
				fmt.Printf("  ❌ %s\n", reason)
			}
		}
	}
	if len(result.Watchlist) > 0 {
		fmt.Printf("Watchlist: %d entries (top: %s, score: %.4f)\n",
			len(result.Watchlist),
			result.Watchlist[0].Code,
			result.Watchlist[0].Score)
	}

	if len(result.Paths) > 0 {
		fmt.Println("\nArtifacts:")
		names := make([]string, 0, len(result.Paths))
		for name := range result.Paths {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-15s %s\n", name, result.Paths[name])
		}
	}

	if result.Delivered {
		fmt.Println("\nNotification: delivered")
	} else {
		fmt.Println("\nNotification: fallback written")
	}
}
