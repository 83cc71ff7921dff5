package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hmuraoka/kabuto/internal/calendar"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "ベンダーデータをストアへ取り込み",
	Long: `日足とイベントをベンダーから取得し Postgres に upsert します。

範囲の決め方:
- --from 省略時はストアの最新日+1から (空なら lookback 分)
- --to 省略時は今日まで
- 既に最新ならなにもしません

Example:
  go run ./cmd/kabuto ingest
  go run ./cmd/kabuto ingest --from 2025-01-06 --to 2025-03-07
  go run ./cmd/kabuto ingest --demo`,
	RunE: runIngest,
}

var (
	// Flags
	ingestFrom string
	ingestTo   string
	ingestDemo bool
)

func init() {
	rootCmd.AddCommand(ingestCmd)

	// Flags
	ingestCmd.Flags().StringVar(&ingestFrom, "from", "", "取り込み開始日 (YYYY-MM-DD)")
	ingestCmd.Flags().StringVar(&ingestTo, "to", "", "取り込み終了日 (YYYY-MM-DD, 既定: 今日)")
	ingestCmd.Flags().BoolVar(&ingestDemo, "demo", false, "デモデータを取り込む (開発用 DB の種まき)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	fmt.Println("=== kabuto Data Ingest ===")

	var from, to time.Time
	var err error
	if ingestFrom != "" {
		from, err = time.ParseInLocation("2006-01-02", ingestFrom, calendar.JST)
		if err != nil {
			return fmt.Errorf("invalid --from date: %w", err)
		}
	}
	if ingestTo != "" {
		to, err = time.ParseInLocation("2006-01-02", ingestTo, calendar.JST)
		if err != nil {
			return fmt.Errorf("invalid --to date: %w", err)
		}
	}

	deps, err := initDeps(cmd.Context(), depsOptions{
		demo:     ingestDemo,
		useStore: true,
	})
	if err != nil {
		return err
	}
	defer deps.Close()

	result, err := deps.runner.Ingest(cmd.Context(), from, to)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Println("\n✅ Ingest Completed")
	fmt.Println()
	fmt.Printf("Window: %s .. %s\n", result.From.Format("2006-01-02"), result.To.Format("2006-01-02"))
	fmt.Printf("Codes: %d\n", result.Codes)
	fmt.Printf("Bars: %d\n", result.Bars)
	fmt.Printf("Events: %d\n", result.Events)
	if result.Dropped > 0 {
		fmt.Printf("⚠️ Dropped broken bars: %d\n", result.Dropped)
	}

	if result.Bars == 0 {
		fmt.Println("\nStore already current, nothing to do")
	}
	return nil
}
