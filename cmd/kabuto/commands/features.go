package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hmuraoka/kabuto/internal/calendar"
	"github.com/hmuraoka/kabuto/internal/decision"
)

// featuresCmd represents the features command
var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "特徴量テーブルの構築と確認",
	Long: `特徴量テーブルだけを構築して概要を表示します。

台帳にも触れず成果物も書きません (--out 指定時のみ CSV を出力)。

Example:
  go run ./cmd/kabuto features --demo
  go run ./cmd/kabuto features --as-of 2025-03-07 --out ./inspect`,
	RunE: runFeatures,
}

var (
	// Flags
	featuresAsOf string
	featuresDemo bool
	featuresOut  string
)

func init() {
	rootCmd.AddCommand(featuresCmd)

	// Flags
	featuresCmd.Flags().StringVar(&featuresAsOf, "as-of", "", "入力ウィンドウの終端 (YYYY-MM-DD, 既定: 今日)")
	featuresCmd.Flags().BoolVar(&featuresDemo, "demo", false, "決定的なデモデータで実行")
	featuresCmd.Flags().StringVar(&featuresOut, "out", "", "CSV を書き出すディレクトリ")
}

func runFeatures(cmd *cobra.Command, args []string) error {
	fmt.Println("=== kabuto Feature Builder ===")

	asOf, err := parseAsOf(featuresAsOf)
	if err != nil {
		return err
	}

	deps, err := initDeps(cmd.Context(), depsOptions{
		demo:     featuresDemo,
		useStore: !featuresDemo,
	})
	if err != nil {
		return err
	}
	defer deps.Close()

	table, err := deps.runner.BuildFeatures(cmd.Context(), asOf)
	if err != nil {
		return fmt.Errorf("build features: %w", err)
	}

	tradeDate := calendar.NextTradeDate(table.Cutoff, deps.cal)
	lastDate, _ := table.LastDate()
	latest := table.RowsAt(lastDate)

	fmt.Println("\n✅ Feature Table Built")
	fmt.Println()
	fmt.Printf("Cutoff: %s\n", table.Cutoff.Format("2006-01-02"))
	fmt.Printf("Trade Date: %s\n", tradeDate.Format("2006-01-02"))
	fmt.Printf("Rows: %d (latest session: %d)\n", len(table.Rows), len(latest))

	if featuresOut != "" {
		path, err := decision.NewWriter(deps.log, featuresOut).WriteFeatures(tradeDate.Format("2006-01-02"), table)
		if err != nil {
			return fmt.Errorf("write features csv: %w", err)
		}
		fmt.Printf("\nCSV: %s\n", path)
	}
	return nil
}
