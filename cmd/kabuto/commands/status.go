package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hmuraoka/kabuto/internal/contracts"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "実行台帳の表示",
	Long: `直近のパイプライン実行を台帳から新しい順に表示します。

表示情報:
- Status: completed / failed / running
- Action: TRADE / NO_TRADE (完走した実行のみ)
- 失敗時はエラーメッセージ

Example:
  go run ./cmd/kabuto status
  go run ./cmd/kabuto status --limit 30`,
	RunE: runStatus,
}

var (
	// Flags
	statusLimit int
)

func init() {
	rootCmd.AddCommand(statusCmd)

	// Flags
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "表示する実行数")
}

func runStatus(cmd *cobra.Command, args []string) error {
	deps, err := initDeps(cmd.Context(), depsOptions{useStore: true})
	if err != nil {
		return err
	}
	defer deps.Close()

	runs, err := deps.st.Runs.List(cmd.Context(), statusLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	fmt.Println("=== kabuto Run Ledger ===")
	fmt.Println()

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}

	for _, r := range runs {
		mark := statusMark(r.Status)
		line := fmt.Sprintf("%s %s  %s", mark, r.TradeDate, r.RunID)
		if r.Action != "" {
			line += fmt.Sprintf("  %s", r.Action)
		}
		fmt.Println(line)

		detail := fmt.Sprintf("   started %s", r.StartedAt.Format("2006-01-02 15:04:05 MST"))
		if r.FinishedAt != nil {
			detail += fmt.Sprintf(", took %.1fs", r.FinishedAt.Sub(r.StartedAt).Seconds())
		}
		fmt.Println(detail)

		if r.Error != "" {
			fmt.Printf("   ⚠️  %s\n", r.Error)
		}
	}

	fmt.Printf("\nTotal: %d runs\n", len(runs))
	return nil
}

func statusMark(s contracts.RunStatus) string {
	switch s {
	case contracts.RunCompleted:
		return "✅"
	case contracts.RunFailed:
		return "❌"
	default:
		return "⏳"
	}
}
