package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hmuraoka/kabuto/internal/contracts"
)

// gatesCmd represents the gates command
var gatesCmd = &cobra.Command{
	Use:   "gates",
	Short: "品質ゲートの評価",
	Long: `特徴量とモデル段まで実行し、品質ゲート6種の判定を表示します。

ゲート:
- walk_forward:    walk-forward IC の下限
- ticker_split_cv: 銘柄分割クロスバリデーション
- cost_5bps:       コスト控除後 IC (5bps)
- cost_15bps:      コスト控除後 IC (15bps)
- param_stability: fold 間の係数安定性
- leak_detection:  ラベルとのリーク相関検査

ゲートのほかに適格銘柄数・欠損率・確信度の床もあり、
ひとつでも落ちればその日は NO_TRADE です。

Example:
  go run ./cmd/kabuto gates --demo
  go run ./cmd/kabuto gates --as-of 2025-03-07`,
	RunE: runGates,
}

var (
	// Flags
	gatesAsOf string
	gatesDemo bool
)

func init() {
	rootCmd.AddCommand(gatesCmd)

	// Flags
	gatesCmd.Flags().StringVar(&gatesAsOf, "as-of", "", "入力ウィンドウの終端 (YYYY-MM-DD, 既定: 今日)")
	gatesCmd.Flags().BoolVar(&gatesDemo, "demo", false, "決定的なデモデータで実行")
}

func runGates(cmd *cobra.Command, args []string) error {
	fmt.Println("=== kabuto Quality Gates ===")

	asOf, err := parseAsOf(gatesAsOf)
	if err != nil {
		return err
	}

	deps, err := initDeps(cmd.Context(), depsOptions{
		demo:     gatesDemo,
		useStore: !gatesDemo,
	})
	if err != nil {
		return err
	}
	defer deps.Close()

	rep, err := deps.runner.EvaluateGates(cmd.Context(), asOf)
	if err != nil {
		return fmt.Errorf("evaluate gates: %w", err)
	}

	fmt.Printf("\nTrade Date: %s\n", rep.TradeDate)
	fmt.Printf("Eligible: %d, Missing Rate: %.2f%%, Confidence: %.4f\n\n",
		rep.NEligible, rep.MissingRate*100, rep.Confidence)

	for _, name := range contracts.GateOrder {
		g, ok := rep.Gates[name]
		if !ok {
			fmt.Printf("❌ %-16s not evaluated\n", name)
			continue
		}
		mark := "✅"
		if !g.Passed {
			mark = "❌"
		}
		fmt.Printf("%s %-16s metric=%.4f threshold=%.4f\n", mark, g.Name, g.Metric, g.Threshold)
		if g.Reason != "" {
			fmt.Printf("     %s\n", g.Reason)
		}
	}

	fmt.Println()
	if rep.AllPassed {
		fmt.Println("✅ All gates passed → TRADE candidate")
	} else {
		fmt.Printf("❌ NO_TRADE (%d reasons)\n", len(rep.Reasons))
		for _, reason := range rep.Reasons {
			fmt.Printf("   - %s\n", reason)
		}
	}
	return nil
}
