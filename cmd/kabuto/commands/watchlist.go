package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hmuraoka/kabuto/internal/calendar"
)

// watchlistCmd represents the watchlist command
var watchlistCmd = &cobra.Command{
	Use:   "watchlist",
	Short: "保存済みウォッチリストの表示",
	Long: `指定した取引日のウォッチリストをストアから読み出して表示します。

--date 省略時は次の営業日 (いま計画対象となる日) を見ます。

Example:
  go run ./cmd/kabuto watchlist
  go run ./cmd/kabuto watchlist --date 2025-03-10`,
	RunE: runWatchlist,
}

var (
	// Flags
	watchlistDate string
)

func init() {
	rootCmd.AddCommand(watchlistCmd)

	// Flags
	watchlistCmd.Flags().StringVar(&watchlistDate, "date", "", "取引日 (YYYY-MM-DD, 既定: 次の営業日)")
}

func runWatchlist(cmd *cobra.Command, args []string) error {
	deps, err := initDeps(cmd.Context(), depsOptions{useStore: true})
	if err != nil {
		return err
	}
	defer deps.Close()

	tradeDate := watchlistDate
	if tradeDate == "" {
		next := calendar.NextTradeDate(time.Now().In(calendar.JST), deps.cal)
		tradeDate = next.Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", tradeDate); err != nil {
		return fmt.Errorf("invalid --date: %w", err)
	}

	entries, err := deps.st.Watchlists.Load(cmd.Context(), tradeDate)
	if err != nil {
		return fmt.Errorf("load watchlist: %w", err)
	}

	fmt.Printf("=== kabuto Watchlist %s ===\n\n", tradeDate)

	if len(entries) == 0 {
		fmt.Println("No watchlist for this date")
		return nil
	}

	fmt.Printf("%-4s %-6s %-20s %10s %8s  %s\n", "#", "Code", "Name", "Score", "New", "Reason")
	for i, e := range entries {
		mark := ""
		if e.IsNew {
			mark = "🆕"
		}
		fmt.Printf("%-4d %-6s %-20s %10.4f %8s  %s\n", i+1, e.Code, e.Name, e.Score, mark, e.ReasonShort)
	}
	fmt.Printf("\nTotal: %d entries\n", len(entries))
	return nil
}
