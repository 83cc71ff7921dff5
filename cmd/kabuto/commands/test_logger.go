package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hmuraoka/kabuto/pkg/config"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

// testLoggerCmd represents the test-logger command
var testLoggerCmd = &cobra.Command{
	Use:   "test-logger",
	Short: "Logger 動作確認",
	Long: `構造化ロギングの出力を確認します。

この確認内容:
- JSON / Console フォーマット
- ログレベル
- 構造化フィールド
- エラーコンテキスト

Example:
  go run ./cmd/kabuto test-logger`,
	RunE: runTestLogger,
}

func init() {
	rootCmd.AddCommand(testLoggerCmd)
}

func runTestLogger(cmd *cobra.Command, args []string) error {
	fmt.Println("=== kabuto Logger Test ===")

	// Test 1: JSON Format (Production)
	fmt.Println("1. JSON Format (Production)")
	fmt.Println("--------------------------------")
	jsonLog := logger.New(&config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	})
	jsonLog.Info("Service started")
	jsonLog.Warn("High memory usage detected")
	jsonLog.Error("Failed to reach vendor API")
	fmt.Println()

	// Test 2: Console Format (Development)
	fmt.Println("2. Console Format (Development)")
	fmt.Println("--------------------------------")
	consoleLog := logger.New(&config.Config{
		Env:       "development",
		LogLevel:  "debug",
		LogFormat: "console",
	})
	consoleLog.Debug("Debugging application flow")
	consoleLog.Info("Request received from client")
	consoleLog.Warn("Cache miss, fetching from database")
	fmt.Println()

	// Test 3: Structured Logging
	fmt.Println("3. Structured Logging with Fields")
	fmt.Println("--------------------------------")
	runLog := jsonLog.WithField("run_id", "20250307T093000-deadbeef")
	runLog.Info("Pipeline run started")

	jsonLog.WithFields(map[string]interface{}{
		"code":       "7203",
		"score":      0.8213,
		"is_new":     true,
		"trade_date": "2025-03-10",
	}).Info("Watchlist entry selected")

	jsonLog.WithComponent("gates").
		WithField("all_passed", false).
		Info("Quality gates evaluated")
	fmt.Println()

	// Test 4: Error Logging
	fmt.Println("4. Error Logging")
	fmt.Println("--------------------------------")
	err := errors.New("connection timeout")
	jsonLog.WithError(err).Error("Failed to fetch daily quotes")

	jsonLog.WithError(err).
		WithFields(map[string]interface{}{
			"retry_count": 3,
			"timeout_ms":  5000,
			"endpoint":    "/prices/daily_quotes",
		}).
		Error("Connection failed after retries")
	fmt.Println()

	fmt.Println("✅ All logger tests completed!")
	return nil
}
