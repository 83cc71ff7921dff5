package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kabuto",
	Short: "kabuto - 日本株ゲート付きシグナルパイプライン",
	Long: `kabuto Unified CLI

日足データから品質ゲートを通した売買シグナルを生成するパイプライン。
features → model → gates → watchlist → decision → notify の6段構成。

Usage:
  go run ./cmd/kabuto [command]

Examples:
  go run ./cmd/kabuto run --demo
  go run ./cmd/kabuto ingest --from 2025-01-06
  go run ./cmd/kabuto api
  go run ./cmd/kabuto scheduler start`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
