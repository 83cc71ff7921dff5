package main

import (
	"os"

	"github.com/hmuraoka/kabuto/cmd/kabuto/commands"
)

// main is the entry point for the kabuto CLI
// ⭐ 統合 CLI エントリポイント: go run ./cmd/kabuto [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
