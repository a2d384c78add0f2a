package main

import (
	"os"

	"github.com/seolwon/ivscreen/cmd/screener/commands"
)

// main is the entry point for the screener CLI: go run ./cmd/screener [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
