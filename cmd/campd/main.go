// Command campd is the entry point for the camp registration backend.
// It provides a CLI interface (via Cobra) whose main job is running the
// HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/opencamphq/campd/cmd/campd/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
