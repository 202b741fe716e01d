// Command fridaykb is the entry point for the Friday knowledge base service.
// It provides a CLI interface (via Cobra) and an HTTP server exposing
// document upload and grounded question answering.
package main

import (
	"fmt"
	"os"

	"github.com/fridaylabs/friday-kb/cmd/fridaykb/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
