// Package main is the entry point for the guideline interface server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/codex-celida/guideline-interface/cmd/guideline-interface/app"
)

func main() {
	if err := app.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
