package main

import (
	"os"

	"github.com/osqazi/AI-Employee-FTE/internal/cli"
)

func main() {
	// With no arguments the root command opens the dashboard.
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
