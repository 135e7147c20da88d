// Package main is the entry point for the clawkit CLI.
package main

import (
	"os"

	"github.com/clawkit/clawkit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
