// Package main is the entry point for the roomview CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tOgg1/roomview/internal/cli"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := cli.Execute(fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var preflight *cli.PreflightError
		if errors.As(err, &preflight) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
