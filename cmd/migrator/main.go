// Package main provides the entry point for the migrator CLI.
package main

import (
	"os"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
