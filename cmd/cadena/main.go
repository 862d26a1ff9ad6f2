// Package main is the entry point for the cadena CLI.
package main

import (
	"os"

	"github.com/mrz1836/cadena/internal/cli"
	"github.com/mrz1836/cadena/internal/version"
)

// Build information, set with -ldflags "-X main.buildVersion=v1.0.0 ...".
//
//nolint:gochecknoglobals // injected by the linker
var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

func main() {
	b := version.Build{Version: buildVersion, Commit: buildCommit, Date: buildDate}
	if err := cli.Execute(b); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
