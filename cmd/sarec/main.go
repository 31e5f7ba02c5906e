// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

// Package main is the sarec command.
//
// sarec trains item-to-item similarity models from catalog and usage files,
// answers recommendation queries against stored models, and runs the
// training-job service:
//
//	sarec train --usage usage/ --catalog catalog.csv   # one training run, result as JSON
//	sarec recommend --model m1 --items a,b -k 10       # score a session
//	sarec models                                       # list registry records
//	sarec serve                                        # jobs consumer and ops API
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, the config file named by
// CONFIG_PATH or found at a default path, then built-in defaults.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Exit codes.
const (
	ExitSuccess     = 0
	ExitError       = 1
	ExitConfigError = 2
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "sarec",
	Short: "Item-to-item recommendation trainer and server",
	Long: `sarec trains item similarity models from usage events, stores them as
compressed artifacts, and scores recommendation requests against them.

Every command writes JSON to stdout. Logs go to stderr.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = Version
}
