// Package cli provides the command-line interface for tradeflow
package cli

import (
	"os"
)

// Version is stamped at build time with -ldflags "-X".
var Version = "dev"

// Run starts the CLI application
func Run() {
	rootCmd := NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
