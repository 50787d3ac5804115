// Package main is the entry point for the stockpulse CLI.
//
// StockPulse can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	stockpulse serve -c stockpulse.yaml    # Start tracking and the dashboard
//	stockpulse validate -c stockpulse.yaml # Validate configuration
//	stockpulse check URL...                # Check product pages once
//	stockpulse version                     # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stockpulse",
		Short: "Track product availability and get restock alerts",
		Long: `StockPulse watches retailer product pages and alerts you when an item
comes back in stock.

It checks every tracked item on a user-set interval, shows the results on a
live web dashboard, and sends alerts by email, Telegram and the dashboard
when an item goes from unavailable to in stock.

Quick start:
  1. Create a config file (stockpulse.yaml)
  2. Run: stockpulse serve -c stockpulse.yaml
  3. Open http://localhost:8080 and add items

Example config:
  port: 8080
  settings:
    interval_seconds: 120
  items:
    - name: PS5 Slim
      url: https://www.amazon.com/dp/B0CL5KNB9M`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd(), newValidateCmd(), newCheckCmd(), newVersionCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, and build date of this stockpulse binary.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "stockpulse %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

// newLogger creates a JSON logger on stderr for CLI use.
func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "", "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug, info, warn or error)", level)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}
