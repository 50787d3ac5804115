package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/stockpulse"
	"github.com/jpalmerr/stockpulse/config"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		Long: `Validate a StockPulse configuration file without starting the server.

This command parses the YAML, expands environment variables, validates all
fields and expands item grids. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  stockpulse validate -c stockpulse.yaml`,
		RunE: runValidate,
	}

	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// grids are only fully checked once their templates run
	items, err := config.BuildItems(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	retailers, err := config.BuildRetailers(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	retailerNote := ""
	if retailers == nil {
		retailers = stockpulse.DefaultRetailers()
		retailerNote = " (built-in defaults)"
	}
	names := make([]string, len(retailers))
	for i, r := range retailers {
		names[i] = r.Name()
	}

	statePath := cfg.State.Backend + " " + cfg.State.Path
	if cfg.State.Disabled {
		statePath = "disabled"
	}

	direct := len(cfg.Items)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:      %d\n", cfg.Port)
	fmt.Fprintf(out, "  State:     %s\n", statePath)
	fmt.Fprintf(out, "  Items:     %d direct + %d from grids = %d total\n",
		direct, len(items)-direct, len(items))
	fmt.Fprintf(out, "  Retailers: %s%s\n", strings.Join(names, ", "), retailerNote)
	fmt.Fprintf(out, "  Alerts:    %s\n", describeAlerts(cfg.Alerts))
	if cfg.Settings != nil {
		fmt.Fprintf(out, "  Interval:  %ds (initial)\n", cfg.Settings.IntervalSeconds)
	}

	return nil
}

func describeAlerts(a config.AlertsConfig) string {
	if a.Disabled {
		return "disabled"
	}
	dest := []string{"dashboard", "log"}
	if a.SMTP != nil {
		dest = append(dest, "email")
	}
	if a.Telegram != nil {
		dest = append(dest, "telegram")
	}
	return strings.Join(dest, ", ")
}
