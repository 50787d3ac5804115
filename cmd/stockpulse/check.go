package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/stockpulse"
	"github.com/jpalmerr/stockpulse/config"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [URL...]",
		Short: "Check product pages once and print their status",
		Long: `Check product pages once without starting the dashboard.

With URLs, each page is checked directly and nothing is tracked. With --all,
every item from the config file and the saved state is checked in one pass.
No alerts are sent and saved state is not modified.

Retailers come from the config file when one is given, otherwise the
built-in retailers are used.

Example:
  stockpulse check https://www.amazon.com/dp/B0CL5KNB9M
  stockpulse check --all -c stockpulse.yaml`,
		RunE: runCheck,
	}

	cmd.Flags().StringP("config", "c", "", "path to config file")
	cmd.Flags().Bool("all", false, "check every tracked item")
	cmd.Flags().String("log-level", "warn", "log level: debug, info, warn or error")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	if all == (len(args) > 0) {
		return errors.New("pass either URLs or --all")
	}

	level, _ := cmd.Flags().GetString("log-level")
	logger, err := newLogger(level)
	if err != nil {
		return err
	}

	var opts []stockpulse.Option
	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if opts, err = config.BuildOptions(cfg); err != nil {
			return fmt.Errorf("failed to build options: %w", err)
		}
	}
	opts = append(opts,
		stockpulse.WithAlertsDisabled(),
		stockpulse.WithAutosave(""),
		stockpulse.WithLogger(logger),
	)

	tracker, err := stockpulse.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create tracker: %w", err)
	}
	defer tracker.Close()

	ctx := cmd.Context()
	if all {
		return checkAll(ctx, tracker, cmd.OutOrStdout())
	}
	return checkURLs(ctx, tracker, args, cmd.OutOrStdout())
}

func checkURLs(ctx context.Context, tracker *stockpulse.Tracker, urls []string, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "URL\tRETAILER\tSTATUS\tLATENCY\tDETAIL")
	for _, u := range urls {
		r := tracker.Check(ctx, u)
		retailer := r.Retailer
		if retailer == "" {
			retailer = "-"
		}
		detail := ""
		if r.Err != nil {
			detail = r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", u, retailer, r.Status.Label(), r.Latency.Round(time.Millisecond), detail)
	}
	return tw.Flush()
}

func checkAll(ctx context.Context, tracker *stockpulse.Tracker, out io.Writer) error {
	report, err := tracker.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tSTATUS\tURL")
	for _, it := range tracker.Items() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", it.Name, it.Status.Label(), it.URL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d items checked in %s: %d in stock, %d out of stock, %d errors\n",
		report.Items,
		report.Duration.Round(time.Millisecond),
		report.Counts[stockpulse.StatusInStock],
		report.Counts[stockpulse.StatusOutOfStock],
		report.Counts[stockpulse.StatusFetchError],
	)
	return nil
}
