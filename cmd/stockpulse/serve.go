package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/stockpulse"
	"github.com/jpalmerr/stockpulse/config"
)

const (
	shutdownTimeout = 15 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start tracking and serve the dashboard",
		Long: `Start StockPulse.

The server will:
  - Load configuration from the specified YAML file
  - Restore tracked items and settings from the state backend
  - Check every item on the configured interval and send restock alerts
  - Serve the dashboard UI on the configured port
  - Reload the settings block when the config file changes

The server runs until interrupted (Ctrl+C) or receives SIGTERM. Under
systemd (Type=notify) it reports readiness once the dashboard is listening.

Example:
  stockpulse serve -c stockpulse.yaml
  stockpulse serve --config /etc/stockpulse/stockpulse.yaml --log-level debug`,
		RunE: runServe,
	}

	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	cmd.Flags().String("log-level", "info", "log level: debug, info, warn or error")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	logger, err := newLogger(level)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}
	opts = append(opts,
		stockpulse.WithLogger(logger),
		stockpulse.WithOnReady(func() { notifySystemd(logger, daemon.SdNotifyReady) }),
	)

	logger.Info("config loaded",
		"items", len(cfg.Items),
		"grids", len(cfg.Grids),
		"state_backend", cfg.State.Backend,
	)

	tracker, err := stockpulse.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create tracker: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := config.Watch(ctx, configFile, tracker.UpdateSettings, logger); err != nil {
			logger.Warn("config hot reload disabled", "error", err)
		}
	}()

	// start tracker - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- tracker.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		notifySystemd(logger, daemon.SdNotifyStopping)

		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}

// notifySystemd sends a state to the service manager. Outside systemd it
// does nothing.
func notifySystemd(logger *slog.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logger.Warn("systemd notify failed", "state", state, "error", err)
		return
	}
	if sent {
		logger.Debug("systemd notified", "state", state)
	}
}
