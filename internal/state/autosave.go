package state

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultAutosaveSchedule is the cron spec used when none is configured.
const DefaultAutosaveSchedule = "@every 5m"

const autosaveTimeout = 30 * time.Second

// Autosaver periodically persists state on a cron schedule.
type Autosaver struct {
	c      *cron.Cron
	logger *slog.Logger
}

// NewAutosaver creates an [Autosaver] that calls save on schedule.
//
// schedule accepts standard five-field cron specs and descriptors such as
// "@every 5m" or "@hourly".
func NewAutosaver(schedule string, save func(ctx context.Context) error, logger *slog.Logger) (*Autosaver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}

	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), autosaveTimeout)
		defer cancel()
		if err := save(ctx); err != nil {
			logger.Warn("autosave failed", "error", err)
			return
		}
		logger.Debug("state autosaved")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid autosave schedule %q: %w", schedule, err)
	}
	return &Autosaver{c: c, logger: logger}, nil
}

// Start runs the schedule in the background.
func (a *Autosaver) Start() {
	a.c.Start()
}

// Stop halts the schedule and waits for a running save to finish or ctx to
// expire.
func (a *Autosaver) Stop(ctx context.Context) {
	done := a.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		a.logger.Warn("autosave still running at shutdown")
	}
}

// ValidateSchedule reports whether schedule is a usable cron spec.
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid autosave schedule %q: %w", schedule, err)
	}
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
