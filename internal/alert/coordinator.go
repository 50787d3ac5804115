package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/stockpulse/internal/metrics"
	"github.com/jpalmerr/stockpulse/internal/stock"
	"github.com/jpalmerr/stockpulse/internal/store"
)

// DefaultNotifyTimeout bounds a single notifier call.
const DefaultNotifyTimeout = 10 * time.Second

// Alert is a restock notification for one item.
type Alert struct {
	Name     string       `json:"name"`
	URL      string       `json:"url"`
	Previous stock.Status `json:"previous"`
	At       time.Time    `json:"at"`

	// Test marks alerts sent through [Coordinator.Trigger].
	Test bool `json:"test,omitempty"`
}

// Subject is the one-line summary used by email and chat notifiers.
func (a Alert) Subject() string {
	if a.Test {
		return fmt.Sprintf("[test] %s is in stock", a.Name)
	}
	return fmt.Sprintf("%s is in stock", a.Name)
}

// Notifier delivers alerts to one destination.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, a Alert) error
}

// Enabler is implemented by notifiers that can be switched off at runtime.
type Enabler interface {
	Enabled() bool
}

// NotifyError records one notifier failing to deliver an alert.
type NotifyError struct {
	Notifier string
	Err      error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notifier %s: %v", e.Notifier, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// Coordinator turns status transitions into alerts.
//
// An alert fires only on the edge into InStock, so an item that stays in
// stock across passes alerts once. Notifier failures are isolated: they are
// logged and returned but never affect item status or other notifiers.
type Coordinator struct {
	notifiers []Notifier
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewCoordinator creates a [Coordinator] that fans out to notifiers in order.
//
// A zero or negative timeout uses [DefaultNotifyTimeout]. m may be nil.
func NewCoordinator(notifiers []Notifier, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		notifiers: append([]Notifier(nil), notifiers...),
		timeout:   timeout,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Observe evaluates a transition produced by SetStatus and alerts when the
// item has just come back in stock.
//
// The returned error joins every [*NotifyError]; it is informational.
func (c *Coordinator) Observe(ctx context.Context, tr store.Transition) error {
	if !tr.Restocked() {
		return nil
	}
	c.metrics.IncAlert()
	c.logger.Info("item restocked",
		"item", tr.Name,
		"url", tr.URL,
		"previous", tr.Previous.String(),
	)
	return c.dispatch(ctx, Alert{
		Name:     tr.Name,
		URL:      tr.URL,
		Previous: tr.Previous,
		At:       c.now(),
	})
}

// Trigger sends a test alert for an item through every enabled notifier.
func (c *Coordinator) Trigger(ctx context.Context, name, url string) error {
	c.logger.Info("test alert triggered", "item", name, "url", url)
	return c.dispatch(ctx, Alert{
		Name:     name,
		URL:      url,
		Previous: stock.OutOfStock,
		At:       c.now(),
		Test:     true,
	})
}

func (c *Coordinator) dispatch(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range c.notifiers {
		if e, ok := n.(Enabler); ok && !e.Enabled() {
			continue
		}
		if err := c.notify(ctx, n, a); err != nil {
			c.metrics.IncNotifyError(n.Name())
			c.logger.Warn("notifier failed",
				"notifier", n.Name(),
				"item", a.Name,
				"error", err,
			)
			errs = append(errs, &NotifyError{Notifier: n.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

// notify runs one notifier under its own deadline.
func (c *Coordinator) notify(ctx context.Context, n Notifier, a Alert) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.safeNotify(ctx, n, a)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("notify timed out: %w", ctx.Err())
	}
}

// safeNotify calls the notifier with panic recovery.
func (c *Coordinator) safeNotify(ctx context.Context, n Notifier, a Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			c.logger.Error("notifier panic",
				"correlation_id", correlationID,
				"notifier", n.Name(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("notifier panic (correlation_id: %s)", correlationID)
		}
	}()
	return n.Notify(ctx, a)
}
