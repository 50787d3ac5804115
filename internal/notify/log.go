package notify

import (
	"context"
	"log/slog"

	"github.com/jpalmerr/stockpulse/internal/alert"
)

// LogNotifier writes alerts to the structured log. It is the alert surface
// of a headless process and is always enabled.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a [LogNotifier]. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Name implements [alert.Notifier].
func (n *LogNotifier) Name() string { return "log" }

// Notify implements [alert.Notifier].
func (n *LogNotifier) Notify(ctx context.Context, a alert.Alert) error {
	n.logger.LogAttrs(ctx, slog.LevelWarn, "RESTOCK",
		slog.String("item", a.Name),
		slog.String("url", a.URL),
		slog.String("previous", a.Previous.String()),
		slog.Bool("test", a.Test),
	)
	return nil
}
