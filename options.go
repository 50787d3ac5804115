package stockpulse

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jpalmerr/stockpulse/internal/alert"
	"github.com/jpalmerr/stockpulse/internal/notify"
	"github.com/jpalmerr/stockpulse/internal/settings"
	"github.com/jpalmerr/stockpulse/internal/state"
)

// Settings are the user-editable tracker settings: the refresh interval in
// seconds and the email alert preferences.
type Settings = settings.Settings

// SMTPConfig describes the mail server used for email alerts.
type SMTPConfig = notify.SMTPConfig

// TelegramConfig describes the bot used for Telegram alerts.
type TelegramConfig = notify.TelegramConfig

// Alert is a restock notification for one item.
type Alert = alert.Alert

// State backends accepted by [WithState].
const (
	StateFile   = "file"
	StateSQLite = "sqlite"
)

// trackerConfig holds mutable state during Tracker construction.
type trackerConfig struct {
	title           string
	port            int
	items           []Item
	retailers       []Retailer
	settings        Settings
	stateBackend    string
	statePath       string
	autosave        string
	fetchTimeout    time.Duration
	passDelay       time.Duration
	userAgent       string
	respectRobots   bool
	notifyTimeout   time.Duration
	smtp            *SMTPConfig
	telegram        *TelegramConfig
	alertsDisabled  bool
	logger          *slog.Logger
	statusCallbacks []func(StatusChange)
	alertCallbacks  []func(Alert)
	onReady         func()
}

// Option is a function that configures a [Tracker] during construction.
//
// Options return an error if validation fails; [New] stops at the first one.
type Option func(*trackerConfig) error

// WithItem adds a single [Item] to track.
//
// Items given here are merged into the saved state on every start; items
// already tracked are left as they are.
func WithItem(i Item) Option {
	return func(cfg *trackerConfig) error {
		cfg.items = append(cfg.items, i)
		return nil
	}
}

// WithItems adds multiple [Item] values to track.
//
// Example:
//
//	items, _ := stockpulse.NewItemGrid("PS5", ...)
//	t, err := stockpulse.New(stockpulse.WithItems(items...))
func WithItems(items ...Item) Option {
	return func(cfg *trackerConfig) error {
		cfg.items = append(cfg.items, items...)
		return nil
	}
}

// WithRetailer registers a [Retailer]. Retailers are consulted in the order
// they are registered.
//
// When no retailer is registered the tracker uses [DefaultRetailers]. To
// extend rather than replace them, register them explicitly:
//
//	stockpulse.WithRetailer(myShop),
//	stockpulse.WithRetailers(stockpulse.DefaultRetailers()...),
func WithRetailer(r Retailer) Option {
	return func(cfg *trackerConfig) error {
		if r.name == "" {
			return errors.New("retailer must be created with NewRetailer or NewRetailerFunc")
		}
		cfg.retailers = append(cfg.retailers, r)
		return nil
	}
}

// WithRetailers registers multiple retailers.
func WithRetailers(retailers ...Retailer) Option {
	return func(cfg *trackerConfig) error {
		for _, r := range retailers {
			if err := WithRetailer(r)(cfg); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithSettings sets the settings used when no saved state exists.
// Saved settings always take precedence.
//
// Returns an error if the settings are invalid.
func WithSettings(s Settings) Option {
	return func(cfg *trackerConfig) error {
		s = s.Normalize()
		if err := s.Validate(); err != nil {
			return err
		}
		cfg.settings = s
		return nil
	}
}

// WithState selects where items and settings are persisted.
//
// backend is [StateFile] (a YAML document) or [StateSQLite]. An empty path
// disables persistence.
//
// Example:
//
//	stockpulse.WithState(stockpulse.StateSQLite, "/var/lib/stockpulse/state.db")
func WithState(backend, path string) Option {
	return func(cfg *trackerConfig) error {
		switch backend {
		case StateFile, StateSQLite:
		default:
			return fmt.Errorf("state backend must be %q or %q, got %q", StateFile, StateSQLite, backend)
		}
		cfg.stateBackend = backend
		cfg.statePath = path
		return nil
	}
}

// WithAutosave sets the cron schedule for periodic state saves, e.g.
// "@every 5m" or "0 * * * *". An empty schedule disables autosave; state is
// still saved on every change made through the dashboard and at shutdown.
func WithAutosave(schedule string) Option {
	return func(cfg *trackerConfig) error {
		if schedule != "" {
			if err := state.ValidateSchedule(schedule); err != nil {
				return err
			}
		}
		cfg.autosave = schedule
		return nil
	}
}

// WithFetchTimeout bounds a single status resolution. Defaults to 5 seconds.
//
// Returns an error if the duration is zero or negative.
func WithFetchTimeout(d time.Duration) Option {
	return func(cfg *trackerConfig) error {
		if d <= 0 {
			return errors.New("fetch timeout must be positive")
		}
		cfg.fetchTimeout = d
		return nil
	}
}

// WithPassDelay sets the pause between fetches within a pass, keeping the
// tracker polite towards retailers. Defaults to 1 second; zero disables the
// pause.
//
// Returns an error if the duration is negative.
func WithPassDelay(d time.Duration) Option {
	return func(cfg *trackerConfig) error {
		if d < 0 {
			return errors.New("pass delay cannot be negative")
		}
		cfg.passDelay = d
		return nil
	}
}

// WithUserAgent sets the User-Agent sent to retailers.
func WithUserAgent(ua string) Option {
	return func(cfg *trackerConfig) error {
		cfg.userAgent = strings.TrimSpace(ua)
		return nil
	}
}

// WithRobotsTxt makes page fetches honour robots.txt.
func WithRobotsTxt(respect bool) Option {
	return func(cfg *trackerConfig) error {
		cfg.respectRobots = respect
		return nil
	}
}

// WithNotifyTimeout bounds a single notifier call. Defaults to 10 seconds.
func WithNotifyTimeout(d time.Duration) Option {
	return func(cfg *trackerConfig) error {
		if d <= 0 {
			return errors.New("notify timeout must be positive")
		}
		cfg.notifyTimeout = d
		return nil
	}
}

// WithSMTP enables email alerts through the given mail server. Mail is only
// sent while the settings have email alerts switched on.
//
// Returns an error if host or sender address is missing.
func WithSMTP(c SMTPConfig) Option {
	return func(cfg *trackerConfig) error {
		if !c.Configured() {
			return errors.New("smtp host and from address are required")
		}
		cfg.smtp = &c
		return nil
	}
}

// WithTelegram enables Telegram alerts.
//
// Returns an error if the token or chat id is missing.
func WithTelegram(c TelegramConfig) Option {
	return func(cfg *trackerConfig) error {
		if strings.TrimSpace(c.Token) == "" || c.ChatID == 0 {
			return errors.New("telegram token and chat id are required")
		}
		cfg.telegram = &c
		return nil
	}
}

// WithAlertsDisabled turns off every alert destination, the RESTOCK log line
// included. Useful for one-off checks.
func WithAlertsDisabled() Option {
	return func(cfg *trackerConfig) error {
		cfg.alertsDisabled = true
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard. Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *trackerConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithTitle sets the dashboard title. Defaults to "StockPulse".
func WithTitle(title string) Option {
	return func(cfg *trackerConfig) error {
		cfg.title = title
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *trackerConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithStatusCallback registers a function called after every status update
// a pass records.
//
// Callbacks run synchronously on the pass goroutine, in registration order,
// before alerts are sent. They must not block. Panics are recovered and
// logged.
//
// Example:
//
//	stockpulse.WithStatusCallback(func(c stockpulse.StatusChange) {
//	    if c.Current == stockpulse.StatusFetchError {
//	        log.Printf("cannot read %s", c.URL)
//	    }
//	})
//
// Nil callbacks are silently ignored.
func WithStatusCallback(cb func(StatusChange)) Option {
	return func(cfg *trackerConfig) error {
		if cb != nil {
			cfg.statusCallbacks = append(cfg.statusCallbacks, cb)
		}
		return nil
	}
}

// WithAlertCallback registers a function called for every restock alert,
// including test alerts sent from the dashboard.
//
// Nil callbacks are silently ignored.
func WithAlertCallback(cb func(Alert)) Option {
	return func(cfg *trackerConfig) error {
		if cb != nil {
			cfg.alertCallbacks = append(cfg.alertCallbacks, cb)
		}
		return nil
	}
}

// WithOnReady registers a function called once [Tracker.Start] has loaded
// state and the dashboard is listening.
func WithOnReady(fn func()) Option {
	return func(cfg *trackerConfig) error {
		cfg.onReady = fn
		return nil
	}
}
