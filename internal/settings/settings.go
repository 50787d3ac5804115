// Package settings holds the user-editable tracker settings: the refresh
// interval and the email alert preferences.
//
// Values are validated here, at the settings boundary, so that the scheduler
// and the notifiers only ever see a consistent configuration.
package settings

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultIntervalSeconds is the refresh interval used when nothing was saved.
const DefaultIntervalSeconds = 60

// Settings is the user-facing tracker configuration.
type Settings struct {
	// IntervalSeconds is the number of scheduler ticks (seconds) between passes.
	IntervalSeconds int `json:"interval_seconds" yaml:"interval_seconds"`

	// EmailAlerts enables the email notifier.
	EmailAlerts bool `json:"email_alerts" yaml:"email_alerts"`

	// EmailAddress is the alert destination. Required when EmailAlerts is set.
	EmailAddress string `json:"email_address" yaml:"email_address"`
}

// Default returns the settings used on first start or after a failed load.
func Default() Settings {
	return Settings{IntervalSeconds: DefaultIntervalSeconds}
}

// ConfigError reports an invalid settings field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks the settings invariants and returns a *ConfigError on failure.
func (s Settings) Validate() error {
	if s.IntervalSeconds <= 0 {
		return &ConfigError{Field: "interval_seconds", Reason: fmt.Sprintf("must be a positive number of seconds, got %d", s.IntervalSeconds)}
	}
	if !s.EmailAlerts {
		return nil
	}
	addr := strings.TrimSpace(s.EmailAddress)
	if addr == "" {
		return &ConfigError{Field: "email_address", Reason: "required when email alerts are enabled"}
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return &ConfigError{Field: "email_address", Reason: fmt.Sprintf("%q is not a valid address", addr)}
	}
	return nil
}

// Normalize trims surrounding whitespace from text fields.
func (s Settings) Normalize() Settings {
	s.EmailAddress = strings.TrimSpace(s.EmailAddress)
	return s
}

// ParseInterval converts user input into an interval in seconds.
// Non-numeric and non-positive input is rejected.
func ParseInterval(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ConfigError{Field: "interval_seconds", Reason: fmt.Sprintf("%q is not a whole number", raw)}
	}
	if n <= 0 {
		return 0, &ConfigError{Field: "interval_seconds", Reason: fmt.Sprintf("must be a positive number of seconds, got %d", n)}
	}
	return n, nil
}

// Holder is the process-wide home of the current settings.
//
// Reads are lock-free; the scheduler reads once per tick. Writes go through
// [Holder.Update], which refuses invalid settings.
type Holder struct {
	current atomic.Pointer[Settings]

	subMu sync.Mutex
	subs  []func(Settings)
}

// NewHolder creates a holder seeded with s.
// Invalid seeds are replaced by [Default].
func NewHolder(s Settings) *Holder {
	h := &Holder{}
	s = s.Normalize()
	if s.Validate() != nil {
		s = Default()
	}
	h.current.Store(&s)
	return h
}

// Get returns a copy of the current settings.
func (h *Holder) Get() Settings {
	return *h.current.Load()
}

// IntervalSeconds returns the current refresh interval.
func (h *Holder) IntervalSeconds() int {
	return h.current.Load().IntervalSeconds
}

// Update validates and installs s. The previous settings stay in place when
// validation fails.
func (h *Holder) Update(s Settings) error {
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return err
	}
	h.current.Store(&s)

	h.subMu.Lock()
	subs := append([]func(Settings){}, h.subs...)
	h.subMu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
	return nil
}

// OnChange registers fn to run after every successful [Holder.Update].
func (h *Holder) OnChange(fn func(Settings)) {
	if fn == nil {
		return
	}
	h.subMu.Lock()
	h.subs = append(h.subs, fn)
	h.subMu.Unlock()
}
