package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jpalmerr/stockpulse/internal/metrics"
	"github.com/jpalmerr/stockpulse/internal/stock"
)

const (
	// DefaultTimeout bounds a single status resolution.
	DefaultTimeout = 5 * time.Second

	// hostMemoSize caps the host -> registration memo.
	hostMemoSize = 512

	// noMatch is memoized for hosts without a capability.
	noMatch = -1
)

// HostPredicate reports whether a capability handles pages on host.
// Hosts are passed lower-cased and without port.
type HostPredicate func(host string) bool

// HostGlob returns a [HostPredicate] matching any of the glob patterns,
// e.g. "amazon.com", "*.amazon.*" or "{www,m}.bestbuy.com".
//
// Invalid patterns never match; use [ValidateHostGlob] to reject them early.
func HostGlob(patterns ...string) HostPredicate {
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return func(host string) bool {
		for _, p := range lowered {
			if ok, err := doublestar.Match(p, host); err == nil && ok {
				return true
			}
		}
		return false
	}
}

// ValidateHostGlob reports an error for a malformed host pattern.
func ValidateHostGlob(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return errors.New("host pattern cannot be empty")
	}
	if !doublestar.ValidatePattern(strings.ToLower(pattern)) {
		return fmt.Errorf("invalid host pattern %q", pattern)
	}
	return nil
}

// Registration binds a capability to the hosts it understands.
type Registration struct {
	// Name identifies the retailer in logs.
	Name string

	// Match selects the hosts served by Capability.
	Match HostPredicate

	// Capability resolves the status for matching URLs.
	Capability Capability
}

// Result is the detailed outcome of [Dispatcher.Check].
type Result struct {
	Status   stock.Status
	Retailer string
	Latency  time.Duration
	Err      error
}

// Dispatcher resolves URLs to stock statuses through a registry of
// capabilities.
//
// The registry is fixed at construction and the first matching registration
// wins. Resolution never fails: unsupported hosts, timeouts, capability errors
// and capability panics all come back as FetchError.
//
// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	registrations []Registration
	timeout       time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics

	// host -> index into registrations, or noMatch
	memo *lru.Cache[string, int]
}

// NewDispatcher creates a [Dispatcher].
//
// Parameters:
//   - registrations: capabilities in priority order
//   - timeout: per-resolution deadline; zero or negative uses [DefaultTimeout]
//   - logger: logger for resolution failures and recovered panics
//   - m: metrics sink, may be nil
func NewDispatcher(registrations []Registration, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) (*Dispatcher, error) {
	for i, r := range registrations {
		if r.Match == nil {
			return nil, fmt.Errorf("registration %d (%s): host predicate is required", i, r.Name)
		}
		if r.Capability == nil {
			return nil, fmt.Errorf("registration %d (%s): capability is required", i, r.Name)
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	memo, err := lru.New[string, int](hostMemoSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create host memo: %w", err)
	}

	return &Dispatcher{
		registrations: append([]Registration(nil), registrations...),
		timeout:       timeout,
		logger:        logger,
		metrics:       m,
		memo:          memo,
	}, nil
}

// Timeout returns the per-resolution deadline.
func (d *Dispatcher) Timeout() time.Duration {
	return d.timeout
}

// Resolve returns the stock status for rawURL.
func (d *Dispatcher) Resolve(ctx context.Context, rawURL string) stock.Status {
	return d.Check(ctx, rawURL).Status
}

// Check resolves rawURL and reports which retailer handled it and why it
// failed, if it did.
func (d *Dispatcher) Check(ctx context.Context, rawURL string) Result {
	start := time.Now()
	result := d.check(ctx, rawURL)
	result.Latency = time.Since(start)

	d.metrics.ObserveFetch(result.Status.String(), result.Latency)
	if result.Err != nil {
		d.metrics.IncFetchError(string(KindOf(result.Err)))
	}
	return result
}

func (d *Dispatcher) check(ctx context.Context, rawURL string) Result {
	host, err := hostOf(rawURL)
	if err != nil {
		return Result{Status: stock.FetchError, Err: &Error{Kind: KindInvalidURL, URL: rawURL, Err: err}}
	}

	idx := d.lookup(host)
	if idx == noMatch {
		return Result{Status: stock.FetchError, Err: &Error{Kind: KindUnsupportedHost, URL: rawURL, Err: ErrUnsupportedHost}}
	}
	reg := d.registrations[idx]

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		status stock.Status
		err    error
	}
	// buffered so an abandoned capability can still finish and exit
	done := make(chan outcome, 1)
	go func() {
		status, err := d.safeCheck(ctx, reg, rawURL)
		done <- outcome{status: status, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			var fe *Error
			if !errors.As(o.err, &fe) {
				o.err = classify(rawURL, o.err, 0)
			}
			return Result{Status: stock.FetchError, Retailer: reg.Name, Err: o.err}
		}
		if o.status != stock.InStock && o.status != stock.OutOfStock {
			return Result{Status: stock.FetchError, Retailer: reg.Name, Err: &Error{Kind: KindParse, URL: rawURL, Err: errUndetermined}}
		}
		return Result{Status: o.status, Retailer: reg.Name}
	case <-ctx.Done():
		return Result{Status: stock.FetchError, Retailer: reg.Name, Err: &Error{Kind: KindTimeout, URL: rawURL, Err: ctx.Err()}}
	}
}

// lookup returns the index of the first registration matching host.
func (d *Dispatcher) lookup(host string) int {
	if idx, ok := d.memo.Get(host); ok {
		return idx
	}
	idx := noMatch
	for i, r := range d.registrations {
		if r.Match(host) {
			idx = i
			break
		}
	}
	d.memo.Add(host, idx)
	return idx
}

// safeCheck calls the capability with panic recovery.
// If the capability panics, it logs the full stack trace with a correlation ID
// and returns FetchError with an error containing the ID.
func (d *Dispatcher) safeCheck(ctx context.Context, reg Registration, rawURL string) (status stock.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			d.logger.Error("capability panic",
				"correlation_id", correlationID,
				"retailer", reg.Name,
				"url", rawURL,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			status = stock.FetchError
			err = &Error{Kind: KindPanic, URL: rawURL, Err: fmt.Errorf("capability panic (correlation_id: %s)", correlationID)}
		}
	}()
	return reg.Capability.Check(ctx, rawURL)
}

// hostOf extracts the lower-cased host without port.
func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return host, nil
}
