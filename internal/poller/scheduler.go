package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jpalmerr/stockpulse/internal/metrics"
	"github.com/jpalmerr/stockpulse/internal/stock"
	"github.com/jpalmerr/stockpulse/internal/store"
)

const (
	// DefaultTickPeriod is the driver resolution. Intervals are counted in ticks.
	DefaultTickPeriod = time.Second

	// DefaultPassDelay separates consecutive fetches within a pass.
	DefaultPassDelay = time.Second
)

// ErrPassInProgress is returned by [Scheduler.RunPass] while another pass runs.
var ErrPassInProgress = errors.New("a polling pass is already running")

// TickSource drives the scheduler. The default is a [time.Ticker].
type TickSource interface {
	C() <-chan time.Time
	Stop()
}

type tickerSource struct {
	t *time.Ticker
}

// NewTicker returns a [TickSource] backed by a [time.Ticker].
func NewTicker(period time.Duration) TickSource {
	return &tickerSource{t: time.NewTicker(period)}
}

func (s *tickerSource) C() <-chan time.Time { return s.t.C }
func (s *tickerSource) Stop()               { s.t.Stop() }

// IntervalFunc returns the current polling interval in ticks. It is called
// once per tick; non-positive values suspend polling.
type IntervalFunc func() int

// Resolver maps a product URL to its current status.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) stock.Status
}

// Observer is told about every status transition a pass produces.
type Observer interface {
	Observe(ctx context.Context, tr store.Transition) error
}

// ItemStore is the part of the item store a pass needs.
type ItemStore interface {
	List() []store.Item
	SetStatus(name, url string, status stock.Status) (store.Transition, bool)
}

// PassReport summarizes a completed pass.
type PassReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Items     int
	Counts    map[stock.Status]int

	// Skipped counts items removed while the pass was running.
	Skipped int
}

// Config holds the collaborators of a [Scheduler].
type Config struct {
	Store    ItemStore
	Resolver Resolver
	Interval IntervalFunc

	// Observer may be nil.
	Observer Observer

	// Ticks defaults to a 1s [time.Ticker] created on Start.
	Ticks TickSource

	// PassDelay is the pause between fetches. Zero uses [DefaultPassDelay];
	// negative disables pacing.
	PassDelay time.Duration

	// OnPassComplete is called after every pass, on the pass goroutine.
	OnPassComplete func(PassReport)

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Scheduler runs polling passes over the item store.
//
// A driver goroutine counts ticks. When the count reaches the configured
// interval the counter resets and, if no pass is running, a new pass starts
// on its own goroutine. A tick that comes due while a pass is still running
// is dropped, not queued, so at most one pass is ever in flight.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter

	// driver goroutine only
	counter int

	running atomic.Bool

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup // driver
	passWG  sync.WaitGroup // in-flight pass
}

// NewScheduler creates a new polling [Scheduler].
//
// The scheduler must be started with [Scheduler.Start] and stopped with
// [Scheduler.Stop].
func NewScheduler(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval == nil {
		cfg.Interval = func() int { return 0 }
	}

	delay := cfg.PassDelay
	if delay == 0 {
		delay = DefaultPassDelay
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}

	return &Scheduler{
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Running reports whether a pass is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Start begins the tick driver in a background goroutine.
//
// Start is non-blocking. The driver runs until [Scheduler.Stop] is called or
// ctx is cancelled; no pass starts after that. If ctx is nil,
// context.Background() is used.
// Start is idempotent; subsequent calls after the first are no-ops.
// If Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	driverCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	ticks := s.cfg.Ticks
	if ticks == nil {
		ticks = NewTicker(DefaultTickPeriod)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer ticks.Stop()

		// passes outlive driver cancellation; only fetch timeouts bound them
		passCtx := context.WithoutCancel(driverCtx)

		for {
			select {
			case <-driverCtx.Done():
				return
			case <-ticks.C():
				// cancellation wins over a tick that arrived at the same time
				if driverCtx.Err() != nil {
					return
				}
				s.tick(passCtx)
			}
		}
	}()
}

// Stop halts the driver and waits for an in-flight pass to finish.
//
// Stop is idempotent and safe to call multiple times. Calling Stop before
// Start is a safe no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	// driver first: it is the only goroutine that starts passes
	s.wg.Wait()
	s.passWG.Wait()
}

// tick advances the counter and starts a pass when one is due.
func (s *Scheduler) tick(ctx context.Context) {
	s.counter++

	interval := s.cfg.Interval()
	if interval <= 0 {
		return
	}
	if s.counter < interval {
		return
	}
	s.counter = 0

	if !s.running.CompareAndSwap(false, true) {
		s.cfg.Metrics.IncDroppedTick()
		s.logger.Debug("pass still running, tick dropped")
		return
	}

	s.passWG.Add(1)
	go func() {
		defer s.passWG.Done()
		defer s.running.Store(false)
		s.safeRunPass(ctx)
	}()
}

// RunPass runs one pass synchronously on the caller's goroutine.
//
// Unlike scheduled passes, RunPass stops early when ctx is cancelled.
// It returns [ErrPassInProgress] if a pass is already running.
func (s *Scheduler) RunPass(ctx context.Context) (PassReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return PassReport{}, ErrPassInProgress
	}
	defer s.running.Store(false)
	return s.pass(ctx), nil
}

// safeRunPass runs a pass with panic recovery so a bug in a collaborator
// cannot wedge the scheduler in the running state.
func (s *Scheduler) safeRunPass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("pass panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	s.pass(ctx)
}

// pass checks every item in the store snapshot once, in order.
func (s *Scheduler) pass(ctx context.Context) PassReport {
	items := s.cfg.Store.List()
	report := PassReport{
		StartedAt: time.Now(),
		Counts:    make(map[stock.Status]int),
	}

	for _, item := range items {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Debug("pass interrupted", "error", err)
			break
		}

		status := s.cfg.Resolver.Resolve(ctx, item.URL)
		tr, ok := s.cfg.Store.SetStatus(item.Name, item.URL, status)
		if !ok {
			report.Skipped++
			s.logger.Debug("item removed during pass", "item", item.Name, "url", item.URL)
			continue
		}
		report.Items++
		report.Counts[status]++

		s.logger.Debug("item checked",
			"item", item.Name,
			"url", item.URL,
			"status", status.String(),
			"previous", tr.Previous.String(),
		)

		if s.cfg.Observer != nil {
			if err := s.cfg.Observer.Observe(ctx, tr); err != nil {
				s.logger.Debug("alert delivery incomplete", "item", item.Name, "error", err)
			}
		}
	}

	report.Duration = time.Since(report.StartedAt)
	s.cfg.Metrics.ObservePass(report.Duration)

	if s.cfg.OnPassComplete != nil {
		s.cfg.OnPassComplete(report)
	}
	return report
}
