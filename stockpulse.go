package stockpulse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/stockpulse/dashboard"
	"github.com/jpalmerr/stockpulse/internal/alert"
	"github.com/jpalmerr/stockpulse/internal/fetch"
	"github.com/jpalmerr/stockpulse/internal/metrics"
	"github.com/jpalmerr/stockpulse/internal/notify"
	"github.com/jpalmerr/stockpulse/internal/poller"
	"github.com/jpalmerr/stockpulse/internal/server"
	"github.com/jpalmerr/stockpulse/internal/settings"
	"github.com/jpalmerr/stockpulse/internal/state"
	"github.com/jpalmerr/stockpulse/internal/store"
)

const (
	defaultPort     = 8080
	shutdownTimeout = 10 * time.Second
)

// PassReport summarizes one pass over the tracked items.
type PassReport = poller.PassReport

// CheckResult is the outcome of checking a single URL with [Tracker.Check].
type CheckResult struct {
	Status Status

	// Retailer is the name of the retailer that handled the URL, empty if
	// none matched.
	Retailer string

	Latency time.Duration

	// Err explains a [StatusFetchError]; nil otherwise.
	Err error
}

// Tracker is the main orchestrator: it polls retailer pages for the tracked
// items, records their status, sends an alert when an item comes back in
// stock, and serves the dashboard.
//
// Tracker is created using [New] with functional options and started with
// [Tracker.Start]:
//
//	t, err := stockpulse.New(
//	    stockpulse.WithItem(ps5),
//	    stockpulse.WithState(stockpulse.StateFile, "stockpulse.yaml"),
//	)
//	if err != nil {
//	    slog.Error("failed to create tracker", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	t.Start(ctx) // blocks until ctx is cancelled
type Tracker struct {
	cfg       trackerConfig
	retailers []Retailer
	logger    *slog.Logger

	store      *store.MemoryStore
	settings   *settings.Holder
	metrics    *metrics.Metrics
	client     *fetch.Client
	dispatcher *fetch.Dispatcher
	feed       *alert.Feed
	alerts     *alert.Coordinator
	scheduler  *poller.Scheduler

	mu        sync.Mutex
	started   bool
	loaded    bool
	closed    bool
	repo      state.Repository
	closeRepo func() error

	// serializes saves with each other and with Close
	saveMu sync.Mutex
}

// New creates a [Tracker] with the given options.
//
// Defaults:
//   - Port: 8080
//   - Retailers: [DefaultRetailers]
//   - Settings: refresh every 60 seconds, email alerts off
//   - Persistence: none (see [WithState]); autosave every 5 minutes once enabled
//   - Fetch timeout: 5 seconds; pause between fetches: 1 second
//
// Items are optional: they can be added from the dashboard at runtime.
// Returns an error if any option is invalid or two retailers share a name.
func New(opts ...Option) (*Tracker, error) {
	cfg := &trackerConfig{
		port:         defaultPort,
		settings:     settings.Default(),
		stateBackend: StateFile,
		autosave:     state.DefaultAutosaveSchedule,
		fetchTimeout: fetch.DefaultTimeout,
		passDelay:    poller.DefaultPassDelay,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	retailers := cfg.retailers
	if len(retailers) == 0 {
		retailers = DefaultRetailers()
	}
	seen := make(map[string]bool, len(retailers))
	for _, r := range retailers {
		if seen[r.name] {
			return nil, fmt.Errorf("duplicate retailer name: %q", r.name)
		}
		seen[r.name] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		cfg:       *cfg,
		retailers: retailers,
		logger:    logger,
		store:     store.NewMemoryStore(),
		settings:  settings.NewHolder(cfg.settings),
		feed:      alert.NewFeed(),
	}
	t.metrics = metrics.New(t.store.Len)

	t.client = fetch.NewClient(fetch.ClientOptions{
		UserAgent:        cfg.userAgent,
		RequestTimeout:   cfg.fetchTimeout,
		RespectRobotsTxt: cfg.respectRobots,
	})

	registrations := make([]fetch.Registration, len(retailers))
	for i, r := range retailers {
		registrations[i] = r.registration(t.client)
	}
	dispatcher, err := fetch.NewDispatcher(registrations, cfg.fetchTimeout, logger, t.metrics)
	if err != nil {
		t.client.Close()
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	t.dispatcher = dispatcher

	notifiers, err := t.buildNotifiers()
	if err != nil {
		t.client.Close()
		return nil, err
	}
	t.alerts = alert.NewCoordinator(notifiers, cfg.notifyTimeout, logger, t.metrics)

	passDelay := cfg.passDelay
	if passDelay == 0 {
		passDelay = -1 // poller treats zero as "use default"
	}
	t.scheduler = poller.NewScheduler(poller.Config{
		Store:    t.store,
		Resolver: t.dispatcher,
		Interval: t.settings.IntervalSeconds,
		Observer: &passObserver{
			alerts:    t.alerts,
			callbacks: cfg.statusCallbacks,
			logger:    logger,
		},
		PassDelay:      passDelay,
		OnPassComplete: t.logPass,
		Logger:         logger,
		Metrics:        t.metrics,
	})

	return t, nil
}

// buildNotifiers assembles the alert destinations in delivery order.
func (t *Tracker) buildNotifiers() ([]alert.Notifier, error) {
	if t.cfg.alertsDisabled {
		return nil, nil
	}

	notifiers := []alert.Notifier{notify.NewLogNotifier(t.logger), t.feed}
	if len(t.cfg.alertCallbacks) > 0 {
		notifiers = append(notifiers, &callbackNotifier{callbacks: t.cfg.alertCallbacks, logger: t.logger})
	}
	if t.cfg.smtp != nil {
		email, err := notify.NewEmailNotifier(*t.cfg.smtp, t.settings)
		if err != nil {
			return nil, fmt.Errorf("failed to create email notifier: %w", err)
		}
		notifiers = append(notifiers, email)
	}
	if t.cfg.telegram != nil {
		tg, err := notify.NewTelegramNotifier(*t.cfg.telegram)
		if err != nil {
			return nil, fmt.Errorf("failed to create telegram notifier: %w", err)
		}
		notifiers = append(notifiers, tg)
	}
	return notifiers, nil
}

// Start loads saved state, begins polling and serves the dashboard.
//
// Start is a blocking call that runs until ctx is cancelled. On shutdown it
// lets an in-flight pass finish, then saves state so the last results are
// kept, and releases every resource. A Tracker can be started once.
//
// Returns nil on graceful shutdown. Returns an error if state cannot be
// opened or the HTTP server fails to start.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errors.New("tracker already started")
	}
	t.started = true
	t.mu.Unlock()

	if ctx.Err() != nil {
		return t.Close()
	}

	if err := t.load(ctx); err != nil {
		_ = t.Close()
		return err
	}

	t.logger.Info("stockpulse starting",
		"item_count", t.store.Len(),
		"retailer_count", len(t.retailers),
		"interval_seconds", t.settings.IntervalSeconds(),
	)

	t.scheduler.Start(ctx)

	var autosaver *state.Autosaver
	if t.persistent() && t.cfg.autosave != "" {
		a, err := state.NewAutosaver(t.cfg.autosave, t.Save, t.logger)
		if err != nil {
			t.scheduler.Stop()
			_ = t.Close()
			return err
		}
		autosaver = a
		autosaver.Start()
	}

	// stop polling before the final save so the last pass is persisted
	cleanup := func() {
		t.scheduler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if autosaver != nil {
			autosaver.Stop(shutdownCtx)
		}
		if err := t.Save(shutdownCtx); err != nil {
			t.logger.Error("failed to save state on shutdown", "error", err)
		}
		if err := t.Close(); err != nil {
			t.logger.Warn("failed to close state", "error", err)
		}
	}

	httpServer := server.NewServer(server.Config{
		Store:    t.store,
		Settings: t.settings,
		Alerts:   t.alerts,
		Feed:     t.feed,
		Gatherer: t.metrics.Registry,
		Assets:   dashboard.Assets,
		Title:    t.cfg.title,
		Port:     t.cfg.port,
		OnChange: t.persist,
		Logger:   t.logger,
	})
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	t.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", t.cfg.port))

	if t.cfg.onReady != nil {
		t.cfg.onReady()
	}

	<-ctx.Done()
	cleanup()
	t.logger.Info("stockpulse stopped")
	return nil
}

// RunOnce loads saved state if needed and runs a single pass immediately,
// outside the schedule. It returns [poller.ErrPassInProgress] if a scheduled
// pass is running.
//
// RunOnce does not save state; call [Tracker.Save] to keep the results.
func (t *Tracker) RunOnce(ctx context.Context) (PassReport, error) {
	if err := t.load(ctx); err != nil {
		return PassReport{}, err
	}
	return t.scheduler.RunPass(ctx)
}

// Check resolves a single URL without tracking it or sending alerts.
func (t *Tracker) Check(ctx context.Context, rawURL string) CheckResult {
	r := t.dispatcher.Check(ctx, rawURL)
	return CheckResult{
		Status:   r.Status,
		Retailer: r.Retailer,
		Latency:  r.Latency,
		Err:      r.Err,
	}
}

// Items returns a snapshot of the tracked items in insertion order.
func (t *Tracker) Items() []ItemStatus {
	items := t.store.List()
	out := make([]ItemStatus, len(items))
	for i, it := range items {
		out[i] = ItemStatus{
			Name:      it.Name,
			URL:       it.URL,
			Status:    it.Status,
			Previous:  it.PreviousStatus,
			CheckedAt: it.CheckedAt,
		}
	}
	return out
}

// Settings returns the current settings.
func (t *Tracker) Settings() Settings {
	return t.settings.Get()
}

// UpdateSettings validates and applies new settings, then saves state.
// The running scheduler picks up a new interval on its next tick.
func (t *Tracker) UpdateSettings(s Settings) error {
	if err := t.settings.Update(s); err != nil {
		return err
	}
	t.persist()
	return nil
}

// Port returns the configured HTTP port for the dashboard.
func (t *Tracker) Port() int {
	return t.cfg.port
}

// Retailers returns a copy of the registered retailers in priority order.
func (t *Tracker) Retailers() []Retailer {
	return append([]Retailer(nil), t.retailers...)
}

// Save writes the tracked items and settings to the configured state
// backend. Save is a no-op when persistence is disabled.
func (t *Tracker) Save(ctx context.Context) error {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	t.mu.Lock()
	repo := t.repo
	t.mu.Unlock()
	if repo == nil {
		return nil
	}

	snap := state.Snapshot{Settings: t.settings.Get()}
	for _, it := range t.store.List() {
		snap.Items = append(snap.Items, state.Entry{Item: it.Name, URL: it.URL})
	}
	if err := repo.Save(ctx, snap); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// Close releases the state backend and idle fetch connections. [Tracker.Start]
// calls it on shutdown; callers using only [Tracker.RunOnce] or
// [Tracker.Check] should call it themselves. Close is idempotent.
func (t *Tracker) Close() error {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.repo = nil

	t.client.Close()
	if t.closeRepo != nil {
		return t.closeRepo()
	}
	return nil
}

// load opens the state backend and merges saved and configured items into
// the store. Only the first call does any work.
func (t *Tracker) load(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loaded {
		return nil
	}
	if t.closed {
		return errors.New("tracker is closed")
	}

	snap := state.Snapshot{Settings: t.settings.Get()}
	if t.cfg.statePath != "" {
		repo, closeRepo, err := openRepository(ctx, t.cfg.stateBackend, t.cfg.statePath)
		if err != nil {
			return err
		}
		t.repo, t.closeRepo = repo, closeRepo
		snap = state.LoadOr(ctx, repo, snap, t.logger)
	}

	for _, e := range snap.Items {
		t.store.Upsert(e.Item, e.URL)
	}
	for _, it := range t.cfg.items {
		t.store.Upsert(it.name, it.url)
	}
	if err := t.settings.Update(snap.Settings); err != nil {
		t.logger.Warn("ignoring loaded settings", "error", err)
	}
	// later updates come from the API, the dashboard or a config reload
	t.settings.OnChange(t.logSettings)

	t.loaded = true
	return nil
}

func openRepository(ctx context.Context, backend, path string) (state.Repository, func() error, error) {
	switch backend {
	case StateSQLite:
		repo, err := state.OpenSQLite(ctx, path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open state: %w", err)
		}
		return repo, repo.Close, nil
	default:
		return state.NewFileRepository(path), nil, nil
	}
}

func (t *Tracker) persistent() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.repo != nil
}

// persist saves after a change made through the dashboard or the API.
func (t *Tracker) persist() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := t.Save(ctx); err != nil {
		t.logger.Warn("failed to persist change", "error", err)
	}
}

func (t *Tracker) logSettings(s settings.Settings) {
	t.logger.Info("settings updated",
		"interval_seconds", s.IntervalSeconds,
		"email_alerts", s.EmailAlerts,
	)
}

// logPass logs the outcome of every pass.
func (t *Tracker) logPass(r PassReport) {
	t.logger.Info("pass complete",
		"items", r.Items,
		"in_stock", r.Counts[StatusInStock],
		"out_of_stock", r.Counts[StatusOutOfStock],
		"fetch_error", r.Counts[StatusFetchError],
		"skipped", r.Skipped,
		"duration_ms", r.Duration.Milliseconds(),
	)
}

// passObserver runs status callbacks and then the alert coordinator for
// every transition a pass records.
type passObserver struct {
	alerts    *alert.Coordinator
	callbacks []func(StatusChange)
	logger    *slog.Logger
}

func (o *passObserver) Observe(ctx context.Context, tr store.Transition) error {
	if len(o.callbacks) > 0 {
		change := StatusChange{
			Name:      tr.Name,
			URL:       tr.URL,
			Previous:  tr.Previous,
			Current:   tr.Current,
			CheckedAt: time.Now(),
		}
		for _, cb := range o.callbacks {
			invokeCallbackSafe(cb, change, o.logger)
		}
	}
	return o.alerts.Observe(ctx, tr)
}

// callbackNotifier delivers alerts to functions registered with
// [WithAlertCallback].
type callbackNotifier struct {
	callbacks []func(Alert)
	logger    *slog.Logger
}

func (n *callbackNotifier) Name() string { return "callback" }

func (n *callbackNotifier) Notify(_ context.Context, a Alert) error {
	for _, cb := range n.callbacks {
		invokeCallbackSafe(cb, a, n.logger)
	}
	return nil
}

// invokeCallbackSafe calls a user callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe[T any](cb func(T), v T, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("callback panicked", "panic", r)
		}
	}()
	cb(v)
}
