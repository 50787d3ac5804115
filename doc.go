// Package stockpulse tracks product pages at online retailers and alerts
// once when an item comes back in stock.
//
// A [Tracker] polls every tracked item on a fixed refresh interval, records
// each item's current and previous [Status], and sends a restock alert on
// the transition into [StatusInStock]. An item that stays in stock alerts
// only once. A web dashboard lists the items live and lets the user add,
// edit and remove them and change the settings.
//
// # Quick Start
//
//	ps5, _ := stockpulse.NewItem("PS5", "https://www.bestbuy.com/site/6426149.p")
//	t, _ := stockpulse.New(
//	    stockpulse.WithItem(ps5),
//	    stockpulse.WithState(stockpulse.StateFile, "stockpulse.yaml"),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	t.Start(ctx) // blocks until ctx is cancelled
//
// # Polling
//
// The refresh interval is counted in one-second ticks. When it elapses a
// pass checks every item in turn, pausing between fetches. Passes never
// overlap: a refresh that comes due while a pass is still running is
// dropped, not queued. Changing the interval takes effect on the next tick.
//
// # Retailers and Extractors
//
// A [Retailer] claims URLs by host pattern and reads availability from the
// product page with an [Extractor]. URLs no retailer claims, pages that
// cannot be fetched within the timeout, and pages without a clear signal
// are all recorded as [StatusFetchError]; nothing in a pass fails loudly.
//
// Built-in extractors:
//
//   - [JSONLDExtractor]: schema.org Offer availability from JSON-LD blocks
//   - [SelectorExtractor]: presence of in-stock or out-of-stock elements
//   - [TextExtractor]: phrases inside selected elements
//   - [ContainsExtractor]: phrases anywhere in the page body
//   - [FirstMatch]: tries extractors in order, returning the first decisive result
//
// [Amazon] and [BestBuy] are registered by default.
//
// # Alerts
//
// Restock alerts go to the log and the dashboard, and optionally to email
// ([WithSMTP]), Telegram ([WithTelegram]) and callbacks
// ([WithAlertCallback]). A failing destination never affects the others or
// the recorded status.
//
// # Architecture
//
// The internal packages are not part of the public API:
//
//   - internal/store: thread-safe item store with pub/sub for live updates
//   - internal/fetch: colly page client and the retailer dispatcher
//   - internal/poller: tick driver and non-overlapping passes
//   - internal/alert: edge-triggered alert coordinator
//   - internal/notify: email, Telegram and log notifiers
//   - internal/state: YAML file and SQLite persistence, autosave
//   - internal/server: dashboard, JSON API, Server-Sent Events, metrics
//   - dashboard: embedded web UI assets
package stockpulse
