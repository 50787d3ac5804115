package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jpalmerr/stockpulse/internal/alert"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// sseKeepAlive is how often an idle stream sends a comment line so
	// proxies keep the connection open.
	sseKeepAlive = 30 * time.Second
)

// SSE event names.
const (
	eventItem   = "item"
	eventRemove = "remove"
	eventAlert  = "alert"
)

// handleSSE streams item changes, removals and restock alerts via
// Server-Sent Events.
//
// Every write carries a deadline so a slow or vanished client cannot block
// the handler past shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	write := func(payload string) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprint(w, payload); err != nil {
			return err
		}
		return rc.Flush()
	}

	send := func(event string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			// unencodable values are skipped, not fatal to the stream
			return nil
		}
		return write(fmt.Sprintf("event: %s\ndata: %s\n\n", event, data))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	items := s.cfg.Store.Subscribe()
	defer s.cfg.Store.Unsubscribe(items)

	var alerts <-chan alert.Alert
	if s.cfg.Feed != nil {
		alerts = s.cfg.Feed.Subscribe()
		defer s.cfg.Feed.Unsubscribe(alerts)
	}

	for _, item := range s.cfg.Store.List() {
		if err := send(eventItem, newItemView(item)); err != nil {
			return
		}
	}

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case item, ok := <-items:
			if !ok {
				return
			}
			event, payload := eventItem, any(newItemView(item))
			if item.Removed {
				event, payload = eventRemove, item.Key()
			}
			if err := send(event, payload); err != nil {
				return
			}

		case a, ok := <-alerts:
			if !ok {
				return
			}
			if err := send(eventAlert, a); err != nil {
				return
			}

		case <-keepAlive.C:
			if err := write(": keep-alive\n\n"); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and, via BaseContext, on shutdown
			return
		}
	}
}
