package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jpalmerr/stockpulse/internal/settings"
	"github.com/jpalmerr/stockpulse/internal/store"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 64 << 10

// itemView is the JSON shape of a tracked item.
type itemView struct {
	Name           string     `json:"name"`
	URL            string     `json:"url"`
	Status         string     `json:"status"`
	StatusLabel    string     `json:"status_label"`
	PreviousStatus string     `json:"previous_status"`
	CheckedAt      *time.Time `json:"checked_at,omitempty"`
}

func newItemView(item store.Item) itemView {
	v := itemView{
		Name:           item.Name,
		URL:            item.URL,
		Status:         item.Status.String(),
		StatusLabel:    item.Status.Label(),
		PreviousStatus: item.PreviousStatus.String(),
	}
	if !item.CheckedAt.IsZero() {
		at := item.CheckedAt
		v.CheckedAt = &at
	}
	return v
}

type itemRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type editRequest struct {
	Old  itemRequest `json:"old"`
	Name string      `json:"name"`
	URL  string      `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// settingsRequest accepts the interval as a number or a numeric string.
type settingsRequest struct {
	IntervalSeconds json.RawMessage `json:"interval_seconds"`
	EmailAlerts     bool            `json:"email_alerts"`
	EmailAddress    string          `json:"email_address"`
}

func (s *Server) handleListItems(w http.ResponseWriter, _ *http.Request) {
	items := s.cfg.Store.List()
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, newItemView(item))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !s.decode(w, r, &req) {
		return
	}
	name, rawURL, err := validateItem(req.Name, req.URL)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusOK
	if s.cfg.Store.Upsert(name, rawURL) {
		status = http.StatusCreated
		s.logger.Info("item added", "item", name, "url", rawURL)
		s.changed()
	}
	item, _ := s.cfg.Store.Get(name, rawURL)
	s.writeJSON(w, status, newItemView(item))
}

func (s *Server) handleEditItem(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !s.decode(w, r, &req) {
		return
	}
	name, rawURL, err := validateItem(req.Name, req.URL)
	if err != nil {
		s.writeError(w, err)
		return
	}

	old := store.Key{Name: strings.TrimSpace(req.Old.Name), URL: strings.TrimSpace(req.Old.URL)}
	if err := s.cfg.Store.Edit(old, name, rawURL); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("item edited", "item", name, "url", rawURL, "old_item", old.Name)
	s.changed()

	item, _ := s.cfg.Store.Get(name, rawURL)
	s.writeJSON(w, http.StatusOK, newItemView(item))
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if name == "" || rawURL == "" {
		s.writeError(w, &settings.ConfigError{Field: "name", Reason: "name and url query parameters are required"})
		return
	}

	if _, ok := s.cfg.Store.Get(name, rawURL); ok {
		s.cfg.Store.Remove(name, rawURL)
		s.logger.Info("item removed", "item", name, "url", rawURL)
		s.changed()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTestAlert(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Alerts == nil {
		http.Error(w, "Alerts not configured", http.StatusNotImplemented)
		return
	}

	var req itemRequest
	if !s.decode(w, r, &req) {
		return
	}
	item, ok := s.cfg.Store.Get(strings.TrimSpace(req.Name), strings.TrimSpace(req.URL))
	if !ok {
		s.writeError(w, store.ErrNotFound)
		return
	}

	if err := s.cfg.Alerts.Trigger(r.Context(), item.Name, item.URL); err != nil {
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Settings.Get())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !s.decode(w, r, &req) {
		return
	}

	interval, err := settings.ParseInterval(strings.Trim(string(req.IntervalSeconds), `"`))
	if err != nil {
		s.writeError(w, err)
		return
	}
	next := settings.Settings{
		IntervalSeconds: interval,
		EmailAlerts:     req.EmailAlerts,
		EmailAddress:    req.EmailAddress,
	}.Normalize()

	if err := s.cfg.Settings.Update(next); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("settings updated",
		"interval_seconds", next.IntervalSeconds,
		"email_alerts", next.EmailAlerts,
	)
	s.changed()
	s.writeJSON(w, http.StatusOK, s.cfg.Settings.Get())
}

// validateItem trims and checks an item name and product URL.
func validateItem(name, rawURL string) (string, string, error) {
	name = strings.TrimSpace(name)
	rawURL = strings.TrimSpace(rawURL)
	if name == "" {
		return "", "", &settings.ConfigError{Field: "name", Reason: "cannot be empty"}
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", "", &settings.ConfigError{Field: "url", Reason: fmt.Sprintf("%q is not an http(s) product link", rawURL)}
	}
	return name, rawURL, nil
}

// decode reads a JSON body into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var cfgErr *settings.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: cfgErr.Error(), Field: cfgErr.Field})
	case errors.Is(err, store.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrDuplicate):
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		s.logger.Error("api error", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
