package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/jpalmerr/stockpulse/internal/alert"
	"github.com/jpalmerr/stockpulse/internal/settings"
	"github.com/jpalmerr/stockpulse/internal/stock"
)

func testAlert() alert.Alert {
	return alert.Alert{
		Name:     "PS5",
		URL:      "https://www.amazon.com/dp/B0",
		Previous: stock.OutOfStock,
		At:       time.Date(2024, 11, 29, 9, 0, 0, 0, time.UTC),
	}
}

func smtpConfig() SMTPConfig {
	return SMTPConfig{Host: "smtp.example.com", From: "stockpulse@example.com"}
}

func TestEmailNotifierEnabled(t *testing.T) {
	tests := []struct {
		name     string
		cfg      SMTPConfig
		settings settings.Settings
		want     bool
	}{
		{
			name:     "alerts on and smtp configured",
			cfg:      smtpConfig(),
			settings: settings.Settings{IntervalSeconds: 60, EmailAlerts: true, EmailAddress: "me@example.com"},
			want:     true,
		},
		{
			name:     "alerts off",
			cfg:      smtpConfig(),
			settings: settings.Settings{IntervalSeconds: 60},
			want:     false,
		},
		{
			name:     "no smtp host",
			cfg:      SMTPConfig{From: "stockpulse@example.com"},
			settings: settings.Settings{IntervalSeconds: 60, EmailAlerts: true, EmailAddress: "me@example.com"},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewEmailNotifier(tt.cfg, settings.NewHolder(tt.settings))
			if err != nil {
				t.Fatalf("NewEmailNotifier() error = %v", err)
			}
			if got := n.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmailNotifierFollowsSettingsUpdates(t *testing.T) {
	holder := settings.NewHolder(settings.Default())
	n, err := NewEmailNotifier(smtpConfig(), holder)
	if err != nil {
		t.Fatalf("NewEmailNotifier() error = %v", err)
	}
	if n.Enabled() {
		t.Fatal("Enabled() = true with default settings")
	}

	if err := holder.Update(settings.Settings{IntervalSeconds: 30, EmailAlerts: true, EmailAddress: "me@example.com"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !n.Enabled() {
		t.Error("Enabled() = false after enabling alerts")
	}
}

func TestEmailNotifierNotify(t *testing.T) {
	holder := settings.NewHolder(settings.Settings{IntervalSeconds: 60, EmailAlerts: true, EmailAddress: "me@example.com"})
	n, err := NewEmailNotifier(smtpConfig(), holder)
	if err != nil {
		t.Fatalf("NewEmailNotifier() error = %v", err)
	}

	var sent *mail.Msg
	n.send = func(_ context.Context, msg *mail.Msg) error {
		sent = msg
		return nil
	}

	if err := n.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if sent == nil {
		t.Fatal("no message sent")
	}

	var buf bytes.Buffer
	if _, err := sent.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	raw := buf.String()
	for _, want := range []string{"Subject: PS5 is in stock", "me@example.com", "stockpulse@example.com", "text/html"} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q:\n%s", want, raw)
		}
	}
}

func TestEmailNotifierSendFailure(t *testing.T) {
	holder := settings.NewHolder(settings.Settings{IntervalSeconds: 60, EmailAlerts: true, EmailAddress: "me@example.com"})
	n, err := NewEmailNotifier(smtpConfig(), holder)
	if err != nil {
		t.Fatalf("NewEmailNotifier() error = %v", err)
	}
	smtpErr := errors.New("535 authentication failed")
	n.send = func(context.Context, *mail.Msg) error { return smtpErr }

	err = n.Notify(context.Background(), testAlert())
	if !errors.Is(err, smtpErr) {
		t.Errorf("Notify() error = %v, want %v", err, smtpErr)
	}
}

func TestEmailRenderSanitizes(t *testing.T) {
	cfg := smtpConfig()
	cfg.Template = `<p onclick="steal()">{{.Name}}</p><script>alert(1)</script><a href="{{.URL}}">go</a>`
	n, err := NewEmailNotifier(cfg, settings.NewHolder(settings.Default()))
	if err != nil {
		t.Fatalf("NewEmailNotifier() error = %v", err)
	}

	a := testAlert()
	a.Name = `<img src=x onerror=alert(1)>Switch`
	html, err := n.renderHTML(a)
	if err != nil {
		t.Fatalf("renderHTML() error = %v", err)
	}

	for _, banned := range []string{"<script", "onclick", "<img"} {
		if strings.Contains(html, banned) {
			t.Errorf("rendered HTML contains %q: %s", banned, html)
		}
	}
	if !strings.Contains(html, `href="https://www.amazon.com/dp/B0"`) {
		t.Errorf("rendered HTML lost the product link: %s", html)
	}
	if !strings.Contains(html, `rel="nofollow`) {
		t.Errorf("rendered HTML missing nofollow: %s", html)
	}
}

func TestNewEmailNotifierBadTemplate(t *testing.T) {
	cfg := smtpConfig()
	cfg.Template = "{{.Name"
	if _, err := NewEmailNotifier(cfg, settings.NewHolder(settings.Default())); err == nil {
		t.Error("NewEmailNotifier() error = nil, want template error")
	}
}

func TestPlainBody(t *testing.T) {
	a := testAlert()
	a.Test = true
	body := plainBody(a)
	for _, want := range []string{"PS5 is back in stock.", "Previously: Out of Stock", "Link: https://www.amazon.com/dp/B0", "test alert"} {
		if !strings.Contains(body, want) {
			t.Errorf("plainBody() missing %q:\n%s", want, body)
		}
	}
}

func TestTLSPolicy(t *testing.T) {
	tests := map[string]mail.TLSPolicy{
		"":              mail.TLSOpportunistic,
		"opportunistic": mail.TLSOpportunistic,
		"Mandatory":     mail.TLSMandatory,
		"none":          mail.NoTLS,
	}
	for in, want := range tests {
		if got := tlsPolicy(in); got != want {
			t.Errorf("tlsPolicy(%q) = %v, want %v", in, got, want)
		}
	}
}

// fakeBotAPI records sendMessage calls made by the Telegram notifier.
type fakeBotAPI struct {
	mu       sync.Mutex
	requests []map[string]any
	fail     bool
}

func (f *fakeBotAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Errorf("unexpected Bot API call %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)

		f.mu.Lock()
		f.requests = append(f.requests, req)
		fail := f.fail
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":1700000000,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
	}
}

func TestTelegramNotifier(t *testing.T) {
	api := &fakeBotAPI{}
	server := httptest.NewServer(api.handler(t))
	defer server.Close()

	n, err := NewTelegramNotifier(TelegramConfig{Token: "123:abc", ChatID: 42, APIURL: server.URL})
	if err != nil {
		t.Fatalf("NewTelegramNotifier() error = %v", err)
	}
	if err := n.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.requests) != 1 {
		t.Fatalf("sendMessage calls = %d, want 1", len(api.requests))
	}
	text, _ := api.requests[0]["text"].(string)
	if !strings.Contains(text, "PS5 is in stock") || !strings.Contains(text, "https://www.amazon.com/dp/B0") {
		t.Errorf("message text = %q", text)
	}
}

func TestTelegramNotifierFailure(t *testing.T) {
	api := &fakeBotAPI{fail: true}
	server := httptest.NewServer(api.handler(t))
	defer server.Close()

	n, err := NewTelegramNotifier(TelegramConfig{Token: "123:abc", ChatID: 42, APIURL: server.URL})
	if err != nil {
		t.Fatalf("NewTelegramNotifier() error = %v", err)
	}
	if err := n.Notify(context.Background(), testAlert()); err == nil {
		t.Error("Notify() error = nil, want Bot API error")
	}
}

func TestNewTelegramNotifierValidation(t *testing.T) {
	if _, err := NewTelegramNotifier(TelegramConfig{ChatID: 42}); err == nil {
		t.Error("NewTelegramNotifier() without token: error = nil")
	}
	if _, err := NewTelegramNotifier(TelegramConfig{Token: "123:abc"}); err == nil {
		t.Error("NewTelegramNotifier() without chat id: error = nil")
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	if err := NewLogNotifier(logger).Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "RESTOCK" || entry["item"] != "PS5" || entry["previous"] != "out_of_stock" {
		t.Errorf("log entry = %v", entry)
	}
}
