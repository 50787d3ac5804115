package stockpulse

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	tr, err := New(WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = tr.Close() }()

	if tr.Port() != 8080 {
		t.Errorf("Port() = %d, want 8080", tr.Port())
	}
	if got := tr.Settings(); got.IntervalSeconds != 60 || got.EmailAlerts {
		t.Errorf("Settings() = %+v, want 60s with alerts off", got)
	}

	retailers := tr.Retailers()
	if len(retailers) != 2 || retailers[0].Name() != "amazon" || retailers[1].Name() != "bestbuy" {
		t.Errorf("Retailers() = %v, want amazon, bestbuy", retailers)
	}
	if len(tr.Items()) != 0 {
		t.Errorf("Items() = %v, want none before load", tr.Items())
	}
}

func TestNew_CustomRetailersReplaceDefaults(t *testing.T) {
	shop, err := NewRetailer("game", nil, "game.co.uk")
	if err != nil {
		t.Fatalf("NewRetailer() error = %v", err)
	}

	tr, err := New(WithRetailer(shop), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = tr.Close() }()

	if got := tr.Retailers(); len(got) != 1 || got[0].Name() != "game" {
		t.Errorf("Retailers() = %v, want [game]", got)
	}
}

func TestNew_DuplicateRetailerNames(t *testing.T) {
	_, err := New(WithRetailers(Amazon(), Amazon()))
	if err == nil {
		t.Fatal("New() expected error for duplicate retailer names, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate retailer name") {
		t.Errorf("New() error = %v, want error containing 'duplicate retailer name'", err)
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"port zero", WithPort(0)},
		{"port too high", WithPort(70000)},
		{"nil logger", WithLogger(nil)},
		{"zero fetch timeout", WithFetchTimeout(0)},
		{"negative pass delay", WithPassDelay(-time.Second)},
		{"zero notify timeout", WithNotifyTimeout(0)},
		{"bad autosave", WithAutosave("every now and then")},
		{"bad state backend", WithState("postgres", "x")},
		{"zero interval", WithSettings(Settings{IntervalSeconds: 0})},
		{"alerts without address", WithSettings(Settings{IntervalSeconds: 30, EmailAlerts: true})},
		{"smtp without host", WithSMTP(SMTPConfig{From: "bot@example.com"})},
		{"telegram without chat", WithTelegram(TelegramConfig{Token: "123:abc"})},
		{"zero retailer", WithRetailer(Retailer{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opt); err == nil {
				t.Error("New() expected error, got nil")
			}
		})
	}
}

func TestNew_ValidOptions(t *testing.T) {
	tr, err := New(
		WithPort(9090),
		WithTitle("Console Restocks"),
		WithSettings(Settings{IntervalSeconds: 15, EmailAlerts: true, EmailAddress: " me@example.com "}),
		WithState(StateSQLite, ""),
		WithAutosave(""),
		WithFetchTimeout(2*time.Second),
		WithPassDelay(0),
		WithUserAgent("stockpulse-test"),
		WithRobotsTxt(true),
		WithNotifyTimeout(time.Second),
		WithSMTP(SMTPConfig{Host: "smtp.example.com", From: "bot@example.com"}),
		WithStatusCallback(nil),
		WithAlertCallback(nil),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = tr.Close() }()

	if tr.Port() != 9090 {
		t.Errorf("Port() = %d, want 9090", tr.Port())
	}
	want := Settings{IntervalSeconds: 15, EmailAlerts: true, EmailAddress: "me@example.com"}
	if got := tr.Settings(); got != want {
		t.Errorf("Settings() = %+v, want %+v", got, want)
	}
}

func TestWithLogger_UsedForOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tr, err := New(WithLogger(logger), WithPort(19300))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := tr.UpdateSettings(Settings{IntervalSeconds: 5}); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	_ = tr.Close()

	if !strings.Contains(buf.String(), "settings updated") {
		t.Errorf("custom logger not used, output: %q", buf.String())
	}
}
