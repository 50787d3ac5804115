package settings

import (
	"errors"
	"sync"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		settings  Settings
		wantField string
	}{
		{name: "defaults", settings: Default()},
		{name: "alerts off without address", settings: Settings{IntervalSeconds: 5}},
		{name: "alerts on with address", settings: Settings{IntervalSeconds: 5, EmailAlerts: true, EmailAddress: "me@example.com"}},
		{name: "zero interval", settings: Settings{IntervalSeconds: 0}, wantField: "interval_seconds"},
		{name: "negative interval", settings: Settings{IntervalSeconds: -3}, wantField: "interval_seconds"},
		{name: "alerts on missing address", settings: Settings{IntervalSeconds: 5, EmailAlerts: true}, wantField: "email_address"},
		{name: "alerts on blank address", settings: Settings{IntervalSeconds: 5, EmailAlerts: true, EmailAddress: "   "}, wantField: "email_address"},
		{name: "alerts on bad address", settings: Settings{IntervalSeconds: 5, EmailAlerts: true, EmailAddress: "not-an-address"}, wantField: "email_address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() error = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.wantField)
			}
		})
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{input: "30", want: 30},
		{input: " 2 ", want: 2},
		{input: "0", wantErr: true},
		{input: "-1", wantErr: true},
		{input: "abc", wantErr: true},
		{input: "1.5", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseInterval(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseInterval(%q) = %d, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInterval(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseInterval(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewHolder_InvalidSeedFallsBack(t *testing.T) {
	h := NewHolder(Settings{IntervalSeconds: -1})
	if got := h.Get(); got != Default() {
		t.Errorf("Get() = %+v, want %+v", got, Default())
	}
}

func TestHolder_UpdateRejectsInvalid(t *testing.T) {
	h := NewHolder(Settings{IntervalSeconds: 10})

	if err := h.Update(Settings{IntervalSeconds: 0}); err == nil {
		t.Fatal("Update() error = nil, want error")
	}
	if got := h.IntervalSeconds(); got != 10 {
		t.Errorf("IntervalSeconds() = %d, want 10", got)
	}

	if err := h.Update(Settings{IntervalSeconds: 3, EmailAlerts: true, EmailAddress: " me@example.com "}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got := h.Get()
	if got.IntervalSeconds != 3 || got.EmailAddress != "me@example.com" {
		t.Errorf("Get() = %+v, want interval 3 and trimmed address", got)
	}
}

func TestHolder_OnChange(t *testing.T) {
	h := NewHolder(Default())

	var seen []int
	h.OnChange(func(s Settings) { seen = append(seen, s.IntervalSeconds) })
	h.OnChange(nil)

	_ = h.Update(Settings{IntervalSeconds: 5})
	_ = h.Update(Settings{IntervalSeconds: -5})
	_ = h.Update(Settings{IntervalSeconds: 7})

	if len(seen) != 2 || seen[0] != 5 || seen[1] != 7 {
		t.Errorf("OnChange saw %v, want [5 7]", seen)
	}
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	h := NewHolder(Default())

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = h.Update(Settings{IntervalSeconds: n})
		}(i)
		go func() {
			defer wg.Done()
			if h.IntervalSeconds() <= 0 {
				t.Error("IntervalSeconds() <= 0")
			}
		}()
	}
	wg.Wait()
}
