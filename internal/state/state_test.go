package state

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/stockpulse/internal/settings"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleSnapshot() Snapshot {
	return Snapshot{
		Items: []Entry{
			{Item: "PS5", URL: "https://www.amazon.com/dp/B0"},
			{Item: "Switch", URL: "https://www.bestbuy.com/site/switch.p"},
		},
		Settings: settings.Settings{IntervalSeconds: 30, EmailAlerts: true, EmailAddress: "me@example.com"},
	}
}

func repositories(t *testing.T) map[string]Repository {
	t.Helper()
	dir := t.TempDir()

	db, err := OpenSQLite(context.Background(), filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]Repository{
		"file":   NewFileRepository(filepath.Join(dir, "nested", "state.yaml")),
		"sqlite": db,
	}
}

func TestRepositorySaveLoad(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := repo.Load(ctx); !errors.Is(err, ErrNotExist) {
				t.Fatalf("Load() on empty repository error = %v, want ErrNotExist", err)
			}

			want := sampleSnapshot()
			if err := repo.Save(ctx, want); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			got, err := repo.Load(ctx)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Load() = %+v, want %+v", got, want)
			}

			// a second save replaces rather than appends
			smaller := Snapshot{Items: want.Items[1:], Settings: settings.Default()}
			if err := repo.Save(ctx, smaller); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			got, err = repo.Load(ctx)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !reflect.DeepEqual(got, smaller) {
				t.Errorf("Load() after replace = %+v, want %+v", got, smaller)
			}
		})
	}
}

func TestFileRepositoryFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	repo := NewFileRepository(path)
	if err := repo.Save(context.Background(), sampleSnapshot()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, want := range []string{"items:", "item: PS5", "url: https://www.amazon.com/dp/B0", "interval_seconds: 30", "email_alerts: true"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("state file missing %q:\n%s", want, data)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the state file", len(entries))
	}
}

func TestFileRepositoryCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	if err := os.WriteFile(path, []byte("items: [\n  - {item: broken"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := NewFileRepository(path).Load(context.Background())
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("Load() error = %v, want ErrCorrupt", err)
	}
}

func TestSQLiteRepositoryCorruptSetting(t *testing.T) {
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer db.Close()

	if _, err := db.db.Exec(`INSERT INTO settings (key, value) VALUES ('interval_seconds', 'soon')`); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if _, err := db.Load(context.Background()); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Load() error = %v, want ErrCorrupt", err)
	}
}

type stubRepo struct {
	snap Snapshot
	err  error
}

func (s stubRepo) Load(context.Context) (Snapshot, error) { return s.snap, s.err }
func (s stubRepo) Save(context.Context, Snapshot) error   { return nil }

func TestLoadOr_Default(t *testing.T) {
	tests := []struct {
		name string
		repo Repository
		want Snapshot
	}{
		{
			name: "missing",
			repo: stubRepo{err: ErrNotExist},
			want: Default(),
		},
		{
			name: "corrupt",
			repo: stubRepo{err: ErrCorrupt},
			want: Default(),
		},
		{
			name: "io error",
			repo: stubRepo{err: errors.New("permission denied")},
			want: Default(),
		},
		{
			name: "valid",
			repo: stubRepo{snap: sampleSnapshot()},
			want: sampleSnapshot(),
		},
		{
			name: "invalid settings keep items",
			repo: stubRepo{snap: Snapshot{
				Items:    sampleSnapshot().Items,
				Settings: settings.Settings{IntervalSeconds: -5, EmailAlerts: true},
			}},
			want: Snapshot{Items: sampleSnapshot().Items, Settings: settings.Default()},
		},
		{
			name: "blank and duplicate entries dropped",
			repo: stubRepo{snap: Snapshot{
				Items: []Entry{
					{Item: "PS5", URL: "https://www.amazon.com/dp/B0"},
					{Item: "", URL: "https://www.amazon.com/dp/B1"},
					{Item: " PS5 ", URL: "https://www.amazon.com/dp/B0"},
					{Item: "Xbox", URL: ""},
				},
				Settings: settings.Default(),
			}},
			want: Snapshot{
				Items:    []Entry{{Item: "PS5", URL: "https://www.amazon.com/dp/B0"}},
				Settings: settings.Default(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LoadOr(context.Background(), tt.repo, Default(), testLogger())
			if len(got.Items) == 0 && len(tt.want.Items) == 0 {
				got.Items, tt.want.Items = nil, nil
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("LoadOr() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoadOrFallback(t *testing.T) {
	fallback := Snapshot{
		Items:    []Entry{{Item: "Seed", URL: "https://www.bestbuy.com/site/seed.p"}},
		Settings: settings.Settings{IntervalSeconds: 30},
	}

	got := LoadOr(context.Background(), stubRepo{err: ErrNotExist}, fallback, testLogger())
	if !reflect.DeepEqual(got, fallback) {
		t.Errorf("LoadOr(missing) = %+v, want %+v", got, fallback)
	}

	// saved state wins over the fallback
	got = LoadOr(context.Background(), stubRepo{snap: sampleSnapshot()}, fallback, testLogger())
	if !reflect.DeepEqual(got, sampleSnapshot()) {
		t.Errorf("LoadOr(saved) = %+v, want %+v", got, sampleSnapshot())
	}

	// invalid saved settings fall back to the caller's settings
	bad := sampleSnapshot()
	bad.Settings.IntervalSeconds = 0
	got = LoadOr(context.Background(), stubRepo{snap: bad}, fallback, testLogger())
	if got.Settings != fallback.Settings {
		t.Errorf("LoadOr(invalid settings).Settings = %+v, want %+v", got.Settings, fallback.Settings)
	}

	// an invalid fallback is itself replaced by defaults
	got = LoadOr(context.Background(), stubRepo{err: ErrCorrupt}, Snapshot{Settings: settings.Settings{IntervalSeconds: -1}}, testLogger())
	if got.Settings != settings.Default() {
		t.Errorf("LoadOr(invalid fallback).Settings = %+v, want defaults", got.Settings)
	}
}

func TestLoadOr_DefaultFromCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	if err := os.WriteFile(path, []byte("{{{{"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got := LoadOr(context.Background(), NewFileRepository(path), Default(), testLogger())
	if len(got.Items) != 0 || got.Settings != settings.Default() {
		t.Errorf("LoadOr() = %+v, want defaults", got)
	}
}

func TestAutosaver(t *testing.T) {
	var saves atomic.Int32
	a, err := NewAutosaver("@every 1s", func(context.Context) error {
		saves.Add(1)
		return nil
	}, testLogger())
	if err != nil {
		t.Fatalf("NewAutosaver() error = %v", err)
	}

	a.Start()
	deadline := time.Now().Add(3 * time.Second)
	for saves.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	a.Stop(ctx)

	if saves.Load() == 0 {
		t.Error("autosave never ran")
	}
}

func TestAutosaverInvalidSchedule(t *testing.T) {
	if _, err := NewAutosaver("every five minutes", func(context.Context) error { return nil }, testLogger()); err == nil {
		t.Error("NewAutosaver() error = nil, want schedule error")
	}
	if err := ValidateSchedule("@every 5m"); err != nil {
		t.Errorf("ValidateSchedule(@every 5m) error = %v", err)
	}
	if err := ValidateSchedule("61 * * * *"); err == nil {
		t.Error("ValidateSchedule(61 * * * *) error = nil")
	}
}
