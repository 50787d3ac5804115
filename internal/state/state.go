package state

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jpalmerr/stockpulse/internal/settings"
)

var (
	// ErrCorrupt is wrapped when saved state exists but cannot be decoded.
	ErrCorrupt = errors.New("saved state is corrupt")

	// ErrNotExist is wrapped when nothing has been saved yet.
	ErrNotExist = errors.New("no saved state")
)

// Entry is one persisted tracked item. Statuses are not persisted; every
// item starts Unknown after a restart.
type Entry struct {
	Item string `yaml:"item" json:"item"`
	URL  string `yaml:"url" json:"url"`
}

// Snapshot is everything the tracker persists.
type Snapshot struct {
	Items    []Entry           `yaml:"items" json:"items"`
	Settings settings.Settings `yaml:"settings" json:"settings"`
}

// Default returns the empty snapshot used when nothing could be loaded.
func Default() Snapshot {
	return Snapshot{Settings: settings.Default()}
}

// Repository loads and saves snapshots.
type Repository interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
}

// LoadOr loads the saved snapshot and recovers locally from anything that
// goes wrong: missing or corrupt state yields fallback, invalid saved
// settings are replaced by the fallback settings while the items are kept.
// Invalid fallback settings are replaced by defaults; pass [Default] for a
// fresh install.
func LoadOr(ctx context.Context, repo Repository, fallback Snapshot, logger *slog.Logger) Snapshot {
	if logger == nil {
		logger = slog.Default()
	}
	if err := fallback.Settings.Validate(); err != nil {
		fallback.Settings = settings.Default()
	}

	snap, err := repo.Load(ctx)
	switch {
	case errors.Is(err, ErrNotExist):
		logger.Info("no saved state, starting fresh")
		return fallback
	case err != nil:
		logger.Warn("failed to load saved state, starting fresh", "error", err)
		return fallback
	}

	if err := snap.Settings.Validate(); err != nil {
		logger.Warn("saved settings are invalid, using defaults", "error", err)
		snap.Settings = fallback.Settings
	}
	snap.Items = cleanEntries(snap.Items, logger)
	return snap
}

// cleanEntries drops blank and duplicate entries, keeping the first of each.
func cleanEntries(entries []Entry, logger *slog.Logger) []Entry {
	seen := make(map[Entry]struct{}, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		e.Item = strings.TrimSpace(e.Item)
		e.URL = strings.TrimSpace(e.URL)
		if e.Item == "" || e.URL == "" {
			logger.Warn("skipping saved item with missing field", "item", e.Item, "url", e.URL)
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
