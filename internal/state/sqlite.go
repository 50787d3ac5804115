package state

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/jpalmerr/stockpulse/internal/settings"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	position INTEGER NOT NULL,
	name     TEXT    NOT NULL,
	url      TEXT    NOT NULL,
	PRIMARY KEY (name, url)
);
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const (
	keyInterval     = "interval_seconds"
	keyEmailAlerts  = "email_alerts"
	keyEmailAddress = "email_address"
)

// SQLiteRepository stores the snapshot in a SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single writer; avoids SQLITE_BUSY between pool connections
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Load implements [Repository]. An empty database reports [ErrNotExist].
func (r *SQLiteRepository) Load(ctx context.Context) (Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, url FROM items ORDER BY position`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var snap Snapshot
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Item, &e.URL); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		snap.Items = append(snap.Items, e)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("failed to read items: %w", err)
	}

	values, err := r.settingValues(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if len(values) == 0 && len(snap.Items) == 0 {
		return Snapshot{}, ErrNotExist
	}

	snap.Settings, err = decodeSettings(values)
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (r *SQLiteRepository) settingValues(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return values, nil
}

func decodeSettings(values map[string]string) (settings.Settings, error) {
	s := settings.Default()
	if v, ok := values[keyInterval]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return s, fmt.Errorf("%w: %s=%q", ErrCorrupt, keyInterval, v)
		}
		s.IntervalSeconds = n
	}
	if v, ok := values[keyEmailAlerts]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return s, fmt.Errorf("%w: %s=%q", ErrCorrupt, keyEmailAlerts, v)
		}
		s.EmailAlerts = b
	}
	s.EmailAddress = values[keyEmailAddress]
	return s, nil
}

// Save implements [Repository]. Items and settings are replaced in a single
// transaction.
func (r *SQLiteRepository) Save(ctx context.Context, s Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}
	for i, e := range s.Items {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO items (position, name, url) VALUES (?, ?, ?)`, i, e.Item, e.URL); err != nil {
			return fmt.Errorf("failed to save item %q: %w", e.Item, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM settings`); err != nil {
		return fmt.Errorf("failed to clear settings: %w", err)
	}
	values := map[string]string{
		keyInterval:     strconv.Itoa(s.Settings.IntervalSeconds),
		keyEmailAlerts:  strconv.FormatBool(s.Settings.EmailAlerts),
		keyEmailAddress: s.Settings.EmailAddress,
	}
	for k, v := range values {
		if _, err := tx.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to save setting %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}
