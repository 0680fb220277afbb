// Package journal persists item transitions and validation runs for audit.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/provisionwatch/provisionwatch/internal/inspect"
)

// Store persists the journal using modernc.org/sqlite (pure Go, no CGO).
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the journal database at the given path.
// ":memory:" gives an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One pooled connection: the pool would otherwise hand ":memory:" a
	// fresh database per connection.
	db.SetMaxOpenConns(1)

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transitions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id     TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status   TEXT NOT NULL,
		source      TEXT NOT NULL,
		timestamp   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS validation_runs (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		total     INTEGER NOT NULL,
		valid     INTEGER NOT NULL,
		score     REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transitions_item ON transitions(item_id, id DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Entry is one recorded transition.
type Entry struct {
	ID     int64          `json:"id"`
	ItemID string         `json:"item_id"`
	From   inspect.Status `json:"from"`
	To     inspect.Status `json:"to"`
	Source inspect.Source `json:"source"`
	Time   time.Time      `json:"time"`
}

// Summary holds aggregate journal counts.
type Summary struct {
	Transitions    int       `json:"transitions"`
	Items          int       `json:"items"`
	ValidationRuns int       `json:"validation_runs"`
	LastScore      float64   `json:"last_score"`
	LastTransition time.Time `json:"last_transition,omitempty"`
}

// RecordTransition appends one transition event.
func (s *Store) RecordTransition(ctx context.Context, ev inspect.TransitionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (item_id, from_status, to_status, source, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.ItemID, string(ev.From), string(ev.To), string(ev.Source),
		ev.Time.UTC().Format(time.RFC3339),
	)
	return err
}

// RecordValidation appends the outcome of one validation pass.
func (s *Store) RecordValidation(ctx context.Context, snap inspect.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	valid := 0
	for _, res := range snap.Validation {
		if res.Valid {
			valid++
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO validation_runs (timestamp, total, valid, score) VALUES (?, ?, ?, ?)`,
		snap.Time.UTC().Format(time.RFC3339), len(snap.Items), valid, snap.Score,
	)
	return err
}

// ListTransitions returns recorded transitions newest first, optionally
// filtered by item id. limit <= 0 means no limit.
func (s *Store) ListTransitions(ctx context.Context, itemID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, item_id, from_status, to_status, source, timestamp FROM transitions"
	var args []any
	if itemID != "" {
		query += " WHERE item_id = ?"
		args = append(args, itemID)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &e.ItemID, &e.From, &e.To, &e.Source, &ts); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			e.Time = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetSummary returns aggregate counts across the whole journal.
func (s *Store) GetSummary(ctx context.Context) (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum Summary
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT item_id), COALESCE(MAX(timestamp), '') FROM transitions`)
	var last string
	if err := row.Scan(&sum.Transitions, &sum.Items, &last); err != nil {
		return nil, err
	}
	if last != "" {
		if t, err := time.Parse(time.RFC3339, last); err == nil {
			sum.LastTransition = t
		}
	}

	row = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE((SELECT score FROM validation_runs ORDER BY id DESC LIMIT 1), 0) FROM validation_runs`)
	if err := row.Scan(&sum.ValidationRuns, &sum.LastScore); err != nil {
		return nil, err
	}
	return &sum, nil
}
