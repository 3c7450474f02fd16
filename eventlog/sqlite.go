// Package eventlog provides a SQLite-backed core.EventSink for deployments
// that need the outcome log to survive restarts. Semantics match the
// in-memory sink: append-only, ordered, queryable by lot, no retraction.
package eventlog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agrilot/sealedlot/core"
)

// SQLite is a persistent EventSink. A single connection with WAL journaling
// handles the append-style workload; the seq column is the rowid, so append
// order and sequence order coincide.
type SQLite struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens the event database at path.
func Open(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS events (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL,
	kind        TEXT NOT NULL,
	lot_id      INTEGER NOT NULL,
	winner      TEXT NOT NULL,
	amount      INTEGER NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_lot ON events(lot_id, seq);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Append implements core.EventSink.
func (s *SQLite) Append(ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO events (id, kind, lot_id, winner, amount, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Kind), int64(ev.LotID), string(ev.Winner), int64(ev.Amount),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ByLot implements core.EventSink.
func (s *SQLite) ByLot(lotID uint64) ([]core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT seq, id, kind, lot_id, winner, amount FROM events WHERE lot_id = ? ORDER BY seq`,
		int64(lotID),
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []core.Event
	for rows.Next() {
		var (
			ev     core.Event
			kind   string
			lot    int64
			winner string
			amount int64
			seq    int64
		)
		if err := rows.Scan(&seq, &ev.ID, &kind, &lot, &winner, &amount); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Seq = uint64(seq)
		ev.Kind = core.EventKind(kind)
		ev.LotID = uint64(lot)
		ev.Winner = core.Identity(winner)
		ev.Amount = uint64(amount)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// Close flushes and closes the database.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
