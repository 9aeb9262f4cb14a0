// Package sqlite provides the launcher's command journal on SQLite.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/quorum-sim/generals/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/journal.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "journal.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			ended_at   INTEGER,
			generals   INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS commands (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			at         INTEGER NOT NULL,
			line       TEXT NOT NULL,
			outcome    TEXT NOT NULL,
			output     TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_session ON commands(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_at ON commands(at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// ─── Sessions ───────────────────────────────────────────────────────────────

// StartSession records the start of a launcher run.
func (d *DB) StartSession(s domain.Session) error {
	_, err := d.db.Exec(
		`INSERT INTO sessions (id, started_at, generals) VALUES (?, ?, ?)`,
		s.ID, s.StartedAt.UnixNano(), s.Generals,
	)
	return err
}

// EndSession stamps the end of a launcher run.
func (d *DB) EndSession(id string, at time.Time) error {
	result, err := d.db.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`, at.UnixNano(), id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// GetSession retrieves a session by id, or nil if it does not exist.
func (d *DB) GetSession(id string) (*domain.Session, error) {
	var s domain.Session
	var started int64
	var ended sql.NullInt64
	err := d.db.QueryRow(
		`SELECT id, started_at, ended_at, generals FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &started, &ended, &s.Generals)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.StartedAt = time.Unix(0, started)
	if ended.Valid {
		s.EndedAt = time.Unix(0, ended.Int64)
	}
	return &s, nil
}

// ─── Commands ───────────────────────────────────────────────────────────────

// RecordCommand appends a command to the journal and returns its id.
func (d *DB) RecordCommand(rec domain.CommandRecord) (int64, error) {
	result, err := d.db.Exec(
		`INSERT INTO commands (session_id, at, line, outcome, output) VALUES (?, ?, ?, ?, ?)`,
		rec.SessionID, rec.At.UnixNano(), rec.Line, rec.Outcome, rec.Output,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// RecentCommands returns up to limit commands, newest first, across all
// sessions.
func (d *DB) RecentCommands(limit int) ([]domain.CommandRecord, error) {
	rows, err := d.db.Query(
		`SELECT id, session_id, at, line, outcome, output
		 FROM commands ORDER BY at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCommands(rows)
}

// SessionCommands returns every command of one session in the order they
// were typed.
func (d *DB) SessionCommands(sessionID string) ([]domain.CommandRecord, error) {
	rows, err := d.db.Query(
		`SELECT id, session_id, at, line, outcome, output
		 FROM commands WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCommands(rows)
}

// CountByOutcome tallies the commands of one session per outcome.
func (d *DB) CountByOutcome(sessionID string) (map[string]int, error) {
	rows, err := d.db.Query(
		`SELECT outcome, COUNT(*) FROM commands WHERE session_id = ? GROUP BY outcome`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func scanCommands(rows *sql.Rows) ([]domain.CommandRecord, error) {
	var out []domain.CommandRecord
	for rows.Next() {
		var rec domain.CommandRecord
		var at int64
		if err := rows.Scan(&rec.ID, &rec.SessionID, &at, &rec.Line, &rec.Outcome, &rec.Output); err != nil {
			return nil, err
		}
		rec.At = time.Unix(0, at)
		out = append(out, rec)
	}
	return out, rows.Err()
}
