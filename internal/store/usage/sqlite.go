package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Recorder using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the ledger database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS session_usage (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		persona_id TEXT,
		messages_sent INTEGER NOT NULL,
		time_elapsed REAL NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_session_usage_ended ON session_usage(ended_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Record appends a closed session. A missing ID is filled with a new UUID.
func (s *SQLiteStore) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	var personaID interface{}
	if rec.PersonaID != "" {
		personaID = rec.PersonaID
	}

	query := `
	INSERT INTO session_usage (id, chat_id, persona_id, messages_sent, time_elapsed, status, reason, started_at, ended_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.ChatID, personaID,
		rec.MessagesSent, rec.TimeElapsed,
		rec.Status, string(rec.Reason),
		rec.StartedAt.UnixMilli(), rec.EndedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, chat_id, persona_id, messages_sent, time_elapsed,
		       status, reason, started_at, ended_at
		FROM session_usage ORDER BY ended_at DESC, id LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		var personaID sql.NullString
		var reason string
		var startedAt, endedAt int64

		if err := rows.Scan(
			&rec.ID, &rec.ChatID, &personaID, &rec.MessagesSent, &rec.TimeElapsed,
			&rec.Status, &reason, &startedAt, &endedAt,
		); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}

		rec.PersonaID = personaID.String
		rec.Reason = Reason(reason)
		rec.StartedAt = time.UnixMilli(startedAt)
		rec.EndedAt = time.UnixMilli(endedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage rows: %w", err)
	}
	return records, nil
}

// Totals sums every recorded session.
func (s *SQLiteStore) Totals(ctx context.Context) (Totals, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(messages_sent), 0), COALESCE(SUM(time_elapsed), 0) FROM session_usage`

	var totals Totals
	if err := s.db.QueryRowContext(ctx, query).Scan(&totals.Sessions, &totals.MessagesSent, &totals.Minutes); err != nil {
		return Totals{}, fmt.Errorf("query usage totals: %w", err)
	}
	return totals, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
