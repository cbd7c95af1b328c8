// Package report provides PostgreSQL-backed storage for the moderation log.
// Each record captures who reported whom and in which session. The log is
// strictly append-only audit data: nothing in the pairing core reads it and
// no automatic enforcement hangs off it.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Record is a single moderation log entry.
type Record struct {
	ID         int64     `json:"id,omitempty"`
	ReporterID string    `json:"reporter_id"`
	ReportedID string    `json:"reported_id"`
	SessionID  string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store manages moderation log records in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new report store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts a record into the moderation log. Duplicate
// (reporter, reported) pairs are allowed: each call is its own record.
func (s *Store) Append(ctx context.Context, rec *Record) error {
	if rec.ReporterID == "" || rec.ReportedID == "" {
		return fmt.Errorf("report: reporter and reported ids are required")
	}

	const query = `
		INSERT INTO reports (reporter_id, reported_id, session_id, created_at)
		VALUES ($1, $2, $3, $4)`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ReporterID,
		rec.ReportedID,
		rec.SessionID,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}

// CountRecent returns the number of reports filed against an id within the
// given time window. Review tooling uses this to surface repeat offenders;
// the pairing core does not.
func (s *Store) CountRecent(ctx context.Context, reportedID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM reports
		WHERE reported_id = $1
		  AND created_at >= NOW() - $2::interval`

	var count int
	err := s.db.QueryRowContext(ctx, query, reportedID, window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("report: count recent: %w", err)
	}
	return count, nil
}

// Recent returns the most recent records, newest first, capped at limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	const query = `
		SELECT id, reporter_id, reported_id, session_id, created_at
		FROM reports
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("report: recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.ReporterID, &rec.ReportedID, &rec.SessionID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("report: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
