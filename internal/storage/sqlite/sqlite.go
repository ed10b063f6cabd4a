package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FranksOps/perspicacity/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS fetch_attempts (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	url TEXT NOT NULL,
	identity TEXT NOT NULL,
	strategy TEXT NOT NULL,
	reason TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	detection_src TEXT,
	content_length INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	error TEXT
);
CREATE INDEX IF NOT EXISTS fetch_attempts_query_idx ON fetch_attempts (query);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, a *storage.Attempt) error {
	query := `
	INSERT INTO fetch_attempts (
		id, query, url, identity, strategy, reason, status_code, detection_src, content_length, duration_ms, created_at, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := b.db.ExecContext(ctx, query,
		a.ID,
		a.Query,
		a.URL,
		a.Identity,
		a.Strategy,
		a.Reason,
		a.StatusCode,
		a.DetectionSrc,
		a.ContentLength,
		a.Duration.Milliseconds(),
		a.CreatedAt,
		a.Error,
	)
	if err != nil {
		return fmt.Errorf("insert attempt %s: %w", a.ID, err)
	}

	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Attempt, error) {
	query := `SELECT id, query, url, identity, strategy, reason, status_code, detection_src, content_length, duration_ms, created_at, error FROM fetch_attempts WHERE 1=1`
	args := []any{}

	if filter.Query != "" {
		query += ` AND query = ?`
		args = append(args, filter.Query)
	}
	if filter.URL != "" {
		query += ` AND url = ?`
		args = append(args, filter.URL)
	}
	if filter.Reason != "" {
		query += ` AND reason = ?`
		args = append(args, filter.Reason)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.Since)
	}

	query += ` ORDER BY created_at DESC`

	// SQLite only accepts OFFSET after a LIMIT clause.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var results []*storage.Attempt
	for rows.Next() {
		var a storage.Attempt
		var durationMs int64
		var detectionSrc, errText sql.NullString

		err := rows.Scan(
			&a.ID, &a.Query, &a.URL, &a.Identity, &a.Strategy, &a.Reason, &a.StatusCode,
			&detectionSrc, &a.ContentLength, &durationMs, &a.CreatedAt, &errText,
		)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}

		a.DetectionSrc = detectionSrc.String
		a.Error = errText.String
		a.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
