package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/FranksOps/perspicacity/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
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
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	error TEXT
)`

const index = `CREATE INDEX IF NOT EXISTS fetch_attempts_query_idx ON fetch_attempts (query)`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	for _, stmt := range []string{schema, index} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, a *storage.Attempt) error {
	query := `
	INSERT INTO fetch_attempts (
		id, query, url, identity, strategy, reason, status_code, detection_src, content_length, duration_ms, created_at, error
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := b.pool.Exec(ctx, query,
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

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Attempt, error) {
	query := `SELECT id, query, url, identity, strategy, reason, status_code, COALESCE(detection_src, ''), content_length, duration_ms, created_at, COALESCE(error, '') FROM fetch_attempts WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Query != "" {
		query += fmt.Sprintf(` AND query = $%d`, paramCount)
		args = append(args, filter.Query)
		paramCount++
	}
	if filter.URL != "" {
		query += fmt.Sprintf(` AND url = $%d`, paramCount)
		args = append(args, filter.URL)
		paramCount++
	}
	if filter.Reason != "" {
		query += fmt.Sprintf(` AND reason = $%d`, paramCount)
		args = append(args, filter.Reason)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var results []*storage.Attempt
	for rows.Next() {
		var a storage.Attempt
		var durationMs int64

		err := rows.Scan(
			&a.ID, &a.Query, &a.URL, &a.Identity, &a.Strategy, &a.Reason, &a.StatusCode,
			&a.DetectionSrc, &a.ContentLength, &durationMs, &a.CreatedAt, &a.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}

		a.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
