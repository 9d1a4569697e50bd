// Package store persists usage records so operators can see who uses
// the resolver and how often.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id    TEXT PRIMARY KEY,
	username   TEXT,
	first_name TEXT,
	first_seen TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS downloads (
	id         BIGSERIAL PRIMARY KEY,
	user_id    TEXT NOT NULL,
	post_url   TEXT NOT NULL,
	file_path  TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// PostgresStore records users and their downloads in Postgres.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to the database and ensures the schema
// exists. The DSN is a standard libpq connection string.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to usage database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare usage schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// RecordUser upserts the user and bumps their last-seen timestamp.
func (s *PostgresStore) RecordUser(ctx context.Context, userID, username, firstName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, first_name) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username, first_name = EXCLUDED.first_name, last_seen = now()`,
		userID, username, firstName)
	if err != nil {
		return fmt.Errorf("failed to record user: %w", err)
	}
	return nil
}

// RecordDownload logs one completed resolution.
func (s *PostgresStore) RecordDownload(ctx context.Context, userID, postURL, filePath string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (user_id, post_url, file_path) VALUES ($1, $2, $3)`,
		userID, postURL, filePath)
	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}
	return nil
}

// UsageCount returns how many downloads the user has performed.
func (s *PostgresStore) UsageCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM downloads WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count downloads: %w", err)
	}
	return count, nil
}

// Close releases the database connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
