package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionsTableDDL = `
CREATE TABLE IF NOT EXISTS cms_sessions (
    token TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    is_verified BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS cms_sessions_expires_at_idx ON cms_sessions (expires_at);
`

// PostgresSessionStore persists sessions to a Postgres table, allowing
// multiple API replicas to share authentication state.
type PostgresSessionStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionStore opens a Postgres-backed session store using the
// provided DSN and ensures the sessions table exists.
func NewPostgresSessionStore(dsn string) (*PostgresSessionStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres session dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres session config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres session pool: %w", err)
	}
	if _, err := pool.Exec(context.Background(), sessionsTableDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure sessions table: %w", err)
	}
	return &PostgresSessionStore{pool: pool}, nil
}

// Close releases the Postgres connection pool resources.
func (s *PostgresSessionStore) Close(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Save stores or updates the session token.
func (s *PostgresSessionStore) Save(record SessionRecord) error {
	if s.pool == nil {
		return fmt.Errorf("postgres session pool not configured")
	}
	_, err := s.pool.Exec(context.Background(), `
INSERT INTO cms_sessions (token, user_id, is_admin, is_verified, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (token) DO UPDATE SET
    user_id = EXCLUDED.user_id,
    is_admin = EXCLUDED.is_admin,
    is_verified = EXCLUDED.is_verified,
    created_at = EXCLUDED.created_at,
    expires_at = EXCLUDED.expires_at
`, record.Token, record.UserID, record.IsAdmin, record.IsVerified, record.CreatedAt.UTC(), record.ExpiresAt.UTC())
	return err
}

// Get fetches the session details for the provided token.
func (s *PostgresSessionStore) Get(token string) (SessionRecord, bool, error) {
	if s.pool == nil {
		return SessionRecord{}, false, fmt.Errorf("postgres session pool not configured")
	}
	row := s.pool.QueryRow(context.Background(), `
SELECT user_id, is_admin, is_verified, created_at, expires_at
FROM cms_sessions
WHERE token = $1
`, token)
	var record SessionRecord
	record.Token = token
	if err := row.Scan(&record.UserID, &record.IsAdmin, &record.IsVerified, &record.CreatedAt, &record.ExpiresAt); err != nil {
		if isNoRows(err) {
			return SessionRecord{}, false, nil
		}
		return SessionRecord{}, false, err
	}
	return record, true, nil
}

// Delete removes the session token.
func (s *PostgresSessionStore) Delete(token string) error {
	if s.pool == nil {
		return fmt.Errorf("postgres session pool not configured")
	}
	_, err := s.pool.Exec(context.Background(), `DELETE FROM cms_sessions WHERE token = $1`, token)
	return err
}

// PurgeExpired deletes expired sessions from the table.
func (s *PostgresSessionStore) PurgeExpired(now time.Time) error {
	if s.pool == nil {
		return fmt.Errorf("postgres session pool not configured")
	}
	_, err := s.pool.Exec(context.Background(), `DELETE FROM cms_sessions WHERE expires_at <= $1`, now.UTC())
	return err
}

// Ping verifies the Postgres connection is healthy.
func (s *PostgresSessionStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres session pool not configured")
	}
	return s.pool.Ping(ctx)
}

func isNoRows(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows)
}
