package storage

import (
	"context"
	"fmt"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS cms_documents (
    id TEXT PRIMARY KEY,
    collection TEXT NOT NULL,
    data JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS cms_documents_collection_idx ON cms_documents (collection)`,
	`CREATE INDEX IF NOT EXISTS cms_documents_data_idx ON cms_documents USING GIN (data jsonb_path_ops)`,
	`CREATE TABLE IF NOT EXISTS cms_users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    is_verified BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL
)`,
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	for _, stmt := range migrationStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
