package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"folio-cms/internal/models"
)

// PostgresConfig tunes the Postgres connection pool.
type PostgresConfig struct {
	DSN                 string
	MaxConnections      int32
	MinConnections      int32
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	HealthCheckInterval time.Duration
	ApplicationName     string
}

// PostgresStore is the production repository driver. Documents live in a
// single JSONB table partitioned by collection name; users get a relational
// table with a caseless-unique email.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a Postgres-backed repository and applies the schema
// bootstrap.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the connection pool resources.
func (s *PostgresStore) Close(ctx context.Context) error {
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

// Document operations

// CreateDocument inserts a document into the named collection and returns it
// with its generated id.
func (s *PostgresStore) CreateDocument(ctx context.Context, collection string, doc models.Document) (models.Document, error) {
	if strings.TrimSpace(collection) == "" {
		return nil, errors.New("collection is required")
	}
	stored := cloneDocument(doc)
	delete(stored, "id")
	payload, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	id := uuid.NewString()
	_, err = s.pool.Exec(ctx, `
INSERT INTO cms_documents (id, collection, data, created_at)
VALUES ($1, $2, $3, $4)
`, id, collection, payload, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	stored["id"] = id
	return stored, nil
}

// ListDocuments returns the documents in a collection matching every entry in
// filter, using JSONB containment. Results are ordered by insertion time.
func (s *PostgresStore) ListDocuments(ctx context.Context, collection string, filter map[string]any) ([]models.Document, error) {
	query := `
SELECT id, data
FROM cms_documents
WHERE collection = $1
`
	args := []any{collection}
	if len(filter) > 0 {
		payload, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("encode filter: %w", err)
		}
		query += " AND data @> $2"
		args = append(args, payload)
	}
	query += " ORDER BY created_at, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	results := make([]models.Document, 0)
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc, err := decodeDocument(id, payload)
		if err != nil {
			return nil, err
		}
		results = append(results, doc)
	}
	return results, rows.Err()
}

// GetDocument fetches a single document by id.
func (s *PostgresStore) GetDocument(ctx context.Context, collection, id string) (models.Document, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT data
FROM cms_documents
WHERE collection = $1 AND id = $2
`, collection, id)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get document: %w", err)
	}
	doc, err := decodeDocument(id, payload)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// UpdateDocument merges fields into an existing document inside a
// transaction. It reports false when the document does not exist or the merge
// changes nothing.
func (s *PostgresStore) UpdateDocument(ctx context.Context, collection, id string, fields map[string]any) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
SELECT data
FROM cms_documents
WHERE collection = $1 AND id = $2
FOR UPDATE
`, collection, id)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lock document: %w", err)
	}

	var doc models.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return false, fmt.Errorf("decode document: %w", err)
	}
	changed := false
	for key, value := range fields {
		if key == "id" {
			continue
		}
		if !valuesEqual(doc[key], value) {
			doc[key] = value
			changed = true
		}
	}
	if !changed {
		return false, nil
	}

	updated, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode document: %w", err)
	}
	if _, err := tx.Exec(ctx, `
UPDATE cms_documents SET data = $3
WHERE collection = $1 AND id = $2
`, collection, id, updated); err != nil {
		return false, fmt.Errorf("update document: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit update: %w", err)
	}
	return true, nil
}

// DeleteDocument removes a document by id, reporting whether it existed.
func (s *PostgresStore) DeleteDocument(ctx context.Context, collection, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
DELETE FROM cms_documents
WHERE collection = $1 AND id = $2
`, collection, id)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Collections lists the distinct collection names present in the table.
func (s *PostgresStore) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT collection
FROM cms_documents
ORDER BY collection
`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// User operations

// CreateUser registers a new account, enforcing email uniqueness at the
// database level.
func (s *PostgresStore) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	normalizedEmail := normalizeEmail(params.Email)
	if normalizedEmail == "" {
		return models.User{}, errors.New("email is required")
	}
	if params.Password == "" {
		return models.User{}, errors.New("password is required")
	}
	hash, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, err
	}
	user := models.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(params.Name),
		Email:        normalizedEmail,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO cms_users (id, name, email, password_hash, is_admin, is_verified, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, user.ID, user.Name, user.Email, user.PasswordHash, user.IsAdmin, user.IsVerified, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrEmailInUse
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// AuthenticateUser verifies the email and password pair.
func (s *PostgresStore) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	user, ok, err := s.FindUserByEmail(ctx, email)
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, ErrInvalidCredentials
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser fetches a user by id.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (models.User, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, name, email, password_hash, is_admin, is_verified, created_at
FROM cms_users
WHERE id = $1
`, id)
	return scanUser(row)
}

// FindUserByEmail fetches a user by caseless email.
func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (models.User, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, name, email, password_hash, is_admin, is_verified, created_at
FROM cms_users
WHERE email = $1
`, normalizeEmail(email))
	return scanUser(row)
}

// ListUsers returns every account ordered by creation time.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, name, email, password_hash, is_admin, is_verified, created_at
FROM cms_users
ORDER BY created_at, id
`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.IsAdmin, &user.IsVerified, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// SetUserFlags updates the admin and verified flags. A nil pointer leaves the
// corresponding flag untouched.
func (s *PostgresStore) SetUserFlags(ctx context.Context, id string, isAdmin, isVerified *bool) (models.User, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE cms_users SET
    is_admin = COALESCE($2, is_admin),
    is_verified = COALESCE($3, is_verified)
WHERE id = $1
RETURNING id, name, email, password_hash, is_admin, is_verified, created_at
`, id, isAdmin, isVerified)
	user, ok, err := scanUser(row)
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrUserNotFound)
	}
	return user, nil
}

// SetUserPassword replaces a user's password hash.
func (s *PostgresStore) SetUserPassword(ctx context.Context, id, password string) error {
	if password == "" {
		return errors.New("password is required")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE cms_users SET password_hash = $2 WHERE id = $1
`, id, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, ErrUserNotFound)
	}
	return nil
}

// PromoteAdmin marks the account with the given email as a verified admin.
func (s *PostgresStore) PromoteAdmin(ctx context.Context, email string) (models.User, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE cms_users SET is_admin = TRUE, is_verified = TRUE
WHERE email = $1
RETURNING id, name, email, password_hash, is_admin, is_verified, created_at
`, normalizeEmail(email))
	user, ok, err := scanUser(row)
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, fmt.Errorf("no account for %s: %w", normalizeEmail(email), ErrUserNotFound)
	}
	return user, nil
}

// Ping verifies the database connection is healthy.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres pool not configured")
	}
	return s.pool.Ping(ctx)
}

func decodeDocument(id string, payload []byte) (models.Document, error) {
	var doc models.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	doc["id"] = id
	return doc, nil
}

func scanUser(row pgx.Row) (models.User, bool, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.IsAdmin, &user.IsVerified, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, false, nil
		}
		return models.User{}, false, fmt.Errorf("scan user: %w", err)
	}
	return user, true, nil
}

// isUniqueViolation matches SQLSTATE 23505 without importing pgconn directly.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqlErr interface{ SQLState() string }
	if errors.As(err, &sqlErr) {
		return sqlErr.SQLState() == "23505"
	}
	return false
}
