// Package storage provides the persistence layer for the CMS: a document
// store keyed by collection plus the user accounts table. Two drivers exist,
// a JSON file store for development and a Postgres store for production.
package storage

import (
	"context"
	"errors"

	"folio-cms/internal/models"
)

// ErrInvalidCredentials is returned when authentication fails. Callers must
// not learn whether the email or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrEmailInUse is returned when a signup collides with an existing account.
var ErrEmailInUse = errors.New("email already registered")

// ErrUserNotFound is returned when an account mutation targets an id or email
// with no matching user. Callers branch on it to distinguish a missing user
// from a driver failure.
var ErrUserNotFound = errors.New("user not found")

// CreateUserParams carries the fields required to register a user.
type CreateUserParams struct {
	Name     string
	Email    string
	Password string
}

// Repository is the persistence contract shared by the JSON and Postgres
// drivers.
type Repository interface {
	CreateDocument(ctx context.Context, collection string, doc models.Document) (models.Document, error)
	ListDocuments(ctx context.Context, collection string, filter map[string]any) ([]models.Document, error)
	GetDocument(ctx context.Context, collection, id string) (models.Document, bool, error)
	UpdateDocument(ctx context.Context, collection, id string, fields map[string]any) (bool, error)
	DeleteDocument(ctx context.Context, collection, id string) (bool, error)
	Collections(ctx context.Context) ([]string, error)

	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, bool, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, bool, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetUserFlags(ctx context.Context, id string, isAdmin, isVerified *bool) (models.User, error)
	SetUserPassword(ctx context.Context, id, password string) error
	PromoteAdmin(ctx context.Context, email string) (models.User, error)

	Ping(ctx context.Context) error
}
