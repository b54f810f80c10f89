package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"folio-cms/internal/models"
)

type dataset struct {
	Documents map[string]map[string]models.Document `json:"documents"`
	Users     map[string]models.User                `json:"users"`
}

// JSONStore persists the full dataset to a single JSON file. Writes replace
// the file atomically via a temp file rename, matching a crash-safe
// read-modify-write cycle under one mutex.
type JSONStore struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
}

// NewJSONStore loads or initialises the JSON-backed repository at path.
func NewJSONStore(path string) (*JSONStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("data file path is required")
	}
	store := &JSONStore{filePath: path}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *JSONStore) load() error {
	payload, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.data = emptyDataset()
			return nil
		}
		return fmt.Errorf("read store file: %w", err)
	}
	var data dataset
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &data); err != nil {
			return fmt.Errorf("decode store file: %w", err)
		}
	}
	if data.Documents == nil {
		data.Documents = make(map[string]map[string]models.Document)
	}
	if data.Users == nil {
		data.Users = make(map[string]models.User)
	}
	s.data = data
	return nil
}

func emptyDataset() dataset {
	return dataset{
		Documents: make(map[string]map[string]models.Document),
		Users:     make(map[string]models.User),
	}
}

func (s *JSONStore) persist() error {
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

// Document operations

// CreateDocument inserts a document into the named collection and returns it
// with its generated id. Any id supplied by the caller is discarded.
func (s *JSONStore) CreateDocument(_ context.Context, collection string, doc models.Document) (models.Document, error) {
	if strings.TrimSpace(collection) == "" {
		return nil, errors.New("collection is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneDocument(doc)
	delete(stored, "id")
	id := uuid.NewString()

	bucket := s.data.Documents[collection]
	if bucket == nil {
		bucket = make(map[string]models.Document)
		s.data.Documents[collection] = bucket
	}
	bucket[id] = stored
	if err := s.persist(); err != nil {
		delete(bucket, id)
		return nil, err
	}

	out := cloneDocument(stored)
	out["id"] = id
	return out, nil
}

// ListDocuments returns the documents in a collection matching every entry in
// filter. A nil filter matches everything. Results are ordered by id for
// stable pagination-free listings.
func (s *JSONStore) ListDocuments(_ context.Context, collection string, filter map[string]any) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.data.Documents[collection]
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	results := make([]models.Document, 0, len(ids))
	for _, id := range ids {
		doc := bucket[id]
		if !matchesFilter(doc, filter) {
			continue
		}
		out := cloneDocument(doc)
		out["id"] = id
		results = append(results, out)
	}
	return results, nil
}

// GetDocument fetches a single document by id.
func (s *JSONStore) GetDocument(_ context.Context, collection, id string) (models.Document, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.data.Documents[collection][id]
	if !ok {
		return nil, false, nil
	}
	out := cloneDocument(doc)
	out["id"] = id
	return out, true, nil
}

// UpdateDocument merges fields into an existing document. It reports false
// when the document does not exist or the merge changes nothing.
func (s *JSONStore) UpdateDocument(_ context.Context, collection, id string, fields map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.data.Documents[collection]
	doc, ok := bucket[id]
	if !ok {
		return false, nil
	}

	changed := false
	updated := cloneDocument(doc)
	for key, value := range fields {
		if key == "id" {
			continue
		}
		if !valuesEqual(updated[key], value) {
			updated[key] = value
			changed = true
		}
	}
	if !changed {
		return false, nil
	}

	bucket[id] = updated
	if err := s.persist(); err != nil {
		bucket[id] = doc
		return false, err
	}
	return true, nil
}

// DeleteDocument removes a document by id, reporting whether it existed.
func (s *JSONStore) DeleteDocument(_ context.Context, collection, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.data.Documents[collection]
	doc, ok := bucket[id]
	if !ok {
		return false, nil
	}
	delete(bucket, id)
	if err := s.persist(); err != nil {
		bucket[id] = doc
		return false, err
	}
	return true, nil
}

// Collections lists the non-empty collection names in sorted order.
func (s *JSONStore) Collections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.data.Documents))
	for name, bucket := range s.data.Documents {
		if len(bucket) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// User operations

// CreateUser registers a new account. Emails are unique after caseless
// normalization.
func (s *JSONStore) CreateUser(_ context.Context, params CreateUserParams) (models.User, error) {
	normalizedEmail := normalizeEmail(params.Email)
	if normalizedEmail == "" {
		return models.User{}, errors.New("email is required")
	}
	if params.Password == "" {
		return models.User{}, errors.New("password is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.data.Users {
		if normalizeEmail(user.Email) == normalizedEmail {
			return models.User{}, ErrEmailInUse
		}
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
	s.data.Users[user.ID] = user
	if err := s.persist(); err != nil {
		delete(s.data.Users, user.ID)
		return models.User{}, err
	}
	return user, nil
}

// AuthenticateUser verifies the email and password pair.
func (s *JSONStore) AuthenticateUser(_ context.Context, email, password string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.findByEmailLocked(email)
	if !ok {
		return models.User{}, ErrInvalidCredentials
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser fetches a user by id.
func (s *JSONStore) GetUser(_ context.Context, id string) (models.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.data.Users[id]
	return user, ok, nil
}

// FindUserByEmail fetches a user by caseless email.
func (s *JSONStore) FindUserByEmail(_ context.Context, email string) (models.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.findByEmailLocked(email)
	return user, ok, nil
}

func (s *JSONStore) findByEmailLocked(email string) (models.User, bool) {
	normalized := normalizeEmail(email)
	for _, user := range s.data.Users {
		if normalizeEmail(user.Email) == normalized {
			return user, true
		}
	}
	return models.User{}, false
}

// ListUsers returns every account ordered by creation time.
func (s *JSONStore) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.data.Users))
	for _, user := range s.data.Users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// SetUserFlags updates the admin and verified flags. A nil pointer leaves the
// corresponding flag untouched.
func (s *JSONStore) SetUserFlags(_ context.Context, id string, isAdmin, isVerified *bool) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrUserNotFound)
	}
	previous := user
	if isAdmin != nil {
		user.IsAdmin = *isAdmin
	}
	if isVerified != nil {
		user.IsVerified = *isVerified
	}
	s.data.Users[id] = user
	if err := s.persist(); err != nil {
		s.data.Users[id] = previous
		return models.User{}, err
	}
	return user, nil
}

// SetUserPassword replaces a user's password hash.
func (s *JSONStore) SetUserPassword(_ context.Context, id, password string) error {
	if password == "" {
		return errors.New("password is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, ErrUserNotFound)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	previous := user
	user.PasswordHash = hash
	s.data.Users[id] = user
	if err := s.persist(); err != nil {
		s.data.Users[id] = previous
		return err
	}
	return nil
}

// PromoteAdmin marks the account with the given email as a verified admin.
func (s *JSONStore) PromoteAdmin(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.findByEmailLocked(email)
	if !ok {
		return models.User{}, fmt.Errorf("no account for %s: %w", normalizeEmail(email), ErrUserNotFound)
	}
	if user.IsVerifiedAdmin() {
		return user, nil
	}
	previous := user
	user.IsAdmin = true
	user.IsVerified = true
	s.data.Users[user.ID] = user
	if err := s.persist(); err != nil {
		s.data.Users[user.ID] = previous
		return models.User{}, err
	}
	return user, nil
}

// Ping reports whether the data directory is writable.
func (s *JSONStore) Ping(_ context.Context) error {
	dir := filepath.Dir(s.filePath)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0o755)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", dir)
	}
	return nil
}

func cloneDocument(doc models.Document) models.Document {
	clone := make(models.Document, len(doc))
	for key, value := range doc {
		clone[key] = cloneValue(value)
	}
	return clone
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		clone := make(map[string]any, len(v))
		for key, item := range v {
			clone[key] = cloneValue(item)
		}
		return clone
	case []any:
		clone := make([]any, len(v))
		for i, item := range v {
			clone[i] = cloneValue(item)
		}
		return clone
	default:
		return v
	}
}

func matchesFilter(doc models.Document, filter map[string]any) bool {
	for key, expected := range filter {
		if !valuesEqual(doc[key], expected) {
			return false
		}
	}
	return true
}

// valuesEqual compares via JSON round-trip semantics so numbers decoded as
// float64 compare equal to ints stored earlier.
func valuesEqual(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}
