package auth

import (
	"testing"
	"time"

	"folio-cms/internal/models"
)

func TestSessionLifecycle(t *testing.T) {
	manager := NewSessionManager(time.Hour)
	user := models.User{ID: "user-1", IsAdmin: true, IsVerified: true}
	record, err := manager.Create(user)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if record.Token == "" {
		t.Fatal("expected non-empty token")
	}
	if !record.IsAdmin || !record.IsVerified {
		t.Fatal("expected admin flags copied onto session")
	}
	if got := record.ExpiresAt.Sub(record.CreatedAt); got != time.Hour {
		t.Fatalf("expected one hour ttl, got %s", got)
	}

	validated, ok, err := manager.Validate(record.Token)
	if err != nil {
		t.Fatalf("validate session: %v", err)
	}
	if !ok {
		t.Fatal("expected session to validate")
	}
	if validated.UserID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, validated.UserID)
	}

	if err := manager.Revoke(record.Token); err != nil {
		t.Fatalf("revoke session: %v", err)
	}
	if _, ok, _ := manager.Validate(record.Token); ok {
		t.Fatal("expected revoked session to be rejected")
	}
}

func TestSessionCreateRequiresUserID(t *testing.T) {
	manager := NewSessionManager(time.Hour)
	if _, err := manager.Create(models.User{}); err == nil {
		t.Fatal("expected error for missing user id")
	}
}

func TestSessionExpiryEnforced(t *testing.T) {
	manager := NewSessionManager(time.Minute)
	current := time.Now()
	manager.now = func() time.Time { return current }

	record, err := manager.Create(models.User{ID: "user-2"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, ok, err := manager.Validate(record.Token); err != nil || ok {
		t.Fatalf("expected expired session to be rejected, ok=%v err=%v", ok, err)
	}
	// expired sessions are deleted on first rejection
	if _, ok, _ := manager.store.Get(record.Token); ok {
		t.Fatal("expected expired session removed from store")
	}
}

func TestSessionExpiryLegacyMode(t *testing.T) {
	manager := NewSessionManager(time.Minute, WithExpiryEnforcement(false))
	current := time.Now()
	manager.now = func() time.Time { return current }

	record, err := manager.Create(models.User{ID: "user-3"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, ok, err := manager.Validate(record.Token); err != nil || !ok {
		t.Fatalf("expected legacy mode to accept expired session, ok=%v err=%v", ok, err)
	}
}

func TestSessionPurgeExpired(t *testing.T) {
	manager := NewSessionManager(time.Minute)
	current := time.Now()
	manager.now = func() time.Time { return current }

	expired, err := manager.Create(models.User{ID: "user-4"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	current = current.Add(30 * time.Second)
	live, err := manager.Create(models.User{ID: "user-5"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	current = current.Add(45 * time.Second)
	if err := manager.PurgeExpired(); err != nil {
		t.Fatalf("purge expired: %v", err)
	}
	if _, ok, _ := manager.store.Get(expired.Token); ok {
		t.Fatal("expected first session purged")
	}
	if _, ok, _ := manager.store.Get(live.Token); !ok {
		t.Fatal("expected second session kept")
	}
}

func TestSessionTokenLengthOption(t *testing.T) {
	manager := NewSessionManager(time.Hour, WithTokenLength(16))
	record, err := manager.Create(models.User{ID: "user-6"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	// hex encoding doubles the byte length
	if len(record.Token) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(record.Token))
	}
}
