package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "players.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRegisterAndLookup(t *testing.T) {
	store := newTestStore(t)
	id := uuid.New()

	registered, err := store.IsRegistered(id)
	if err != nil {
		t.Fatalf("IsRegistered failed: %v", err)
	}
	if registered {
		t.Error("Expected account to be unregistered")
	}

	if err := store.Register(id, "alice", "hash123", "203.0.113.7"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	registered, err = store.IsRegistered(id)
	if err != nil {
		t.Fatalf("IsRegistered failed: %v", err)
	}
	if !registered {
		t.Error("Expected account to be registered")
	}

	name, err := store.Username(id)
	if err != nil {
		t.Fatalf("Username failed: %v", err)
	}
	if name != "alice" {
		t.Errorf("Expected username alice, got %q", name)
	}

	hash, err := store.PasswordHash(id)
	if err != nil {
		t.Fatalf("PasswordHash failed: %v", err)
	}
	if hash != "hash123" {
		t.Errorf("Expected stored hash, got %q", hash)
	}

	ip, err := store.LastIP(id)
	if err != nil {
		t.Fatalf("LastIP failed: %v", err)
	}
	if ip != "203.0.113.7" {
		t.Errorf("Expected stored IP, got %q", ip)
	}
}

func TestLookup_NotRegistered(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.PasswordHash(uuid.New()); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Expected ErrNotRegistered, got %v", err)
	}
}

func TestUpdateIPAndPassword(t *testing.T) {
	store := newTestStore(t)
	id := uuid.New()

	if err := store.Register(id, "alice", "hash123", "203.0.113.7"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := store.UpdateIP(id, "198.51.100.2"); err != nil {
		t.Fatalf("UpdateIP failed: %v", err)
	}
	ip, err := store.LastIP(id)
	if err != nil {
		t.Fatalf("LastIP failed: %v", err)
	}
	if ip != "198.51.100.2" {
		t.Errorf("Expected updated IP, got %q", ip)
	}

	if err := store.ChangePassword(id, "newhash"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	hash, err := store.PasswordHash(id)
	if err != nil {
		t.Fatalf("PasswordHash failed: %v", err)
	}
	if hash != "newhash" {
		t.Errorf("Expected updated hash, got %q", hash)
	}
}

func TestPremiumFlag(t *testing.T) {
	store := newTestStore(t)
	id := uuid.New()

	premium, err := store.IsPremium(id)
	if err != nil {
		t.Fatalf("IsPremium failed: %v", err)
	}
	if premium {
		t.Error("Expected unknown account to not be premium")
	}

	// Setting the flag for an account with no offline record creates one.
	if err := store.SetPremium(id, true); err != nil {
		t.Fatalf("SetPremium failed: %v", err)
	}
	premium, err = store.IsPremium(id)
	if err != nil {
		t.Fatalf("IsPremium failed: %v", err)
	}
	if !premium {
		t.Error("Expected account to be premium")
	}

	if err := store.SetPremium(id, false); err != nil {
		t.Fatalf("SetPremium failed: %v", err)
	}
	premium, err = store.IsPremium(id)
	if err != nil {
		t.Fatalf("IsPremium failed: %v", err)
	}
	if premium {
		t.Error("Expected premium flag to be cleared")
	}
}

func TestUnregister(t *testing.T) {
	store := newTestStore(t)
	id := uuid.New()

	if err := store.Register(id, "alice", "hash123", "203.0.113.7"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := store.Unregister(id); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}

	registered, err := store.IsRegistered(id)
	if err != nil {
		t.Fatalf("IsRegistered failed: %v", err)
	}
	if registered {
		t.Error("Expected account to be unregistered")
	}

	// Unregistering again is a no-op.
	if err := store.Unregister(id); err != nil {
		t.Errorf("Second Unregister failed: %v", err)
	}
}
