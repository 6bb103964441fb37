package main

import (
	"errors"
	"testing"
	"time"
)

func TestRegistry_ConsumeOneShot(t *testing.T) {
	registry := NewHandshakeRegistry(PolicyReject)

	token, err := registry.Begin("alice")
	if err != nil {
		t.Fatalf("Failed to begin handshake: %v", err)
	}

	entry, err := registry.Consume("alice", token)
	if err != nil {
		t.Fatalf("Failed to consume handshake: %v", err)
	}
	if entry.name != "alice" {
		t.Errorf("Expected entry for alice, got %q", entry.name)
	}

	if _, err := registry.Consume("alice", token); !errors.Is(err, ErrNoPendingHandshake) {
		t.Errorf("Expected ErrNoPendingHandshake on second consume, got %v", err)
	}
}

func TestRegistry_TokenMismatchDestroysEntry(t *testing.T) {
	registry := NewHandshakeRegistry(PolicyReject)

	token, err := registry.Begin("alice")
	if err != nil {
		t.Fatalf("Failed to begin handshake: %v", err)
	}

	wrong := make([]byte, len(token))
	copy(wrong, token)
	wrong[0] ^= 0x01

	if _, err := registry.Consume("alice", wrong); !errors.Is(err, ErrTokenMismatch) {
		t.Errorf("Expected ErrTokenMismatch, got %v", err)
	}

	// The failed guess must burn the challenge.
	if _, err := registry.Consume("alice", token); !errors.Is(err, ErrNoPendingHandshake) {
		t.Errorf("Expected ErrNoPendingHandshake after mismatch, got %v", err)
	}
}

func TestRegistry_RejectPolicy(t *testing.T) {
	registry := NewHandshakeRegistry(PolicyReject)

	token, err := registry.Begin("alice")
	if err != nil {
		t.Fatalf("Failed to begin handshake: %v", err)
	}

	if _, err := registry.Begin("alice"); !errors.Is(err, ErrHandshakePending) {
		t.Errorf("Expected ErrHandshakePending for second begin, got %v", err)
	}

	// The original challenge still validates.
	if _, err := registry.Consume("alice", token); err != nil {
		t.Errorf("Original token should still validate, got %v", err)
	}
}

func TestRegistry_ReplacePolicy(t *testing.T) {
	registry := NewHandshakeRegistry(PolicyReplace)

	first, err := registry.Begin("alice")
	if err != nil {
		t.Fatalf("Failed to begin first handshake: %v", err)
	}

	second, err := registry.Begin("alice")
	if err != nil {
		t.Fatalf("Failed to begin second handshake: %v", err)
	}

	// The superseded token must not validate; only one live token per
	// name at any instant.
	if _, err := registry.Consume("alice", first); !errors.Is(err, ErrTokenMismatch) {
		t.Errorf("Expected ErrTokenMismatch for superseded token, got %v", err)
	}

	// The mismatch burned the entry, so the replacement token is gone too.
	if _, err := registry.Consume("alice", second); !errors.Is(err, ErrNoPendingHandshake) {
		t.Errorf("Expected ErrNoPendingHandshake after burn, got %v", err)
	}
}

func TestRegistry_Discard(t *testing.T) {
	registry := NewHandshakeRegistry(PolicyReject)

	token, err := registry.Begin("alice")
	if err != nil {
		t.Fatalf("Failed to begin handshake: %v", err)
	}

	registry.Discard("alice")
	registry.Discard("alice") // idempotent

	if _, err := registry.Consume("alice", token); !errors.Is(err, ErrNoPendingHandshake) {
		t.Errorf("Expected ErrNoPendingHandshake after discard, got %v", err)
	}

	// A retry under the same name must be possible after discard.
	if _, err := registry.Begin("alice"); err != nil {
		t.Errorf("Begin after discard failed: %v", err)
	}
}

func TestRegistry_SweepExpired(t *testing.T) {
	registry := NewHandshakeRegistry(PolicyReject)

	if _, err := registry.Begin("alice"); err != nil {
		t.Fatalf("Failed to begin handshake: %v", err)
	}
	registry.pending["alice"].created = time.Now().Add(-time.Minute)

	if _, err := registry.Begin("bob"); err != nil {
		t.Fatalf("Failed to begin handshake: %v", err)
	}

	removed := registry.SweepExpired(30 * time.Second)
	if removed != 1 {
		t.Errorf("Expected 1 expired entry removed, got %d", removed)
	}
	if registry.Pending() != 1 {
		t.Errorf("Expected 1 live entry, got %d", registry.Pending())
	}
}
