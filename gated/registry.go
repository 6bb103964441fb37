package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Registry collision policies for a second declaration under a name that
// already has a live challenge. The source of the race is two clients
// claiming the same display name; the policy must be explicit, not an
// accident of map semantics.
const (
	// PolicyReject refuses the newcomer and keeps the original challenge.
	PolicyReject = "reject"
	// PolicyReplace atomically supersedes the original challenge; the
	// prior token can no longer validate.
	PolicyReplace = "replace"
)

var (
	ErrNoPendingHandshake = fmt.Errorf("no pending handshake")
	ErrTokenMismatch      = fmt.Errorf("verify token mismatch")
	ErrHandshakePending   = fmt.Errorf("handshake already pending for this name")
)

// pendingHandshake is an in-flight challenge. Immutable once created.
type pendingHandshake struct {
	name    string
	token   []byte
	created time.Time
}

// HandshakeRegistry tracks in-flight challenges keyed by declared name,
// holding at most one live challenge per name. All operations are
// atomic with respect to each other.
type HandshakeRegistry struct {
	mu      sync.Mutex
	pending map[string]*pendingHandshake
	policy  string
}

// NewHandshakeRegistry creates a registry with the given collision
// policy (PolicyReject or PolicyReplace).
func NewHandshakeRegistry(policy string) *HandshakeRegistry {
	return &HandshakeRegistry{
		pending: make(map[string]*pendingHandshake),
		policy:  policy,
	}
}

// Begin creates a challenge for the declared name and returns its
// verify token. Under PolicyReject a second Begin for a live name fails
// with ErrHandshakePending; under PolicyReplace it supersedes the prior
// challenge.
func (r *HandshakeRegistry) Begin(name string) ([]byte, error) {
	token, err := GenerateVerifyToken()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.pending[name]; ok {
		if r.policy == PolicyReject {
			return nil, ErrHandshakePending
		}
		log.Warn().
			Str("name", name).
			Dur("prior_age", time.Since(prior.created)).
			Msg("Replacing pending handshake for name")
	}

	r.pending[name] = &pendingHandshake{
		name:    name,
		token:   token,
		created: time.Now(),
	}
	return token, nil
}

// Consume validates the presented token against the stored challenge and
// removes the entry. The entry is one-shot: it is destroyed whether the
// token matched or not, so a failed guess cannot be retried against the
// same challenge.
func (r *HandshakeRegistry) Consume(name string, presented []byte) (*pendingHandshake, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.pending[name]
	if !ok {
		return nil, ErrNoPendingHandshake
	}
	delete(r.pending, name)

	if !timingSafeEqual(entry.token, presented) {
		return nil, ErrTokenMismatch
	}
	return entry, nil
}

// Discard removes a pending challenge without validation. Used when a
// connection drops mid-handshake.
func (r *HandshakeRegistry) Discard(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, name)
}

// SweepExpired drops challenges older than maxAge and returns how many
// were removed. Covers connections that vanish without a disconnect
// hook firing.
func (r *HandshakeRegistry) SweepExpired(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for name, entry := range r.pending {
		if entry.created.Before(cutoff) {
			delete(r.pending, name)
			removed++
		}
	}
	return removed
}

// Pending reports the number of live challenges.
func (r *HandshakeRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
