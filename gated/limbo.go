package main

import (
	"sync"

	"github.com/google/uuid"
)

// Limbo tracks which accounts are confined to the holding area while
// unauthenticated, and where each should return on release. It owns the
// confinement bookkeeping only; moving players is the embedding
// server's job.
type Limbo struct {
	enabled    bool
	returnMode string
	spawn      Location
	mainSpawn  Location

	mu       sync.Mutex
	confined map[uuid.UUID]Location
}

// NewLimbo creates the confinement tracker.
func NewLimbo(cfg LimboConfig) *Limbo {
	return &Limbo{
		enabled:    cfg.Enabled,
		returnMode: cfg.ReturnMode,
		spawn:      cfg.Spawn,
		mainSpawn:  cfg.MainSpawn,
		confined:   make(map[uuid.UUID]Location),
	}
}

// Enabled reports whether confinement is active.
func (l *Limbo) Enabled() bool { return l.enabled }

// Spawn returns the holding-area spawn point.
func (l *Limbo) Spawn() Location { return l.spawn }

// Confine marks the account as held, remembering where it came from.
// Idempotent: confining an already-confined account keeps the original
// return location.
func (l *Limbo) Confine(id uuid.UUID, from Location) {
	if !l.enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.confined[id]; !ok {
		l.confined[id] = from
	}
}

// Release lifts confinement and returns the destination the player
// should be moved to. Idempotent: releasing an unconfined account
// returns the main-world spawn.
func (l *Limbo) Release(id uuid.UUID) Location {
	if !l.enabled {
		return l.mainSpawn
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	from, ok := l.confined[id]
	delete(l.confined, id)

	if l.returnMode == "last-location" && ok && from.World != l.spawn.World {
		return from
	}
	return l.mainSpawn
}

// IsConfined reports whether the account is currently held.
func (l *Limbo) IsConfined(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.confined[id]
	return ok
}

// Cleanup drops confinement state for a disconnected account.
func (l *Limbo) Cleanup(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.confined, id)
}
