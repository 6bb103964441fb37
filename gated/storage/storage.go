// Package storage holds player credential records keyed by canonical
// account identifier. The daemon consults it through the Store
// interface; the default implementation is SQLite.
package storage

import (
	"fmt"

	"github.com/google/uuid"
)

// ErrNotRegistered is returned by point lookups for accounts that have
// no record.
var ErrNotRegistered = fmt.Errorf("account not registered")

// Store is the credentials collaborator. All operations are point
// lookups or writes keyed by canonical identifier; no multi-account
// transactions.
type Store interface {
	IsRegistered(id uuid.UUID) (bool, error)
	Register(id uuid.UUID, username, passwordHash, ip string) error
	Username(id uuid.UUID) (string, error)
	PasswordHash(id uuid.UUID) (string, error)
	ChangePassword(id uuid.UUID, newHash string) error
	LastIP(id uuid.UUID) (string, error)
	UpdateIP(id uuid.UUID, ip string) error
	IsPremium(id uuid.UUID) (bool, error)
	SetPremium(id uuid.UUID, premium bool) error
	Unregister(id uuid.UUID) error
	Close() error
}
