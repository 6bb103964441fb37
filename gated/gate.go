package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"authgate/gated/storage"
)

// Action is a category of gated player activity.
type Action int

const (
	ActionMove Action = iota
	ActionChat
	ActionCommand
	ActionBuild
	ActionInteract
	ActionDrop
)

// Player is the gate's view of a connected player: identity, source
// address, position, and a messaging surface for prompts.
type Player interface {
	Account() uuid.UUID
	Name() string
	RemoteIP() string
	Location() Location
	SendMessage(text string) error
}

// User-facing offline-path failures. The login error deliberately
// reveals nothing beyond the password being wrong.
var (
	ErrAlreadyLoggedIn     = errors.New("you are already logged in")
	ErrAlreadyRegistered   = errors.New("you are already registered, use login")
	ErrNotRegistered       = errors.New("you are not registered, use register")
	ErrPasswordMismatch    = errors.New("passwords do not match")
	ErrIncorrectPassword   = errors.New("incorrect password")
	ErrPremiumAccount      = errors.New("premium accounts have no offline password")
	ErrPlayerNotRegistered = errors.New("player is not registered")
)

// Gate drives the offline (password) login path and answers whether a
// player may act. It writes into the same session store as the premium
// handshake, which stays the single source of truth.
type Gate struct {
	sessions *SessionStore
	store    storage.Store
	limbo    *Limbo
	monitor  *AccountMonitor

	minPasswordLen int
	maxPasswordLen int
}

// NewGate wires the offline path.
func NewGate(sessions *SessionStore, store storage.Store, limbo *Limbo, monitor *AccountMonitor, cfg AuthConfig) *Gate {
	return &Gate{
		sessions:       sessions,
		store:          store,
		limbo:          limbo,
		monitor:        monitor,
		minPasswordLen: cfg.MinPasswordLen,
		maxPasswordLen: cfg.MaxPasswordLen,
	}
}

// HandleJoin runs when an offline-path player enters the server.
// Premium-flagged accounts are the handshake's business and pass
// through. Registered players rejoining from their last known address
// are logged in automatically; everyone else is confined until they
// authenticate.
func (g *Gate) HandleJoin(p Player) {
	id := p.Account()

	premium, err := g.store.IsPremium(id)
	if err != nil {
		log.Error().Err(err).Stringer("account", id).Msg("Failed to check premium flag")
	}
	if premium {
		return
	}

	registered, err := g.store.IsRegistered(id)
	if err != nil {
		log.Error().Err(err).Stringer("account", id).Msg("Failed to check registration")
	}

	if !registered {
		g.limbo.Confine(id, p.Location())
		p.SendMessage("Please register using /register <password> <confirmPassword>")
		return
	}

	lastIP, err := g.store.LastIP(id)
	if err == nil && lastIP != "" && lastIP == p.RemoteIP() {
		g.sessions.Login(id)
		g.limbo.Release(id)
		g.monitor.SuccessfulLogin(p.Name(), p.RemoteIP())
		p.SendMessage("Auto-logged in via IP!")
		log.Info().Str("name", p.Name()).Stringer("account", id).Msg("Auto-login via matching IP")
		return
	}

	g.limbo.Confine(id, p.Location())
	p.SendMessage("Please log in using /login <password>")
}

// HandleQuit tears down session and confinement state on disconnect.
func (g *Gate) HandleQuit(p Player) {
	g.sessions.Logout(p.Account())
	g.limbo.Cleanup(p.Account())
}

// Register creates an offline account and logs the player in.
func (g *Gate) Register(p Player, password, confirm string) error {
	id := p.Account()

	if g.sessions.IsLoggedIn(id) {
		return ErrAlreadyLoggedIn
	}
	registered, err := g.store.IsRegistered(id)
	if err != nil {
		return fmt.Errorf("registration check failed: %w", err)
	}
	if registered {
		return ErrAlreadyRegistered
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	if err := g.checkPasswordPolicy(password); err != nil {
		return err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := g.store.Register(id, p.Name(), hash, p.RemoteIP()); err != nil {
		return fmt.Errorf("failed to store registration: %w", err)
	}

	g.sessions.Login(id)
	g.limbo.Release(id)
	log.Info().Str("name", p.Name()).Stringer("account", id).Msg("Player registered")
	p.SendMessage("Successfully registered and logged in!")
	return nil
}

// Login verifies the password and admits the player. Failures never
// reveal which check failed beyond the password being incorrect.
func (g *Gate) Login(p Player, password string) error {
	id := p.Account()

	if g.sessions.IsLoggedIn(id) {
		return ErrAlreadyLoggedIn
	}
	registered, err := g.store.IsRegistered(id)
	if err != nil {
		return fmt.Errorf("registration check failed: %w", err)
	}
	if !registered {
		return ErrNotRegistered
	}

	hash, err := g.store.PasswordHash(id)
	if err != nil {
		return fmt.Errorf("failed to load password hash: %w", err)
	}
	if !checkPassword(password, hash) {
		g.monitor.FailedLogin(p.Name(), p.RemoteIP(), "wrong password")
		return ErrIncorrectPassword
	}

	g.sessions.Login(id)
	if err := g.store.UpdateIP(id, p.RemoteIP()); err != nil {
		log.Warn().Err(err).Stringer("account", id).Msg("Failed to update last IP")
	}
	g.limbo.Release(id)
	g.monitor.SuccessfulLogin(p.Name(), p.RemoteIP())
	log.Info().Str("name", p.Name()).Stringer("account", id).Msg("Player logged in")
	p.SendMessage("Successfully logged in!")
	return nil
}

// Allows reports whether the account may perform the action. The
// session set is the single source of truth; unauthenticated players
// may do nothing but look around and run auth commands.
func (g *Gate) Allows(id uuid.UUID, action Action) bool {
	return g.sessions.IsLoggedIn(id)
}

// CommandAllowed reports whether the account may run the named command.
// Unauthenticated players are limited to the auth commands themselves.
func (g *Gate) CommandAllowed(id uuid.UUID, command string) bool {
	if g.sessions.IsLoggedIn(id) {
		return true
	}
	switch strings.ToLower(command) {
	case "login", "register":
		return true
	}
	return false
}

// ForceLogin logs an offline player in administratively. Premium
// accounts are refused; their trust comes from the handshake alone.
func (g *Gate) ForceLogin(p Player) error {
	id := p.Account()

	registered, err := g.store.IsRegistered(id)
	if err != nil {
		return fmt.Errorf("registration check failed: %w", err)
	}
	if !registered {
		return ErrPlayerNotRegistered
	}
	premium, err := g.store.IsPremium(id)
	if err != nil {
		return fmt.Errorf("premium check failed: %w", err)
	}
	if premium {
		return ErrPremiumAccount
	}

	g.sessions.Login(id)
	g.limbo.Release(id)
	log.Warn().Str("name", p.Name()).Stringer("account", id).Msg("Administrative force-login")
	p.SendMessage("You have been logged in by an administrator.")
	return nil
}

// AdminChangePassword replaces an offline account's password.
func (g *Gate) AdminChangePassword(id uuid.UUID, name, newPassword, changedBy string) error {
	if err := g.checkPasswordPolicy(newPassword); err != nil {
		return err
	}
	registered, err := g.store.IsRegistered(id)
	if err != nil {
		return fmt.Errorf("registration check failed: %w", err)
	}
	if !registered {
		return ErrPlayerNotRegistered
	}
	premium, err := g.store.IsPremium(id)
	if err != nil {
		return fmt.Errorf("premium check failed: %w", err)
	}
	if premium {
		return ErrPremiumAccount
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := g.store.ChangePassword(id, hash); err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}

	g.monitor.PasswordChanged(name, changedBy)
	log.Warn().Str("name", name).Str("changed_by", changedBy).Msg("Administrative password change")
	return nil
}

// AdminUnregister deletes an offline account.
func (g *Gate) AdminUnregister(id uuid.UUID) error {
	registered, err := g.store.IsRegistered(id)
	if err != nil {
		return fmt.Errorf("registration check failed: %w", err)
	}
	if !registered {
		return ErrPlayerNotRegistered
	}
	premium, err := g.store.IsPremium(id)
	if err != nil {
		return fmt.Errorf("premium check failed: %w", err)
	}
	if premium {
		return ErrPremiumAccount
	}

	if err := g.store.Unregister(id); err != nil {
		return fmt.Errorf("failed to unregister: %w", err)
	}
	g.sessions.Logout(id)
	return nil
}

// AccountInfo is the administrative summary of an account.
type AccountInfo struct {
	Account    uuid.UUID
	Username   string
	Premium    bool
	LastIP     string
	LoggedIn   bool
	Registered bool
}

// Info returns the administrative summary for an account.
func (g *Gate) Info(id uuid.UUID) (AccountInfo, error) {
	info := AccountInfo{Account: id}

	registered, err := g.store.IsRegistered(id)
	if err != nil {
		return info, fmt.Errorf("registration check failed: %w", err)
	}
	info.Registered = registered
	if !registered {
		return info, ErrPlayerNotRegistered
	}

	if info.Username, err = g.store.Username(id); err != nil {
		return info, err
	}
	if info.Premium, err = g.store.IsPremium(id); err != nil {
		return info, err
	}
	if info.LastIP, err = g.store.LastIP(id); err != nil {
		return info, err
	}
	info.LoggedIn = g.sessions.IsLoggedIn(id)
	return info, nil
}

func (g *Gate) checkPasswordPolicy(password string) error {
	if len(password) < g.minPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", g.minPasswordLen)
	}
	if len(password) > g.maxPasswordLen {
		return fmt.Errorf("password must be at most %d characters long", g.maxPasswordLen)
	}
	return nil
}

// hashPassword produces a salted one-way hash of the password.
func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// checkPassword verifies a password against its stored hash.
func checkPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
