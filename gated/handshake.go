package main

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"authgate/gated/storage"
)

// Login flow states. Terminal states are final for the connection
// attempt; a reconnect starts a fresh flow.
type loginState int

const (
	stateAwaitingDeclaration loginState = iota
	stateChallengeSent
	stateVerifying
	stateAdmitted
	stateRejected
	statePassthrough
)

func (s loginState) String() string {
	switch s {
	case stateAwaitingDeclaration:
		return "awaiting-declaration"
	case stateChallengeSent:
		return "challenge-sent"
	case stateVerifying:
		return "verifying"
	case stateAdmitted:
		return "admitted"
	case stateRejected:
		return "rejected"
	default:
		return "passthrough"
	}
}

type rejectReason string

const (
	reasonNoPendingHandshake rejectReason = "no-pending-handshake"
	reasonTokenMismatch      rejectReason = "token-mismatch"
	reasonDecryptionFailed   rejectReason = "decryption-failed"
	reasonVerificationFailed rejectReason = "verification-failed"
	reasonHandshakePending   rejectReason = "handshake-pending"
	reasonInternalError      rejectReason = "internal-error"
)

// clientMessage maps a reject reason to the generic text shown to the
// client. Internals never leak; the detailed reason goes to the log.
func (r rejectReason) clientMessage() string {
	switch r {
	case reasonDecryptionFailed:
		return "Encryption failed."
	case reasonVerificationFailed:
		return "Failed to verify your session."
	case reasonHandshakePending:
		return "A login for this name is already in progress."
	case reasonInternalError:
		return "Internal server error."
	default:
		return "Invalid encryption response."
	}
}

// LoginConn is the narrow view of a connection the login flow needs.
type LoginConn interface {
	SendChallenge(serverID string, publicKey, verifyToken []byte) error
	SendLoginSuccess(id uuid.UUID, name string) error
	Disconnect(message string) error
	RemoteAddr() net.Addr
}

// Authenticator holds the process-wide pieces of the premium login
// handshake and mints one LoginFlow per connection.
type Authenticator struct {
	keyring  *Keyring
	registry *HandshakeRegistry
	mojang   *MojangClient
	sessions *SessionStore
	store    storage.Store

	serverID       string
	resolveTimeout time.Duration
	verifyTimeout  time.Duration
}

// NewAuthenticator wires the handshake engine. serverID is sent in the
// challenge and bound into the server hash; vanilla servers use the
// empty string.
func NewAuthenticator(keyring *Keyring, registry *HandshakeRegistry, mojang *MojangClient,
	sessions *SessionStore, store storage.Store, cfg AuthConfig) *Authenticator {
	return &Authenticator{
		keyring:        keyring,
		registry:       registry,
		mojang:         mojang,
		sessions:       sessions,
		store:          store,
		serverID:       cfg.ServerID,
		resolveTimeout: cfg.ResolveTimeout(),
		verifyTimeout:  cfg.VerifyTimeout(),
	}
}

// NewFlow starts a login flow for one connection.
func (a *Authenticator) NewFlow(conn LoginConn) *LoginFlow {
	return &LoginFlow{auth: a, conn: conn, state: stateAwaitingDeclaration}
}

// LoginFlow is the connection-scoped handshake state machine. It is
// driven from the connection's own goroutine and is not safe for use
// from multiple goroutines.
type LoginFlow struct {
	auth  *Authenticator
	conn  LoginConn
	state loginState

	name    string
	account uuid.UUID
}

// State reports the current flow state.
func (f *LoginFlow) State() loginState { return f.state }

// Account returns the canonical identifier once the flow is admitted.
func (f *LoginFlow) Account() uuid.UUID { return f.account }

// Name returns the declared name.
func (f *LoginFlow) Name() string { return f.name }

// HandleDeclaration processes the identity declaration. Premium names
// get a challenge; everything else, including resolver timeouts and
// failures, falls open to the offline path so a directory outage never
// locks players out.
func (f *LoginFlow) HandleDeclaration(ctx context.Context, name string) loginState {
	if f.state != stateAwaitingDeclaration {
		return f.state
	}
	f.name = name

	ctx, cancel := context.WithTimeout(ctx, f.auth.resolveTimeout)
	defer cancel()

	id, outcome := f.auth.mojang.ResolveProfile(ctx, name)
	if outcome != ResolvePremium {
		log.Debug().Str("name", name).Stringer("outcome", outcome).Msg("Passing to offline login")
		f.state = statePassthrough
		return f.state
	}

	token, err := f.auth.registry.Begin(name)
	if err != nil {
		if errors.Is(err, ErrHandshakePending) {
			return f.reject(reasonHandshakePending, err)
		}
		return f.reject(reasonInternalError, err)
	}

	if err := f.conn.SendChallenge(f.auth.serverID, f.auth.keyring.PublicKeyBytes(), token); err != nil {
		f.auth.registry.Discard(name)
		log.Warn().Err(err).Str("name", name).Msg("Failed to send encryption challenge")
		f.state = stateRejected
		return f.state
	}

	log.Info().Str("name", name).Stringer("account", id).Msg("Premium identity declared, challenge sent")
	f.state = stateChallengeSent
	return f.state
}

// HandleChallengeResponse processes the encrypted challenge response
// and finalizes trust against the session service. Every failure is
// terminal for this connection attempt.
func (f *LoginFlow) HandleChallengeResponse(ctx context.Context, encSecret, encToken []byte) loginState {
	if f.state != stateChallengeSent {
		return f.reject(reasonNoPendingHandshake, nil)
	}

	token, err := f.auth.keyring.DecryptVerifyToken(encToken)
	if err != nil {
		// The challenge is burned either way.
		f.auth.registry.Discard(f.name)
		return f.reject(reasonDecryptionFailed, err)
	}

	if _, err := f.auth.registry.Consume(f.name, token); err != nil {
		if errors.Is(err, ErrTokenMismatch) {
			log.Warn().
				Str("name", f.name).
				Str("remote", remoteAddr(f.conn)).
				Msg("Verify token mismatch, possible spoofing attempt")
			return f.reject(reasonTokenMismatch, err)
		}
		return f.reject(reasonNoPendingHandshake, err)
	}

	secret, err := f.auth.keyring.DecryptSharedSecret(encSecret)
	if err != nil {
		return f.reject(reasonDecryptionFailed, err)
	}

	f.state = stateVerifying
	serverHash := f.auth.keyring.ServerIDHash(f.auth.serverID, secret)

	ctx, cancel := context.WithTimeout(ctx, f.auth.verifyTimeout)
	defer cancel()

	id, profileName, err := f.auth.mojang.VerifySession(ctx, f.name, serverHash)
	if err != nil {
		// Fail closed: an unreachable session service must never admit.
		if !errors.Is(err, ErrVerificationDenied) {
			log.Error().Err(err).Str("name", f.name).Msg("Session service unavailable")
		}
		return f.reject(reasonVerificationFailed, err)
	}

	if err := f.conn.SendLoginSuccess(id, f.name); err != nil {
		log.Warn().Err(err).Str("name", f.name).Msg("Failed to send login success")
		f.state = stateRejected
		return f.state
	}

	f.account = id
	f.auth.sessions.Login(id)
	if err := f.auth.store.SetPremium(id, true); err != nil {
		log.Error().Err(err).Stringer("account", id).Msg("Failed to persist premium flag")
	}

	log.Info().
		Str("name", f.name).
		Str("profile_name", profileName).
		Stringer("account", id).
		Msg("Premium login verified")
	f.state = stateAdmitted
	return f.state
}

// Abort discards any pending challenge for this flow. Called when the
// connection drops mid-handshake so a retry under the same name is
// possible immediately.
func (f *LoginFlow) Abort() {
	if f.state == stateChallengeSent {
		f.auth.registry.Discard(f.name)
	}
	if f.state == stateAdmitted {
		f.auth.sessions.Logout(f.account)
	}
}

func (f *LoginFlow) reject(reason rejectReason, cause error) loginState {
	log.Warn().
		Err(cause).
		Str("name", f.name).
		Str("reason", string(reason)).
		Msg("Rejecting login attempt")

	if err := f.conn.Disconnect(reason.clientMessage()); err != nil {
		log.Debug().Err(err).Str("name", f.name).Msg("Failed to send disconnect")
	}
	f.state = stateRejected
	return f.state
}

func remoteAddr(conn LoginConn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
