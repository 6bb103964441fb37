package main

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// loginDeadline bounds the whole login exchange for one connection.
const loginDeadline = 30 * time.Second

// AdmitHandler receives connections that made it through the gate's
// login phase. Premium connections arrive verified; offline ones still
// owe a password to the Gate.
type AdmitHandler func(conn net.Conn, account uuid.UUID, name string, premium bool)

// Server accepts connections and drives the login flow for each one.
type Server struct {
	cfg      *Config
	auth     *Authenticator
	registry *HandshakeRegistry
	admit    AdmitHandler

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter

	listener net.Listener
}

// NewServer wires the connection front end. admit may be nil, in which
// case gated connections are logged and closed.
func NewServer(cfg *Config, auth *Authenticator, registry *HandshakeRegistry, admit AdmitHandler) *Server {
	if admit == nil {
		admit = func(conn net.Conn, account uuid.UUID, name string, premium bool) {
			log.Info().
				Str("name", name).
				Stringer("account", account).
				Bool("premium", premium).
				Msg("Gate passed, no downstream handler installed")
			conn.Close()
		}
	}
	return &Server{
		cfg:      cfg,
		auth:     auth,
		registry: registry,
		admit:    admit,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Run listens and serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	s.listener = listener
	log.Info().Str("addr", s.cfg.Listen).Msg("Login gate listening")

	go s.sweepLoop(ctx)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("Accept failed")
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

// sweepLoop periodically drops abandoned challenges.
func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Auth.HandshakeTTL())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.registry.SweepExpired(s.cfg.Auth.HandshakeTTL()); removed > 0 {
				log.Debug().Int("removed", removed).Msg("Swept expired handshakes")
			}
		}
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(loginDeadline))

	wc := &wireConn{conn: conn, reader: bufio.NewReader(conn)}
	flow := s.auth.NewFlow(wc)
	defer flow.Abort()

	name, err := s.readIntent(wc)
	if err != nil {
		log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("Connection dropped before declaration")
		return
	}

	if len(name) == 0 || len(name) > maxNameLen {
		wc.Disconnect("Invalid username.")
		return
	}
	if !s.allowDeclaration(conn.RemoteAddr()) {
		log.Warn().Str("remote", conn.RemoteAddr().String()).Str("name", name).Msg("Declaration rate limit exceeded")
		wc.Disconnect("Too many login attempts, try again later.")
		return
	}

	switch flow.HandleDeclaration(ctx, name) {
	case stateChallengeSent:
		id, reader, err := readPacket(wc.reader)
		if err != nil || id != packetEncryptionResponse {
			log.Debug().Err(err).Str("name", name).Msg("No challenge response")
			return
		}
		encSecret, err := reader.ByteArray(RSAKeyBits / 2)
		if err != nil {
			wc.Disconnect("Invalid encryption response.")
			return
		}
		encToken, err := reader.ByteArray(RSAKeyBits / 2)
		if err != nil {
			wc.Disconnect("Invalid encryption response.")
			return
		}
		if flow.HandleChallengeResponse(ctx, encSecret, encToken) == stateAdmitted {
			conn.SetDeadline(time.Time{})
			s.admit(conn, flow.Account(), flow.Name(), true)
		}
	case statePassthrough:
		// Offline-path identity: derived from the declared name, the
		// convention offline-mode servers use.
		conn.SetDeadline(time.Time{})
		s.admit(conn, OfflineUUID(name), name, false)
	}
}

// readIntent consumes the handshake and login start packets, returning
// the declared name.
func (s *Server) readIntent(wc *wireConn) (string, error) {
	id, reader, err := readPacket(wc.reader)
	if err != nil {
		return "", err
	}
	if id != packetHandshake {
		return "", fmt.Errorf("expected handshake packet, got %#x", id)
	}
	if _, err := reader.VarInt(); err != nil { // protocol version
		return "", err
	}
	if _, err := reader.String(255); err != nil { // server address
		return "", err
	}
	if _, err := reader.UShort(); err != nil { // server port
		return "", err
	}
	next, err := reader.VarInt()
	if err != nil {
		return "", err
	}
	if next != nextStateLogin {
		return "", fmt.Errorf("unsupported next state %d", next)
	}

	id, reader, err = readPacket(wc.reader)
	if err != nil {
		return "", err
	}
	if id != packetLoginStart {
		return "", fmt.Errorf("expected login start packet, got %#x", id)
	}
	return reader.String(maxNameLen)
}

// allowDeclaration applies the per-source rate limit.
func (s *Server) allowDeclaration(addr net.Addr) bool {
	if s.cfg.RateLimit.DeclarationsPerMin <= 0 {
		return true
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}

	s.limiterMu.Lock()
	limiter, ok := s.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(
			rate.Every(time.Minute/time.Duration(s.cfg.RateLimit.DeclarationsPerMin)),
			s.cfg.RateLimit.Burst,
		)
		s.limiters[host] = limiter
	}
	s.limiterMu.Unlock()

	return limiter.Allow()
}

// OfflineUUID derives the conventional offline-mode identifier from a
// declared name: a version-3 UUID over "OfflinePlayer:<name>" with no
// namespace, matching what offline-mode servers and clients compute.
func OfflineUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = (sum[6] & 0x0f) | 0x30 // version 3
	sum[8] = (sum[8] & 0x3f) | 0x80 // RFC 4122 variant
	return uuid.UUID(sum)
}

// wireConn adapts a TCP connection to the LoginConn interface.
type wireConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (w *wireConn) SendChallenge(serverID string, publicKey, verifyToken []byte) error {
	return newPacketWriter(packetEncryptionRequest).
		String(serverID).
		ByteArray(publicKey).
		ByteArray(verifyToken).
		WriteTo(w.conn)
}

func (w *wireConn) SendLoginSuccess(id uuid.UUID, name string) error {
	return newPacketWriter(packetLoginSuccess).
		String(id.String()).
		String(name).
		WriteTo(w.conn)
}

func (w *wireConn) Disconnect(message string) error {
	text, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return err
	}
	if err := newPacketWriter(packetDisconnect).String(string(text)).WriteTo(w.conn); err != nil {
		return err
	}
	return w.conn.Close()
}

func (w *wireConn) RemoteAddr() net.Addr {
	return w.conn.RemoteAddr()
}

var _ LoginConn = (*wireConn)(nil)
