package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type admitted struct {
	account uuid.UUID
	name    string
	premium bool
}

// newWireServer builds a Server whose admit handler reports into a
// channel instead of handing the connection downstream.
func newWireServer(t *testing.T, profile, session http.HandlerFunc, cfg *Config) (*Server, <-chan admitted) {
	t.Helper()

	harness := newHandshakeHarness(t, profile, session, cfg.Auth)
	results := make(chan admitted, 1)
	server := NewServer(cfg, harness.auth, harness.registry, func(conn net.Conn, account uuid.UUID, name string, premium bool) {
		results <- admitted{account, name, premium}
	})
	return server, results
}

// dialPipe runs handleConn on one end of an in-memory pipe and returns
// the client end.
func dialPipe(t *testing.T, server *Server) (net.Conn, *bufio.Reader) {
	t.Helper()

	client, serverSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.handleConn(context.Background(), serverSide)
	}()
	t.Cleanup(func() {
		client.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("Connection handler did not finish")
		}
	})
	return client, bufio.NewReader(client)
}

func sendIntent(t *testing.T, conn net.Conn, name string) {
	t.Helper()

	payload := appendVarInt(nil, packetHandshake)
	payload = appendVarInt(payload, 763) // protocol version
	payload = appendVarInt(payload, int32(len("localhost")))
	payload = append(payload, "localhost"...)
	payload = append(payload, 0x63, 0xDD) // port 25565
	payload = appendVarInt(payload, nextStateLogin)
	frame := appendVarInt(nil, int32(len(payload)))
	frame = append(frame, payload...)
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("Failed to write handshake: %v", err)
	}

	if err := newPacketWriter(packetLoginStart).String(name).WriteTo(conn); err != nil {
		t.Fatalf("Failed to write login start: %v", err)
	}
}

func awaitAdmit(t *testing.T, results <-chan admitted) admitted {
	t.Helper()
	select {
	case got := <-results:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for admission")
		return admitted{}
	}
}

func TestServer_OfflinePassthroughOverWire(t *testing.T) {
	cfg := DefaultConfig()
	server, results := newWireServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, nil, cfg)

	client, _ := dialPipe(t, server)
	sendIntent(t, client, "cracked_user")

	got := awaitAdmit(t, results)
	if got.premium {
		t.Error("Offline-path connection must not be premium")
	}
	if got.name != "cracked_user" {
		t.Errorf("Expected declared name, got %q", got.name)
	}
	if got.account != OfflineUUID("cracked_user") {
		t.Errorf("Expected offline-derived identifier, got %s", got.account)
	}
}

func TestServer_PremiumLoginOverWire(t *testing.T) {
	cfg := DefaultConfig()
	server, results := newWireServer(t, premiumProfileHandler, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"` + notchID + `","name":"Notch"}`))
	}, cfg)

	client, reader := dialPipe(t, server)
	sendIntent(t, client, "Notch")

	// Encryption request: server ID, public key, verify token.
	id, pkt, err := readPacket(reader)
	if err != nil {
		t.Fatalf("Failed to read challenge: %v", err)
	}
	if id != packetEncryptionRequest {
		t.Fatalf("Expected encryption request, got %#x", id)
	}
	if _, err := pkt.String(20); err != nil {
		t.Fatalf("Failed to read server ID: %v", err)
	}
	publicDER, err := pkt.ByteArray(1 << 10)
	if err != nil {
		t.Fatalf("Failed to read public key: %v", err)
	}
	token, err := pkt.ByteArray(16)
	if err != nil {
		t.Fatalf("Failed to read verify token: %v", err)
	}

	parsed, err := x509.ParsePKIXPublicKey(publicDER)
	if err != nil {
		t.Fatalf("Failed to parse public key: %v", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("Expected RSA public key, got %T", parsed)
	}

	secret := make([]byte, 16)
	rand.Read(secret)
	encSecret, err := rsa.EncryptPKCS1v15(rand.Reader, pub, secret)
	if err != nil {
		t.Fatalf("Failed to encrypt secret: %v", err)
	}
	encToken, err := rsa.EncryptPKCS1v15(rand.Reader, pub, token)
	if err != nil {
		t.Fatalf("Failed to encrypt token: %v", err)
	}
	if err := newPacketWriter(packetEncryptionResponse).ByteArray(encSecret).ByteArray(encToken).WriteTo(client); err != nil {
		t.Fatalf("Failed to write encryption response: %v", err)
	}

	id, pkt, err = readPacket(reader)
	if err != nil {
		t.Fatalf("Failed to read login success: %v", err)
	}
	if id != packetLoginSuccess {
		t.Fatalf("Expected login success, got %#x", id)
	}
	gotID, err := pkt.String(36)
	if err != nil {
		t.Fatalf("Failed to read account ID: %v", err)
	}
	if gotID != uuid.MustParse(notchID).String() {
		t.Errorf("Expected canonical identifier, got %q", gotID)
	}

	got := awaitAdmit(t, results)
	if !got.premium {
		t.Error("Verified connection must be premium")
	}
	if got.account != uuid.MustParse(notchID) {
		t.Errorf("Expected verified account, got %s", got.account)
	}
}

func TestServer_InvalidNameDisconnected(t *testing.T) {
	cfg := DefaultConfig()
	server, _ := newWireServer(t, nil, nil, cfg)

	client, reader := dialPipe(t, server)
	sendIntent(t, client, "this_name_is_way_too_long_for_the_protocol")

	id, pkt, err := readPacket(reader)
	if err != nil {
		t.Fatalf("Failed to read disconnect: %v", err)
	}
	if id != packetDisconnect {
		t.Fatalf("Expected disconnect, got %#x", id)
	}
	message, err := pkt.String(256)
	if err != nil {
		t.Fatalf("Failed to read disconnect reason: %v", err)
	}
	if !strings.Contains(message, "Invalid username") {
		t.Errorf("Unexpected disconnect reason %q", message)
	}
}

func TestServer_DeclarationRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = RateLimitConfig{DeclarationsPerMin: 1, Burst: 1}
	server, results := newWireServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, nil, cfg)

	first, _ := dialPipe(t, server)
	sendIntent(t, first, "alice")
	awaitAdmit(t, results)

	// The pipe presents the same source for every connection, so the
	// second declaration exceeds the budget.
	second, reader := dialPipe(t, server)
	sendIntent(t, second, "bob")

	id, pkt, err := readPacket(reader)
	if err != nil {
		t.Fatalf("Failed to read disconnect: %v", err)
	}
	if id != packetDisconnect {
		t.Fatalf("Expected disconnect, got %#x", id)
	}
	message, err := pkt.String(256)
	if err != nil {
		t.Fatalf("Failed to read disconnect reason: %v", err)
	}
	if !strings.Contains(message, "Too many login attempts") {
		t.Errorf("Unexpected disconnect reason %q", message)
	}
}

func TestOfflineUUID(t *testing.T) {
	// The conventional derivation for the name Notch.
	want := uuid.MustParse("b50ad385-829d-3141-a216-7e7d7539ba7f")
	if got := OfflineUUID("Notch"); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	if OfflineUUID("alice") != OfflineUUID("alice") {
		t.Error("Derivation must be deterministic")
	}
	if OfflineUUID("alice") == OfflineUUID("Alice") {
		t.Error("Derivation must be case-sensitive")
	}

	id := OfflineUUID("alice")
	if id.Version() != 3 {
		t.Errorf("Expected version 3, got %d", id.Version())
	}
	if id.Variant() != uuid.RFC4122 {
		t.Errorf("Expected RFC 4122 variant, got %v", id.Variant())
	}
}
