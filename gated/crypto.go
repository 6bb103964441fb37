package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"fmt"
	"math/big"
)

const (
	// RSAKeyBits matches the key size vanilla clients expect in the
	// encryption request. Regenerating the keypair invalidates every
	// in-flight handshake, so the keyring lives for the whole process.
	RSAKeyBits = 1024

	// VerifyTokenLen is the length of the random challenge token.
	VerifyTokenLen = 4
)

// Keyring holds the process RSA keypair used for the premium login
// handshake. It is constructed once at startup and passed to the
// components that need it; the private half never leaves this type.
type Keyring struct {
	private   *rsa.PrivateKey
	publicDER []byte
}

// NewKeyring generates a fresh RSA keypair and precomputes the DER
// encoding of the public key sent in challenge messages.
func NewKeyring() (*Keyring, error) {
	key, err := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA keypair: %w", err)
	}

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}

	return &Keyring{private: key, publicDER: der}, nil
}

// PublicKeyBytes returns the DER-encoded public key for the challenge
// message. Callers must not mutate the returned slice.
func (k *Keyring) PublicKeyBytes() []byte {
	return k.publicDER
}

// GenerateVerifyToken returns a fresh random challenge token.
func GenerateVerifyToken() ([]byte, error) {
	token := make([]byte, VerifyTokenLen)
	if _, err := rand.Read(token); err != nil {
		return nil, fmt.Errorf("failed to generate verify token: %w", err)
	}
	return token, nil
}

// DecryptSharedSecret decrypts the client's AES shared secret with the
// process private key. Clients encrypt with PKCS#1 v1.5 padding.
func (k *Keyring) DecryptSharedSecret(encrypted []byte) ([]byte, error) {
	secret, err := rsa.DecryptPKCS1v15(nil, k.private, encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt shared secret: %w", err)
	}
	return secret, nil
}

// DecryptVerifyToken decrypts the echoed challenge token with the
// process private key.
func (k *Keyring) DecryptVerifyToken(encrypted []byte) ([]byte, error) {
	token, err := rsa.DecryptPKCS1v15(nil, k.private, encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt verify token: %w", err)
	}
	return token, nil
}

// ServerIDHash computes the server hash the session service expects:
// SHA-1 over the Latin-1 server ID, the shared secret, and the DER
// public key, rendered as a signed two's-complement hex integer. The
// encoding has to be bit-exact or session verification fails for every
// legitimate client.
func (k *Keyring) ServerIDHash(serverID string, sharedSecret []byte) string {
	digest := sha1.New()
	digest.Write(latin1Bytes(serverID))
	digest.Write(sharedSecret)
	digest.Write(k.publicDER)
	return signedHexDigest(digest.Sum(nil))
}

// signedHexDigest interprets the digest as a big-endian two's-complement
// integer and renders it in lowercase hex without leading zeros, with a
// "-" prefix when negative.
func signedHexDigest(digest []byte) string {
	value := new(big.Int).SetBytes(digest)
	if len(digest) > 0 && digest[0]&0x80 != 0 {
		// Negative in two's complement: subtract 2^(8*len).
		offset := new(big.Int).Lsh(big.NewInt(1), uint(len(digest)*8))
		value.Sub(value, offset)
	}
	return value.Text(16)
}

// latin1Bytes encodes a string as ISO-8859-1, one byte per rune.
// Server IDs are ASCII in practice.
func latin1Bytes(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		out = append(out, byte(r))
	}
	return out
}

// timingSafeEqual performs a constant-time comparison of two byte slices.
func timingSafeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var result byte
	for i := 0; i < len(a); i++ {
		result |= a[i] ^ b[i]
	}
	return result == 0
}
