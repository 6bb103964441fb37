package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultProfileURL = "https://api.mojang.com/users/profiles/minecraft/"
	defaultSessionURL = "https://sessionserver.mojang.com/session/minecraft/hasJoined"

	// profileCacheSize bounds the resolver cache. Entries are small;
	// this covers a busy server's worth of distinct names.
	profileCacheSize = 512
	profileCacheTTL  = 5 * time.Minute
)

// ResolveOutcome is the tri-state result of a premium-identity lookup.
// Lookup failures are reported distinctly so the caller can decide to
// fail open into the offline path rather than block or reject.
type ResolveOutcome int

const (
	ResolvePremium ResolveOutcome = iota
	ResolveNotPremium
	ResolveFailed
)

func (o ResolveOutcome) String() string {
	switch o {
	case ResolvePremium:
		return "premium"
	case ResolveNotPremium:
		return "not-premium"
	default:
		return "lookup-failed"
	}
}

// ErrVerificationDenied means the session service answered but did not
// vouch for the client. Distinct from transport failures so the caller
// never admits on an unreachable service.
var ErrVerificationDenied = fmt.Errorf("session verification denied")

// MojangClient talks to the identity directory and session services.
type MojangClient struct {
	httpClient *http.Client
	profileURL string
	sessionURL string
	cache      *profileCache
}

// NewMojangClient creates a client against the production endpoints.
// Per-call deadlines come from the caller's context; the http.Client
// timeout is a backstop only.
func NewMojangClient() *MojangClient {
	return &MojangClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		profileURL: defaultProfileURL,
		sessionURL: defaultSessionURL,
		cache:      newProfileCache(profileCacheSize, profileCacheTTL),
	}
}

type profileResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ResolveProfile maps a declared name to its canonical account
// identifier. A 200 with an id means premium; 204/404 means the name is
// not a premium identity; anything else, including a context deadline,
// is a lookup failure.
func (c *MojangClient) ResolveProfile(ctx context.Context, name string) (uuid.UUID, ResolveOutcome) {
	if id, outcome, ok := c.cache.get(name); ok {
		return id, outcome
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL+url.PathEscape(name), nil)
	if err != nil {
		return uuid.Nil, ResolveFailed
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("name", name).Msg("Profile lookup failed")
		return uuid.Nil, ResolveFailed
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to parse the body
	case http.StatusNoContent, http.StatusNotFound:
		c.cache.put(name, uuid.Nil, ResolveNotPremium)
		return uuid.Nil, ResolveNotPremium
	default:
		log.Warn().Int("status", resp.StatusCode).Str("name", name).Msg("Unexpected profile lookup status")
		return uuid.Nil, ResolveFailed
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return uuid.Nil, ResolveFailed
	}

	var profile profileResponse
	if err := json.Unmarshal(body, &profile); err != nil || profile.ID == "" {
		log.Warn().Err(err).Str("name", name).Msg("Malformed profile response")
		return uuid.Nil, ResolveFailed
	}

	id, err := uuid.Parse(profile.ID)
	if err != nil {
		log.Warn().Err(err).Str("name", name).Msg("Unparseable profile id")
		return uuid.Nil, ResolveFailed
	}

	c.cache.put(name, id, ResolvePremium)
	return id, ResolvePremium
}

type sessionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// VerifySession asks the session service whether the named client
// completed the encryption handshake against serverHash. Success
// returns the canonical account identifier (normalized from the
// undashed form) and the account's display name.
func (c *MojangClient) VerifySession(ctx context.Context, name, serverHash string) (uuid.UUID, string, error) {
	query := url.Values{}
	query.Set("username", name)
	query.Set("serverId", serverHash)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sessionURL+"?"+query.Encode(), nil)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("failed to build session request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("session service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return uuid.Nil, "", ErrVerificationDenied
	}
	if resp.StatusCode != http.StatusOK {
		return uuid.Nil, "", fmt.Errorf("session service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("failed to read session response: %w", err)
	}

	var session sessionResponse
	if err := json.Unmarshal(body, &session); err != nil {
		return uuid.Nil, "", fmt.Errorf("malformed session response: %w", err)
	}
	if session.ID == "" {
		return uuid.Nil, "", ErrVerificationDenied
	}

	id, err := uuid.Parse(session.ID)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("unparseable session id %q: %w", session.ID, err)
	}
	return id, session.Name, nil
}

// cacheKey folds case so lookups for the same account share an entry.
func cacheKey(name string) string {
	return strings.ToLower(name)
}
