package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the daemon configuration.
type Config struct {
	// Listen is the TCP address the login gate accepts connections on.
	Listen string `yaml:"listen"`

	// DatabasePath is the SQLite credentials database location.
	DatabasePath string `yaml:"database_path"`

	// Auth configures the premium handshake engine.
	Auth AuthConfig `yaml:"auth"`

	// Limbo configures the unauthenticated holding area.
	Limbo LimboConfig `yaml:"limbo"`

	// Security configures monitored-account alerting.
	Security SecurityConfig `yaml:"security"`

	// RateLimit bounds identity declarations per source address.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Health configures the HTTP health endpoint.
	Health HealthConfig `yaml:"health"`
}

// AuthConfig holds handshake settings. The resolver and verifier bounds
// are deployment-tunable; the defaults match the upstream services'
// expected latencies.
type AuthConfig struct {
	ServerID         string `yaml:"server_id"`
	ResolveTimeoutMS int    `yaml:"resolve_timeout_ms"`
	VerifyTimeoutMS  int    `yaml:"verify_timeout_ms"`
	HandshakeTTLMS   int    `yaml:"handshake_ttl_ms"`

	// PendingPolicy decides what happens when a name with a live
	// challenge declares again: "reject" or "replace".
	PendingPolicy string `yaml:"pending_policy"`

	MinPasswordLen int `yaml:"min_password_len"`
	MaxPasswordLen int `yaml:"max_password_len"`
}

// ResolveTimeout returns the bound on the identity-directory call.
func (c AuthConfig) ResolveTimeout() time.Duration {
	if c.ResolveTimeoutMS <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.ResolveTimeoutMS) * time.Millisecond
}

// VerifyTimeout returns the bound on the session-verification call.
func (c AuthConfig) VerifyTimeout() time.Duration {
	if c.VerifyTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.VerifyTimeoutMS) * time.Millisecond
}

// HandshakeTTL returns how long an unanswered challenge may live before
// the sweeper drops it.
func (c AuthConfig) HandshakeTTL() time.Duration {
	if c.HandshakeTTLMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.HandshakeTTLMS) * time.Millisecond
}

// LimboConfig holds confinement settings.
type LimboConfig struct {
	Enabled bool `yaml:"enabled"`

	// ReturnMode is where released players go: "spawn" or
	// "last-location".
	ReturnMode string `yaml:"return_mode"`

	// Spawn is the holding-area spawn point.
	Spawn Location `yaml:"spawn"`

	// MainSpawn is the main-world return point.
	MainSpawn Location `yaml:"main_spawn"`
}

// Location is an opaque world position handed back to the embedding
// server on release. Teleport mechanics are the server's business.
type Location struct {
	World string  `yaml:"world"`
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Z     float64 `yaml:"z"`
	Yaw   float32 `yaml:"yaw"`
	Pitch float32 `yaml:"pitch"`
}

// SecurityConfig holds monitored-account protection settings.
type SecurityConfig struct {
	AdminProtection AdminProtectionConfig `yaml:"admin_protection"`
}

// AdminProtectionConfig configures alerts for monitored accounts.
type AdminProtectionConfig struct {
	Enabled               bool          `yaml:"enabled"`
	MonitoredAccounts     []string      `yaml:"monitored_accounts"`
	NotifyFailedLogin     bool          `yaml:"notify_failed_login"`
	NotifySuccessfulLogin bool          `yaml:"notify_successful_login"`
	PingOnFailedLogin     bool          `yaml:"ping_on_failed_login"`
	Mentions              []string      `yaml:"mentions"`
	Webhook               WebhookConfig `yaml:"webhook"`
}

// WebhookConfig holds the outbound alert endpoint.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// RateLimitConfig bounds identity declarations per source address.
type RateLimitConfig struct {
	DeclarationsPerMin int `yaml:"declarations_per_min"`
	Burst              int `yaml:"burst"`
}

// HealthConfig holds health endpoint settings.
type HealthConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       ":25565",
		DatabasePath: "players.db",
		Auth: AuthConfig{
			ServerID:         "",
			ResolveTimeoutMS: 3000,
			VerifyTimeoutMS:  5000,
			HandshakeTTLMS:   30000,
			PendingPolicy:    PolicyReject,
			MinPasswordLen:   6,
			MaxPasswordLen:   64,
		},
		Limbo: LimboConfig{
			Enabled:    true,
			ReturnMode: "spawn",
			Spawn:      Location{World: "limbo", X: 0.5, Y: 64, Z: 0.5},
			MainSpawn:  Location{World: "world", X: 0.5, Y: 64, Z: 0.5},
		},
		RateLimit: RateLimitConfig{
			DeclarationsPerMin: 20,
			Burst:              5,
		},
		Health: HealthConfig{
			Enabled: true,
			Port:    8080,
		},
	}
}

// LoadConfig loads configuration from a YAML file, starting from the
// defaults. A missing file is not an error; the defaults apply.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Auth.PendingPolicy != PolicyReject && cfg.Auth.PendingPolicy != PolicyReplace {
		return nil, fmt.Errorf("invalid pending_policy %q", cfg.Auth.PendingPolicy)
	}
	return cfg, nil
}
