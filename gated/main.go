// Package main implements authgate, the login gate for a live
// multiplayer session server. Unauthenticated connections can neither
// move, act, nor communicate until they pass either the premium
// encryption handshake or the offline password flow.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"authgate/gated/storage"
)

// Version is set at build time
var Version = "dev"

func main() {
	// Parse command line flags
	configPath := flag.String("config", "/etc/authgate/gated.yaml", "Path to configuration file")
	listen := flag.String("listen", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "Credentials database path (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().
		Str("version", Version).
		Str("config", *configPath).
		Msg("authgate starting")

	// Load configuration
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Override with command line flags
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	banner(os.Stderr, cfg)

	// The keyring spans the process; regenerating it would invalidate
	// every in-flight handshake.
	keyring, err := NewKeyring()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate process keypair")
	}

	store, err := storage.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open credentials store")
	}
	defer store.Close()

	sessions := NewSessionStore()
	registry := NewHandshakeRegistry(cfg.Auth.PendingPolicy)
	mojang := NewMojangClient()
	limbo := NewLimbo(cfg.Limbo)
	monitor := NewAccountMonitor(cfg.Security.AdminProtection)
	gate := NewGate(sessions, store, limbo, monitor, cfg.Auth)
	auth := NewAuthenticator(keyring, registry, mojang, sessions, store, cfg.Auth)

	server := NewServer(cfg, auth, registry, nil)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if cfg.Health.Enabled {
		httpSrv := NewHTTPServer(cfg.Health.Port, sessions, registry, gate)
		go httpSrv.Start()
		defer httpSrv.Stop()
	}

	if err := server.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Login gate error")
	}

	log.Info().Msg("authgate shutdown complete")
}
