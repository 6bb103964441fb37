package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var startTime = time.Now()

// HTTPServer exposes health, gate statistics, and the administrative
// account operations (the offline-path equivalents of in-game admin
// commands). Bind it to localhost or behind an authenticating proxy.
type HTTPServer struct {
	port     int
	sessions *SessionStore
	registry *HandshakeRegistry
	gate     *Gate
	server   *http.Server
}

// NewHTTPServer creates the HTTP side channel.
func NewHTTPServer(port int, sessions *SessionStore, registry *HandshakeRegistry, gate *Gate) *HTTPServer {
	return &HTTPServer{port: port, sessions: sessions, registry: registry, gate: gate}
}

// Start serves until Stop is called. Blocking; run on its own
// goroutine.
func (h *HTTPServer) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /admin/accounts/{id}", h.handleAccountInfo)
	mux.HandleFunc("POST /admin/accounts/{id}/password", h.handleChangePassword)
	mux.HandleFunc("DELETE /admin/accounts/{id}", h.handleUnregister)

	h.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", h.port),
		Handler: mux,
	}

	log.Info().Int("port", h.port).Msg("Starting admin/health server")

	if err := h.server.ListenAndServe(); err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Admin/health server error")
	}
}

// Stop shuts the HTTP server down.
func (h *HTTPServer) Stop() {
	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.server.Shutdown(ctx)
	}
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"healthy": true,
		"uptime":  time.Since(startTime).String(),
		"version": Version,
	})
}

func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":           h.sessions.Count(),
		"pending_handshakes": h.registry.Pending(),
	})
}

func (h *HTTPServer) handleAccountInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAccount(w, r)
	if !ok {
		return
	}

	info, err := h.gate.Info(id)
	if errors.Is(err, ErrPlayerNotRegistered) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not registered"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account":   info.Account.String(),
		"username":  info.Username,
		"premium":   info.Premium,
		"last_ip":   info.LastIP,
		"logged_in": info.LoggedIn,
	})
}

func (h *HTTPServer) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAccount(w, r)
	if !ok {
		return
	}

	var req struct {
		Password  string `json:"password"`
		ChangedBy string `json:"changed_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	name, err := h.gate.store.Username(id)
	if err != nil {
		name = id.String()
	}

	if err := h.gate.AdminChangePassword(id, name, req.Password, req.ChangedBy); err != nil {
		writeJSON(w, adminErrorStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

func (h *HTTPServer) handleUnregister(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAccount(w, r)
	if !ok {
		return
	}

	if err := h.gate.AdminUnregister(id); err != nil {
		writeJSON(w, adminErrorStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unregistered"})
}

func adminErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrPlayerNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, ErrPremiumAccount):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func pathAccount(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid account id"})
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
