// ABOUTME: HTTP server wiring routes, middleware, and graceful shutdown
// ABOUTME: Agent routes use vault auth, dashboard routes use JWT sessions

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/netwarden/netwarden/internal/auth"
	"github.com/netwarden/netwarden/internal/pairing"
	"github.com/netwarden/netwarden/internal/reconcile"
	"github.com/netwarden/netwarden/internal/store"
)

// Store combines the persistence interfaces the HTTP surface reads from.
type Store interface {
	store.TokenStore
	store.DeviceStore
	store.UserStore
}

// Options configures the server.
type Options struct {
	Addr       string
	Store      Store
	Vault      *auth.Vault
	Sessions   *auth.Sessions
	Guard      *pairing.Guard
	Reconciler *reconcile.Reconciler

	// Cadence advertised to agents in heartbeat responses.
	HeartbeatInterval time.Duration
	SyncInterval      time.Duration
}

// Server is the hub's HTTP API server.
type Server struct {
	store      Store
	vault      *auth.Vault
	sessions   *auth.Sessions
	guard      *pairing.Guard
	reconciler *reconcile.Reconciler

	heartbeatInterval time.Duration
	syncInterval      time.Duration

	httpServer *http.Server
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a server from the given options.
func New(opts Options) *Server {
	s := &Server{
		store:             opts.Store,
		vault:             opts.Vault,
		sessions:          opts.Sessions,
		guard:             opts.Guard,
		reconciler:        opts.Reconciler,
		heartbeatInterval: opts.HeartbeatInterval,
		syncInterval:      opts.SyncInterval,
		logger:            slog.Default().With("component", "api"),
		now:               time.Now,
	}
	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Routes builds the full route table.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /dashboard/login", s.handleLogin)

	// Agent routes (bearer token auth)
	agentAuth := auth.AgentAuth(s.vault)
	mux.Handle("POST /agent/heartbeat", agentAuth(http.HandlerFunc(s.handleHeartbeat)))
	mux.Handle("POST /agent/devices", agentAuth(http.HandlerFunc(s.handleRegisterDevice)))
	mux.Handle("PUT /agent/devices/sync", agentAuth(http.HandlerFunc(s.handleSyncDevices)))
	mux.Handle("PATCH /agent/devices/{id}", agentAuth(http.HandlerFunc(s.handleUpdateDevice)))
	mux.Handle("DELETE /agent/devices/{id}", agentAuth(http.HandlerFunc(s.handleDeleteDevice)))

	// Dashboard routes (JWT session auth)
	dashAuth := auth.DashboardAuth(s.sessions, s.store)
	mux.Handle("GET /dashboard/credentials", dashAuth(http.HandlerFunc(s.handleListCredentials)))
	mux.Handle("POST /dashboard/credentials", dashAuth(http.HandlerFunc(s.handleCreateCredential)))
	mux.Handle("DELETE /dashboard/credentials/{id}", dashAuth(http.HandlerFunc(s.handleRevokeCredential)))
	mux.Handle("POST /dashboard/credentials/{id}/approve", dashAuth(http.HandlerFunc(s.handleApproveCredential)))
	mux.Handle("POST /dashboard/credentials/{id}/reject", dashAuth(http.HandlerFunc(s.handleRejectCredential)))
	mux.Handle("GET /dashboard/devices", dashAuth(http.HandlerFunc(s.handleListDevices)))

	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// handleHealth reports liveness without touching the database.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}
