// Package api serves the wallet cache over JSON HTTP for ingest, queries and administration.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"walletcache/internal/logging"
	"walletcache/internal/session"
)

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server exposes a Session over HTTP
type Server struct {
	session *session.Session
	log     logging.Sink
	// ingestChunk is how many records are added between revocation checks
	ingestChunk int
}

// NewServer creates a server over s
func NewServer(s *session.Session, log logging.Sink) *Server {
	return &Server{
		session:     s,
		log:         logging.OrNop(log),
		ingestChunk: 500,
	}
}

// Handler returns the routed handler wrapped in request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("POST /api/transactions", s.handleAddTransactions)
	mux.HandleFunc("GET /api/transactions", s.cached(s.handleListTransactions))
	mux.HandleFunc("GET /api/transactions/totals", s.cached(s.handleTransactionTotals))
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("POST /api/users", s.handleAddUsers)
	mux.HandleFunc("GET /api/users", s.cached(s.handleListUsers))
	mux.HandleFunc("GET /api/users/{id}", s.handleGetUser)
	mux.HandleFunc("DELETE /api/users/{id}", s.handleDeleteUser)

	mux.HandleFunc("POST /api/admin/cleanup", s.handleCleanup)

	return logging.HTTPMiddleware(s.log, mux)
}

// Run serves on config.Addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, config ServerConfig) error {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}

	server := &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	s.log.Info(ctx, logging.ComponentHTTP, logging.ActionStart, "HTTP API server starting", logging.Fields{
		"addr":       config.Addr,
		"session_id": s.session.ID(),
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.log.Info(ctx, logging.ComponentHTTP, logging.ActionStop, "HTTP API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		return nil
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server failed: %w", err)
	}
}
