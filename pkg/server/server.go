// Package server is the relayer-facing HTTP surface over the engine.
// It carries no authorization logic of its own: it parses, delegates,
// and translates rejection reasons to status codes.
package server

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/grantmike/EIPs/pkg/engine"
	"github.com/grantmike/EIPs/pkg/ledger"
	"github.com/grantmike/EIPs/pkg/registry"
)

// Config holds server construction parameters.
type Config struct {
	Port   int
	Engine *engine.Engine

	// Ledger backs the read-only balance endpoint.
	Ledger ledger.Ledger

	// Registry is probed by the health endpoint.
	Registry registry.Registry

	// SubmissionsPerSecond caps the transfer submission rate; zero
	// disables limiting.
	SubmissionsPerSecond float64

	Logger *zap.Logger
}

// Server handles HTTP requests for the authorization transfer service
type Server struct {
	engine     *engine.Engine
	ledger     ledger.Ledger
	registry   registry.Registry
	limiter    *rate.Limiter
	logger     *zap.Logger
	httpServer *http.Server
}

// NewServer creates a new server instance
func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.SubmissionsPerSecond > 0 {
		burst := int(cfg.SubmissionsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.SubmissionsPerSecond), burst)
	}

	s := &Server{
		engine:   cfg.Engine,
		ledger:   cfg.Ledger,
		registry: cfg.Registry,
		limiter:  limiter,
		logger:   log,
	}

	mux := http.NewServeMux()

	// Submission endpoint
	mux.HandleFunc("POST /v1/transfer", s.handleTransfer)

	// Read-only endpoints for relayers probing before submission
	mux.HandleFunc("GET /v1/authorizations/{authorizer}/{nonce}", s.handleAuthorizationState)
	mux.HandleFunc("GET /v1/balances/{address}", s.handleBalance)

	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	return s.httpServer.Close()
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
