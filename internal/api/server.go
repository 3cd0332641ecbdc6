// Package api exposes the attestation service over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/MJE43/score-attest/internal/attest"
	"github.com/MJE43/score-attest/internal/batch"
)

// Options configures a Server
type Options struct {
	Service *attest.Service
	Batch   *batch.Verifier
	Logger  *zap.Logger
	// Token, when set, is required on mutating routes
	Token string
	// Metrics serves /metrics when non-nil
	Metrics        http.Handler
	RequestTimeout time.Duration
	// KeepAlive is the SSE comment interval
	KeepAlive time.Duration
}

// Server handles HTTP requests
type Server struct {
	svc            *attest.Service
	batch          *batch.Verifier
	errorHandler   *ErrorHandler
	logger         *zap.Logger
	token          string
	metrics        http.Handler
	requestTimeout time.Duration
	keepAlive      time.Duration
	startTime      time.Time

	closing   chan struct{}
	closeOnce sync.Once
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")
	if opts.Batch == nil {
		opts.Batch = batch.NewVerifier(opts.RequestTimeout)
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 15 * time.Second
	}

	return &Server{
		svc:            opts.Service,
		batch:          opts.Batch,
		errorHandler:   NewErrorHandler(logger),
		logger:         logger,
		token:          opts.Token,
		metrics:        opts.Metrics,
		requestTimeout: opts.RequestTimeout,
		keepAlive:      opts.KeepAlive,
		startTime:      time.Now(),
		closing:        make(chan struct{}),
	}
}

// CloseStreams ends all open event streams. Register it with
// http.Server.RegisterOnShutdown.
func (s *Server) CloseStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// Routes sets up the HTTP routes with middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLogger)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(s.CORSMiddleware)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/version", s.handleVersion)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// streams outlive the request timeout
		r.Get("/proofs/{id}/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			if s.requestTimeout > 0 {
				r.Use(middleware.Timeout(s.requestTimeout))
			}
			r.Get("/vkey", s.handleVerifyingKey)
			r.Get("/proofs", s.handleListProofs)
			r.Get("/proofs/{id}", s.handleGetProof)
			r.Get("/proofs/{id}/raw", s.handleRawProof)

			r.Group(func(r chi.Router) {
				r.Use(s.RequireToken)
				r.Post("/verify", s.handleVerify)
				r.Post("/verify/batch", s.handleVerifyBatch)
				r.Post("/proofs", s.handleSubmitProof)
				r.Post("/proofs/{id}/check", s.handleCheckProof)
			})
		})
	})

	return r
}

// writeJSON writes a JSON response with the version header
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	info := GetVersionInfo()
	info.ProofScheme = s.svc.Engine().Scheme()
	s.writeJSON(w, http.StatusOK, info)
}
