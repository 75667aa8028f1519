package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/isdmx/execbox/config"
	"github.com/isdmx/execbox/execution"
	"github.com/isdmx/execbox/logger"
	"github.com/isdmx/execbox/validator"
)

// Server is the HTTP front end of the execution service.
type Server struct {
	logger          *zap.Logger
	service         *execution.Service
	router          chi.Router
	httpServer      *http.Server
	addr            string
	shutdownTimeout time.Duration
	now             func() time.Time
}

// New builds the router and the underlying http.Server. It does not listen.
func New(cfg *config.Config, log *zap.Logger, service *execution.Service) *Server {
	s := &Server{
		logger:          logger.Component(log, "http"),
		service:         service,
		addr:            fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		shutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSec) * time.Second,
		now:             time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(exposeRequestID)
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimit.Enabled {
			limiter := newClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
			r.Use(limiter.middleware(s.logger))
		}
		r.Use(limitBody(cfg.Server.MaxBodyBytes))
		r.Post("/execute-code", s.handleExecuteCode)
	})

	s.router = r

	readTimeout := time.Duration(cfg.Server.ReadTimeoutSec) * time.Second
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           r,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
	}

	s.logger.Info("HTTP server configured",
		zap.String("addr", s.addr),
		zap.Int64("max_body_bytes", cfg.Server.MaxBodyBytes),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
	)

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight executions.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}

	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Register ties the server to the fx application lifecycle.
func Register(lc fx.Lifecycle, s *Server) {
	lc.Append(fx.Hook{
		OnStart: s.Start,
		OnStop:  s.Shutdown,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExecuteCode(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	var req executeCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logger.Warn("failed to decode request body",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, execution.MsgInternalError)
		return
	}

	run, err := s.service.Execute(r.Context(), execution.Request{
		Code:     req.Code,
		Language: req.Language,
	})

	status := http.StatusOK
	switch {
	case err == nil:
		writeJSON(w, status, execution.Envelope(run.Outcome(), s.now()))
	case execution.IsInternal(err):
		status = http.StatusInternalServerError
		s.logger.Error("execution failed",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		writeError(w, status, execution.MsgInternalError)
	default:
		rej, _ := validator.AsRejection(err)
		status = http.StatusBadRequest
		writeError(w, status, rej.Reason.Message())
	}

	if run != nil {
		run.ResponseSent(status)
	}
}
