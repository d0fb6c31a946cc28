package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"AIBank-Agent/internal/a2ui"
	"AIBank-Agent/internal/agent"
	"AIBank-Agent/internal/events"
	"AIBank-Agent/internal/observability/alerting"
	"AIBank-Agent/internal/observability/metrics"
	"AIBank-Agent/pkg/logger"
)

// Server exposes the assistant over HTTP.
type Server struct {
	addr              string
	runtime           agent.Runtime
	templates         *a2ui.Library
	runtimeName       string
	model             string
	publicURL         string
	mcp               http.Handler
	metrics           *metrics.Registry
	recorder          *events.Recorder
	alerter           alerting.Dispatcher
	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration
	logger            *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRuntimeInfo sets the runtime and model names reported by /health.
func WithRuntimeInfo(runtime, model string) Option {
	return func(s *Server) {
		s.runtimeName = runtime
		s.model = model
	}
}

// WithPublicURL sets the URL advertised on the agent card.
func WithPublicURL(url string) Option {
	return func(s *Server) {
		s.publicURL = url
	}
}

// WithMCPHandler mounts the banking MCP server at /mcp.
func WithMCPHandler(h http.Handler) Option {
	return func(s *Server) {
		s.mcp = h
	}
}

// WithMetrics enables request metrics and /metrics.
func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Server) {
		s.metrics = reg
	}
}

// WithRecorder publishes an interaction event per answered query.
func WithRecorder(rec *events.Recorder) Option {
	return func(s *Server) {
		s.recorder = rec
	}
}

// WithAlerter raises an alert for every critical or server-side failure.
func WithAlerter(d alerting.Dispatcher) Option {
	return func(s *Server) {
		s.alerter = d
	}
}

// WithTimeouts overrides the header read and graceful shutdown timeouts.
func WithTimeouts(readHeader, shutdown time.Duration) Option {
	return func(s *Server) {
		if readHeader > 0 {
			s.readHeaderTimeout = readHeader
		}
		if shutdown > 0 {
			s.shutdownTimeout = shutdown
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer builds the API server.
func NewServer(addr string, rt agent.Runtime, templates *a2ui.Library, opts ...Option) *Server {
	srv := &Server{
		addr:              addr,
		runtime:           rt,
		templates:         templates,
		runtimeName:       "deterministic",
		readHeaderTimeout: 5 * time.Second,
		shutdownTimeout:   5 * time.Second,
		logger:            logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(srv)
		}
	}
	return srv
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.observe)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/a2a/message", s.handleA2AMessage).Methods(http.MethodPost)
	r.HandleFunc("/a2a/message/stream", s.handleA2AStream).Methods(http.MethodPost)
	r.HandleFunc("/a2a/agent-card", s.handleAgentCard).Methods(http.MethodGet)
	r.HandleFunc("/.well-known/agent-card.json", s.handleAgentCard).Methods(http.MethodGet)
	r.HandleFunc("/", s.handleJSONRPC).Methods(http.MethodPost)
	if s.mcp != nil {
		r.Handle("/mcp", s.mcp)
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: s.readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", s.addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext rejects requests once the root context is cancelled.
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
