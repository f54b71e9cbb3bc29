// Package http serves the bot webhook, the webapp API and the operational
// endpoints (health, readiness, metrics) from a single listener.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/casino-hub/casino-hub/internal/application/command"
	"github.com/casino-hub/casino-hub/internal/application/query"
	"github.com/casino-hub/casino-hub/internal/interface/http/handlers"
	"github.com/casino-hub/casino-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config is the listener and middleware setup.
type Config struct {
	Host string
	Port int

	ReadTimeout time.Duration
	// WriteTimeout must exceed the webhook handler timeout.
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MaxHeaderBytes int
	MaxBodyBytes   int64

	// AllowedOrigins lists webapp origins for CORS; "*" allows any. Empty
	// disables CORS headers.
	AllowedOrigins []string

	// RateLimitPerMinute is the per-IP budget for /api (0 disables). The
	// webhook is never limited.
	RateLimitPerMinute int

	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       1 << 20,
		RateLimitPerMinute: 120,
		Version:            "v1",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Webhook is the bot update endpoint mounted at its own secret path.
type Webhook interface {
	http.Handler
	Path() string
}

// MetricsSource contributes one named section to GET /metrics.
type MetricsSource struct {
	Name     string
	Snapshot func() any
}

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	Webhook Webhook

	// Queries
	GetPlayer      *query.GetPlayerHandler
	GetLeaderboard *query.GetLeaderboardHandler

	// Commands
	ClaimBonus  *command.ClaimBonusHandler
	SyncProfile *command.SyncProfileHandler

	HealthChecker handlers.HealthChecker
	Metrics       []MetricsSource

	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	logger     *logger.Logger

	rateLimiter *rateLimiter

	mu        sync.RWMutex
	listener  net.Listener
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	s.logger = s.logger.With(logger.Component("http"))

	if config.RateLimitPerMinute > 0 {
		s.rateLimiter = newRateLimiter(config.RateLimitPerMinute)
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.buildMiddlewareChain(s.router),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)
	s.router.HandleFunc("GET /metrics", s.handleMetrics)
	s.router.HandleFunc("GET /{$}", s.handleRoot)

	// ─────────────────────────────────────────────────────────────────────────
	// Webapp API
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("GET /api/{resource}/{id}", s.apiMiddleware(http.HandlerFunc(s.handleAPIGet)))
	s.router.Handle("POST /api/{resource}", s.apiMiddleware(http.HandlerFunc(s.handleAPIPost)))

	// ─────────────────────────────────────────────────────────────────────────
	// Bot webhook (method checks live in the router)
	// ─────────────────────────────────────────────────────────────────────────
	if s.deps.Webhook != nil {
		s.router.Handle(s.deps.Webhook.Path(), s.deps.Webhook)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// buildMiddlewareChain wraps the router with all middleware. The first one
// listed is the outermost.
func (s *Server) buildMiddlewareChain(handler http.Handler) http.Handler {
	return handlers.ChainHandler(handler,
		handlers.RequestIDMiddleware,
		s.loggingMiddleware,
		s.recoveryMiddleware,
		s.corsMiddleware,
		handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes),
	)
}

// apiMiddleware wraps the webapp API routes only.
func (s *Server) apiMiddleware(h http.Handler) http.Handler {
	mw := []handlers.MiddlewareFunc{handlers.SecurityHeadersMiddleware, handlers.NoCacheMiddleware}
	if s.rateLimiter != nil {
		mw = append([]handlers.MiddlewareFunc{s.rateLimitMiddleware}, mw...)
	}
	return handlers.ChainHandler(h, mw...)
}

// loggingMiddleware logs every request and puts a request-scoped logger in the context.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLog := s.logger.WithRequestID(handlers.RequestID(r.Context()))
		r = r.WithContext(logger.WithContext(r.Context(), reqLog))

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		log := reqLog.Info
		if isProbe(r.URL.Path) {
			log = reqLog.Debug
		}
		log("http request",
			logger.String("method", r.Method),
			logger.String("path", s.redactPath(r.URL.Path)),
			logger.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
			logger.String("ip", getClientIP(r)),
		)
	})
}

// redactPath keeps the secret webhook path out of the logs.
func (s *Server) redactPath(path string) string {
	if s.deps.Webhook != nil && path == s.deps.Webhook.Path() {
		return "/webhook/…"
	}
	return path
}

func isProbe(path string) bool {
	switch path {
	case "/health", "/healthz", "/ready", "/live", "/metrics":
		return true
	}
	return false
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				logger.FromContext(r.Context(), s.logger).Error("panic recovered",
					logger.Any("panic", err),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", s.redactPath(r.URL.Path)),
				)
				writeJSONError(w, r, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers for the configured webapp origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	origin = strings.TrimRight(origin, "/")
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// rateLimitMiddleware implements per-IP rate limiting.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ok, wait := s.rateLimiter.take(getClientIP(r)); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			writeJSONError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start binds the listener and serves until Shutdown. Bind errors are
// returned before anything is served.
func (s *Server) Start() error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	return s.serve(ln)
}

// StartAsync binds synchronously and serves in a goroutine. The channel
// yields at most one error and is closed when serving ends.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	ln, err := s.listen()
	if err != nil {
		errCh <- err
		close(errCh)
		return errCh
	}
	go func() {
		defer close(errCh)
		if err := s.serve(ln); err != nil {
			errCh <- err
		}
	}()
	return errCh
}

func (s *Server) listen() (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil, errors.New("server already running")
	}
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.config.Address(), err)
	}
	s.listener = ln
	s.startedAt = time.Now()
	return ln, nil
}

func (s *Server) serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening", logger.String("address", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests,
// including webhook handlers, until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return nil
	}
	s.listener = nil
	s.mu.Unlock()

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listener != nil
}

// Uptime is zero while the server is not serving.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address is the bound address once listening (useful with port 0), else
// the configured one.
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address()
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER TYPES AND FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// getClientIP extracts the client IP from the request. Clients can prepend
// anything to X-Forwarded-For, so only the last entry, appended by the
// platform's edge proxy, is used.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.LastIndexByte(xff, ','); i != -1 {
			xff = xff[i+1:]
		}
		if ip := strings.TrimSpace(xff); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
