// Package telegram terminates the bot webhook: it validates the request,
// claims the update exactly once and dispatches it to the bot handlers.
package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/casino-hub/casino-hub/internal/domain/shared"
	"github.com/casino-hub/casino-hub/internal/domain/update"
	"github.com/casino-hub/casino-hub/pkg/logger"
)

// SecretTokenHeader carries the secret registered with setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	// Path is the exact webhook path, e.g. /webhook/3f9a...
	Path string

	// BotUsername filters group commands addressed to other bots. Empty
	// accepts any @suffix.
	BotUsername string

	// SecretToken, when RequireSecret is set, must match the secret header.
	SecretToken   string
	RequireSecret bool

	// MaxBodyBytes caps the request body.
	MaxBodyBytes int64

	// HandlerTimeout bounds claim + dispatch. The handler keeps running when
	// the platform drops the request, so transactions finish or roll back.
	HandlerTimeout time.Duration
}

// DefaultRouterConfig returns sensible defaults for path.
func DefaultRouterConfig(path string) RouterConfig {
	return RouterConfig{
		Path:           path,
		MaxBodyBytes:   1 << 20,
		HandlerTimeout: 25 * time.Second,
	}
}

// Dispatcher handles one claimed update. Exactly one call per update.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind update.Kind, u *models.Update) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, kind update.Kind, u *models.Update) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, kind update.Kind, u *models.Update) error {
	return f(ctx, kind, u)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// ══════════════════════════════════════════════════════════════════════════════

// Router is the webhook http.Handler.
//
// Received → Validated → Claimed|Duplicate → Dispatched → Acknowledged.
// Only misrouted or malformed requests are rejected; a failed claim withholds
// the acknowledgement so the platform redelivers.
type Router struct {
	config     RouterConfig
	claimer    update.Claimer
	dispatcher Dispatcher
	log        *logger.Logger
	now        func() time.Time

	metrics routerMetrics
}

// NewRouter creates a new router.
func NewRouter(config RouterConfig, claimer update.Claimer, dispatcher Dispatcher, log *logger.Logger) *Router {
	defaults := DefaultRouterConfig(config.Path)
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = defaults.HandlerTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Router{
		config:     config,
		claimer:    claimer,
		dispatcher: dispatcher,
		log:        log.With(logger.Component("webhook")),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Path returns the webhook path the router answers on.
func (rt *Router) Path() string { return rt.config.Path }

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.metrics.received.Add(1)

	if r.URL.Path != rt.config.Path {
		rt.reject(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		rt.reject(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if rt.config.RequireSecret && !rt.secretMatches(r.Header.Get(SecretTokenHeader)) {
		rt.reject(w, http.StatusNotFound, "not found")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, rt.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rt.reject(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		rt.reject(w, http.StatusBadRequest, "unreadable body")
		return
	}

	parsed, err := ParseUpdate(body)
	if err != nil {
		rt.log.Warn("rejected webhook payload", logger.Err(err))
		rt.reject(w, http.StatusBadRequest, "malformed update")
		return
	}
	inbound := update.InboundUpdate{
		ID:         update.ID(parsed.ID),
		Kind:       Classify(parsed, rt.config.BotUsername),
		Payload:    body,
		ReceivedAt: rt.now(),
	}

	// Claim and dispatch share one detached context: once an update is
	// claimed it must be dispatched even if the platform hangs up.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), rt.config.HandlerTimeout)
	defer cancel()

	log := rt.log.With(logger.UpdateID(parsed.ID), logger.UpdateKind(string(inbound.Kind)))

	claimed, err := rt.claimer.TryClaim(ctx, inbound)
	if err != nil {
		rt.metrics.claimFailures.Add(1)
		log.Error("claim failed", logger.Err(err))
		if shared.IsTransient(err) {
			w.Header().Set("Retry-After", "1")
		}
		writeJSON(w, http.StatusServiceUnavailable, ackBody{OK: false, Error: "temporarily unavailable"})
		return
	}
	if !claimed {
		rt.metrics.duplicates.Add(1)
		log.Debug("duplicate update acknowledged")
		rt.ack(w)
		return
	}

	rt.dispatch(ctx, log, inbound.Kind, parsed)
	rt.ack(w)
}

// dispatch runs the handler; errors and panics are logged and counted only.
func (rt *Router) dispatch(ctx context.Context, log *logger.Logger, kind update.Kind, u *models.Update) {
	start := time.Now()
	rt.metrics.dispatched.Add(1)
	rt.metrics.byKind(kind).Add(1)

	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("handler panic: %v", rec)
				log.Error("handler panicked", logger.Any("panic", rec), logger.String("stack", string(debug.Stack())))
			}
		}()
		return rt.dispatcher.Dispatch(ctx, kind, u)
	}()

	if err != nil {
		rt.metrics.handlerFailures.Add(1)
		log.Error("handler failed", logger.Err(err), logger.Latency(time.Since(start)))
		return
	}
	log.Debug("update handled", logger.Latency(time.Since(start)))
}

func (rt *Router) secretMatches(got string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(rt.config.SecretToken)) == 1
}

func (rt *Router) reject(w http.ResponseWriter, status int, msg string) {
	rt.metrics.rejected.Add(1)
	writeJSON(w, status, ackBody{OK: false, Error: msg})
}

func (rt *Router) ack(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, ackBody{OK: true})
}

type ackBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

type routerMetrics struct {
	received        atomic.Int64
	rejected        atomic.Int64
	duplicates      atomic.Int64
	dispatched      atomic.Int64
	handlerFailures atomic.Int64
	claimFailures   atomic.Int64
	kinds           [5]atomic.Int64
}

func (m *routerMetrics) byKind(kind update.Kind) *atomic.Int64 {
	for i, k := range update.Kinds {
		if k == kind {
			return &m.kinds[i]
		}
	}
	return &m.kinds[len(m.kinds)-1]
}

// Stats is a snapshot of router counters.
type Stats struct {
	Received        int64            `json:"received"`
	Rejected        int64            `json:"rejected"`
	Duplicates      int64            `json:"duplicates"`
	Dispatched      int64            `json:"dispatched"`
	HandlerFailures int64            `json:"handler_failures"`
	ClaimFailures   int64            `json:"claim_failures"`
	ByKind          map[string]int64 `json:"by_kind"`
}

// Stats returns the current counters.
func (rt *Router) Stats() Stats {
	m := &rt.metrics
	byKind := make(map[string]int64, len(update.Kinds))
	for i, k := range update.Kinds {
		byKind[string(k)] = m.kinds[i].Load()
	}
	return Stats{
		Received:        m.received.Load(),
		Rejected:        m.rejected.Load(),
		Duplicates:      m.duplicates.Load(),
		Dispatched:      m.dispatched.Load(),
		HandlerFailures: m.handlerFailures.Load(),
		ClaimFailures:   m.claimFailures.Load(),
		ByKind:          byKind,
	}
}
