package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/chipheocrypto/c124/internal/domain"
	"github.com/chipheocrypto/c124/internal/obs"
	"github.com/chipheocrypto/c124/internal/service"
	"github.com/chipheocrypto/c124/internal/store"
)

const maxBodyBytes = 1 << 20

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	logger        zerolog.Logger
	metrics       *obs.Metrics
	gatherer      prometheus.Gatherer
	validate      *validator.Validate
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
}

type Option func(*API)

func WithLogger(logger zerolog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithMetrics records request metrics into m and serves g at /metrics.
func WithMetrics(m *obs.Metrics, g prometheus.Gatherer) Option {
	return func(a *API) {
		a.metrics = m
		a.gatherer = g
	}
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, opts ...Option) *API {
	api := &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		logger:        zerolog.Nop(),
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
	}
	for _, opt := range opts {
		opt(api)
	}
	return api
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

var privileged = []string{domain.RoleManager, domain.RoleAdmin}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(obs.RequestLogger{Logger: a.logger, Metrics: a.metrics, Actor: a.actorName}.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.allowedOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(a.securityHeaders)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	r.Get("/healthz", a.handleHealth)
	if a.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)
		r.Put("/auth/secondary-pin", a.requireAuth(a.handleSecondaryPIN, privileged...))

		r.Get("/rooms", a.requireAuth(a.handleRooms))
		r.Get("/products", a.requireAuth(a.handleProducts))
		r.Get("/stock", a.requireAuth(a.handleStock))

		r.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Post("/session", a.requireAuth(a.handleOpenSession))
			r.Get("/session", a.requireAuth(a.handleGetSession))
			r.Post("/session/items", a.requireAuth(a.handleAddItem))
			r.Delete("/session/items/{itemID}", a.requireAuth(a.handleRemoveItem))
			r.Post("/session/items/{itemID}/stop", a.requireAuth(a.handleStopItem))
			r.Post("/session/items/{itemID}/resume", a.requireAuth(a.handleResumeItem))
			r.Put("/session/items/{itemID}/times", a.requireAuth(a.handleItemTimes))
			r.Post("/session/items/{itemID}/adjust-start", a.requireAuth(a.handleAdjustItemStart))
			r.Post("/session/adjust-start", a.requireAuth(a.handleAdjustStart))
			r.Put("/session/start", a.requireAuth(a.handleSetStart))
			r.Post("/session/move", a.requireAuth(a.handleMoveSession))
			r.Post("/payment", a.requireAuth(a.handleInitiatePayment))
			r.Delete("/payment", a.requireAuth(a.handleCancelPayment))
			r.Post("/checkout", a.requireAuth(a.handleCheckout))
			r.Post("/status", a.requireAuth(a.handleRoomStatus))
			r.Post("/force-discard", a.requireAuth(a.handleForceDiscard))
		})

		r.Get("/orders", a.requireAuth(a.handleListOrders))
		r.Get("/orders/{orderID}", a.requireAuth(a.handleGetOrder))
		r.Put("/orders/{orderID}", a.requireAuth(a.handleApplyEdit))
		r.Post("/orders/{orderID}/print", a.requireAuth(a.handlePrint))
		r.Post("/orders/{orderID}/edit-requests", a.requireAuth(a.handleCreateEditRequest))
		r.Post("/orders/{orderID}/direct-edit/authorize", a.requireAuth(a.handleAuthorizeDirectEdit, privileged...))

		r.Get("/edit-requests", a.requireAuth(a.handleListEditRequests))
		r.Post("/edit-requests/{requestID}/approve", a.requireAuth(a.handleApproveEditRequest, privileged...))
		r.Post("/edit-requests/{requestID}/reject", a.requireAuth(a.handleRejectEditRequest, privileged...))

		r.Get("/settings", a.requireAuth(a.handleGetSettings))
		r.Patch("/settings", a.requireAuth(a.handleUpdateSettings, domain.RoleAdmin))
		r.Get("/audit-logs", a.requireAuth(a.handleAuditLogs, privileged...))
	})

	return r
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.bearerActor(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func (a *API) bearerActor(r *http.Request) (domain.Actor, error) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		return domain.Actor{}, errors.New("missing bearer token")
	}
	return a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
}

// actorName labels request logs; it runs outside requireAuth so it parses
// the token itself.
func (a *API) actorName(r *http.Request) string {
	actor, err := a.bearerActor(r)
	if err != nil {
		return ""
	}
	return actor.Username
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// bind decodes a JSON body and runs the struct validation tags on it.
func (a *API) bind(r *http.Request, dest any) error {
	if err := decodeJSON(r, dest); err != nil {
		return err
	}
	if err := a.validate.Struct(dest); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %s", domain.ErrInvalidInput, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// fail maps a service error to its HTTP status and logs the cause of 5xx
// responses, whose bodies stay generic.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrWindowExpired):
		return http.StatusLocked
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrPreconditionFailed), errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTimeRange), errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
