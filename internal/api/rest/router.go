package rest

import (
	"context"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/auth"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Dependencies wires the services behind the HTTP surface.
type Dependencies struct {
	Webhooks    WebhookRouter
	Schedules   ScheduleService
	Payments    PaymentLinker
	Commissions CommissionService
	Payroll     PayrollService
	Jobs        JobReader
	Tokens      TokenValidator

	// Health maps a dependency name to its probe.
	Health map[string]HealthCheck
	// Metrics, when set, records requests and serves GET /metrics.
	Metrics MetricsHandler
}

// MetricsHandler is the Prometheus collector.
type MetricsHandler interface {
	HTTPMetrics
	Handler() http.Handler
}

// Options tunes the middleware stack.
type Options struct {
	MaxBodyBytes      int64
	RequestsPerSecond float64
	Burst             int
	Logger            *slog.Logger
}

// NewRouter builds the full handler: the provider webhook, the admin API
// under /v1 and the unauthenticated health and metrics endpoints.
func NewRouter(deps Dependencies, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		webhooks:    deps.Webhooks,
		schedules:   deps.Schedules,
		payments:    deps.Payments,
		commissions: deps.Commissions,
		payroll:     deps.Payroll,
		jobs:        deps.Jobs,
		validator:   newValidator(),
	}

	authn := NewAuthMiddleware(deps.Tokens)
	limiter := newIPRateLimiter(opts.RequestsPerSecond, opts.Burst)
	admin := func(scope string, fn http.HandlerFunc) http.Handler {
		return chain(fn, limiter.middleware, authn.Require(scope))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /webhooks/stripe", h.handleWebhook)

	mux.Handle("GET /v1/schedules/{id}", admin("", h.handleGetSchedule))
	mux.Handle("PATCH /v1/schedules/{id}/charges/{chargeID}", admin("", h.handleUpdateCharge))
	mux.Handle("POST /v1/schedules/{id}/charges/{chargeID}/cancel", admin("", h.handleCancelCharge))
	mux.Handle("POST /v1/schedules/{id}/cancel", admin("", h.handleCancelSchedule))

	mux.Handle("POST /v1/payments/{id}/link", admin("", h.handleLinkPayment))

	mux.Handle("POST /v1/payroll/runs", admin(auth.ScopePayroll, h.handleCreateRun))
	mux.Handle("GET /v1/payroll/runs/{id}", admin("", h.handleGetRun))
	mux.Handle("POST /v1/payroll/runs/{id}/approve", admin(auth.ScopePayroll, h.handleApproveRun))
	mux.Handle("POST /v1/payroll/runs/{id}/pay", admin(auth.ScopePayroll, h.handlePayRun))
	mux.Handle("POST /v1/payroll/runs/{id}/void", admin(auth.ScopePayroll, h.handleVoidRun))

	mux.Handle("GET /v1/commissions/users/{userID}/statement", admin("", h.handleStatement))
	mux.Handle("GET /v1/jobs/{id}", admin("", h.handleGetJob))

	mux.HandleFunc("GET /health", healthHandler(deps.Health))
	var metrics HTTPMetrics
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
		metrics = deps.Metrics
	}

	return chain(mux,
		requestIDMiddleware,
		observeMiddleware(logger, metrics),
		recoveryMiddleware(logger),
		maxBodyMiddleware(opts.MaxBodyBytes),
	)
}

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		resp := healthResponse{Status: "healthy", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		writeJSON(w, status, resp)
	}
}
