// Package webhook verifies, decodes and dispatches payment provider events.
// Handlers are idempotent; the provider's retry on a non-2xx response is the
// only retry mechanism.
package webhook

import (
	"context"
	"time"

	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/cache"
)

// Outcome classifies a successfully handled delivery.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

// Result is returned for every delivery that should be acknowledged.
type Result struct {
	EventID   string  `json:"event_id"`
	EventType string  `json:"event_type"`
	Outcome   Outcome `json:"outcome"`
}

// Dispatcher runs the handler for a decoded event.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt Event) error
}

// Router is the single entry point for provider webhooks.
type Router struct {
	secret     string
	dispatcher Dispatcher
	marker     EventMarker
	markerTTL  time.Duration
	claimTTL   time.Duration
	metrics    MetricsCollector
	tracer     trace.Tracer
	logger     *zap.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithEventMarker skips re-deliveries of events already processed within ttl
// and holds back deliveries of an event that is still running.
func WithEventMarker(marker EventMarker, ttl time.Duration) RouterOption {
	return func(r *Router) {
		r.marker = marker
		if ttl > 0 {
			r.markerTTL = ttl
		}
	}
}

// WithMetrics records outcomes and latency.
func WithMetrics(m MetricsCollector) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// NewRouter builds a router. An empty secret is accepted; every delivery
// then fails with a ConfigError.
func NewRouter(secret string, dispatcher Dispatcher, logger *zap.Logger, opts ...RouterOption) *Router {
	r := &Router{
		secret:     secret,
		dispatcher: dispatcher,
		markerTTL:  cache.EventMarkerTTL,
		claimTTL:   cache.EventClaimTTL,
		tracer:     otel.Tracer("service.webhook"),
		logger:     logger.With(zap.String("component", "webhook_router")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle verifies the signature over the raw payload, decodes the event and
// dispatches it. Errors carry the HTTP status the provider should see:
// 400 for signature or payload problems, 500 for every handler failure.
func (r *Router) Handle(ctx context.Context, payload []byte, signature string) (*Result, error) {
	start := time.Now()

	if r.secret == "" {
		r.logger.Error("webhook secret is not configured")
		r.record("unknown", "misconfigured", start)
		return nil, errors.NewConfigError("stripe.webhook_secret")
	}

	raw, err := stripewebhook.ConstructEventWithOptions(payload, signature, r.secret,
		stripewebhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		r.logger.Warn("webhook signature verification failed", zap.Error(err))
		r.record("unknown", "invalid_signature", start)
		return nil, errors.NewSignatureError("webhook signature verification failed").WithCause(err)
	}

	eventType := string(raw.Type)
	res := &Result{EventID: raw.ID, EventType: eventType}
	log := r.logger.With(zap.String("event_id", raw.ID), zap.String("event_type", eventType))

	ctx, span := r.tracer.Start(ctx, "webhook.handle",
		trace.WithAttributes(
			attribute.String("webhook.event_id", raw.ID),
			attribute.String("webhook.event_type", eventType),
		))
	defer span.End()

	var object []byte
	if raw.Data != nil {
		object = raw.Data.Raw
	}
	evt, err := Decode(eventType, object)
	if err != nil {
		log.Warn("malformed webhook payload", zap.Error(err))
		span.SetStatus(codes.Error, "malformed payload")
		r.record(eventType, "malformed", start)
		return nil, errors.NewValidationError("MALFORMED_EVENT", err.Error())
	}

	if _, ok := evt.(*Ignored); ok {
		log.Debug("event type not consumed")
		res.Outcome = OutcomeIgnored
		r.record(eventType, string(res.Outcome), start)
		return res, nil
	}

	claimed, err := r.claim(ctx, raw.ID)
	if err != nil {
		log.Info("event is being processed by another delivery")
		r.record(eventType, "in_flight", start)
		return nil, err
	}
	if claimed == claimDuplicate {
		log.Info("event already processed")
		res.Outcome = OutcomeDuplicate
		r.record(eventType, string(res.Outcome), start)
		return res, nil
	}

	if err := r.dispatcher.Dispatch(ctx, evt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		log.Error("webhook handler failed", zap.Error(err))
		r.record(eventType, "error", start)
		if claimed == claimHeld {
			r.release(ctx, raw.ID)
		}
		// A verified event is never rejected; every handler failure asks for redelivery.
		return nil, errors.NewInternalError("webhook handler failed").WithCause(err)
	}

	r.mark(ctx, raw.ID)
	res.Outcome = OutcomeProcessed
	r.record(eventType, string(res.Outcome), start)
	log.Info("webhook processed", zap.Duration("duration", time.Since(start)))
	return res, nil
}

type claimState int

const (
	claimNone claimState = iota
	claimHeld
	claimDuplicate
)

const (
	markerProcessing = "processing"
	markerProcessed  = "processed"
)

// claim marks eventID as in flight. An event already processed is a
// duplicate; one held by a concurrent delivery fails retryably. Marker
// outages fall back to running the handlers, which are idempotent.
func (r *Router) claim(ctx context.Context, eventID string) (claimState, error) {
	if r.marker == nil || eventID == "" {
		return claimNone, nil
	}
	key := cache.EventPrefix + eventID
	ok, err := r.marker.SetNX(ctx, key, markerProcessing, r.claimTTL)
	if err != nil {
		r.logger.Warn("event marker claim failed", zap.String("event_id", eventID), zap.Error(err))
		return claimNone, nil
	}
	if ok {
		return claimHeld, nil
	}

	state, err := r.marker.Get(ctx, key)
	if err != nil {
		var missing cache.ErrCacheKeyNotFound
		if !errors.As(err, &missing) {
			r.logger.Warn("event marker lookup failed", zap.String("event_id", eventID), zap.Error(err))
		}
		return claimNone, nil
	}
	if state == markerProcessed {
		return claimDuplicate, nil
	}
	return claimNone, errors.NewInternalError("event " + eventID + " is already being processed")
}

func (r *Router) release(ctx context.Context, eventID string) {
	if err := r.marker.Delete(ctx, cache.EventPrefix+eventID); err != nil {
		r.logger.Warn("event marker release failed", zap.String("event_id", eventID), zap.Error(err))
	}
}

func (r *Router) mark(ctx context.Context, eventID string) {
	if r.marker == nil || eventID == "" {
		return
	}
	if err := r.marker.Set(ctx, cache.EventPrefix+eventID, markerProcessed, r.markerTTL); err != nil {
		r.logger.Warn("event marker write failed", zap.String("event_id", eventID), zap.Error(err))
	}
}

func (r *Router) record(eventType, outcome string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordWebhookEvent(eventType, outcome)
	r.metrics.RecordWebhookDuration(eventType, time.Since(start))
}
