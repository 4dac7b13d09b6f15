// Package metrics exposes the service's Prometheus collectors and the OTel
// instruments that mirror them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const namespace = "coaching"

// Collector implements every service-level metrics interface.
type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	webhookEvents   *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec

	feeSource     *prometheus.CounterVec
	clientMatches *prometheus.CounterVec

	commissionEntries *prometheus.CounterVec
	commissionSkipped *prometheus.CounterVec
	commissionAmount  metric.Float64Histogram

	payrollTransitions *prometheus.CounterVec
	approvalLatency    prometheus.Histogram

	notifications *prometheus.CounterVec

	dbPool *prometheus.GaugeVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	c := &Collector{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "handler", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"method", "handler"}),
		webhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Provider webhook deliveries by outcome",
		}, []string{"event_type", "outcome"}),
		webhookDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "handle_duration_seconds",
			Help:      "Webhook handling latency",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"event_type"}),
		feeSource: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "fee_resolutions_total",
			Help:      "Processing fee resolutions by source",
		}, []string{"source"}),
		clientMatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "client_matches_total",
			Help:      "Payment to client attribution by method",
		}, []string{"method"}),
		commissionEntries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commission",
			Name:      "entries_total",
			Help:      "Ledger entries written by role",
		}, []string{"role"}),
		commissionSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commission",
			Name:      "skipped_total",
			Help:      "Commission calculations skipped by reason",
		}, []string{"reason"}),
		payrollTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payroll",
			Name:      "transitions_total",
			Help:      "Payroll run status transitions",
		}, []string{"status"}),
		approvalLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payroll",
			Name:      "approval_latency_seconds",
			Help:      "Time from payroll run creation to approval",
			Buckets:   []float64{60, 600, 3600, 4 * 3600, 24 * 3600, 72 * 3600},
		}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "published_total",
			Help:      "Downstream notifications by outcome",
		}, []string{"event_type", "outcome"}),
		dbPool: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "connection_pool_size",
			Help:      "Database connection pool size",
		}, []string{"state"}),
	}

	hist, err := otel.Meter("coaching.commission").Float64Histogram("commission.amount",
		metric.WithDescription("Commission amount per ledger entry"),
		metric.WithUnit("{USD}"))
	if err == nil {
		c.commissionAmount = hist
	}
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) RecordHTTPRequest(method, handler string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, handler, statusCodeClass(status)).Inc()
	c.httpDuration.WithLabelValues(method, handler).Observe(d.Seconds())
}

func (c *Collector) RecordWebhookEvent(eventType, outcome string) {
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (c *Collector) RecordWebhookDuration(eventType string, d time.Duration) {
	c.webhookDuration.WithLabelValues(eventType).Observe(d.Seconds())
}

func (c *Collector) RecordFeeSource(source string) {
	c.feeSource.WithLabelValues(source).Inc()
}

func (c *Collector) RecordClientMatch(method string) {
	c.clientMatches.WithLabelValues(method).Inc()
}

func (c *Collector) RecordCommissionEntry(role string, amount float64) {
	c.commissionEntries.WithLabelValues(role).Inc()
	if c.commissionAmount != nil {
		c.commissionAmount.Record(context.Background(), amount, metric.WithAttributes(attribute.String("role", role)))
	}
}

func (c *Collector) RecordCommissionSkipped(reason string) {
	c.commissionSkipped.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordPayrollTransition(status string) {
	c.payrollTransitions.WithLabelValues(status).Inc()
}

func (c *Collector) RecordApprovalLatency(d time.Duration) {
	c.approvalLatency.Observe(d.Seconds())
}

func (c *Collector) RecordNotification(eventType, outcome string) {
	c.notifications.WithLabelValues(eventType, outcome).Inc()
}

// UpdateDBPool records connection pool occupancy.
func (c *Collector) UpdateDBPool(acquired, idle, total, max int32) {
	c.dbPool.WithLabelValues("acquired").Set(float64(acquired))
	c.dbPool.WithLabelValues("idle").Set(float64(idle))
	c.dbPool.WithLabelValues("total").Set(float64(total))
	c.dbPool.WithLabelValues("max").Set(float64(max))
}

func statusCodeClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
