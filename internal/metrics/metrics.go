package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// RBAC metrics
	PermissionsTotal           prometheus.Gauge
	SuperadminPermissionsTotal prometheus.Gauge
	SuperadminMissingTotal     prometheus.Gauge
	SuperadminGrantsTotal      *prometheus.CounterVec
	AuthorizationDecisions     *prometheus.CounterVec

	// Ledger metrics
	ImportRowsTotal        *prometheus.CounterVec
	PayslipsGeneratedTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetops_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleetops_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		PermissionsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleetops_permissions_total",
				Help: "Number of permissions defined",
			},
		),
		SuperadminPermissionsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleetops_superadmin_permissions_total",
				Help: "Number of permissions granted to the superadmin role",
			},
		),
		SuperadminMissingTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleetops_superadmin_missing_permissions",
				Help: "Permissions the superadmin role is missing at the last check",
			},
		),
		SuperadminGrantsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetops_superadmin_grants_total",
				Help: "Permissions granted to superadmin, by trigger",
			},
			[]string{"trigger"},
		),
		AuthorizationDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetops_authorization_decisions_total",
				Help: "Authorization gate decisions",
			},
			[]string{"decision"},
		),

		ImportRowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetops_import_rows_total",
				Help: "Ledger import rows by outcome",
			},
			[]string{"outcome"},
		),
		PayslipsGeneratedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fleetops_payslips_generated_total",
				Help: "Payslips generated from ledger records",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionsTotal,
		m.SuperadminPermissionsTotal,
		m.SuperadminMissingTotal,
		m.SuperadminGrantsTotal,
		m.AuthorizationDecisions,
		m.ImportRowsTotal,
		m.PayslipsGeneratedTotal,
	)

	return m
}

// ObserveConsistency records the result of a superadmin status check
func (m *Metrics) ObserveConsistency(total, granted int64) {
	if m == nil {
		return
	}
	m.PermissionsTotal.Set(float64(total))
	m.SuperadminPermissionsTotal.Set(float64(granted))
	missing := total - granted
	if missing < 0 {
		missing = 0
	}
	m.SuperadminMissingTotal.Set(float64(missing))
}

// AddSuperadminGrants counts grants made by trigger ("create", "repair", "schedule")
func (m *Metrics) AddSuperadminGrants(trigger string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SuperadminGrantsTotal.WithLabelValues(trigger).Add(float64(n))
}

func (m *Metrics) ObserveDecision(allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.AuthorizationDecisions.WithLabelValues(decision).Inc()
}

// ObserveImport records row outcomes of one ledger import
func (m *Metrics) ObserveImport(inserted, rejected, skipped int) {
	if m == nil {
		return
	}
	m.ImportRowsTotal.WithLabelValues("inserted").Add(float64(inserted))
	m.ImportRowsTotal.WithLabelValues("rejected").Add(float64(rejected))
	m.ImportRowsTotal.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *Metrics) AddPayslips(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PayslipsGeneratedTotal.Add(float64(n))
}

// GinMiddleware instruments requests; the route template is used as path label
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format
func Handler(gatherer prometheus.Gatherer) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
