// Package metrics holds the service's Prometheus collectors on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/opa"
)

const namespace = "user_service"

type Metrics struct {
	reg *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	loginAttempts   *prometheus.CounterVec
	registrations   prometheus.Counter
	profileUpdates  prometheus.Counter
	passwordChanges *prometheus.CounterVec
	statusChanges   *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	policyDecisions *prometheus.CounterVec
	jwksRefreshes   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
		loginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome",
		}, []string{"status"}), // success, invalid_credentials, inactive_account, error
		registrations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Total number of user registrations",
		}),
		profileUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_updates_total",
			Help:      "Total number of profile updates",
		}),
		passwordChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_changes_total",
			Help:      "Password change attempts by outcome",
		}, []string{"status"}),
		statusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_status_changes_total",
			Help:      "Account activations and deactivations",
		}, []string{"active"}),
		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events published by subject and outcome",
		}, []string{"subject", "status"}),
		policyDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_decisions_total",
			Help:      "Policy checks by action, raw decision and final outcome",
		}, []string{"action", "decision", "allowed"}),
		jwksRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jwks_refreshes_total",
			Help:      "Remote key set fetches by outcome",
		}, []string{"status"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// GinMiddleware records request counts and latency keyed by route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) LoginAttempt(status string) { m.loginAttempts.WithLabelValues(status).Inc() }

func (m *Metrics) Registration() { m.registrations.Inc() }

func (m *Metrics) ProfileUpdate() { m.profileUpdates.Inc() }

func (m *Metrics) PasswordChange(status string) { m.passwordChanges.WithLabelValues(status).Inc() }

func (m *Metrics) StatusChange(active bool) {
	m.statusChanges.WithLabelValues(strconv.FormatBool(active)).Inc()
}

func (m *Metrics) EventPublished(subject string, err error) {
	m.eventsPublished.WithLabelValues(subject, outcome(err)).Inc()
}

// ObservePolicyDecision implements opa.DecisionObserver.
func (m *Metrics) ObservePolicyDecision(action string, d opa.Decision, allowed bool) {
	m.policyDecisions.WithLabelValues(action, d.String(), strconv.FormatBool(allowed)).Inc()
}

// JWKSRefresh is passed to token.WithRefreshHook.
func (m *Metrics) JWKSRefresh(err error) { m.jwksRefreshes.WithLabelValues(outcome(err)).Inc() }

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

var _ opa.DecisionObserver = (*Metrics)(nil)
