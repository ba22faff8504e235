package metrics

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels attached to every series.
type Config struct {
	ServiceName string
	Environment string
}

// Result labels.
const (
	ResultSuccess = "success"
	ResultReused  = "reused"
	ResultError   = "error"
)

// Metrics holds the payment engine instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	initiations     *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	casConflicts    *prometheus.CounterVec
	sweepExpired    prometheus.Counter
	gatewayDuration *prometheus.HistogramVec
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobErrors       *prometheus.CounterVec
	orderLocks      *prometheus.CounterVec
	rateLimits      *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers the instruments on registerer. Already registered
// collectors are reused so New can run more than once per process.
func New(registerer prometheus.Registerer, cfg Config) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "quotepay"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &Metrics{
		initiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quotepay_payment_initiations_total",
			Help:        "Payment initiations by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quotepay_webhook_events_total",
			Help:        "Provider webhook events by processing outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quotepay_quote_transitions_total",
			Help:        "Quote status transitions persisted by the engine.",
			ConstLabels: constLabels,
		}, []string{"from", "to"}),
		casConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quotepay_quote_cas_conflicts_total",
			Help:        "Conditional quote updates that lost to a concurrent writer.",
			ConstLabels: constLabels,
		}, []string{"operation"}),
		sweepExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "quotepay_expiry_sweep_expired_total",
			Help:        "Quotes moved to EXPIRED by the expiration sweep.",
			ConstLabels: constLabels,
		}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "quotepay_gateway_request_duration_seconds",
			Help:        "Payment provider request latency.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			ConstLabels: constLabels,
		}, []string{"operation", "result"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quotepay_scheduler_job_runs_total",
			Help:        "Scheduler job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "quotepay_scheduler_job_duration_seconds",
			Help:        "Scheduler job latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quotepay_scheduler_job_errors_total",
			Help:        "Scheduler job failures by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		orderLocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quotepay_order_lock_total",
			Help:        "Per-order webhook lock acquisitions by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		rateLimits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quotepay_rate_limit_decisions_total",
			Help:        "Pay-quote rate limit decisions by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quotepay_http_requests_total",
			Help:        "HTTP requests by route and status class.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "quotepay_http_request_duration_seconds",
			Help:        "HTTP request latency by route.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route"}),
	}

	var err error
	m.initiations, err = registerCounterVec(registerer, m.initiations)
	if err != nil {
		return nil, err
	}
	m.webhookEvents, err = registerCounterVec(registerer, m.webhookEvents)
	if err != nil {
		return nil, err
	}
	m.transitions, err = registerCounterVec(registerer, m.transitions)
	if err != nil {
		return nil, err
	}
	m.casConflicts, err = registerCounterVec(registerer, m.casConflicts)
	if err != nil {
		return nil, err
	}
	m.jobRuns, err = registerCounterVec(registerer, m.jobRuns)
	if err != nil {
		return nil, err
	}
	m.jobErrors, err = registerCounterVec(registerer, m.jobErrors)
	if err != nil {
		return nil, err
	}
	m.orderLocks, err = registerCounterVec(registerer, m.orderLocks)
	if err != nil {
		return nil, err
	}
	m.rateLimits, err = registerCounterVec(registerer, m.rateLimits)
	if err != nil {
		return nil, err
	}
	m.httpRequests, err = registerCounterVec(registerer, m.httpRequests)
	if err != nil {
		return nil, err
	}
	m.httpDuration, err = registerHistogramVec(registerer, m.httpDuration)
	if err != nil {
		return nil, err
	}
	m.gatewayDuration, err = registerHistogramVec(registerer, m.gatewayDuration)
	if err != nil {
		return nil, err
	}
	m.jobDuration, err = registerHistogramVec(registerer, m.jobDuration)
	if err != nil {
		return nil, err
	}
	if err := registerer.Register(m.sweepExpired); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		m.sweepExpired = are.ExistingCollector.(prometheus.Counter)
	}

	return m, nil
}

func registerCounterVec(registerer prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, err
	}
	return c, nil
}

func registerHistogramVec(registerer prometheus.Registerer, h *prometheus.HistogramVec) (*prometheus.HistogramVec, error) {
	if err := registerer.Register(h); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.HistogramVec), nil
		}
		return nil, err
	}
	return h, nil
}

func (m *Metrics) RecordInitiation(result string) {
	if m == nil {
		return
	}
	m.initiations.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordWebhookEvent(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordConflict(operation string) {
	if m == nil {
		return
	}
	m.casConflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) AddSweepExpired(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.sweepExpired.Add(float64(count))
}

func (m *Metrics) ObserveGateway(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.gatewayDuration.WithLabelValues(operation, result).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveJob(job string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
	if err != nil {
		m.jobErrors.WithLabelValues(job).Inc()
	}
}

func (m *Metrics) RecordOrderLock(result string) {
	if m == nil {
		return
	}
	m.orderLocks.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRateLimit(result string) {
	if m == nil {
		return
	}
	m.rateLimits.WithLabelValues(result).Inc()
}

// ObserveHTTP records one served request. status is collapsed to its class
// (2xx, 4xx, ...) to bound cardinality.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return string(rune('0'+status/100)) + "xx"
}
