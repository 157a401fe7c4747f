// Package metrics owns the Prometheus collectors for the HTTP surface, the
// settlement webhooks and the ledger.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wallet"

type Metrics struct {
	Requests        *prometheus.CounterVec
	Duration        *prometheus.HistogramVec
	WebhookEvents   *prometheus.CounterVec
	LedgerMutations *prometheus.CounterVec
	BalanceDrift    prometheus.Counter
	ProviderCalls   *prometheus.CounterVec
}

// New registers the collectors on reg, reusing collectors that are already
// registered so tests can build several instances.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests partitioned by method, route and status.",
		}, []string{"method", "route", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency partitioned by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "webhook_events_total",
			Help:      "Provider webhook events partitioned by kind and outcome.",
		}, []string{"kind", "outcome"}),
		LedgerMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "mutations_total",
			Help:      "Balance mutations partitioned by direction and outcome.",
		}, []string{"direction", "outcome"}),
		BalanceDrift: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "balance_drift_total",
			Help:      "Provider balance syncs that disagreed with the local ledger.",
		}),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Calls to the banking provider partitioned by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}

	var err error
	if m.Requests, err = register(reg, m.Requests); err != nil {
		return nil, err
	}
	if m.Duration, err = register(reg, m.Duration); err != nil {
		return nil, err
	}
	if m.WebhookEvents, err = register(reg, m.WebhookEvents); err != nil {
		return nil, err
	}
	if m.LedgerMutations, err = register(reg, m.LedgerMutations); err != nil {
		return nil, err
	}
	if m.BalanceDrift, err = register(reg, m.BalanceDrift); err != nil {
		return nil, err
	}
	if m.ProviderCalls, err = register(reg, m.ProviderCalls); err != nil {
		return nil, err
	}
	return m, nil
}

// NewNop returns collectors that are not registered anywhere.
func NewNop() *Metrics {
	m, _ := New(prometheus.NewRegistry())
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

func (m *Metrics) Webhook(kind, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Ledger(direction, outcome string) {
	if m == nil {
		return
	}
	m.LedgerMutations.WithLabelValues(direction, outcome).Inc()
}

func (m *Metrics) Drift() {
	if m == nil {
		return
	}
	m.BalanceDrift.Inc()
}

func (m *Metrics) Provider(operation, outcome string) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) Request(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.Requests.WithLabelValues(method, route, code).Inc()
	m.Duration.WithLabelValues(method, route, code).Observe(took.Seconds())
}
