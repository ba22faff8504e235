package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordersUpdateSeries(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := New(registry, Config{ServiceName: "quotepay", Environment: "test"})
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	m.RecordInitiation(ResultSuccess)
	m.RecordInitiation(ResultSuccess)
	m.RecordWebhookEvent("applied")
	m.RecordTransition("PROCESSING", "PAID")
	m.AddSweepExpired(3)
	m.AddSweepExpired(0)
	m.ObserveJob("expire_quotes", errors.New("boom"), time.Millisecond)

	if got := testutil.ToFloat64(m.initiations.WithLabelValues(ResultSuccess)); got != 2 {
		t.Fatalf("expected 2 initiations, got %v", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("PROCESSING", "PAID")); got != 1 {
		t.Fatalf("expected 1 transition, got %v", got)
	}
	if got := testutil.ToFloat64(m.sweepExpired); got != 3 {
		t.Fatalf("expected 3 expired, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues("expire_quotes")); got != 1 {
		t.Fatalf("expected 1 job error, got %v", got)
	}
}

func TestNewReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := New(registry, Config{})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := New(registry, Config{})
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	first.RecordWebhookEvent("unchanged")
	if got := testutil.ToFloat64(second.webhookEvents.WithLabelValues("unchanged")); got != 1 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordInitiation(ResultError)
	m.ObserveGateway("create_order", nil, time.Second)
	m.AddSweepExpired(1)
	m.ObserveHTTP("GET", "/health", 200, time.Millisecond)
	m.RecordRateLimit("denied")
}

func TestObserveHTTPCollapsesStatus(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := New(registry, Config{ServiceName: "quotepay", Environment: "test"})
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	m.ObserveHTTP("POST", "/api/pay-quote", 200, time.Millisecond)
	m.ObserveHTTP("POST", "/api/pay-quote", 201, time.Millisecond)
	m.ObserveHTTP("GET", "", 404, time.Millisecond)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/api/pay-quote", "2xx")); got != 2 {
		t.Fatalf("expected 2 requests in 2xx, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "4xx")); got != 1 {
		t.Fatalf("expected 1 unmatched 4xx, got %v", got)
	}
}
