package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/quotepay/internal/clock"
	"github.com/smallbiznis/quotepay/internal/config"
	obsmetrics "github.com/smallbiznis/quotepay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/quotepay/internal/payment/domain"
	quotedomain "github.com/smallbiznis/quotepay/internal/quote/domain"
	quoterepo "github.com/smallbiznis/quotepay/internal/quote/repository"
	quoteservice "github.com/smallbiznis/quotepay/internal/quote/service"
	"github.com/smallbiznis/quotepay/pkg/db/dbtest"
	"go.uber.org/zap"
)

type stubQuoteSvc struct {
	quotedomain.Service
	sweep func(ctx context.Context) (int64, error)
	calls int
}

func (s *stubQuoteSvc) SweepExpired(ctx context.Context) (int64, error) {
	s.calls++
	return s.sweep(ctx)
}

type stubWebhookSvc struct {
	paymentdomain.WebhookService
	events []paymentdomain.WebhookEvent
}

func (s *stubWebhookSvc) ListUnprocessed(context.Context, int) ([]paymentdomain.WebhookEvent, error) {
	return s.events, nil
}

func newTestScheduler(t *testing.T, quoteSvc quotedomain.Service, fake *clock.FakeClock, m *obsmetrics.Metrics) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(4)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	s, err := New(Params{
		Log:      zap.NewNop(),
		QuoteSvc: quoteSvc,
		GenID:    node,
		Clock:    fake,
		Metrics:  m,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Params{Log: zap.NewNop()}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestProvideConfigUsesSweepInterval(t *testing.T) {
	cfg := ProvideConfig(config.Config{SweepInterval: 5 * time.Minute})
	if cfg.RunInterval != 5*time.Minute {
		t.Fatalf("expected 5m interval, got %v", cfg.RunInterval)
	}
	if cfg.JobTimeout != DefaultConfig().JobTimeout {
		t.Fatalf("expected default job timeout, got %v", cfg.JobTimeout)
	}
}

func TestRunJobTimeoutDoesNotReturnErrorAndCountsError(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := obsmetrics.New(registry, obsmetrics.Config{ServiceName: "quotepay", Environment: "test"})
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	s := newTestScheduler(t, &stubQuoteSvc{}, clock.NewFakeClock(time.Time{}), m)
	err = s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{"service": "quotepay", "env": "test", "job": "timeout_job"}
	if got := getCounterValue(t, registry, "quotepay_scheduler_job_errors_total", labels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
	if got := getCounterValue(t, registry, "quotepay_scheduler_job_runs_total", labels); got != 1 {
		t.Fatalf("expected run count 1, got %v", got)
	}
}

func TestRunOnceJoinsJobErrors(t *testing.T) {
	quoteSvc := &stubQuoteSvc{sweep: func(context.Context) (int64, error) {
		return 0, quotedomain.ErrStoreFailure
	}}
	s := newTestScheduler(t, quoteSvc, clock.NewFakeClock(time.Time{}), nil)

	err := s.RunOnce(context.Background())
	if !errors.Is(err, quotedomain.ErrStoreFailure) {
		t.Fatalf("expected store failure, got %v", err)
	}
	if quoteSvc.calls != 1 {
		t.Fatalf("expected one sweep, got %d", quoteSvc.calls)
	}
}

func TestEnabledJobsFilter(t *testing.T) {
	quoteSvc := &stubQuoteSvc{sweep: func(context.Context) (int64, error) { return 0, nil }}
	s := newTestScheduler(t, quoteSvc, clock.NewFakeClock(time.Time{}), nil)
	s.cfg.EnabledJobs = []string{JobWebhookBacklog}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if quoteSvc.calls != 0 {
		t.Fatalf("expire job should be disabled, ran %d times", quoteSvc.calls)
	}
}

func TestWebhookBacklogCountsOnlyStaleEvents(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(t, &stubQuoteSvc{}, clock.NewFakeClock(now), nil)
	s.webhookSvc = &stubWebhookSvc{events: []paymentdomain.WebhookEvent{
		{ProviderOrderID: "ord_old", CreatedAt: now.Add(-time.Hour)},
		{ProviderOrderID: "ord_new", CreatedAt: now.Add(-time.Minute)},
	}}

	ctx, run := s.startJobRun(context.Background(), JobWebhookBacklog)
	if err := s.WebhookBacklogJob(ctx); err != nil {
		t.Fatalf("backlog job: %v", err)
	}
	if run.processedCount != 1 {
		t.Fatalf("expected 1 stale event, got %d", run.processedCount)
	}
}

func TestExpireQuotesJobWithFakeClock(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	repo := quoterepo.Provide()
	node, err := snowflake.NewNode(5)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(start)
	quoteSvc := quoteservice.NewService(quoteservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repo,
	})

	deadline := start.Add(time.Hour)
	for _, number := range []string{"EXP-1", "EXP-2"} {
		q := &quotedomain.Quote{
			ID:            node.Generate(),
			QuoteNumber:   number,
			CustomerEmail: "client@example.com",
			Amount:        1000,
			Currency:      "EUR",
			VatRate:       20,
			Description:   "Audit",
			ExpiresAt:     &deadline,
			Status:        quotedomain.StatusPending,
			CreatedAt:     start,
			UpdatedAt:     start,
		}
		if err := repo.Insert(ctx, db, q); err != nil {
			t.Fatalf("insert %s: %v", number, err)
		}
	}

	s := newTestScheduler(t, quoteSvc, fake, nil)

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("run once before deadline: %v", err)
	}
	if got := dbtest.Count(t, db, `SELECT COUNT(*) FROM quotes WHERE status = ?`, "EXPIRED"); got != 0 {
		t.Fatalf("expected nothing expired yet, got %d", got)
	}

	fake.Advance(2 * time.Hour)
	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("run once after deadline: %v", err)
	}
	if got := dbtest.Count(t, db, `SELECT COUNT(*) FROM quotes WHERE status = ?`, "EXPIRED"); got != 2 {
		t.Fatalf("expected 2 expired quotes, got %d", got)
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
