package webhook_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/quotepay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/quotepay/internal/payment/domain"
	"github.com/smallbiznis/quotepay/internal/payment/webhook"
	quotedomain "github.com/smallbiznis/quotepay/internal/quote/domain"
	"github.com/smallbiznis/quotepay/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// racingQuotes loses status writes. losses < 0 loses every write;
// beforeLoss runs first to stand in for the concurrent writer.
type racingQuotes struct {
	quotedomain.Repository

	mu         sync.Mutex
	losses     int
	lost       int
	beforeLoss func()
}

func (r *racingQuotes) lose() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.losses == 0 {
		return false
	}
	if r.losses > 0 {
		r.losses--
	}
	r.lost++
	return true
}

func (r *racingQuotes) TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to quotedomain.Status, now time.Time) (bool, error) {
	if r.lose() {
		if r.beforeLoss != nil {
			r.beforeLoss()
		}
		return false, nil
	}
	return r.Repository.TransitionStatus(ctx, db, id, from, to, now)
}

func (r *racingQuotes) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, from quotedomain.Status, update quotedomain.PaymentUpdate, now time.Time) (bool, error) {
	if r.lose() {
		if r.beforeLoss != nil {
			r.beforeLoss()
		}
		return false, nil
	}
	return r.Repository.MarkPaid(ctx, db, id, from, update, now)
}

func (f *fixture) webhookWith(t *testing.T, quotes quotedomain.Repository) (paymentdomain.WebhookService, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry, metrics.Config{ServiceName: "quotepay", Environment: "test"})
	require.NoError(t, err)

	return webhook.NewService(webhook.Params{
		DB:      f.db,
		Log:     zap.NewNop(),
		GenID:   f.node,
		Clock:   f.clock,
		Events:  f.events,
		Quotes:  quotes,
		Gateway: f.gateway,
		Metrics: m,
	}), registry
}

func counterValue(t *testing.T, registry *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if hasLabel(metric, label, value) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name && pair.GetValue() == value {
			return true
		}
	}
	return false
}

func TestApplyRereadsAfterLostWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent payment wins", func(t *testing.T) {
		f := setup(t)
		q := f.seedProcessing(t, "Q-A", "ord_a")

		quotes := &racingQuotes{Repository: f.quotes, losses: 1}
		quotes.beforeLoss = func() {
			ok, err := f.quotes.MarkPaid(ctx, f.db, q.ID, quotedomain.StatusProcessing, quotedomain.PaymentUpdate{PaidAt: baseTime}, baseTime)
			require.NoError(t, err)
			require.True(t, ok)
		}
		svc, registry := f.webhookWith(t, quotes)

		f.expectOrder("ord_a", paymentdomain.ProviderStatusPaid, "ideal")
		result, err := svc.ApplyProviderEvent(ctx, "ord_a", []byte(`{"id":"ord_a"}`))
		require.NoError(t, err)
		assert.Equal(t, paymentdomain.OutcomeTerminalState, result.Outcome)
		assert.Equal(t, "PAID", result.PreviousStatus)
		assert.Equal(t, "PAID", result.Status)

		stored := f.reload(t, "Q-A")
		assert.Equal(t, quotedomain.StatusPaid, stored.Status)
		require.NotNil(t, stored.PaidAt)
		assert.True(t, stored.PaidAt.Equal(baseTime))

		assert.Equal(t, 1.0, counterValue(t, registry, "quotepay_quote_cas_conflicts_total", "operation", "webhook_apply"))
		assert.Zero(t, dbtest.Count(t, f.db, `SELECT COUNT(*) FROM webhook_events WHERE processed = ?`, false))
	})

	t.Run("retry applies after a transient loss", func(t *testing.T) {
		f := setup(t)
		f.seedProcessing(t, "Q-B", "ord_b")

		svc, _ := f.webhookWith(t, &racingQuotes{Repository: f.quotes, losses: 1})

		f.expectOrder("ord_b", paymentdomain.ProviderStatusPaid, "ideal")
		result, err := svc.ApplyProviderEvent(ctx, "ord_b", []byte(`{"id":"ord_b"}`))
		require.NoError(t, err)
		assert.Equal(t, paymentdomain.OutcomeApplied, result.Outcome)
		assert.Equal(t, quotedomain.StatusPaid, f.reload(t, "Q-B").Status)
	})
}

func TestApplyGivesUpAfterRepeatedLostWrites(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedProcessing(t, "Q-X", "ord_x")

	quotes := &racingQuotes{Repository: f.quotes, losses: -1}
	svc, registry := f.webhookWith(t, quotes)

	f.expectOrder("ord_x", paymentdomain.ProviderStatusPaid, "ideal")
	_, err := svc.ApplyProviderEvent(ctx, "ord_x", []byte(`{"id":"ord_x"}`))
	assert.ErrorIs(t, err, quotedomain.ErrStoreFailure)
	assert.Equal(t, 3, quotes.lost)

	assert.Equal(t, quotedomain.StatusProcessing, f.reload(t, "Q-X").Status)
	assert.Equal(t, 1.0, counterValue(t, registry, "quotepay_webhook_events_total", "outcome", paymentdomain.OutcomeConflict))

	pending, err := f.webhook.ListUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ord_x", pending[0].ProviderOrderID)

	f.expectOrder("ord_x", paymentdomain.ProviderStatusPaid, "ideal")
	result, err := f.webhook.ReplayEvent(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeApplied, result.Outcome)
	assert.Equal(t, quotedomain.StatusPaid, f.reload(t, "Q-X").Status)
}

func TestConcurrentDeliveriesSettleOnPaid(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedProcessing(t, "Q-Z", "ord_z")

	statuses := []paymentdomain.ProviderStatus{
		paymentdomain.ProviderStatusPending,
		paymentdomain.ProviderStatusPaid,
		paymentdomain.ProviderStatusCreated,
	}
	var fetches atomic.Int32
	f.gateway.EXPECT().
		GetOrder(gomock.Any(), "ord_z").
		DoAndReturn(func(_ context.Context, orderID string) (*paymentdomain.Order, error) {
			status := statuses[int(fetches.Add(1))%len(statuses)]
			return &paymentdomain.Order{ID: orderID, Status: status, RawStatus: string(status), Method: "ideal"}, nil
		}).
		Times(20)

	const deliveries = 20
	errs := make([]error, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.webhook.ApplyProviderEvent(ctx, "ord_z", []byte(`{"id":"ord_z"}`))
		}(i)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			require.True(t, errors.Is(err, quotedomain.ErrStoreFailure), "unexpected error: %v", err)
			failed++
		}
	}

	stored := f.reload(t, "Q-Z")
	assert.Equal(t, quotedomain.StatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)

	assert.Equal(t, int64(deliveries), dbtest.Count(t, f.db, `SELECT COUNT(*) FROM webhook_events WHERE provider_order_id = ?`, "ord_z"))
	assert.Equal(t, int64(failed), dbtest.Count(t, f.db, `SELECT COUNT(*) FROM webhook_events WHERE processed = ?`, false))
}
