package webhook_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/quotepay/internal/clock"
	"github.com/smallbiznis/quotepay/internal/config"
	paymentdomain "github.com/smallbiznis/quotepay/internal/payment/domain"
	"github.com/smallbiznis/quotepay/internal/payment/mocks"
	paymentrepo "github.com/smallbiznis/quotepay/internal/payment/repository"
	"github.com/smallbiznis/quotepay/internal/payment/webhook"
	quotedomain "github.com/smallbiznis/quotepay/internal/quote/domain"
	quoterepo "github.com/smallbiznis/quotepay/internal/quote/repository"
	quoteservice "github.com/smallbiznis/quotepay/internal/quote/service"
	"github.com/smallbiznis/quotepay/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	gateway *mocks.MockGateway
	node    *snowflake.Node
	quotes  quotedomain.Repository
	events  paymentdomain.Repository
	quote   quotedomain.Service
	webhook paymentdomain.WebhookService
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	f := &fixture{
		db:      dbtest.Open(t),
		clock:   clock.NewFakeClock(baseTime),
		gateway: mocks.NewMockGateway(ctrl),
		node:    node,
		quotes:  quoterepo.Provide(),
		events:  paymentrepo.Provide(),
	}
	f.quote = quoteservice.NewService(quoteservice.Params{
		DB:      f.db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   f.clock,
		Repo:    f.quotes,
		Gateway: f.gateway,
		Config:  config.Config{BaseURL: "https://pay.example.com"},
	})
	f.webhook = webhook.NewService(webhook.Params{
		DB:      f.db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   f.clock,
		Events:  f.events,
		Quotes:  f.quotes,
		Gateway: f.gateway,
	})
	return f
}

// seedProcessing stores a quote already linked to providerOrderID.
func (f *fixture) seedProcessing(t *testing.T, number, providerOrderID string) *quotedomain.Quote {
	t.Helper()
	ctx := context.Background()
	q := &quotedomain.Quote{
		ID:            f.node.Generate(),
		QuoteNumber:   number,
		CustomerEmail: "client@example.com",
		Amount:        150000,
		Currency:      "EUR",
		VatRate:       20,
		VatAmount:     25000,
		Description:   "Website redesign",
		Status:        quotedomain.StatusPending,
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	}
	require.NoError(t, f.quotes.Insert(ctx, f.db, q))
	ok, err := f.quotes.AttachCheckout(ctx, f.db, q.ID, quotedomain.StatusPending, nil, quotedomain.Checkout{
		CheckoutURL:     "https://mollie.test/checkout/" + providerOrderID,
		ProviderOrderID: providerOrderID,
	}, baseTime)
	require.NoError(t, err)
	require.True(t, ok)
	return f.reload(t, number)
}

func (f *fixture) reload(t *testing.T, number string) *quotedomain.Quote {
	t.Helper()
	q, err := f.quotes.FindByNumber(context.Background(), f.db, number)
	require.NoError(t, err)
	require.NotNil(t, q)
	return q
}

func (f *fixture) expectOrder(orderID string, status paymentdomain.ProviderStatus, method string) *gomock.Call {
	return f.gateway.EXPECT().
		GetOrder(gomock.Any(), orderID).
		Return(&paymentdomain.Order{ID: orderID, Status: status, RawStatus: string(status), Method: method}, nil)
}

func TestPaymentLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.quote.CreateQuote(ctx, quotedomain.CreateQuoteInput{
		QuoteNumber:   "Q-1",
		CustomerEmail: "client@example.com",
		Amount:        150000,
		VatAmount:     25000,
		Description:   "Website redesign",
	})
	require.NoError(t, err)

	f.gateway.EXPECT().
		CreateOrder(gomock.Any(), gomock.Any()).
		Return(&paymentdomain.Order{ID: "ord_q1", Status: paymentdomain.ProviderStatusCreated, CheckoutURL: "https://mollie.test/checkout/ord_q1"}, nil).
		Times(1)

	checkout, err := f.quote.InitiatePayment(ctx, "Q-1", "Client@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "ord_q1", checkout.ProviderOrderID)
	assert.Equal(t, quotedomain.StatusProcessing, f.reload(t, "Q-1").Status)

	f.expectOrder("ord_q1", paymentdomain.ProviderStatusPaid, "creditcard").Times(2)

	result, err := f.webhook.ApplyProviderEvent(ctx, "ord_q1", []byte(`{"id":"ord_q1"}`))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeApplied, result.Outcome)
	assert.Equal(t, "PROCESSING", result.PreviousStatus)
	assert.Equal(t, "PAID", result.Status)

	paid := f.reload(t, "Q-1")
	assert.Equal(t, quotedomain.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	require.NotNil(t, paid.PaymentMethod)
	assert.Equal(t, "creditcard", *paid.PaymentMethod)
	firstPaidAt := *paid.PaidAt

	f.clock.Advance(10 * time.Minute)
	result, err = f.webhook.ApplyProviderEvent(ctx, "ord_q1", []byte("id=ord_q1"))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeTerminalState, result.Outcome)

	again := f.reload(t, "Q-1")
	assert.Equal(t, quotedomain.StatusPaid, again.Status)
	assert.True(t, again.PaidAt.Equal(firstPaidAt))

	_, err = f.quote.InitiatePayment(ctx, "Q-1", "client@example.com")
	assert.ErrorIs(t, err, quotedomain.ErrAlreadyPaid)

	assert.Equal(t, int64(2), dbtest.Count(t, f.db, `SELECT COUNT(*) FROM webhook_events WHERE processed = ?`, true))
}

func TestTerminalStatusIsNeverOverwritten(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	q := f.seedProcessing(t, "Q-T", "ord_t")

	ok, err := f.quotes.TransitionStatus(ctx, f.db, q.ID, quotedomain.StatusProcessing, quotedomain.StatusCancelled, baseTime)
	require.NoError(t, err)
	require.True(t, ok)

	for _, status := range []paymentdomain.ProviderStatus{
		paymentdomain.ProviderStatusPaid,
		paymentdomain.ProviderStatusPending,
		paymentdomain.ProviderStatusExpired,
	} {
		f.expectOrder("ord_t", status, "")
		result, err := f.webhook.ApplyProviderEvent(ctx, "ord_t", []byte(`{"id":"ord_t"}`))
		require.NoError(t, err)
		assert.Equal(t, paymentdomain.OutcomeTerminalState, result.Outcome)
		assert.Equal(t, quotedomain.StatusCancelled, f.reload(t, "Q-T").Status)
	}
}

func TestSameStatusIsUnchanged(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedProcessing(t, "Q-U", "ord_u")

	f.expectOrder("ord_u", paymentdomain.ProviderStatusAuthorized, "")
	result, err := f.webhook.ApplyProviderEvent(ctx, "ord_u", []byte(`{"id":"ord_u"}`))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeUnchanged, result.Outcome)
	assert.Equal(t, quotedomain.StatusProcessing, f.reload(t, "Q-U").Status)
}

func TestExpiredOrderMarksQuoteFailed(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedProcessing(t, "Q-F", "ord_f")

	f.expectOrder("ord_f", paymentdomain.ProviderStatusExpired, "")
	result, err := f.webhook.ApplyProviderEvent(ctx, "ord_f", []byte(`{"id":"ord_f"}`))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeApplied, result.Outcome)
	assert.Equal(t, quotedomain.StatusFailed, f.reload(t, "Q-F").Status)
}

func TestUnknownOrderIsRecordedAndProcessed(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	result, err := f.webhook.ApplyProviderEvent(ctx, "ord_unknown", []byte(`{"id":"ord_unknown"}`))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeNoMatchingQuote, result.Outcome)

	event, err := f.events.FindEvent(ctx, f.db, result.EventID)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.True(t, event.Processed)
	require.NotNil(t, event.Outcome)
	assert.Equal(t, paymentdomain.OutcomeNoMatchingQuote, *event.Outcome)
}

func TestGatewayFailureLeavesEventForReplay(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.seedProcessing(t, "Q-R", "ord_r")

	f.gateway.EXPECT().
		GetOrder(gomock.Any(), "ord_r").
		Return(nil, errors.New("503 from provider"))

	_, err := f.webhook.ApplyProviderEvent(ctx, "ord_r", []byte("id=ord_r"))
	assert.ErrorIs(t, err, paymentdomain.ErrProviderFailure)
	assert.Equal(t, quotedomain.StatusProcessing, f.reload(t, "Q-R").Status)

	pending, err := f.webhook.ListUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ord_r", pending[0].ProviderOrderID)
	assert.JSONEq(t, `{"raw":"id=ord_r"}`, string(pending[0].Payload))

	f.expectOrder("ord_r", paymentdomain.ProviderStatusPaid, "banktransfer")
	result, err := f.webhook.ReplayEvent(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.OutcomeApplied, result.Outcome)
	assert.Equal(t, quotedomain.StatusPaid, f.reload(t, "Q-R").Status)

	_, err = f.webhook.ReplayEvent(ctx, pending[0].ID)
	assert.ErrorIs(t, err, paymentdomain.ErrEventAlreadyProcessed)

	_, err = f.webhook.ReplayEvent(ctx, f.node.Generate())
	assert.ErrorIs(t, err, paymentdomain.ErrEventNotFound)

	pending, err = f.webhook.ListUnprocessed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEmptyOrderIDRejected(t *testing.T) {
	f := setup(t)
	_, err := f.webhook.ApplyProviderEvent(context.Background(), "  ", nil)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidOrderID)
}
