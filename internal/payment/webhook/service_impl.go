package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotepay/internal/clock"
	"github.com/smallbiznis/quotepay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/quotepay/internal/payment/domain"
	quotedomain "github.com/smallbiznis/quotepay/internal/quote/domain"
	"github.com/smallbiznis/quotepay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxApplyAttempts = 3

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Events    paymentdomain.Repository
	Quotes    quotedomain.Repository
	Gateway   paymentdomain.Gateway
	OrderLock *ratelimit.OrderLocker `optional:"true"`
	Metrics   *metrics.Metrics       `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	events    paymentdomain.Repository
	quotes    quotedomain.Repository
	gateway   paymentdomain.Gateway
	orderLock *ratelimit.OrderLocker
	metrics   *metrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.webhook"),
		genID:     p.GenID,
		clock:     p.Clock,
		events:    p.Events,
		quotes:    p.Quotes,
		gateway:   p.Gateway,
		orderLock: p.OrderLock,
		metrics:   p.Metrics,
	}
}

// ApplyProviderEvent records the notification, then reconciles the quote
// against the order status fetched from the provider.
func (s *Service) ApplyProviderEvent(ctx context.Context, providerOrderID string, payload []byte) (*paymentdomain.EventResult, error) {
	providerOrderID = strings.TrimSpace(providerOrderID)
	if providerOrderID == "" {
		return nil, paymentdomain.ErrInvalidOrderID
	}

	event := &paymentdomain.WebhookEvent{
		ID:              s.genID.Generate(),
		ProviderOrderID: providerOrderID,
		EventType:       paymentdomain.EventTypeOrderUpdated,
		Payload:         normalizePayload(payload),
		CreatedAt:       s.clock.Now(),
	}
	if err := s.events.InsertEvent(ctx, s.db, event); err != nil {
		s.log.Error("record webhook event failed", zap.String("provider_order_id", providerOrderID), zap.Error(err))
		return nil, storeFailure(err)
	}

	return s.process(ctx, event)
}

func (s *Service) ReplayEvent(ctx context.Context, eventID snowflake.ID) (*paymentdomain.EventResult, error) {
	event, err := s.events.FindEvent(ctx, s.db, eventID)
	if err != nil {
		return nil, storeFailure(err)
	}
	if event == nil {
		return nil, paymentdomain.ErrEventNotFound
	}
	if event.Processed {
		return nil, paymentdomain.ErrEventAlreadyProcessed
	}

	s.log.Info("replaying webhook event",
		zap.String("event_id", event.ID.String()),
		zap.String("provider_order_id", event.ProviderOrderID),
	)
	return s.process(ctx, event)
}

func (s *Service) ListUnprocessed(ctx context.Context, limit int) ([]paymentdomain.WebhookEvent, error) {
	items, err := s.events.ListUnprocessed(ctx, s.db, limit)
	if err != nil {
		return nil, storeFailure(err)
	}
	return items, nil
}

func (s *Service) process(ctx context.Context, event *paymentdomain.WebhookEvent) (*paymentdomain.EventResult, error) {
	release := s.orderLock.Lock(ctx, event.ProviderOrderID)
	defer release()

	log := s.log.With(
		zap.String("event_id", event.ID.String()),
		zap.String("provider_order_id", event.ProviderOrderID),
	)
	result := &paymentdomain.EventResult{
		EventID:         event.ID,
		ProviderOrderID: event.ProviderOrderID,
	}

	quote, err := s.quotes.FindByProviderOrderID(ctx, s.db, event.ProviderOrderID)
	if err != nil {
		log.Error("resolve quote failed", zap.Error(err))
		return nil, storeFailure(err)
	}
	if quote == nil {
		log.Warn("webhook for unknown provider order")
		return s.finish(ctx, log, event, result, paymentdomain.OutcomeNoMatchingQuote)
	}
	result.QuoteNumber = quote.QuoteNumber
	log = log.With(zap.String("quote_number", quote.QuoteNumber))

	start := time.Now()
	order, err := s.gateway.GetOrder(ctx, event.ProviderOrderID)
	s.metrics.ObserveGateway("get_order", err, time.Since(start))
	if err != nil {
		if attachErr := s.events.AttachQuote(ctx, s.db, event.ID, quote.ID, nil); attachErr != nil {
			log.Warn("link event to quote failed", zap.Error(attachErr))
		}
		log.Error("fetch provider order failed, event left unprocessed", zap.Error(err))
		return nil, providerFailure(err)
	}

	providerStatus := string(order.Status)
	if order.RawStatus != "" {
		providerStatus = order.RawStatus
	}
	result.ProviderStatus = providerStatus
	if err := s.events.AttachQuote(ctx, s.db, event.ID, quote.ID, &providerStatus); err != nil {
		log.Error("link event to quote failed", zap.Error(err))
		return nil, storeFailure(err)
	}

	target := paymentdomain.MapProviderStatus(order.Status)

	outcome := ""
	for attempt := 1; attempt <= maxApplyAttempts; attempt++ {
		result.PreviousStatus = string(quote.Status)

		if quote.Status.IsTerminal() {
			outcome = paymentdomain.OutcomeTerminalState
			break
		}
		if quote.Status == target {
			outcome = paymentdomain.OutcomeUnchanged
			break
		}

		ok, err := s.transition(ctx, quote, target, order.Method)
		if err != nil {
			log.Error("apply provider status failed", zap.String("target", string(target)), zap.Error(err))
			return nil, storeFailure(err)
		}
		if ok {
			s.metrics.RecordTransition(string(quote.Status), string(target))
			outcome = paymentdomain.OutcomeApplied
			break
		}

		s.metrics.RecordConflict("webhook_apply")
		if quote, err = s.quotes.FindByID(ctx, s.db, quote.ID); err != nil {
			return nil, storeFailure(err)
		}
		if quote == nil {
			return nil, storeFailure(quotedomain.ErrQuoteNotFound)
		}
	}

	if outcome == "" {
		s.metrics.RecordWebhookEvent(paymentdomain.OutcomeConflict)
		log.Warn("quote kept changing, event left unprocessed", zap.Int("attempts", maxApplyAttempts))
		return nil, fmt.Errorf("%w: %s", quotedomain.ErrStoreFailure, paymentdomain.OutcomeConflict)
	}

	result.Status = string(quote.Status)
	if outcome == paymentdomain.OutcomeApplied {
		result.Status = string(target)
	}
	log.Info("provider event reconciled",
		zap.String("provider_status", providerStatus),
		zap.String("previous_status", result.PreviousStatus),
		zap.String("status", result.Status),
		zap.String("outcome", outcome),
	)
	return s.finish(ctx, log, event, result, outcome)
}

func (s *Service) transition(ctx context.Context, quote *quotedomain.Quote, target quotedomain.Status, method string) (bool, error) {
	now := s.clock.Now()
	if target != quotedomain.StatusPaid {
		return s.quotes.TransitionStatus(ctx, s.db, quote.ID, quote.Status, target, now)
	}

	update := quotedomain.PaymentUpdate{PaidAt: now}
	if method = strings.TrimSpace(method); method != "" {
		update.PaymentMethod = &method
	}
	return s.quotes.MarkPaid(ctx, s.db, quote.ID, quote.Status, update, now)
}

func (s *Service) finish(
	ctx context.Context,
	log *zap.Logger,
	event *paymentdomain.WebhookEvent,
	result *paymentdomain.EventResult,
	outcome string,
) (*paymentdomain.EventResult, error) {
	result.Outcome = outcome
	ok, err := s.events.MarkProcessed(ctx, s.db, event.ID, outcome, s.clock.Now())
	if err != nil {
		log.Error("mark event processed failed", zap.Error(err))
		return nil, storeFailure(err)
	}
	if !ok {
		log.Info("event already processed elsewhere")
	}
	s.metrics.RecordWebhookEvent(outcome)
	return result, nil
}

// normalizePayload keeps JSON bodies verbatim and wraps anything else so the
// column always holds valid JSON.
func normalizePayload(payload []byte) datatypes.JSON {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return datatypes.JSON(`{}`)
	}
	if json.Valid(payload) {
		return datatypes.JSON(payload)
	}
	wrapped, err := json.Marshal(map[string]string{"raw": string(payload)})
	if err != nil {
		return datatypes.JSON(`{}`)
	}
	return datatypes.JSON(wrapped)
}

func storeFailure(err error) error {
	if err == nil || errors.Is(err, quotedomain.ErrStoreFailure) {
		return err
	}
	return fmt.Errorf("%w: %v", quotedomain.ErrStoreFailure, err)
}

func providerFailure(err error) error {
	if err == nil || errors.Is(err, paymentdomain.ErrProviderFailure) {
		return err
	}
	return fmt.Errorf("%w: %v", paymentdomain.ErrProviderFailure, err)
}
