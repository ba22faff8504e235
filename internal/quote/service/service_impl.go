package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotepay/internal/clock"
	"github.com/smallbiznis/quotepay/internal/config"
	"github.com/smallbiznis/quotepay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/quotepay/internal/payment/domain"
	quotedomain "github.com/smallbiznis/quotepay/internal/quote/domain"
	"github.com/smallbiznis/quotepay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCASAttempts = 3

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    quotedomain.Repository
	Gateway paymentdomain.Gateway
	Config  config.Config
	Billing *config.BillingDefaultsHolder `optional:"true"`
	Metrics *metrics.Metrics              `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    quotedomain.Repository
	gateway paymentdomain.Gateway
	cfg     config.Config
	billing *config.BillingDefaultsHolder
	metrics *metrics.Metrics
}

func NewService(p Params) quotedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("quote.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		gateway: p.Gateway,
		cfg:     p.Config,
		billing: p.Billing,
		metrics: p.Metrics,
	}
}

func (s *Service) CanBePaid(ctx context.Context, quoteNumber string, email string) (*quotedomain.Quote, error) {
	return s.checkPayable(ctx, quoteNumber, &email)
}

func (s *Service) LookupPublic(ctx context.Context, quoteNumber string) (*quotedomain.PublicQuote, error) {
	q, err := s.checkPayable(ctx, quoteNumber, nil)
	if err != nil {
		return nil, err
	}
	return &quotedomain.PublicQuote{
		QuoteNumber: q.QuoteNumber,
		Amount:      q.Amount,
		Currency:    q.Currency,
		Description: q.Description,
		Status:      q.Status,
	}, nil
}

// checkPayable skips the owner comparison when email is nil.
func (s *Service) checkPayable(ctx context.Context, quoteNumber string, email *string) (*quotedomain.Quote, error) {
	q, err := s.loadByNumber(ctx, quoteNumber)
	if err != nil {
		return nil, err
	}
	if email != nil && !q.OwnedBy(*email) {
		return nil, quotedomain.ErrOwnerMismatch
	}

	for attempt := 1; ; attempt++ {
		if termErr := quotedomain.TerminalError(q.Status); termErr != nil {
			return nil, termErr
		}

		now := s.clock.Now()
		if !q.IsExpired(now) {
			return q, nil
		}

		ok, err := s.repo.TransitionStatus(ctx, s.db, q.ID, q.Status, quotedomain.StatusExpired, now)
		if err != nil {
			return nil, storeFailure(err)
		}
		if ok {
			s.metrics.RecordTransition(string(q.Status), string(quotedomain.StatusExpired))
			s.log.Info("quote expired on access",
				zap.String("quote_number", q.QuoteNumber),
				zap.String("previous_status", string(q.Status)),
			)
			return nil, quotedomain.ErrAlreadyExpired
		}

		s.metrics.RecordConflict("expire_on_access")
		if attempt >= maxCASAttempts {
			return nil, quotedomain.ErrAlreadyExpired
		}
		q, err = s.loadByID(ctx, q.ID)
		if err != nil {
			return nil, err
		}
	}
}

func (s *Service) InitiatePayment(ctx context.Context, quoteNumber string, email string) (*quotedomain.Checkout, error) {
	q, err := s.CanBePaid(ctx, quoteNumber, email)
	if err != nil {
		return nil, err
	}

	log := s.log.With(zap.String("quote_number", q.QuoteNumber))

	if q.HasCheckout() {
		s.metrics.RecordInitiation(metrics.ResultReused)
		log.Info("payment already in progress, reusing checkout", zap.Stringp("provider_order_id", q.ProviderOrderID))
		return checkoutOf(q), nil
	}

	req := s.buildOrderRequest(q)
	start := time.Now()
	order, err := s.gateway.CreateOrder(ctx, req)
	s.metrics.ObserveGateway("create_order", err, time.Since(start))
	if err == nil && strings.TrimSpace(order.CheckoutURL) == "" {
		err = errors.New("order has no checkout link")
	}
	if err != nil {
		s.metrics.RecordInitiation(metrics.ResultError)
		log.Error("create provider order failed", zap.Error(err))
		return nil, providerFailure(err)
	}

	checkout := quotedomain.Checkout{
		CheckoutURL:     order.CheckoutURL,
		ProviderOrderID: order.ID,
	}
	ok, err := s.repo.AttachCheckout(ctx, s.db, q.ID, q.Status, q.ProviderOrderID, checkout, s.clock.Now())
	if err != nil {
		s.metrics.RecordInitiation(metrics.ResultError)
		// The remote order exists but is not linked; a retry reuses it via the idempotency key.
		log.Error("persist checkout failed",
			zap.String("provider_order_id", order.ID),
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Error(err),
		)
		return nil, storeFailure(err)
	}
	if !ok {
		s.metrics.RecordConflict("attach_checkout")
		current, err := s.loadByID(ctx, q.ID)
		if err != nil {
			return nil, err
		}
		if current.HasCheckout() {
			s.metrics.RecordInitiation(metrics.ResultReused)
			log.Info("concurrent initiation won, returning its checkout",
				zap.Stringp("provider_order_id", current.ProviderOrderID),
				zap.String("discarded_order_id", order.ID),
			)
			return checkoutOf(current), nil
		}
		if termErr := quotedomain.TerminalError(current.Status); termErr != nil {
			return nil, termErr
		}
		s.metrics.RecordInitiation(metrics.ResultError)
		return nil, fmt.Errorf("%w: quote changed during initiation", quotedomain.ErrStoreFailure)
	}

	s.metrics.RecordTransition(string(q.Status), string(quotedomain.StatusProcessing))
	s.metrics.RecordInitiation(metrics.ResultSuccess)
	log.Info("payment initiated",
		zap.String("provider_order_id", order.ID),
		zap.Int64("amount", q.Amount),
		zap.String("currency", q.Currency),
	)
	return &checkout, nil
}

func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	affected, err := s.repo.ExpireOverdue(ctx, s.db, now)
	if err != nil {
		return 0, storeFailure(err)
	}
	s.metrics.AddSweepExpired(affected)
	if affected > 0 {
		s.log.Info("expired overdue quotes", zap.Int64("count", affected), zap.Time("now", now))
	}
	return affected, nil
}

func (s *Service) CreateQuote(ctx context.Context, input quotedomain.CreateQuoteInput) (*quotedomain.Quote, error) {
	q, err := s.newQuote(input)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, s.db, q); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, quotedomain.ErrQuoteExists
		}
		return nil, storeFailure(err)
	}
	s.log.Info("quote created", zap.String("quote_number", q.QuoteNumber), zap.Int64("amount", q.Amount))
	return q, nil
}

func (s *Service) CancelQuote(ctx context.Context, quoteNumber string) (*quotedomain.Quote, error) {
	q, err := s.loadByNumber(ctx, quoteNumber)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		if termErr := quotedomain.TerminalError(q.Status); termErr != nil {
			return nil, termErr
		}
		ok, err := s.repo.TransitionStatus(ctx, s.db, q.ID, q.Status, quotedomain.StatusCancelled, s.clock.Now())
		if err != nil {
			return nil, storeFailure(err)
		}
		if ok {
			s.metrics.RecordTransition(string(q.Status), string(quotedomain.StatusCancelled))
			s.log.Info("quote cancelled", zap.String("quote_number", q.QuoteNumber), zap.String("previous_status", string(q.Status)))
			return s.loadByID(ctx, q.ID)
		}
		s.metrics.RecordConflict("cancel")
		if q, err = s.loadByID(ctx, q.ID); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: quote kept changing during cancel", quotedomain.ErrStoreFailure)
}

func (s *Service) ListQuotesByEmail(ctx context.Context, email string) ([]quotedomain.Quote, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, quotedomain.ErrInvalidQuote
	}
	items, err := s.repo.ListByEmail(ctx, s.db, email)
	if err != nil {
		return nil, storeFailure(err)
	}
	return items, nil
}

func (s *Service) ListQuotesByStatus(ctx context.Context, status quotedomain.Status) ([]quotedomain.Quote, error) {
	parsed, ok := quotedomain.ParseStatus(string(status))
	if !ok {
		return nil, quotedomain.ErrInvalidStatus
	}
	items, err := s.repo.ListByStatus(ctx, s.db, parsed)
	if err != nil {
		return nil, storeFailure(err)
	}
	return items, nil
}

func (s *Service) loadByNumber(ctx context.Context, quoteNumber string) (*quotedomain.Quote, error) {
	quoteNumber = strings.TrimSpace(quoteNumber)
	if quoteNumber == "" {
		return nil, quotedomain.ErrQuoteNotFound
	}
	q, err := s.repo.FindByNumber(ctx, s.db, quoteNumber)
	if err != nil {
		return nil, storeFailure(err)
	}
	if q == nil {
		return nil, quotedomain.ErrQuoteNotFound
	}
	return q, nil
}

func (s *Service) loadByID(ctx context.Context, id snowflake.ID) (*quotedomain.Quote, error) {
	q, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, storeFailure(err)
	}
	if q == nil {
		return nil, quotedomain.ErrQuoteNotFound
	}
	return q, nil
}

func checkoutOf(q *quotedomain.Quote) *quotedomain.Checkout {
	checkout := &quotedomain.Checkout{}
	if q.CheckoutURL != nil {
		checkout.CheckoutURL = *q.CheckoutURL
	}
	if q.ProviderOrderID != nil {
		checkout.ProviderOrderID = *q.ProviderOrderID
	}
	return checkout
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
