package domain

import "context"

type Service interface {
	CanBePaid(ctx context.Context, quoteNumber string, email string) (*Quote, error)
	LookupPublic(ctx context.Context, quoteNumber string) (*PublicQuote, error)
	InitiatePayment(ctx context.Context, quoteNumber string, email string) (*Checkout, error)
	SweepExpired(ctx context.Context) (int64, error)

	CreateQuote(ctx context.Context, input CreateQuoteInput) (*Quote, error)
	CancelQuote(ctx context.Context, quoteNumber string) (*Quote, error)
	ListQuotesByEmail(ctx context.Context, email string) ([]Quote, error)
	ListQuotesByStatus(ctx context.Context, status Status) ([]Quote, error)
}
