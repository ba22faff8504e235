package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the only writer of quote rows. Every status change is a
// compare-and-swap on the expected prior status and reports whether it won.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, quote *Quote) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Quote, error)
	FindByNumber(ctx context.Context, db *gorm.DB, quoteNumber string) (*Quote, error)
	FindByProviderOrderID(ctx context.Context, db *gorm.DB, providerOrderID string) (*Quote, error)
	ListByEmail(ctx context.Context, db *gorm.DB, email string) ([]Quote, error)
	ListByStatus(ctx context.Context, db *gorm.DB, status Status) ([]Quote, error)

	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from Status, to Status, now time.Time) (bool, error)
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, from Status, update PaymentUpdate, now time.Time) (bool, error)
	AttachCheckout(ctx context.Context, db *gorm.DB, id snowflake.ID, from Status, priorOrderID *string, checkout Checkout, now time.Time) (bool, error)
	ExpireOverdue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
}
