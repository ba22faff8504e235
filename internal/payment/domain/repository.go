package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) error
	FindEvent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*WebhookEvent, error)
	ListUnprocessed(ctx context.Context, db *gorm.DB, limit int) ([]WebhookEvent, error)
	AttachQuote(ctx context.Context, db *gorm.DB, id snowflake.ID, quoteID snowflake.ID, providerStatus *string) error
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome string, processedAt time.Time) (bool, error)
}
