package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotepay/internal/payment/domain"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, quote_id, provider_order_id, event_type, status,
			payload, processed, outcome, created_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.QuoteID,
		event.ProviderOrderID,
		event.EventType,
		event.Status,
		event.Payload,
		event.Processed,
		event.Outcome,
		event.CreatedAt,
		event.ProcessedAt,
	).Error
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.WebhookEvent, error) {
	var item domain.WebhookEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, quote_id, provider_order_id, event_type, status,
			payload, processed, outcome, created_at, processed_at
		 FROM webhook_events
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListUnprocessed(ctx context.Context, db *gorm.DB, limit int) ([]domain.WebhookEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var items []domain.WebhookEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, quote_id, provider_order_id, event_type, status,
			payload, processed, outcome, created_at, processed_at
		 FROM webhook_events
		 WHERE processed = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		false,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) AttachQuote(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	quoteID snowflake.ID,
	providerStatus *string,
) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET quote_id = ?, status = COALESCE(?, status)
		 WHERE id = ? AND processed = ?`,
		quoteID,
		providerStatus,
		id,
		false,
	).Error
}

// MarkProcessed flips the processed flag once; a second call reports false.
func (r *repo) MarkProcessed(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	outcome string,
	processedAt time.Time,
) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed = ?, outcome = ?, processed_at = ?
		 WHERE id = ? AND processed = ?`,
		true,
		outcome,
		processedAt,
		id,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
