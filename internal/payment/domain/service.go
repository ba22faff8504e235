package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// WebhookService reconciles provider notifications with quotes.
type WebhookService interface {
	ApplyProviderEvent(ctx context.Context, providerOrderID string, payload []byte) (*EventResult, error)
	ReplayEvent(ctx context.Context, eventID snowflake.ID) (*EventResult, error)
	ListUnprocessed(ctx context.Context, limit int) ([]WebhookEvent, error)
}
