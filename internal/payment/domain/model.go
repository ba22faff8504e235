package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const EventTypeOrderUpdated = "order.updated"

// Outcomes recorded on a ledger entry once processing ends.
const (
	OutcomeApplied         = "applied"
	OutcomeUnchanged       = "unchanged"
	OutcomeTerminalState   = "terminal_state"
	OutcomeNoMatchingQuote = "no_matching_quote"

	// OutcomeConflict is only reported in metrics; the event stays unprocessed.
	OutcomeConflict = "conflict_exhausted"
)

// WebhookEvent is an append-only record of a provider notification. It is
// written before any side effect and flipped to processed exactly once.
type WebhookEvent struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	QuoteID         *snowflake.ID  `json:"quote_id,omitempty" gorm:"index"`
	ProviderOrderID string         `json:"provider_order_id" gorm:"type:varchar(191);not null;index"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Status          *string        `json:"status,omitempty" gorm:"type:text"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	Processed       bool           `json:"processed" gorm:"not null;default:false"`
	Outcome         *string        `json:"outcome,omitempty" gorm:"type:text"`
	CreatedAt       time.Time      `json:"created_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

// EventResult describes what a provider event did to its quote.
type EventResult struct {
	EventID         snowflake.ID `json:"event_id"`
	ProviderOrderID string       `json:"provider_order_id"`
	QuoteNumber     string       `json:"quote_number,omitempty"`
	ProviderStatus  string       `json:"provider_status,omitempty"`
	PreviousStatus  string       `json:"previous_status,omitempty"`
	Status          string       `json:"status,omitempty"`
	Outcome         string       `json:"outcome"`
}
