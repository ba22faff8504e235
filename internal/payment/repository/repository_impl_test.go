package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotepay/internal/payment/domain"
	"github.com/smallbiznis/quotepay/internal/payment/repository"
	"github.com/smallbiznis/quotepay/pkg/db/dbtest"
	"gorm.io/datatypes"
)

func TestEventLedgerLifecycle(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	repo := repository.Provide()

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := &domain.WebhookEvent{
		ID:              node.Generate(),
		ProviderOrderID: "ord_1",
		EventType:       domain.EventTypeOrderUpdated,
		Payload:         datatypes.JSON(`{"id":"ord_1"}`),
		CreatedAt:       created,
	}
	second := &domain.WebhookEvent{
		ID:              node.Generate(),
		ProviderOrderID: "ord_2",
		EventType:       domain.EventTypeOrderUpdated,
		Payload:         datatypes.JSON(`{"id":"ord_2"}`),
		CreatedAt:       created.Add(time.Minute),
	}
	for _, ev := range []*domain.WebhookEvent{first, second} {
		if err := repo.InsertEvent(ctx, db, ev); err != nil {
			t.Fatalf("insert event: %v", err)
		}
	}

	pending, err := repo.ListUnprocessed(ctx, db, 10)
	if err != nil {
		t.Fatalf("list unprocessed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != first.ID {
		t.Fatalf("expected both events oldest first, got %+v", pending)
	}

	quoteID := node.Generate()
	paid := "paid"
	if err := repo.AttachQuote(ctx, db, first.ID, quoteID, &paid); err != nil {
		t.Fatalf("attach quote: %v", err)
	}

	processedAt := created.Add(2 * time.Minute)
	ok, err := repo.MarkProcessed(ctx, db, first.ID, domain.OutcomeApplied, processedAt)
	if err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if !ok {
		t.Fatalf("expected first mark to win")
	}
	ok, err = repo.MarkProcessed(ctx, db, first.ID, domain.OutcomeUnchanged, processedAt)
	if err != nil {
		t.Fatalf("mark processed again: %v", err)
	}
	if ok {
		t.Fatalf("expected second mark to be a no-op")
	}

	stored, err := repo.FindEvent(ctx, db, first.ID)
	if err != nil {
		t.Fatalf("find event: %v", err)
	}
	if stored == nil || !stored.Processed {
		t.Fatalf("expected processed event, got %+v", stored)
	}
	if stored.Outcome == nil || *stored.Outcome != domain.OutcomeApplied {
		t.Fatalf("expected outcome %s, got %v", domain.OutcomeApplied, stored.Outcome)
	}
	if stored.QuoteID == nil || *stored.QuoteID != quoteID {
		t.Fatalf("expected quote id %s, got %v", quoteID, stored.QuoteID)
	}
	if stored.Status == nil || *stored.Status != "paid" {
		t.Fatalf("expected provider status paid, got %v", stored.Status)
	}

	pending, err = repo.ListUnprocessed(ctx, db, 10)
	if err != nil {
		t.Fatalf("list unprocessed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Fatalf("expected only second event pending, got %+v", pending)
	}

	missing, err := repo.FindEvent(ctx, db, node.Generate())
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown event")
	}

	if got := dbtest.Count(t, db, "SELECT COUNT(1) FROM webhook_events"); got != 2 {
		t.Fatalf("expected 2 events, got %d", got)
	}
}
