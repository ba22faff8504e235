package domain_test

import (
	"testing"

	"github.com/smallbiznis/quotepay/internal/payment/domain"
	quotedomain "github.com/smallbiznis/quotepay/internal/quote/domain"
)

func TestMapProviderStatus(t *testing.T) {
	cases := map[string]quotedomain.Status{
		"created":    quotedomain.StatusPending,
		"pending":    quotedomain.StatusProcessing,
		"authorized": quotedomain.StatusProcessing,
		"paid":       quotedomain.StatusPaid,
		"shipping":   quotedomain.StatusPaid,
		"completed":  quotedomain.StatusPaid,
		"canceled":   quotedomain.StatusCancelled,
		"expired":    quotedomain.StatusFailed,
		"PAID":       quotedomain.StatusPaid,
		" pending ":  quotedomain.StatusProcessing,
		"":           quotedomain.StatusPending,
		"refunded":   quotedomain.StatusPending,
		"open":       quotedomain.StatusPending,
	}

	for raw, expected := range cases {
		got := domain.MapProviderStatus(domain.ParseProviderStatus(raw))
		if got != expected {
			t.Fatalf("status %q: expected %s, got %s", raw, expected, got)
		}
	}
}

func TestMapProviderStatusIsTotal(t *testing.T) {
	valid := map[quotedomain.Status]bool{
		quotedomain.StatusPending:    true,
		quotedomain.StatusProcessing: true,
		quotedomain.StatusPaid:       true,
		quotedomain.StatusFailed:     true,
		quotedomain.StatusCancelled:  true,
	}

	inputs := []string{"created", "pending", "authorized", "paid", "shipping", "completed", "canceled", "expired", "unrecognized", "x", "é", "ord_123"}
	for _, raw := range inputs {
		got := domain.MapProviderStatus(domain.ParseProviderStatus(raw))
		if !valid[got] {
			t.Fatalf("status %q mapped to unexpected %q", raw, got)
		}
	}
}

func TestParseProviderStatusUnknown(t *testing.T) {
	if got := domain.ParseProviderStatus("refund_pending"); got != domain.ProviderStatusUnrecognized {
		t.Fatalf("expected unrecognized, got %s", got)
	}
}
