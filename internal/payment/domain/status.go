package domain

import (
	"strings"

	quotedomain "github.com/smallbiznis/quotepay/internal/quote/domain"
)

// ProviderStatus is an order status as reported by the provider.
type ProviderStatus string

const (
	ProviderStatusCreated      ProviderStatus = "created"
	ProviderStatusPending      ProviderStatus = "pending"
	ProviderStatusAuthorized   ProviderStatus = "authorized"
	ProviderStatusPaid         ProviderStatus = "paid"
	ProviderStatusShipping     ProviderStatus = "shipping"
	ProviderStatusCompleted    ProviderStatus = "completed"
	ProviderStatusCanceled     ProviderStatus = "canceled"
	ProviderStatusExpired      ProviderStatus = "expired"
	ProviderStatusUnrecognized ProviderStatus = "unrecognized"
)

// ParseProviderStatus never fails; unknown wire values become
// ProviderStatusUnrecognized.
func ParseProviderStatus(raw string) ProviderStatus {
	status := ProviderStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case ProviderStatusCreated,
		ProviderStatusPending,
		ProviderStatusAuthorized,
		ProviderStatusPaid,
		ProviderStatusShipping,
		ProviderStatusCompleted,
		ProviderStatusCanceled,
		ProviderStatusExpired:
		return status
	default:
		return ProviderStatusUnrecognized
	}
}

// MapProviderStatus is total: every provider status maps to a quote status.
// An expired provider order only fails the attempt, the quote stays payable.
func MapProviderStatus(status ProviderStatus) quotedomain.Status {
	switch status {
	case ProviderStatusCreated:
		return quotedomain.StatusPending
	case ProviderStatusPending, ProviderStatusAuthorized:
		return quotedomain.StatusProcessing
	case ProviderStatusPaid, ProviderStatusShipping, ProviderStatusCompleted:
		return quotedomain.StatusPaid
	case ProviderStatusCanceled:
		return quotedomain.StatusCancelled
	case ProviderStatusExpired:
		return quotedomain.StatusFailed
	default:
		return quotedomain.StatusPending
	}
}
