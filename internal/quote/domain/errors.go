package domain

import "errors"

var (
	ErrQuoteNotFound    = errors.New("quote_not_found")
	ErrOwnerMismatch    = errors.New("owner_mismatch")
	ErrAlreadyPaid      = errors.New("quote_already_paid")
	ErrAlreadyCancelled = errors.New("quote_already_cancelled")
	ErrAlreadyExpired   = errors.New("quote_already_expired")
	ErrQuoteExists      = errors.New("quote_exists")
	ErrInvalidQuote     = errors.New("invalid_quote")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrStoreFailure     = errors.New("store_failure")
)

// IsIneligible reports whether err is one of the reasons a quote cannot be paid.
func IsIneligible(err error) bool {
	return errors.Is(err, ErrQuoteNotFound) ||
		errors.Is(err, ErrOwnerMismatch) ||
		errors.Is(err, ErrAlreadyPaid) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrAlreadyExpired)
}

// TerminalError returns the sentinel describing why a terminal quote cannot move.
func TerminalError(status Status) error {
	switch status {
	case StatusPaid:
		return ErrAlreadyPaid
	case StatusCancelled:
		return ErrAlreadyCancelled
	case StatusExpired:
		return ErrAlreadyExpired
	default:
		return nil
	}
}
