package domain

import "errors"

var (
	ErrProviderFailure       = errors.New("provider_failure")
	ErrProviderNotConfigured = errors.New("provider_not_configured")
	ErrInvalidOrderID        = errors.New("invalid_order_id")
	ErrEventNotFound         = errors.New("event_not_found")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
)
