package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var blockedAttributeKeys = map[attribute.Key]struct{}{
	"customer_email": {},
	"email":          {},
	"checkout_url":   {},
	"payload":        {},
}

// SafeAttributes drops attributes that could carry customer data.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedAttributeKeys[attr.Key]; blocked {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

// SafeError keeps only the first line of an error message, without values
// that may follow a colon.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	message := strings.TrimSpace(strings.SplitN(err.Error(), "\n", 2)[0])
	if idx := strings.Index(message, ":"); idx > 0 {
		message = message[:idx]
	}
	if message == "" {
		return nil
	}
	return errors.New(message)
}

func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
