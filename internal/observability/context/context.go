package context

import (
	stdcontext "context"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorKey
)

// Actors recorded on request contexts.
const (
	ActorCustomer = "customer"
	ActorProvider = "provider"
	ActorAdmin    = "admin"
	ActorSystem   = "system"
)

func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

func WithActor(ctx stdcontext.Context, actor string) stdcontext.Context {
	return stdcontext.WithValue(ctx, actorKey, strings.TrimSpace(actor))
}

func ActorFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(actorKey).(string)
	return value
}
