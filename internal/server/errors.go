package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/quotepay/internal/payment/domain"
	quotedomain "github.com/smallbiznis/quotepay/internal/quote/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

// Messages returns the human-readable message of each error, in order.
func (v ValidationErrors) Messages() []string {
	out := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		out = append(out, e.Message)
	}
	return out
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, quotedomain.ErrInvalidQuote),
		errors.Is(err, quotedomain.ErrInvalidStatus),
		errors.Is(err, paymentdomain.ErrInvalidOrderID):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, quotedomain.ErrQuoteNotFound),
		errors.Is(err, paymentdomain.ErrEventNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, quotedomain.ErrQuoteExists),
		errors.Is(err, quotedomain.ErrAlreadyPaid),
		errors.Is(err, quotedomain.ErrAlreadyCancelled),
		errors.Is(err, quotedomain.ErrAlreadyExpired),
		errors.Is(err, paymentdomain.ErrEventAlreadyProcessed):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: rootMessage(err),
		}
	case errors.Is(err, paymentdomain.ErrProviderFailure),
		errors.Is(err, paymentdomain.ErrProviderNotConfigured):
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_error",
			Message: "payment provider unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// rootMessage returns the sentinel text for known conflicts, hiding wrapped
// details.
func rootMessage(err error) string {
	for _, sentinel := range []error{
		quotedomain.ErrQuoteExists,
		quotedomain.ErrAlreadyPaid,
		quotedomain.ErrAlreadyCancelled,
		quotedomain.ErrAlreadyExpired,
		paymentdomain.ErrEventAlreadyProcessed,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "conflict"
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case errors.Is(err, quotedomain.ErrStoreFailure):
		return "store_error", quotedomain.ErrStoreFailure.Error()
	case errors.Is(err, paymentdomain.ErrProviderFailure):
		return "provider_error", paymentdomain.ErrProviderFailure.Error()
	case status >= http.StatusInternalServerError:
		return payload.Type, "internal_error"
	default:
		return payload.Type, err.Error()
	}
}
