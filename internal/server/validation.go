package server

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	quotedomain "github.com/smallbiznis/quotepay/internal/quote/domain"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := quotedomain.RegisterValidations(v); err != nil {
		panic(err)
	}
	return v
}

// fieldMessages holds the customer-facing text per field and failed tag.
var fieldMessages = map[string]map[string]string{
	"quoteNumber": {
		"required":     "Numéro de devis requis",
		"max":          "Numéro de devis trop long",
		"quote_number": "Format de numéro de devis invalide",
	},
	"email": {
		"required": "Format d'email invalide",
		"email":    "Format d'email invalide",
	},
}

// validationErrorsFrom converts validator output to ValidationErrors.
func validationErrorsFrom(err error) *ValidationErrors {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationErrors{Errors: []ValidationError{{
			Field:   "request",
			Code:    "invalid_request",
			Message: "invalid request",
		}}}
	}

	out := &ValidationErrors{Errors: make([]ValidationError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Errors = append(out.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    fe.Tag(),
			Message: messageFor(fe),
		})
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	if byTag, ok := fieldMessages[fe.Field()]; ok {
		if msg, ok := byTag[fe.Tag()]; ok {
			return msg
		}
	}
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email"
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	case "gt", "gte", "min":
		return fe.Field() + " is out of range"
	default:
		return fe.Field() + " is invalid"
	}
}
