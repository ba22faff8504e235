package domain

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// TagQuoteNumber is the validator tag checking the quote number format.
const TagQuoteNumber = "quote_number"

var quoteNumberPattern = regexp.MustCompile(`^[A-Z0-9-]+$`)

// RegisterValidations adds the quote rules to v.
func RegisterValidations(v *validator.Validate) error {
	return v.RegisterValidation(TagQuoteNumber, func(fl validator.FieldLevel) bool {
		return quoteNumberPattern.MatchString(fl.Field().String())
	})
}
