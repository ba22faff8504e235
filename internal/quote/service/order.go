package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	paymentdomain "github.com/smallbiznis/quotepay/internal/payment/domain"
	quotedomain "github.com/smallbiznis/quotepay/internal/quote/domain"
)

const (
	defaultCurrency = "EUR"
	defaultVatRate  = 20.0
	defaultCountry  = "FR"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()
	if err := quotedomain.RegisterValidations(v); err != nil {
		panic(err)
	}
	return v
}

func (s *Service) buildOrderRequest(q *quotedomain.Quote) paymentdomain.CreateOrderRequest {
	billing := s.billing.Get()
	locale := strings.TrimSpace(s.cfg.Mollie.Locale)
	if locale == "" {
		locale = billing.Locale
	}

	total := paymentdomain.Money{Value: formatAmount(q.Amount), Currency: q.Currency}
	quoteID := q.ID.String()

	return paymentdomain.CreateOrderRequest{
		Amount:      total,
		OrderNumber: q.QuoteNumber,
		RedirectURL: s.cfg.BaseURL + "/client/payment-result?status=success&quoteId=" + url.QueryEscape(quoteID),
		WebhookURL:  s.cfg.BaseURL + "/api/mollie-webhook",
		Locale:      locale,
		BillingAddress: paymentdomain.Address{
			GivenName:       fallback(q.CustomerName, billing.GivenName),
			FamilyName:      fallback(q.CompanyName, billing.CompanyName),
			Email:           q.CustomerEmail,
			StreetAndNumber: fallback(q.StreetAndNumber, billing.StreetAndNumber),
			City:            fallback(q.City, billing.City),
			Region:          fallback(q.Region, billing.Region),
			PostalCode:      fallback(q.PostalCode, billing.PostalCode),
			Country:         fallback(q.Country, billing.Country),
		},
		Lines: []paymentdomain.OrderLine{{
			Name:        q.Description,
			Quantity:    1,
			UnitPrice:   total,
			TotalAmount: total,
			VatRate:     fmt.Sprintf("%.2f", q.VatRate),
			VatAmount:   paymentdomain.Money{Value: formatAmount(q.VatAmount), Currency: q.Currency},
		}},
		Metadata: map[string]string{
			"quoteId":     quoteID,
			"quoteNumber": q.QuoteNumber,
		},
		IdempotencyKey: idempotencyKey(q),
	}
}

// idempotencyKey is stable for a quote until a provider order gets attached,
// so a retry after a lost response receives the same remote order.
func idempotencyKey(q *quotedomain.Quote) string {
	prior := "initial"
	if q.ProviderOrderID != nil && *q.ProviderOrderID != "" {
		prior = *q.ProviderOrderID
	}
	return "quote:" + q.ID.String() + ":" + prior
}

// formatAmount renders minor units as a decimal string with two places.
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

func fallback(value *string, def string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return def
	}
	return *value
}

func (s *Service) newQuote(input quotedomain.CreateQuoteInput) (*quotedomain.Quote, error) {
	number := strings.TrimSpace(input.QuoteNumber)
	if validate.Var(number, "required,max=50,"+quotedomain.TagQuoteNumber) != nil {
		return nil, invalid("quote number must be 1-50 characters of A-Z, 0-9 or '-'")
	}

	email := strings.ToLower(strings.TrimSpace(input.CustomerEmail))
	if validate.Var(email, "required,email") != nil {
		return nil, invalid("customer email is invalid")
	}
	if input.Amount <= 0 {
		return nil, invalid("amount must be positive")
	}
	if input.VatAmount < 0 {
		return nil, invalid("vat amount cannot be negative")
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, invalid("description is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	if validate.Var(currency, "iso4217") != nil {
		return nil, invalid("currency must be an ISO 4217 code")
	}

	vatRate := defaultVatRate
	if input.VatRate != nil {
		vatRate = *input.VatRate
	}
	if validate.Var(vatRate, "gte=0,lte=100") != nil {
		return nil, invalid("vat rate must be between 0 and 100")
	}

	country := strings.ToUpper(strings.TrimSpace(input.Country))
	if country == "" {
		country = defaultCountry
	}
	if validate.Var(country, "iso3166_1_alpha2") != nil {
		return nil, invalid("country must be an ISO 3166-1 alpha-2 code")
	}

	siret := strings.ReplaceAll(strings.TrimSpace(input.CustomerSiret), " ", "")
	if validate.Var(siret, "omitempty,numeric,len=14") != nil {
		return nil, invalid("siret must be 14 digits")
	}

	now := s.clock.Now()
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		return nil, invalid("expiry must lie in the future")
	}

	var expiresAt = input.ExpiresAt
	if expiresAt != nil {
		utc := expiresAt.UTC()
		expiresAt = &utc
	}

	return &quotedomain.Quote{
		ID:              s.genID.Generate(),
		QuoteNumber:     number,
		CustomerEmail:   email,
		CustomerName:    optional(input.CustomerName),
		CompanyName:     optional(input.CompanyName),
		CustomerPhone:   optional(input.CustomerPhone),
		CustomerSiret:   optional(siret),
		Amount:          input.Amount,
		Currency:        currency,
		VatRate:         vatRate,
		VatAmount:       input.VatAmount,
		Description:     description,
		Notes:           optional(input.Notes),
		StreetAndNumber: optional(input.StreetAndNumber),
		City:            optional(input.City),
		Region:          optional(input.Region),
		PostalCode:      optional(input.PostalCode),
		Country:         &country,
		ExpiresAt:       expiresAt,
		Status:          quotedomain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", quotedomain.ErrInvalidQuote, reason)
}
