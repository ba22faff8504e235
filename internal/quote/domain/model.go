package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusPaid       Status = "PAID"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusExpired    Status = "EXPIRED"
)

// TerminalStatuses are never overwritten once reached.
var TerminalStatuses = []Status{StatusPaid, StatusCancelled, StatusExpired}

func (s Status) IsTerminal() bool {
	return slices.Contains(TerminalStatuses, s)
}

func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToUpper(strings.TrimSpace(value)))
	switch status {
	case StatusPending, StatusProcessing, StatusPaid, StatusFailed, StatusCancelled, StatusExpired:
		return status, true
	default:
		return "", false
	}
}

type Quote struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	QuoteNumber     string       `json:"quote_number" gorm:"type:varchar(50);not null;uniqueIndex"`
	CustomerEmail   string       `json:"customer_email" gorm:"type:varchar(255);not null;index"`
	CustomerName    *string      `json:"customer_name,omitempty" gorm:"type:text"`
	CompanyName     *string      `json:"company_name,omitempty" gorm:"type:text"`
	CustomerPhone   *string      `json:"customer_phone,omitempty" gorm:"type:text"`
	CustomerSiret   *string      `json:"customer_siret,omitempty" gorm:"type:varchar(14)"`
	Amount          int64        `json:"amount" gorm:"not null"`
	Currency        string       `json:"currency" gorm:"type:varchar(3);not null"`
	VatRate         float64      `json:"vat_rate" gorm:"not null"`
	VatAmount       int64        `json:"vat_amount" gorm:"not null"`
	Description     string       `json:"description" gorm:"type:text;not null"`
	Notes           *string      `json:"notes,omitempty" gorm:"type:text"`
	StreetAndNumber *string      `json:"street_and_number,omitempty" gorm:"type:text"`
	City            *string      `json:"city,omitempty" gorm:"type:text"`
	Region          *string      `json:"region,omitempty" gorm:"type:text"`
	PostalCode      *string      `json:"postal_code,omitempty" gorm:"type:text"`
	Country         *string      `json:"country,omitempty" gorm:"type:varchar(2)"`
	ExpiresAt       *time.Time   `json:"expires_at,omitempty"`
	ProviderOrderID *string      `json:"provider_order_id,omitempty" gorm:"type:varchar(191);uniqueIndex"`
	CheckoutURL     *string      `json:"checkout_url,omitempty" gorm:"type:text"`
	PaymentMethod   *string      `json:"payment_method,omitempty" gorm:"type:text"`
	Status          Status       `json:"status" gorm:"type:varchar(20);not null;index"`
	PaidAt          *time.Time   `json:"paid_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null"`
}

func (Quote) TableName() string { return "quotes" }

// IsExpired reports whether the quote carries a deadline that lies before now.
func (q *Quote) IsExpired(now time.Time) bool {
	return q.ExpiresAt != nil && q.ExpiresAt.Before(now)
}

// HasCheckout reports whether an in-flight checkout can be handed out again.
func (q *Quote) HasCheckout() bool {
	return q.Status == StatusProcessing && q.CheckoutURL != nil && *q.CheckoutURL != ""
}

func (q *Quote) OwnedBy(email string) bool {
	return strings.EqualFold(strings.TrimSpace(q.CustomerEmail), strings.TrimSpace(email))
}

// PublicQuote is the subset of a quote shown without owner verification.
type PublicQuote struct {
	QuoteNumber string `json:"quoteNumber"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Status      Status `json:"status"`
}

// Checkout is the hosted payment page handed to the customer.
type Checkout struct {
	CheckoutURL     string `json:"checkoutUrl"`
	ProviderOrderID string `json:"orderId"`
}

type CreateQuoteInput struct {
	QuoteNumber     string
	CustomerEmail   string
	CustomerName    string
	CompanyName     string
	CustomerPhone   string
	CustomerSiret   string
	Amount          int64
	Currency        string
	VatRate         *float64
	VatAmount       int64
	Description     string
	Notes           string
	StreetAndNumber string
	City            string
	Region          string
	PostalCode      string
	Country         string
	ExpiresAt       *time.Time
}

// PaymentUpdate carries the fields written alongside a provider-driven
// status change.
type PaymentUpdate struct {
	PaidAt        time.Time
	PaymentMethod *string
}
