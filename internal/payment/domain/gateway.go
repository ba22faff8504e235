package domain

import "context"

//go:generate mockgen -source=gateway.go -destination=../mocks/mock_gateway.go -package=mocks

// Gateway is the payment provider seen from the engine.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
}

type Money struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type Address struct {
	GivenName       string `json:"givenName"`
	FamilyName      string `json:"familyName"`
	Email           string `json:"email"`
	StreetAndNumber string `json:"streetAndNumber"`
	City            string `json:"city"`
	Region          string `json:"region,omitempty"`
	PostalCode      string `json:"postalCode"`
	Country         string `json:"country"`
}

type OrderLine struct {
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   Money  `json:"unitPrice"`
	TotalAmount Money  `json:"totalAmount"`
	VatRate     string `json:"vatRate"`
	VatAmount   Money  `json:"vatAmount"`
}

type CreateOrderRequest struct {
	Amount         Money             `json:"amount"`
	OrderNumber    string            `json:"orderNumber"`
	RedirectURL    string            `json:"redirectUrl"`
	WebhookURL     string            `json:"webhookUrl"`
	Locale         string            `json:"locale"`
	BillingAddress Address           `json:"billingAddress"`
	Lines          []OrderLine       `json:"lines"`
	Metadata       map[string]string `json:"metadata,omitempty"`

	// IdempotencyKey is sent as a header, never in the body.
	IdempotencyKey string `json:"-"`
}

// Order is the provider's view of a payment order.
type Order struct {
	ID          string
	Status      ProviderStatus
	RawStatus   string
	CheckoutURL string
	Method      string
}
