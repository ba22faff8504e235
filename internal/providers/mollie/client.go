package mollie

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/smallbiznis/quotepay/internal/config"
	paymentdomain "github.com/smallbiznis/quotepay/internal/payment/domain"
)

const (
	DefaultBaseURL = "https://api.mollie.com/v2"
	defaultTimeout = 12 * time.Second
)

func (e *APIError) Error() string {
	message := strings.TrimSpace(e.Detail)
	if message == "" {
		message = strings.TrimSpace(e.Title)
	}
	if message == "" {
		message = "mollie_request_failed"
	}
	if e.Field != "" {
		return fmt.Sprintf("mollie %d: %s (field %s)", e.StatusCode, message, e.Field)
	}
	return fmt.Sprintf("mollie %d: %s", e.StatusCode, message)
}

func (e *APIError) Unwrap() error { return paymentdomain.ErrProviderFailure }

type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		APIKey:  cfg.Mollie.APIKey,
		BaseURL: cfg.Mollie.BaseURL,
		Timeout: cfg.Mollie.RequestTimeout,
	}
}

// Client talks to the Mollie Orders API.
type Client struct {
	apiKey string
	http   *resty.Client
}

var _ paymentdomain.Gateway = (*Client)(nil)

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	apiKey := strings.TrimSpace(opts.APIKey)

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "quotepay")
	if apiKey != "" {
		httpClient.SetAuthToken(apiKey)
	}

	return &Client{
		apiKey: apiKey,
		http:   httpClient,
	}
}

func (c *Client) CreateOrder(ctx context.Context, req paymentdomain.CreateOrderRequest) (*paymentdomain.Order, error) {
	if c.apiKey == "" {
		return nil, paymentdomain.ErrProviderNotConfigured
	}

	r := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req)
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		r.SetHeader("Idempotency-Key", key)
	}
	return c.do(r, http.MethodPost, "/orders")
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*paymentdomain.Order, error) {
	if c.apiKey == "" {
		return nil, paymentdomain.ErrProviderNotConfigured
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, paymentdomain.ErrInvalidOrderID
	}
	return c.do(c.http.R().SetContext(ctx), http.MethodGet, "/orders/"+url.PathEscape(orderID))
}

func (c *Client) do(r *resty.Request, method string, path string) (*paymentdomain.Order, error) {
	var body orderResponse
	var apiErr APIError
	resp, err := r.
		SetResult(&body).
		SetError(&apiErr).
		Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrProviderFailure, err)
	}
	if resp.IsError() {
		if apiErr.StatusCode == 0 {
			apiErr.StatusCode = resp.StatusCode()
		}
		return nil, &apiErr
	}
	if resp.StatusCode() >= http.StatusMultipleChoices {
		return nil, &APIError{StatusCode: resp.StatusCode(), Title: "unexpected_status"}
	}
	if strings.TrimSpace(body.ID) == "" {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrProviderFailure, errors.New("mollie_response_invalid"))
	}

	order := &paymentdomain.Order{
		ID:        body.ID,
		Status:    paymentdomain.ParseProviderStatus(body.Status),
		RawStatus: body.Status,
		Method:    body.Method,
	}
	if body.Links.Checkout != nil {
		order.CheckoutURL = body.Links.Checkout.Href
	}
	return order, nil
}
