package mollie

type link struct {
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
}

type orderLinks struct {
	Self     *link `json:"self,omitempty"`
	Checkout *link `json:"checkout,omitempty"`
}

type orderResponse struct {
	Resource string     `json:"resource"`
	ID       string     `json:"id"`
	Status   string     `json:"status"`
	Method   string     `json:"method"`
	Links    orderLinks `json:"_links"`
}

// APIError is the problem document returned by the Orders API.
type APIError struct {
	StatusCode int    `json:"status"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	Field      string `json:"field,omitempty"`
}
