package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	quotedomain "github.com/smallbiznis/quotepay/internal/quote/domain"
)

type createQuoteRequest struct {
	QuoteNumber     string     `json:"quoteNumber" validate:"required,max=50"`
	CustomerEmail   string     `json:"customerEmail" validate:"required,email"`
	CustomerName    string     `json:"customerName"`
	CustomerPhone   string     `json:"customerPhone"`
	CustomerSiret   string     `json:"customerSiret" validate:"omitempty,max=20"`
	CompanyName     string     `json:"companyName"`
	Amount          int64      `json:"amount" validate:"gt=0"`
	Currency        string     `json:"currency" validate:"omitempty,len=3"`
	VatRate         *float64   `json:"vatRate" validate:"omitempty,gte=0,lte=100"`
	VatAmount       int64      `json:"vatAmount" validate:"gte=0"`
	Description     string     `json:"description" validate:"required"`
	Notes           string     `json:"notes"`
	StreetAndNumber string     `json:"streetAndNumber"`
	City            string     `json:"city"`
	Region          string     `json:"region"`
	PostalCode      string     `json:"postalCode"`
	Country         string     `json:"country" validate:"omitempty,len=2"`
	ExpiresAt       *time.Time `json:"expiresAt"`
}

func (s *Server) CreateQuote(c *gin.Context) {
	var req createQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.CustomerEmail = strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	if err := s.validate.Struct(req); err != nil {
		AbortWithError(c, validationErrorsFrom(err))
		return
	}

	quote, err := s.quoteSvc.CreateQuote(c.Request.Context(), quotedomain.CreateQuoteInput{
		QuoteNumber:     req.QuoteNumber,
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
		CompanyName:     req.CompanyName,
		CustomerPhone:   req.CustomerPhone,
		CustomerSiret:   req.CustomerSiret,
		Amount:          req.Amount,
		Currency:        req.Currency,
		VatRate:         req.VatRate,
		VatAmount:       req.VatAmount,
		Description:     req.Description,
		Notes:           req.Notes,
		StreetAndNumber: req.StreetAndNumber,
		City:            req.City,
		Region:          req.Region,
		PostalCode:      req.PostalCode,
		Country:         req.Country,
		ExpiresAt:       req.ExpiresAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("quote_number", quote.QuoteNumber)
	c.JSON(http.StatusCreated, gin.H{"data": quote})
}

func (s *Server) ListQuotes(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	status := strings.TrimSpace(c.Query("status"))

	var (
		items []quotedomain.Quote
		err   error
	)
	switch {
	case email != "":
		items, err = s.quoteSvc.ListQuotesByEmail(c.Request.Context(), email)
	case status != "":
		items, err = s.quoteSvc.ListQuotesByStatus(c.Request.Context(), quotedomain.Status(strings.ToUpper(status)))
	default:
		AbortWithError(c, newValidationError("email", "required", "email or status is required"))
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []quotedomain.Quote{}
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CancelQuote(c *gin.Context) {
	quoteNumber := strings.TrimSpace(c.Param("quote_number"))
	c.Set("quote_number", quoteNumber)

	quote, err := s.quoteSvc.CancelQuote(c.Request.Context(), quoteNumber)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quote})
}

func (s *Server) ExpireQuotes(c *gin.Context) {
	affected, err := s.quoteSvc.SweepExpired(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"expired": affected}})
}

func (s *Server) ListUnprocessedWebhookEvents(c *gin.Context) {
	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	events, err := s.webhookSvc.ListUnprocessed(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": events})
}

func (s *Server) ReplayWebhookEvent(c *gin.Context) {
	eventID, err := snowflake.ParseString(strings.TrimSpace(c.Param("event_id")))
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: event_id must be a numeric id", ErrInvalidRequest))
		return
	}

	result, err := s.webhookSvc.ReplayEvent(c.Request.Context(), eventID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
