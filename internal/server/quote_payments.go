package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/quotepay/internal/observability/context"
	obslogger "github.com/smallbiznis/quotepay/internal/observability/logger"
	quotedomain "github.com/smallbiznis/quotepay/internal/quote/domain"
	"go.uber.org/zap"
)

const (
	msgInvalidData       = "Données invalides"
	msgInvalidBody       = "Corps de requête invalide"
	msgQuoteNotFound     = "Devis introuvable"
	msgOwnerMismatch     = "Email ne correspond pas au devis"
	msgAlreadyPaid       = "Ce devis a déjà été payé"
	msgAlreadyCancelled  = "Ce devis a été annulé"
	msgAlreadyExpired    = "Ce devis a expiré"
	msgInitiationFailed  = "Erreur lors de l'initialisation du paiement"
	msgQuoteNumberNeeded = "Numéro de devis requis"
	msgPublicNotFound    = "Devis non trouvé"
	msgServerError       = "Erreur serveur"
	msgTooManyRequests   = "Trop de tentatives, veuillez réessayer plus tard"
)

type payQuoteRequest struct {
	QuoteNumber string `json:"quoteNumber" validate:"required,max=50,quote_number"`
	Email       string `json:"email" validate:"required,email"`
}

type payQuoteResponse struct {
	Success     bool   `json:"success"`
	CheckoutURL string `json:"checkoutUrl"`
	OrderID     string `json:"orderId"`
}

// PayQuote starts (or resumes) the hosted checkout for a quote.
func (s *Server) PayQuote(c *gin.Context) {
	var req payQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondPublicError(c, http.StatusBadRequest, msgInvalidData, []string{msgInvalidBody})
		return
	}
	req.QuoteNumber = strings.TrimSpace(req.QuoteNumber)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	ctx := obscontext.WithActor(c.Request.Context(), obscontext.ActorCustomer)
	log := obslogger.WithContext(ctx, s.log)

	if err := s.validate.Struct(req); err != nil {
		vErr := validationErrorsFrom(err)
		log.Warn("pay quote validation failed", zap.Strings("errors", vErr.Messages()))
		respondPublicError(c, http.StatusBadRequest, msgInvalidData, vErr.Messages())
		return
	}
	c.Set("quote_number", req.QuoteNumber)

	checkout, err := s.quoteSvc.InitiatePayment(ctx, req.QuoteNumber, req.Email)
	if err != nil {
		if quotedomain.IsIneligible(err) {
			log.Warn("quote not payable",
				zap.String("quote_number", req.QuoteNumber),
				zap.String("reason", err.Error()),
			)
			respondPublicError(c, http.StatusBadRequest, ineligibleMessage(err), nil)
			return
		}
		log.Error("payment initiation failed", zap.String("quote_number", req.QuoteNumber), zap.Error(err))
		_ = c.Error(err)
		respondPublicError(c, http.StatusInternalServerError, msgInitiationFailed, nil)
		return
	}

	c.Set("provider_order_id", checkout.ProviderOrderID)
	c.JSON(http.StatusOK, payQuoteResponse{
		Success:     true,
		CheckoutURL: checkout.CheckoutURL,
		OrderID:     checkout.ProviderOrderID,
	})
}

// GetPayableQuote returns the public fields of a quote that can still be paid.
func (s *Server) GetPayableQuote(c *gin.Context) {
	quoteNumber := strings.TrimSpace(c.Query("quoteNumber"))
	if quoteNumber == "" {
		respondPublicError(c, http.StatusBadRequest, msgQuoteNumberNeeded, nil)
		return
	}
	c.Set("quote_number", quoteNumber)

	ctx := obscontext.WithActor(c.Request.Context(), obscontext.ActorCustomer)
	quote, err := s.quoteSvc.LookupPublic(ctx, quoteNumber)
	if err != nil {
		if quotedomain.IsIneligible(err) {
			respondPublicError(c, http.StatusNotFound, msgPublicNotFound, nil)
			return
		}
		obslogger.WithContext(ctx, s.log).Error("quote lookup failed", zap.String("quote_number", quoteNumber), zap.Error(err))
		_ = c.Error(err)
		respondPublicError(c, http.StatusInternalServerError, msgServerError, nil)
		return
	}

	c.JSON(http.StatusOK, quote)
}

func ineligibleMessage(err error) string {
	switch {
	case errors.Is(err, quotedomain.ErrOwnerMismatch):
		return msgOwnerMismatch
	case errors.Is(err, quotedomain.ErrAlreadyPaid):
		return msgAlreadyPaid
	case errors.Is(err, quotedomain.ErrAlreadyCancelled):
		return msgAlreadyCancelled
	case errors.Is(err, quotedomain.ErrAlreadyExpired):
		return msgAlreadyExpired
	default:
		return msgQuoteNotFound
	}
}

// respondPublicError writes the flat {error, details} body used by the
// customer-facing routes.
func respondPublicError(c *gin.Context, status int, message string, details []string) {
	body := gin.H{"error": message}
	if len(details) > 0 {
		body["details"] = details
	}
	c.AbortWithStatusJSON(status, body)
}
