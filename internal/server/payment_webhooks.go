package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/quotepay/internal/observability/context"
	obslogger "github.com/smallbiznis/quotepay/internal/observability/logger"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

type webhookPayload struct {
	ID string `json:"id"`
}

// HandleMollieWebhook acknowledges every notification with 200. The provider
// only sends the order id; state is fetched back from the provider.
func (s *Server) HandleMollieWebhook(c *gin.Context) {
	ctx := obscontext.WithActor(c.Request.Context(), obscontext.ActorProvider)
	log := obslogger.WithContext(ctx, s.log)

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		log.Warn("webhook body unreadable", zap.Error(err))
		acknowledgeWebhook(c)
		return
	}

	orderID := extractOrderID(c.ContentType(), payload)
	if !strings.HasPrefix(orderID, s.cfg.Mollie.OrderIDPrefix) || len(orderID) <= len(s.cfg.Mollie.OrderIDPrefix) {
		log.Warn("webhook with malformed order id ignored", zap.String("order_id", orderID))
		acknowledgeWebhook(c)
		return
	}
	c.Set("provider_order_id", orderID)

	result, err := s.webhookSvc.ApplyProviderEvent(ctx, orderID, payload)
	if err != nil {
		log.Error("webhook processing failed, event kept for replay",
			zap.String("provider_order_id", orderID),
			zap.Error(err),
		)
		acknowledgeWebhook(c)
		return
	}

	if result.QuoteNumber != "" {
		c.Set("quote_number", result.QuoteNumber)
	}
	acknowledgeWebhook(c)
}

// extractOrderID reads "id" from a JSON or form-encoded body.
func extractOrderID(contentType string, payload []byte) string {
	trimmed := bytes.TrimSpace(payload)
	if strings.Contains(contentType, "json") || bytes.HasPrefix(trimmed, []byte("{")) {
		var body webhookPayload
		if err := json.Unmarshal(trimmed, &body); err == nil {
			return strings.TrimSpace(body.ID)
		}
	}
	values, err := url.ParseQuery(string(trimmed))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(values.Get("id"))
}

func acknowledgeWebhook(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"received": true})
}
