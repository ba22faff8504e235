package server

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/quotepay/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	rateLimitAllowed = "allowed"
	rateLimitDenied  = "denied"
	rateLimitError   = "error"
)

// PayQuoteRateLimit throttles payment initiations per client address. When
// the limiter backend fails the request is let through.
func (s *Server) PayQuoteRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.payLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		decision, err := s.payLimiter.AllowClient(ctx, c.ClientIP())
		if err != nil {
			s.obsMetrics.RecordRateLimit(rateLimitError)
			obslogger.WithContext(ctx, s.log).Warn("pay quote rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		if !decision.Allowed {
			s.obsMetrics.RecordRateLimit(rateLimitDenied)
			obslogger.WithContext(ctx, s.log).Warn("pay quote rate limit exceeded",
				zap.String("client_ip", c.ClientIP()),
				zap.Duration("retry_after", decision.RetryAfter),
			)
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
			_ = c.Error(ErrRateLimited)
			respondPublicError(c, http.StatusTooManyRequests, msgTooManyRequests, nil)
			return
		}

		s.obsMetrics.RecordRateLimit(rateLimitAllowed)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Next()
	}
}
