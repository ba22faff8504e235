package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/quotepay/internal/observability/context"
)

const bearerPrefix = "Bearer "

// AdminAuthRequired checks the static admin bearer token.
func (s *Server) AdminAuthRequired() gin.HandlerFunc {
	expected := []byte(s.cfg.AdminAPIToken)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		token := []byte(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
		if len(expected) == 0 || subtle.ConstantTimeCompare(token, expected) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), obscontext.ActorAdmin)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
