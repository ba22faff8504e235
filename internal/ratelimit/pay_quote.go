package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/quotepay/internal/config"
	"go.uber.org/fx"
)

const keyPayQuoteClient = "quotepay:pay_quote:client:"

// PayQuoteLimiter throttles payment initiations per client address. A nil
// or disabled limiter allows everything.
type PayQuoteLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

type PayQuoteLimiterParams struct {
	fx.In

	Client *redis.Client `optional:"true"`
	Config config.Config
}

func NewPayQuoteLimiter(p PayQuoteLimiterParams) *PayQuoteLimiter {
	limits := p.Config.RateLimit
	if p.Client == nil || !limits.Enabled || limits.PayQuotePerMinute <= 0 || limits.PayQuoteBurst <= 0 {
		return nil
	}
	return &PayQuoteLimiter{
		bucket: NewTokenBucket(p.Client),
		rate:   limits.PayQuotePerMinute / 60,
		burst:  limits.PayQuoteBurst,
	}
}

func (l *PayQuoteLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *PayQuoteLimiter) AllowClient(ctx context.Context, clientIP string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, keyPayQuoteClient+strings.TrimSpace(clientIP), l.rate, l.burst)
}
