package ratelimit

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/quotepay/internal/config"
	"github.com/smallbiznis/quotepay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyOrderLock = "quotepay:order:lock:"

	defaultOrderLockTTL  = 30 * time.Second
	defaultOrderLockWait = 2 * time.Second
)

// Order lock results recorded in metrics.
const (
	OrderLockAcquired = "acquired"
	OrderLockTimeout  = "timeout"
	OrderLockError    = "error"
	OrderLockDisabled = "disabled"
)

// OrderLocker serializes webhook processing per provider order across
// instances. It is best effort: on timeout or Redis failure the caller
// proceeds unlocked and relies on conditional updates.
type OrderLocker struct {
	locker  *Locker
	log     *zap.Logger
	metrics *metrics.Metrics
	ttl     time.Duration
	wait    time.Duration
}

type OrderLockerParams struct {
	fx.In

	Client  *redis.Client `optional:"true"`
	Config  config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

func NewOrderLocker(p OrderLockerParams) *OrderLocker {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	locker := &OrderLocker{
		locker:  NewLocker(p.Client),
		log:     log.Named("ratelimit.order_lock"),
		metrics: p.Metrics,
		ttl:     defaultOrderLockTTL,
		wait:    defaultOrderLockWait,
	}
	return locker.WithTimings(p.Config.OrderLockTTL, p.Config.OrderLockWait)
}

// WithTimings overrides the lock TTL and the maximum wait. Non-positive
// values keep the current setting.
func (o *OrderLocker) WithTimings(ttl, wait time.Duration) *OrderLocker {
	if o == nil {
		return nil
	}
	tuned := *o
	if ttl > 0 {
		tuned.ttl = ttl
	}
	if wait > 0 {
		tuned.wait = wait
	}
	return &tuned
}

// Lock returns a release func that is always safe to call.
func (o *OrderLocker) Lock(ctx context.Context, providerOrderID string) func() {
	noop := func() {}
	if o == nil || o.locker == nil {
		o.record(OrderLockDisabled)
		return noop
	}

	key := keyOrderLock + strings.TrimSpace(providerOrderID)
	token, ok, err := o.locker.Acquire(ctx, key, o.ttl, o.wait, 0)
	if err != nil {
		o.record(OrderLockError)
		o.log.Warn("order lock unavailable, proceeding unlocked",
			zap.String("provider_order_id", providerOrderID),
			zap.Error(err),
		)
		return noop
	}
	if !ok {
		o.record(OrderLockTimeout)
		o.log.Info("order lock wait elapsed, proceeding unlocked",
			zap.String("provider_order_id", providerOrderID),
		)
		return noop
	}

	o.record(OrderLockAcquired)
	return func() {
		// Release on a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := o.locker.Release(releaseCtx, key, token); err != nil {
			o.log.Warn("order lock release failed", zap.String("provider_order_id", providerOrderID), zap.Error(err))
		}
	}
}

func (o *OrderLocker) record(result string) {
	if o == nil {
		return
	}
	o.metrics.RecordOrderLock(result)
}
