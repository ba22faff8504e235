package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/quotepay/internal/config"
	"go.uber.org/zap"
)

func testRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping Redis-dependent test: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestOrderLockerWithoutRedisIsNoop(t *testing.T) {
	locker := NewOrderLocker(OrderLockerParams{Log: zap.NewNop()})
	release := locker.Lock(context.Background(), "ord_1")
	release()

	var nilLocker *OrderLocker
	nilLocker.Lock(context.Background(), "ord_1")()
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	client := testRedisClient(t)
	ctx := context.Background()
	locker := NewLocker(client)
	key := "quotepay:test:lock:" + time.Now().Format(time.RFC3339Nano)

	token, ok, err := locker.TryLock(ctx, key, 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("expected first lock, got ok=%v err=%v", ok, err)
	}

	_, ok, err = locker.Acquire(ctx, key, 5*time.Second, 50*time.Millisecond, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if ok {
		t.Fatalf("expected second holder to time out")
	}

	if err := locker.Release(ctx, key, "not-the-token"); err != nil {
		t.Fatalf("release with wrong token: %v", err)
	}
	if exists := client.Exists(ctx, key).Val(); exists != 1 {
		t.Fatalf("wrong token must not release the lock")
	}

	if err := locker.Release(ctx, key, token); err != nil {
		t.Fatalf("release: %v", err)
	}
	_, ok, err = locker.TryLock(ctx, key, time.Second)
	if err != nil || !ok {
		t.Fatalf("expected lock after release, got ok=%v err=%v", ok, err)
	}
	_ = client.Del(ctx, key).Err()
}

func TestTokenBucketDeniesAfterBurst(t *testing.T) {
	client := testRedisClient(t)
	ctx := context.Background()
	bucket := NewTokenBucket(client)
	key := "quotepay:test:bucket:" + time.Now().Format(time.RFC3339Nano)
	defer client.Del(ctx, key)

	for i := 0; i < 2; i++ {
		decision, err := bucket.Allow(ctx, key, 0.01, 2)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d should pass", i)
		}
	}
	decision, err := bucket.Allow(ctx, key, 0.01, 2)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("third request should be denied")
	}
	if decision.RetryAfter <= 0 {
		t.Fatalf("expected retry-after, got %v", decision.RetryAfter)
	}
}

func TestOrderLockerTimingsFromConfig(t *testing.T) {
	defaults := NewOrderLocker(OrderLockerParams{Log: zap.NewNop()})
	if defaults.ttl != defaultOrderLockTTL || defaults.wait != defaultOrderLockWait {
		t.Fatalf("expected default timings, got ttl=%v wait=%v", defaults.ttl, defaults.wait)
	}

	cfg := config.Config{OrderLockTTL: 5 * time.Second, OrderLockWait: 250 * time.Millisecond}
	tuned := NewOrderLocker(OrderLockerParams{Log: zap.NewNop(), Config: cfg})
	if tuned.ttl != 5*time.Second || tuned.wait != 250*time.Millisecond {
		t.Fatalf("expected configured timings, got ttl=%v wait=%v", tuned.ttl, tuned.wait)
	}

	partial := tuned.WithTimings(0, time.Second)
	if partial.ttl != 5*time.Second || partial.wait != time.Second {
		t.Fatalf("expected ttl kept and wait replaced, got ttl=%v wait=%v", partial.ttl, partial.wait)
	}
	if tuned.wait != 250*time.Millisecond {
		t.Fatalf("WithTimings must not mutate the receiver, wait=%v", tuned.wait)
	}

	var nilLocker *OrderLocker
	if nilLocker.WithTimings(time.Second, time.Second) != nil {
		t.Fatal("expected nil locker to stay nil")
	}
}

func TestDisabledPayQuoteLimiterAllows(t *testing.T) {
	var limiter *PayQuoteLimiter
	decision, err := limiter.AllowClient(context.Background(), "127.0.0.1")
	if err != nil || !decision.Allowed {
		t.Fatalf("expected allow, got %+v err=%v", decision, err)
	}
}
