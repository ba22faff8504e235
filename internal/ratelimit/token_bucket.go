package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	errBucketNotConfigured = errors.New("token bucket not configured")
	errBucketInvalid       = errors.New("token bucket key, rate and burst are required")
)

// refillScript takes one token from KEYS[1]. Refill uses the Redis clock so
// every replica agrees on elapsed time. Returns {allowed, remaining, wait_ms}.
const refillScript = `
local rate_ms = tonumber(ARGV[1]) / 1000
local burst = tonumber(ARGV[2])

local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
tokens = math.min(burst, tokens + math.max(0, now - last) * rate_ms)

local allowed = 0
local wait_ms = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait_ms = math.ceil((1 - tokens) / rate_ms)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ARGV[3])

return {allowed, math.floor(tokens), wait_ms}
`

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(refillScript)}
}

// Allow takes one token from key. rate is tokens per second.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (Decision, error) {
	if t == nil || t.client == nil {
		return Decision{}, errBucketNotConfigured
	}
	if key == "" || rate <= 0 || burst <= 0 {
		return Decision{}, errBucketInvalid
	}

	res, err := t.script.Run(ctx, t.client, []string{key},
		strconv.FormatFloat(rate, 'f', -1, 64),
		burst,
		idleExpiry(rate, burst).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 3 {
		return Decision{}, errors.New("unexpected token bucket reply")
	}

	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// idleExpiry keeps a bucket around for twice its full refill time.
func idleExpiry(rate float64, burst int) time.Duration {
	return time.Duration(math.Max(1, math.Ceil(2*float64(burst)/rate))) * time.Second
}
