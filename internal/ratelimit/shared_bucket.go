package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// SharedBucket is a Redis-backed token bucket keyed by API key, for
// operators running several batch processes against the same account. The
// in-process SlidingWindow cannot see sibling processes; this one can.
// Refill is continuous at rpm tokens per minute, which admits the same
// sustained rate as the sliding window with slightly burstier edges.
type SharedBucket struct {
	client      redis.UniversalClient
	key         string
	capacity    int64
	refillPerMS float64
	ttl         time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	script *redis.Script
}

const sharedBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_per_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local data = redis.call("HMGET", key, "tokens", "timestamp")
local tokens = tonumber(data[1])
local timestamp = tonumber(data[2])

if tokens == nil then
  tokens = capacity
end
if timestamp == nil then
  timestamp = now_ms
end

local elapsed = math.max(0, now_ms - timestamp)
tokens = math.min(capacity, tokens + (elapsed * refill_per_ms))

local allowed = 0
local retry_after_ms = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
else
  retry_after_ms = math.ceil((1 - tokens) / refill_per_ms)
end

redis.call("HMSET", key, "tokens", tokens, "timestamp", now_ms)
redis.call("PEXPIRE", key, ttl_ms)

return {allowed, retry_after_ms}
`

// NewSharedBucket builds a limiter sharing requestsPerMinute across every
// process using the same subject (typically a hash of the API key).
func NewSharedBucket(client redis.UniversalClient, requestsPerMinute int, subject string) (*SharedBucket, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if requestsPerMinute < 1 {
		return nil, fmt.Errorf("requests per minute must be positive")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "default"
	}

	return &SharedBucket{
		client:      client,
		key:         "genai:ratelimit:" + subject,
		capacity:    int64(requestsPerMinute),
		refillPerMS: float64(requestsPerMinute) / float64(windowLength.Milliseconds()),
		ttl:         2 * windowLength,
		now:         time.Now,
		sleep:       sleepContext,
		script:      redis.NewScript(sharedBucketScript),
	}, nil
}

// Acquire blocks until the shared budget admits one request.
func (b *SharedBucket) Acquire(ctx context.Context) error {
	for {
		allowed, retryAfter, err := b.tryAcquire(ctx)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		if retryAfter < windowMargin {
			retryAfter = windowMargin
		}
		if err := b.sleep(ctx, retryAfter); err != nil {
			return err
		}
	}
}

func (b *SharedBucket) tryAcquire(ctx context.Context) (bool, time.Duration, error) {
	raw, err := b.script.Run(
		ctx,
		b.client,
		[]string{b.key},
		b.capacity,
		b.refillPerMS,
		b.now().UTC().UnixMilli(),
		b.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return false, 0, fmt.Errorf("run shared bucket script: %w", err)
	}

	values, ok := raw.([]any)
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("invalid shared bucket response")
	}

	allowed, err := toInt64(values[0])
	if err != nil {
		return false, 0, fmt.Errorf("parse allow value: %w", err)
	}
	retryAfterMS, err := toInt64(values[1])
	if err != nil {
		return false, 0, fmt.Errorf("parse retry-after value: %w", err)
	}

	return allowed == 1, time.Duration(retryAfterMS) * time.Millisecond, nil
}

func toInt64(in any) (int64, error) {
	switch v := in.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", in)
	}
}
