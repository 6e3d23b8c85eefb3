package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// The bucket state lives in one hash per key. Remaining tokens are returned as
// a string because Redis truncates Lua numbers in integer replies.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now = (clock[1] * 1000) + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])

if tokens == nil then
  tokens = burst
else
  local elapsed = math.max(now - ts, 0)
  tokens = math.min(burst, tokens + (elapsed / 1000) * rate)
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens), now}
`

// Policy allows Max requests per Window, refilled continuously.
type Policy struct {
	Max    int
	Window time.Duration
}

func (p Policy) Validate() error {
	if p.Max <= 0 || p.Window <= 0 {
		return errors.New("rate limit policy must be positive")
	}
	return nil
}

// rate is the refill speed in tokens per second.
func (p Policy) rate() float64 {
	return float64(p.Max) / p.Window.Seconds()
}

// ttl keeps an idle bucket around for twice the time a full refill takes.
func (p Policy) ttl() time.Duration {
	ttl := 2 * p.Window
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// TokenBucket evaluates policies atomically inside Redis.
type TokenBucket struct {
	client redis.Scripter
	script *redis.Script
}

func NewTokenBucket(client redis.Scripter) *TokenBucket {
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

func (t *TokenBucket) Allow(ctx context.Context, key string, policy Policy) (*RateLimitResult, error) {
	if t == nil || t.client == nil {
		return nil, errors.New("rate limiter not configured")
	}
	if key == "" {
		return nil, errors.New("rate limiter key is empty")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	reply, err := t.script.Run(ctx, t.client, []string{key},
		policy.rate(),
		policy.Max,
		policy.ttl().Milliseconds(),
	).Slice()
	if err != nil {
		return nil, err
	}
	return parseBucketReply(reply, policy)
}

func parseBucketReply(reply []interface{}, policy Policy) (*RateLimitResult, error) {
	if len(reply) < 3 {
		return nil, errors.New("invalid rate limit script response")
	}

	allowed := replyInt(reply[0]) == 1
	remaining := replyFloat(reply[1])
	retryAfter := refillDelay(allowed, remaining, policy.rate())

	return &RateLimitResult{
		Allowed:    allowed,
		Limit:      policy.Max,
		Remaining:  int(math.Floor(remaining)),
		ResetTime:  time.UnixMilli(replyInt(reply[2])).Add(retryAfter),
		RetryAfter: retryAfter,
	}, nil
}

// refillDelay is how long until one whole token is available again.
func refillDelay(allowed bool, remaining, rate float64) time.Duration {
	if allowed || rate <= 0 {
		return 0
	}
	needed := 1.0 - remaining
	if needed <= 0 {
		return 0
	}
	return time.Duration(needed / rate * float64(time.Second))
}

func replyInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case string:
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func replyFloat(v interface{}) float64 {
	switch val := v.(type) {
	case int64:
		return float64(val)
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
