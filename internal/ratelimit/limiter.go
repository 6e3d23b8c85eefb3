package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creditline/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	ScopeAPI          = "api"
	ScopeUsageConsume = "usage"
)

// Limiter applies one policy to per-user keys under a scope prefix.
// A nil Limiter allows everything.
type Limiter struct {
	scope  string
	bucket *TokenBucket
	policy Policy
}

func NewLimiter(client redis.Scripter, scope string, policy Policy) (*Limiter, error) {
	if client == nil {
		return nil, errors.New("rate limit redis client is required")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, errors.New("rate limit scope is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{scope: scope, bucket: NewTokenBucket(client), policy: policy}, nil
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *Limiter) Scope() string {
	if l == nil {
		return ""
	}
	return l.scope
}

func (l *Limiter) Allow(ctx context.Context, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, Key(l.scope, userID), l.policy)
}

// Key joins the non-empty trimmed parts with ":".
func Key(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, ":")
}

// Limiters are the request throttles of the HTTP API. Both are nil when
// rate limiting is disabled.
type Limiters struct {
	// API applies to every authenticated route.
	API *Limiter
	// UsageConsume additionally applies to debits.
	UsageConsume *Limiter
}

func NewLimiters(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Limiters, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return Limiters{}, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return Limiters{}, errors.New("rate limit redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}

	apiPolicy := Policy{Max: limitCfg.APIMax, Window: seconds(limitCfg.APIWindowSeconds)}
	usagePolicy := Policy{Max: limitCfg.UsageMax, Window: seconds(limitCfg.UsageWindowSeconds)}

	api, err := NewLimiter(client, ScopeAPI, apiPolicy)
	if err != nil {
		return Limiters{}, err
	}
	usage, err := NewLimiter(client, ScopeUsageConsume, usagePolicy)
	if err != nil {
		return Limiters{}, err
	}

	log.Info("rate limits enabled",
		zap.Int("api_max", apiPolicy.Max),
		zap.Duration("api_window", apiPolicy.Window),
		zap.Int("usage_max", usagePolicy.Max),
		zap.Duration("usage_window", usagePolicy.Window),
	)
	return Limiters{API: api, UsageConsume: usage}, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
