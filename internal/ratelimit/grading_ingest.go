package ratelimit

import (
	"context"
	"errors"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/scholara/internal/config"
)

const (
	keyGradingIngestClient = "scholara:ratelimit:grading:client:"
	keyGradingIngestGlobal = "scholara:ratelimit:grading:global"
)

var ErrRedisRequired = errors.New("grading rate limit requires redis")

// GradingIngestLimiter bounds grading submissions per client and across all replicas.
// A nil limiter allows everything.
type GradingIngestLimiter struct {
	bucket *TokenBucket

	clientRate  float64
	clientBurst int
	globalRate  float64
	globalBurst int
}

func NewGradingIngestLimiter(cfg config.Config, client redis.UniversalClient) (*GradingIngestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, ErrRedisRequired
	}
	if limitCfg.GradingClientRate <= 0 || limitCfg.GradingClientBurst <= 0 {
		return nil, errors.New("grading client rate limit must be positive")
	}
	if limitCfg.GradingGlobalRate <= 0 || limitCfg.GradingGlobalBurst <= 0 {
		return nil, errors.New("grading global rate limit must be positive")
	}

	return &GradingIngestLimiter{
		bucket:      NewTokenBucket(client),
		clientRate:  limitCfg.GradingClientRate,
		clientBurst: limitCfg.GradingClientBurst,
		globalRate:  limitCfg.GradingGlobalRate,
		globalBurst: limitCfg.GradingGlobalBurst,
	}, nil
}

func (l *GradingIngestLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow checks the global bucket first, then the client bucket.
func (l *GradingIngestLimiter) Allow(ctx context.Context, clientKey string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	result, err := l.bucket.Allow(ctx, keyGradingIngestGlobal, l.globalRate, l.globalBurst)
	if err != nil || !result.Allowed {
		return result, err
	}

	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "unknown"
	}
	return l.bucket.Allow(ctx, keyGradingIngestClient+clientKey, l.clientRate, l.clientBurst)
}
