package server

import (
	"errors"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/scholara/internal/observability/logger"
	"go.uber.org/zap"
)

var ErrRateLimited = errors.New("rate_limited")

// GradingIngestRateLimit rejects grading submissions over the configured rate.
// Limiter failures close the endpoint rather than admit unbounded traffic.
func (s *Server) GradingIngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.gradingLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.gradingLimiter.Allow(ctx, c.ClientIP())
		if err != nil {
			obslogger.FromContext(ctx).Warn("grading ingest rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}
