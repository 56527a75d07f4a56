package main

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/orsmap/internal/config"
	"github.com/sells-group/orsmap/internal/resilience"
	"github.com/sells-group/orsmap/pkg/ors"
)

// newClient builds the ORS client. Tests replace it.
var newClient = newORSClient

func newORSClient(c *config.Config) (ors.Client, error) {
	if err := c.RequireAPIKey(); err != nil {
		return nil, err
	}

	retry := resilience.DefaultRetryConfig()
	if c.Retry.MaxAttempts > 0 {
		retry.MaxAttempts = c.Retry.MaxAttempts
	}
	if c.Retry.InitialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(c.Retry.InitialBackoffMs) * time.Millisecond
	}
	if c.Retry.MaxBackoffMs > 0 {
		retry.MaxBackoff = time.Duration(c.Retry.MaxBackoffMs) * time.Millisecond
	}

	timeout := 30 * time.Second
	if c.ORS.TimeoutSecs > 0 {
		timeout = time.Duration(c.ORS.TimeoutSecs) * time.Second
	}

	opts := []ors.Option{
		ors.WithHTTPClient(&http.Client{Timeout: timeout}),
		ors.WithRetry(retry),
		ors.WithGeocodeSize(c.Geocode.Size),
	}
	if c.ORS.RateLimit > 0 {
		opts = append(opts, ors.WithRateLimit(c.ORS.RateLimit))
	}
	if c.ORS.BreakerThreshold > 0 {
		opts = append(opts, ors.WithBreaker(resilience.NewBreaker(resilience.BreakerConfig{
			Threshold: c.ORS.BreakerThreshold,
			Cooldown:  time.Duration(c.ORS.BreakerCooldownSecs) * time.Second,
			OnStateChange: func(from, to resilience.BreakerState) {
				zap.L().Warn("ors: breaker state changed", zap.Stringer("from", from), zap.Stringer("to", to))
			},
		})))
	}
	if c.ORS.BaseURL != "" {
		opts = append(opts, ors.WithBaseURL(c.ORS.BaseURL))
	}
	if c.Geocode.CacheEntries > 0 {
		ttl := time.Duration(c.Geocode.CacheTTLMins) * time.Minute
		opts = append(opts, ors.WithCache(ors.NewPlaceCache(c.Geocode.CacheEntries, ttl)))
	}
	return ors.NewClient(c.ORS.APIKey, opts...), nil
}
