package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedProvider paces round-trips to a provider with a token bucket.
// It never retries; a rejected call is returned to the caller unchanged.
type RateLimitedProvider struct {
	Provider
	limiter *rate.Limiter
}

// WithRateLimit wraps p so that at most rpm requests start per minute, with
// the given burst. rpm <= 0 returns p unchanged.
func WithRateLimit(p Provider, rpm, burst int) Provider {
	if rpm <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
	}
}

func (p *RateLimitedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limiter: %w", p.Name(), err)
	}
	if waited := time.Since(start); waited > 100*time.Millisecond {
		slog.Debug("provider rate limited", "provider", p.Name(), "waited_ms", waited.Milliseconds())
	}
	return p.Provider.Chat(ctx, req)
}
