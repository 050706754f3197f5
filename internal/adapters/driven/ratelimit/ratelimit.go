// Package ratelimit paces outbound work against vendor APIs. Ingestion
// can fire large embedding batches back to back; the token bucket keeps
// the pipeline inside vendor quotas instead of surfacing 429 retries.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ServiceType identifies a capability backend for rate limiting purposes.
type ServiceType string

const (
	// ServiceCompletion is the completion (LLM) backend.
	ServiceCompletion ServiceType = "completion"
	// ServiceEmbedding is the embedding backend.
	ServiceEmbedding ServiceType = "embedding"
	// ServiceRerank is the reranking backend.
	ServiceRerank ServiceType = "rerank"
	// ServiceIngestion paces whole ingestion runs from the spool watcher.
	ServiceIngestion ServiceType = "ingestion"
)

// Config holds rate limiting configuration for a service.
type Config struct {
	// RequestsPerSecond is the sustained rate limit.
	RequestsPerSecond float64
	// BurstSize is the maximum burst size.
	BurstSize int
}

// DefaultLimits provides conservative defaults for each backend,
// well below typical vendor limits.
var DefaultLimits = map[ServiceType]Config{
	ServiceCompletion: {RequestsPerSecond: 2.0, BurstSize: 5},
	ServiceEmbedding:  {RequestsPerSecond: 5.0, BurstSize: 10},
	ServiceRerank:     {RequestsPerSecond: 5.0, BurstSize: 10},
	ServiceIngestion:  {RequestsPerSecond: 0.2, BurstSize: 1},
}

// Limiter provides token bucket rate limiting with optional backoff
// for 429 responses.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
	service ServiceType
}

// New creates a rate limiter for the specified service.
func New(service ServiceType) *Limiter {
	cfg, ok := DefaultLimits[service]
	if !ok {
		cfg = Config{RequestsPerSecond: 5.0, BurstSize: 10}
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
		service: service,
	}
}

// NewWithConfig creates a rate limiter with custom configuration.
func NewWithConfig(cfg Config) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
	}
}

// Wait blocks until a request can be made without exceeding the rate
// limit. It also respects any backoff period set by RecordRateLimitError.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if time.Now().Before(retryAt) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(retryAt)):
		}
	}

	return l.limiter.Wait(ctx)
}

// RecordRateLimitError records a 429 from the backend and sets a
// backoff period before the next request.
func (l *Limiter) RecordRateLimitError(retryAfterSeconds int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if retryAfterSeconds <= 0 {
		retryAfterSeconds = 60
	}

	l.retryAt = time.Now().Add(time.Duration(retryAfterSeconds) * time.Second)
}

// Allow checks if a request can be made immediately without blocking.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if time.Now().Before(retryAt) {
		return false
	}

	return l.limiter.Allow()
}
