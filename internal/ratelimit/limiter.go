// Package ratelimit bounds inbound turn rates per chat with token
// buckets. A denied turn is rejected before the LLM is ever invoked.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/relay/internal/agent"
)

// Config configures rate limiting.
type Config struct {
	// RequestsPerSecond is the sustained rate allowed per key.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// BurstSize is the number of requests allowed in a burst.
	BurstSize int `yaml:"burst_size"`

	// Enabled controls whether rate limiting is active.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default rate limit configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 1.0,
		BurstSize:         5,
		Enabled:           true,
	}
}

// bucket is a token bucket refilled continuously by elapsed time.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

func newBucket(config Config) *bucket {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if config.BurstSize <= 0 {
		config.BurstSize = int(config.RequestsPerSecond*2) + 1
	}
	return &bucket{
		tokens:     float64(config.BurstSize),
		maxTokens:  float64(config.BurstSize),
		refillRate: config.RequestsPerSecond,
		lastRefill: time.Now(),
	}
}

// take consumes one token when available and reports the wait until the
// next token otherwise.
func (b *bucket) take() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	needed := 1 - b.tokens
	return false, time.Duration(needed / b.refillRate * float64(time.Second))
}

// refill must be called with the lock held.
func (b *bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}

// Limiter manages per-key token buckets. It implements the pipeline's
// rate limit port.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	config  Config
	maxKeys int
}

// NewLimiter creates a rate limiter.
func NewLimiter(config Config) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		config:  config,
		maxKeys: 10000,
	}
}

// TryConsume takes one token for the key. A denial carries the time
// until the next token becomes available.
func (l *Limiter) TryConsume(key string) agent.RateLimitResult {
	if !l.config.Enabled {
		return agent.RateLimitResult{Allowed: true}
	}

	allowed, wait := l.getBucket(key).take()
	return agent.RateLimitResult{Allowed: allowed, RetryAfter: wait}
}

// Reset clears the bucket for a key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

func (l *Limiter) getBucket(key string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[key]; ok {
		return b
	}
	if len(l.buckets) >= l.maxKeys {
		l.prune()
	}
	b = newBucket(l.config)
	l.buckets[key] = b
	return b
}

// prune drops near-full buckets, which belong to inactive keys. Caller
// holds the write lock.
func (l *Limiter) prune() {
	for key, b := range l.buckets {
		b.mu.Lock()
		b.refill()
		idle := b.tokens >= b.maxTokens*0.9
		b.mu.Unlock()
		if idle {
			delete(l.buckets, key)
		}
	}
}

// CompositeKey joins key parts with ":".
func CompositeKey(parts ...string) string {
	return strings.Join(parts, ":")
}
