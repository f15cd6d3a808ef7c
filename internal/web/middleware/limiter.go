package middleware

import (
	"sync"
	"time"
)

// tokenBucket is a refilling bucket guarding one rate limit key.
type tokenBucket struct {
	mutex    sync.Mutex
	tokens   int
	capacity int
	refillAt time.Time
	window   time.Duration
}

func newTokenBucket(capacity int, window time.Duration) *tokenBucket {
	return &tokenBucket{
		tokens:   capacity,
		capacity: capacity,
		refillAt: time.Now(),
		window:   window,
	}
}

// take attempts to take a token, refilling proportionally to elapsed time.
func (tb *tokenBucket) take() bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	now := time.Now()

	if now.After(tb.refillAt.Add(tb.window)) {
		tb.tokens = tb.capacity
		tb.refillAt = now
	} else {
		elapsed := now.Sub(tb.refillAt)
		tokensToAdd := int(elapsed.Nanoseconds() * int64(tb.capacity) / tb.window.Nanoseconds())
		tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)

		if tokensToAdd > 0 {
			tb.refillAt = now
		}
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	return false
}

// RateLimiter tracks request rates per key with in-memory token buckets.
// Buckets idle beyond twice their window are swept by a background
// janitor.
type RateLimiter struct {
	buckets map[string]*tokenBucket
	mutex   sync.Mutex

	limit  int
	window time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		limit:   limit,
		window:  window,
		done:    make(chan struct{}),
	}

	go rl.janitor()

	return rl
}

// Allow reports whether a request keyed by key fits within the limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mutex.Lock()
	bucket, exists := rl.buckets[key]
	if !exists {
		bucket = newTokenBucket(rl.limit, rl.window)
		rl.buckets[key] = bucket
	}
	rl.mutex.Unlock()

	return bucket.take()
}

func (rl *RateLimiter) Close() error {
	rl.closeOnce.Do(func() { close(rl.done) })
	return nil
}

func (rl *RateLimiter) janitor() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.done:
			return
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	for key, bucket := range rl.buckets {
		bucket.mutex.Lock()
		idle := now.Sub(bucket.refillAt) > bucket.window*2
		bucket.mutex.Unlock()

		if idle {
			delete(rl.buckets, key)
		}
	}
}
