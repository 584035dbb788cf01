package ratelimit

import (
	"sync"
	"time"
)

const nanoTokensPerToken int64 = int64(time.Second) // 1e9

const maxInt64 = int64(^uint64(0) >> 1)

// TokenBucket is a deterministic token bucket that refills at an integer
// rate (tokens/sec) using a provided Clock.
//
// Tokens are held as fixed-point "nano-tokens" (1 token = 1e9 nano-tokens), so
// a rate of X tokens/sec adds exactly X nano-tokens per elapsed nanosecond.
type TokenBucket struct {
	mu    sync.Mutex
	clock Clock

	capacity int64 // nano-tokens
	rate     int64 // tokens/sec == nano-tokens/ns

	available int64 // nano-tokens
	last      time.Time
}

// NewTokenBucket returns a full bucket. Negative arguments are treated as 0.
func NewTokenBucket(clock Clock, capacityTokens, tokensPerSecond int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	capacity := toNano(max(capacityTokens, 0))
	return &TokenBucket{
		clock:     clock,
		capacity:  capacity,
		rate:      max(tokensPerSecond, 0),
		available: capacity,
		last:      clock.Now(),
	}
}

// Allow consumes tokens if that many are available.
//
// tokens <= 0 always succeeds.
func (b *TokenBucket) Allow(tokens int64) bool {
	if tokens <= 0 {
		return true
	}
	cost := toNano(tokens)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.advanceLocked(b.clock.Now())
	if b.available < cost {
		return false
	}
	b.available -= cost
	return true
}

func (b *TokenBucket) advanceLocked(now time.Time) {
	if now.Before(b.last) {
		// Clock went backwards; re-anchor without crediting anything.
		b.last = now
		return
	}
	elapsed := now.Sub(b.last).Nanoseconds()
	if elapsed <= 0 {
		return
	}
	b.last = now
	b.available = refill(b.available, b.capacity, b.rate, elapsed)
}

// refill credits elapsed*rate nano-tokens, clamped to capacity, without
// overflowing for long idle periods.
func refill(available, capacity, rate, elapsed int64) int64 {
	if rate <= 0 || capacity <= 0 || available >= capacity {
		return min(available, capacity)
	}
	missing := capacity - available
	if toFill := missing / rate; toFill <= 0 || elapsed >= toFill {
		return capacity
	}
	return min(available+elapsed*rate, capacity)
}

func toNano(tokens int64) int64 {
	if tokens <= 0 {
		return 0
	}
	if tokens > maxInt64/nanoTokensPerToken {
		return maxInt64
	}
	return tokens * nanoTokensPerToken
}
