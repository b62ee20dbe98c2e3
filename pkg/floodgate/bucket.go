package floodgate

import (
	"sync"
	"time"
)

// Bucket tracks token consumption for a single client key.
// It implements the token bucket algorithm with continuous lazy refill:
// tokens are topped up from elapsed time on every access rather than by a
// background ticker, so behavior is independent of the request arrival
// pattern. All time is passed in explicitly by the caller, which owns the
// Clock.
type Bucket struct {
	capacity   int64   // maximum tokens (burst size)
	refillRate float64 // tokens added per second

	mu         sync.Mutex
	tokens     float64   // current available tokens, 0 <= tokens <= capacity
	lastRefill time.Time // last time tokens were topped up
}

// NewBucket creates a full token bucket with the given capacity and refill
// rate. A fresh bucket starts full so a new client's first burst is admitted.
func NewBucket(capacity int64, refillRate float64, now time.Time) (*Bucket, error) {
	if capacity <= 0 {
		return nil, ErrInvalidBurst
	}
	if refillRate <= 0 {
		return nil, ErrInvalidRate
	}
	return &Bucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     float64(capacity),
		lastRefill: now,
	}, nil
}

// Take attempts to consume one token at the given time.
// See TakeN.
func (b *Bucket) Take(now time.Time) (allowed bool, remaining float64, retryAfter time.Duration) {
	return b.TakeN(now, 1)
}

// TakeN attempts to consume n tokens at the given time.
// Refill is always applied before the consumption check, so token accounting
// stays time-accurate regardless of call frequency.
//
// If n tokens are available they are consumed and allowed is true. Otherwise
// the bucket is left unchanged apart from the refill, and retryAfter is how
// long the caller should wait before the same request could be admitted.
// remaining is the token count after the call.
func (b *Bucket) TakeN(now time.Time, n int64) (allowed bool, remaining float64, retryAfter time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)

	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true, b.tokens, 0
	}

	deficit := float64(n) - b.tokens
	return false, b.tokens, time.Duration(deficit / b.refillRate * float64(time.Second))
}

// refill adds tokens for the time elapsed since the last refill, capped at
// capacity. Must be called with b.mu held.
func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}

	b.tokens += elapsed * b.refillRate
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
	b.lastRefill = now
}

// Remaining returns the tokens available at the given time, after refill.
// The value is a snapshot and may change immediately under concurrent access.
func (b *Bucket) Remaining(now time.Time) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	return b.tokens
}

// Capacity returns the maximum capacity of the bucket.
func (b *Bucket) Capacity() int64 {
	return b.capacity
}

// RefillRate returns the refill rate in tokens per second.
func (b *Bucket) RefillRate() float64 {
	return b.refillRate
}

// idleAndRecovered reports whether the bucket has been untouched for longer
// than idleThreshold and would be full after refill. Such a bucket carries no
// state worth keeping: recreating it yields a full bucket, which is exactly
// what it would refill to. The check does not mutate the bucket, since a
// refill here would reset lastRefill and keep the entry alive forever.
func (b *Bucket) idleAndRecovered(now time.Time, idleThreshold time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	idle := now.Sub(b.lastRefill)
	if idle <= idleThreshold {
		return false
	}
	return b.tokens+idle.Seconds()*b.refillRate >= float64(b.capacity)
}
