package floodgate

import (
	"sync"
	"time"
)

// BucketConfig holds the policy for buckets created by a store.
type BucketConfig struct {
	Capacity   int64   // maximum tokens (burst size)
	RefillRate float64 // tokens added per second
}

// Store is the mapping from client key to token bucket state.
// Implementations must be safe for concurrent use: calls for the same key
// must serialize refill-then-consume steps, and calls for different keys
// must not contend on each other.
type Store interface {
	// Consume refills the bucket for key based on elapsed time, then tries
	// to take cost tokens from it. A full bucket is created on first access.
	// On rejection the bucket is left unchanged apart from the refill, and
	// retryAfter is how long to wait before the same request could succeed.
	Consume(key string, cost int64, now time.Time) (allowed bool, remaining float64, retryAfter time.Duration)

	// Sweep removes entries that are fully recovered and have been idle for
	// longer than idleThreshold. It returns the number of entries removed.
	// Sweep runs off the request path and must not lose in-flight updates.
	Sweep(now time.Time, idleThreshold time.Duration) int

	// Count returns the number of buckets currently tracked.
	Count() int
}

// The store is sharded so that the hot path never takes a global lock:
// requests for different keys land on different shards with high probability,
// and within a shard only a read lock is held while the per-bucket mutex does
// the actual serialization.
const shardCount = 64 // power of two, so the hash can be masked

type shard struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket
}

// shardedStore implements Store with an in-memory sharded map.
// Suitable for single-instance deployments; all state is lost on restart.
type shardedStore struct {
	cfg    BucketConfig
	shards [shardCount]shard
}

var _ Store = (*shardedStore)(nil)

// NewShardedStore creates an in-memory sharded store that creates buckets
// with the given policy.
func NewShardedStore(cfg BucketConfig) (Store, error) {
	if cfg.Capacity <= 0 {
		return nil, ErrInvalidBurst
	}
	if cfg.RefillRate <= 0 {
		return nil, ErrInvalidRate
	}

	s := &shardedStore{cfg: cfg}
	for i := range s.shards {
		s.shards[i].buckets = make(map[string]*Bucket)
	}
	return s, nil
}

// shardFor picks the shard for a key using inlined FNV-1a, avoiding
// allocations on the request path.
func (s *shardedStore) shardFor(key string) *shard {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= prime32
	}
	return &s.shards[h&(shardCount-1)]
}

// Consume implements Store.
func (s *shardedStore) Consume(key string, cost int64, now time.Time) (bool, float64, time.Duration) {
	sh := s.shardFor(key)

	// Fast path: bucket exists. The shard read lock is held across the take
	// so a concurrent sweep (which takes the write lock) can never remove a
	// bucket out from under an in-flight consume.
	sh.mu.RLock()
	if b, ok := sh.buckets[key]; ok {
		allowed, remaining, retryAfter := b.TakeN(now, cost)
		sh.mu.RUnlock()
		return allowed, remaining, retryAfter
	}
	sh.mu.RUnlock()

	sh.mu.Lock()
	b, ok := sh.buckets[key]
	if !ok {
		// Double-checked: another goroutine may have created it between the
		// two locks. Exactly one bucket ever exists per key.
		b = &Bucket{
			capacity:   s.cfg.Capacity,
			refillRate: s.cfg.RefillRate,
			tokens:     float64(s.cfg.Capacity),
			lastRefill: now,
		}
		sh.buckets[key] = b
	}
	allowed, remaining, retryAfter := b.TakeN(now, cost)
	sh.mu.Unlock()
	return allowed, remaining, retryAfter
}

// GetBucket returns the bucket for key, creating a full one if absent.
// Creation is atomic: racing first-access callers all observe the same bucket.
func (s *shardedStore) GetBucket(key string, now time.Time) *Bucket {
	sh := s.shardFor(key)

	sh.mu.RLock()
	if b, ok := sh.buckets[key]; ok {
		sh.mu.RUnlock()
		return b
	}
	sh.mu.RUnlock()

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if b, ok := sh.buckets[key]; ok {
		return b
	}
	b := &Bucket{
		capacity:   s.cfg.Capacity,
		refillRate: s.cfg.RefillRate,
		tokens:     float64(s.cfg.Capacity),
		lastRefill: now,
	}
	sh.buckets[key] = b
	return b
}

// Sweep implements Store. An entry is removed only when it is fully
// recovered (its token count after a notional refill is back at capacity)
// and its last refill is older than idleThreshold, so rejecting clients that
// are still paying off a deficit never lose their state.
func (s *shardedStore) Sweep(now time.Time, idleThreshold time.Duration) int {
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, b := range sh.buckets {
			if b.idleAndRecovered(now, idleThreshold) {
				delete(sh.buckets, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Count implements Store.
func (s *shardedStore) Count() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.buckets)
		sh.mu.RUnlock()
	}
	return n
}
