package floodgate

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Limiter is the admission-control decision surface.
// All methods are safe for concurrent use from many request-handling
// goroutines; Allow and AllowN never block on I/O and perform only in-memory
// arithmetic under fine-grained locks.
type Limiter interface {
	// Allow checks whether a request for the given key is admitted,
	// consuming one token on admission.
	Allow(key string) (*Decision, error)

	// AllowN is the weighted variant: cost tokens are consumed on admission.
	// Expensive endpoints can charge more than one token per request.
	AllowN(key string, cost int64) (*Decision, error)

	// AllowRequest extracts the key and route from an HTTP request and
	// checks it against the policy configured for that route.
	AllowRequest(r *http.Request) (*Decision, error)

	// Middleware wraps an http.Handler with rate limiting: admitted requests
	// pass through, rejected ones get a 429 with retry hints.
	Middleware(next http.Handler) http.Handler

	// Sweep removes idle fully-recovered buckets from all stores and
	// returns the number removed. Normally driven by StartBackgroundSweep.
	Sweep() int

	// StartBackgroundSweep launches a goroutine that sweeps periodically.
	// Call the returned function to stop it.
	StartBackgroundSweep() func()

	// BucketCount returns the number of buckets tracked across all stores.
	BucketCount() int
}

// Decision is the result of one admission check.
// Rejection is a normal, expected outcome, not an error.
type Decision struct {
	// Allowed indicates whether the request should proceed
	Allowed bool

	// Remaining is the number of whole tokens left in the bucket
	Remaining int64

	// Limit is the bucket capacity (maximum burst)
	Limit int64

	// RetryAfter is how long to wait before the same request would be
	// admitted. Zero when Allowed is true.
	RetryAfter time.Duration

	// Key is the client key the check was performed against
	Key string

	// Route is the route whose policy applied, when checked via AllowRequest
	Route string
}

// MetricsCollector receives limiter events. Implementations must be safe for
// concurrent use. See the metrics package for a Prometheus-backed one.
type MetricsCollector interface {
	// IncAdmitted counts an admitted request.
	IncAdmitted()

	// IncRejected counts a rejected request.
	IncRejected()

	// SetBuckets records the current number of tracked buckets.
	SetBuckets(int)

	// AddSweepEvictions counts buckets removed by a sweep.
	AddSweepEvictions(int)
}

// rateLimiter is the concrete implementation of Limiter.
type rateLimiter struct {
	config         *Config
	clock          Clock
	keyExtractor   KeyExtractor
	routeExtractor RouteExtractorFunc
	logger         zerolog.Logger
	metrics        MetricsCollector

	// defaultStore serves every route without an enabled policy override;
	// routeStores hold an independent budget per configured route.
	defaultStore Store
	routeStores  map[string]Store

	idleThreshold    time.Duration
	idleThresholdSet bool
	sweepInterval    time.Duration
	sweepIntervalSet bool
}

// New creates a Limiter. Without options it admits 10 requests/second with
// bursts up to 100 per client IP. Construction fails with ErrInvalidConfig
// when the configuration violates its invariants; a constructed limiter's
// checks cannot fail other than by rejecting.
//
// Example:
//
//	limiter, err := floodgate.New(
//	    floodgate.WithDefaults(10.0, 20), // 10 tokens/sec, burst of 20
//	    floodgate.WithKeyExtractor(floodgate.ExtractIPBehindProxy()),
//	)
func New(opts ...Option) (Limiter, error) {
	rl := &rateLimiter{
		config:         NewConfig(),
		clock:          SystemClock(),
		routeExtractor: func(path string) string { return path },
		logger:         zerolog.Nop(),
	}

	for _, opt := range opts {
		if err := opt(rl); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := rl.config.Validate(); err != nil {
		return nil, err
	}

	if !rl.idleThresholdSet {
		d, err := rl.config.ParseIdleThreshold()
		if err != nil {
			return nil, err
		}
		rl.idleThreshold = d
	}
	if !rl.sweepIntervalSet {
		d, err := rl.config.ParseSweepInterval()
		if err != nil {
			return nil, err
		}
		rl.sweepInterval = d
	}

	if rl.keyExtractor == nil {
		extractor, err := ParseKeyExtractorConfig(rl.config.KeyExtractor)
		if err != nil {
			return nil, err
		}
		rl.keyExtractor = extractor
	}

	if rl.defaultStore == nil {
		store, err := NewShardedStore(rl.config.Defaults.ToBucketConfig())
		if err != nil {
			return nil, err
		}
		rl.defaultStore = store
	}

	rl.routeStores = make(map[string]Store, len(rl.config.Policies))
	for route, policy := range rl.config.Policies {
		if !policy.Enabled {
			continue
		}
		store, err := NewShardedStore(policy.ToBucketConfig())
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", route, err)
		}
		rl.routeStores[route] = store
	}

	return rl, nil
}

// Allow checks a single-token request against the default policy.
func (rl *rateLimiter) Allow(key string) (*Decision, error) {
	return rl.AllowN(key, 1)
}

// AllowN checks a request costing cost tokens against the default policy.
func (rl *rateLimiter) AllowN(key string, cost int64) (*Decision, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if cost <= 0 {
		return nil, ErrInvalidCost
	}
	return rl.consume(rl.defaultStore, key, cost, rl.config.Defaults.BurstSize, ""), nil
}

func (rl *rateLimiter) consume(store Store, key string, cost int64, limit int64, route string) *Decision {
	allowed, remaining, retryAfter := store.Consume(key, cost, rl.clock.Now())

	if rl.metrics != nil {
		if allowed {
			rl.metrics.IncAdmitted()
		} else {
			rl.metrics.IncRejected()
		}
	}

	return &Decision{
		Allowed:    allowed,
		Remaining:  int64(remaining),
		Limit:      limit,
		RetryAfter: retryAfter,
		Key:        key,
		Route:      route,
	}
}

// AllowRequest checks an HTTP request using the configured key extractor and
// the policy for the request's route. Routes with a disabled policy are
// always admitted without touching any bucket.
func (rl *rateLimiter) AllowRequest(r *http.Request) (*Decision, error) {
	key, err := rl.keyExtractor(r)
	if err != nil {
		return nil, fmt.Errorf("key extraction failed: %w", err)
	}

	route := rl.routeExtractor(r.URL.Path)
	policy := rl.config.GetPolicy(route)

	if !policy.Enabled {
		return &Decision{
			Allowed:   true,
			Remaining: policy.BurstSize,
			Limit:     policy.BurstSize,
			Key:       key,
			Route:     route,
		}, nil
	}

	store := rl.defaultStore
	if s, ok := rl.routeStores[route]; ok {
		store = s
	}
	return rl.consume(store, key, 1, policy.BurstSize, route), nil
}

// Middleware wraps next with rate limiting.
//
// Headers set on every response:
//   - X-RateLimit-Limit: bucket capacity
//   - X-RateLimit-Remaining: whole tokens left
//
// Additionally on rejection (429):
//   - Retry-After: seconds to wait, rounded up
//   - X-RateLimit-Reset: Unix timestamp when a retry would be admitted
//
// A key-extraction failure fails open: the request is admitted and the
// failure logged, so a misconfigured extractor degrades protection rather
// than availability.
func (rl *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := rl.AllowRequest(r)
		if err != nil {
			rl.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("rate limit check failed, admitting request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))

		if !decision.Allowed {
			retryAfterSec := int64(math.Ceil(decision.RetryAfter.Seconds()))
			if retryAfterSec < 1 {
				retryAfterSec = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSec))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", rl.clock.Now().Add(decision.RetryAfter).Unix()))

			rl.logger.Warn().
				Str("key", decision.Key).
				Str("route", decision.Route).
				Dur("retry_after", decision.RetryAfter).
				Msg("rate limit exceeded")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":          "rate_limit_exceeded",
				"message":        "Too many requests. Please try again later.",
				"retry_after_ms": decision.RetryAfter.Milliseconds(),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Sweep removes idle fully-recovered buckets from every store.
func (rl *rateLimiter) Sweep() int {
	if rl.idleThreshold == 0 {
		return 0
	}

	now := rl.clock.Now()
	removed := rl.defaultStore.Sweep(now, rl.idleThreshold)
	for _, store := range rl.routeStores {
		removed += store.Sweep(now, rl.idleThreshold)
	}

	if rl.metrics != nil {
		rl.metrics.AddSweepEvictions(removed)
		rl.metrics.SetBuckets(rl.BucketCount())
	}
	return removed
}

// StartBackgroundSweep launches the periodic sweep goroutine.
// It keeps memory bounded for high-cardinality key spaces without adding
// latency to the decision path. No-op when sweeping is disabled.
func (rl *rateLimiter) StartBackgroundSweep() func() {
	if rl.idleThreshold == 0 || rl.sweepInterval == 0 {
		return func() {}
	}

	ticker := time.NewTicker(rl.sweepInterval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if removed := rl.Sweep(); removed > 0 {
					rl.logger.Debug().Int("removed", removed).Msg("swept idle buckets")
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}

// BucketCount returns the number of buckets tracked across all stores.
func (rl *rateLimiter) BucketCount() int {
	n := rl.defaultStore.Count()
	for _, store := range rl.routeStores {
		n += store.Count()
	}
	return n
}
