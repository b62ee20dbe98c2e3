// Package floodgate provides per-client admission control for Go services.
//
// Floodgate sits in front of a network service and decides, per incoming
// request, whether to admit or reject it based on a configured rate budget.
// Each client key gets an independent token bucket: up to BurstSize requests
// may be admitted instantaneously, refilled continuously at
// RequestsPerSecond. Rejection is a normal Decision, not an error, and
// carries a RetryAfter hint.
//
// # Quick Start
//
//	limiter, err := floodgate.New(
//	    floodgate.WithDefaults(10.0, 20), // 10 req/sec sustained, burst of 20
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	decision, err := limiter.Allow("user-123")
//	if !decision.Allowed {
//	    fmt.Printf("rejected, retry after %v\n", decision.RetryAfter)
//	}
//
// # HTTP Middleware
//
//	limiter, _ := floodgate.New(
//	    floodgate.WithDefaults(10.0, 20),
//	    floodgate.WithKeyExtractor(floodgate.ExtractIPBehindProxy()),
//	)
//
//	http.Handle("/api/", limiter.Middleware(yourHandler))
//
// Admitted requests pass through with X-RateLimit-Limit and
// X-RateLimit-Remaining set; rejected ones get a 429 with Retry-After and
// X-RateLimit-Reset.
//
// # Configuration
//
//	limiter, err := floodgate.New(
//	    floodgate.WithConfigFile("config.yaml"),
//	)
//
// Example YAML configuration:
//
//	defaults:
//	  requests_per_second: 10.0
//	  burst_size: 100
//	  enabled: true
//
//	policies:
//	  "/api/login":
//	    requests_per_second: 0.083 # ~5 req/min
//	    burst_size: 5
//	    enabled: true
//
//	key_extractor: "ip"
//	idle_threshold: "10m"
//	sweep_interval: "1m"
//
// # Memory
//
// Bucket state lives in a sharded in-memory map; a periodic sweep removes
// buckets that have fully recovered and sat idle past idle_threshold, so
// memory stays bounded for high-cardinality key spaces. Start it with
// StartBackgroundSweep. All state is lost on restart.
//
// # Testing
//
// Time is injectable: pass floodgate.WithClock(floodgate.NewManualClock(t0))
// and advance it explicitly to test refill and sweep behavior
// deterministically.
package floodgate
