package floodgate

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Option is a functional option for configuring a Limiter.
type Option func(*rateLimiter) error

// WithConfig sets the configuration for the limiter.
func WithConfig(config *Config) Option {
	return func(rl *rateLimiter) error {
		if config == nil {
			return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
		}
		if err := config.Validate(); err != nil {
			return err
		}
		rl.config = config
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file.
func WithConfigFile(path string) Option {
	return func(rl *rateLimiter) error {
		config, err := LoadConfigFromFile(path)
		if err != nil {
			return err
		}
		rl.config = config
		return nil
	}
}

// WithDefaults sets the default policy: requestsPerSecond sustained rate and
// burstSize maximum burst. A convenience for the common single-policy case.
func WithDefaults(requestsPerSecond float64, burstSize int64) Option {
	return func(rl *rateLimiter) error {
		if requestsPerSecond <= 0 {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, ErrInvalidRate)
		}
		if burstSize <= 0 {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, ErrInvalidBurst)
		}

		rl.config.Defaults = PolicyConfig{
			RequestsPerSecond: requestsPerSecond,
			BurstSize:         burstSize,
			Enabled:           true,
		}
		return nil
	}
}

// WithStore sets a custom store for the default policy.
// If not provided, an in-memory sharded store is created.
func WithStore(store Store) Option {
	return func(rl *rateLimiter) error {
		if store == nil {
			return fmt.Errorf("%w: store cannot be nil", ErrInvalidConfig)
		}
		rl.defaultStore = store
		return nil
	}
}

// WithClock sets the time source. Production code uses the default
// SystemClock; tests inject a ManualClock for deterministic refill.
func WithClock(clock Clock) Option {
	return func(rl *rateLimiter) error {
		if clock == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		rl.clock = clock
		return nil
	}
}

// WithKeyExtractor sets a custom key extractor.
func WithKeyExtractor(extractor KeyExtractor) Option {
	return func(rl *rateLimiter) error {
		if extractor == nil {
			return fmt.Errorf("%w: key extractor cannot be nil", ErrInvalidConfig)
		}
		rl.keyExtractor = extractor
		return nil
	}
}

// WithRouteExtractor sets a function to derive the route from a request
// path, e.g. to collapse path parameters onto one policy.
func WithRouteExtractor(fn RouteExtractorFunc) Option {
	return func(rl *rateLimiter) error {
		if fn == nil {
			return fmt.Errorf("%w: route extractor cannot be nil", ErrInvalidConfig)
		}
		rl.routeExtractor = fn
		return nil
	}
}

// RouteExtractorFunc maps a request path to the route a policy is keyed by.
type RouteExtractorFunc func(path string) string

// WithIdleThreshold sets how long a fully recovered bucket may sit idle
// before the sweep removes it. Zero disables sweeping.
func WithIdleThreshold(d time.Duration) Option {
	return func(rl *rateLimiter) error {
		if d < 0 {
			return fmt.Errorf("%w: idle threshold cannot be negative", ErrInvalidConfig)
		}
		rl.idleThreshold = d
		rl.idleThresholdSet = true
		return nil
	}
}

// WithSweepInterval sets how often the background sweep runs.
// Only used when StartBackgroundSweep is called.
func WithSweepInterval(d time.Duration) Option {
	return func(rl *rateLimiter) error {
		if d < 0 {
			return fmt.Errorf("%w: sweep interval cannot be negative", ErrInvalidConfig)
		}
		rl.sweepInterval = d
		rl.sweepIntervalSet = true
		return nil
	}
}

// WithLogger sets the logger used for rejection and sweep events.
// Defaults to a no-op logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(rl *rateLimiter) error {
		rl.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector notified of limiter events.
func WithMetrics(collector MetricsCollector) Option {
	return func(rl *rateLimiter) error {
		rl.metrics = collector
		return nil
	}
}
