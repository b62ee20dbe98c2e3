package floodgate

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the rate limiting configuration.
// It supports a global default policy plus per-route overrides.
type Config struct {
	// Defaults are applied to all routes unless overridden
	Defaults PolicyConfig `yaml:"defaults"`

	// Policies maps route paths to their specific rate limit policies
	// Example: "/api/login" -> strict policy, "/api/search" -> lenient policy
	Policies map[string]PolicyConfig `yaml:"policies,omitempty"`

	// KeyExtractor specifies how to identify clients
	// Examples: "ip", "ip-proxy", "header:X-API-Key", "bearer"
	KeyExtractor string `yaml:"key_extractor,omitempty"`

	// IdleThreshold is how long a fully recovered bucket may sit idle before
	// the sweep removes it. Format: "10m", "1h", "0" to disable sweeping.
	IdleThreshold string `yaml:"idle_threshold,omitempty"`

	// SweepInterval is how often the background sweep runs. Format: "1m".
	SweepInterval string `yaml:"sweep_interval,omitempty"`

	// Login configures the login lockout limiter. Nil disables it.
	Login *LoginConfig `yaml:"login,omitempty"`
}

// PolicyConfig defines rate limiting parameters for a route or the default.
type PolicyConfig struct {
	// RequestsPerSecond is the sustained refill rate in tokens per second
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// BurstSize is the maximum number of tokens a bucket can hold, i.e. the
	// number of requests that may be admitted instantaneously
	BurstSize int64 `yaml:"burst_size"`

	// Enabled allows disabling rate limiting for specific routes
	Enabled bool `yaml:"enabled"`
}

// NewConfig creates a Config with sensible defaults: 10 requests/second
// sustained with bursts up to 100, keyed by client IP, buckets swept after
// ten idle minutes.
func NewConfig() *Config {
	return &Config{
		Defaults: PolicyConfig{
			RequestsPerSecond: 10.0,
			BurstSize:         100,
			Enabled:           true,
		},
		Policies:      make(map[string]PolicyConfig),
		KeyExtractor:  "ip",
		IdleThreshold: "10m",
		SweepInterval: "1m",
	}
}

// LoadConfigFromFile loads configuration from a YAML file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.KeyExtractor == "" {
		c.KeyExtractor = "ip"
	}
	if c.IdleThreshold == "" {
		c.IdleThreshold = "10m"
	}
	if c.SweepInterval == "" {
		c.SweepInterval = "1m"
	}
	if c.Policies == nil {
		c.Policies = make(map[string]PolicyConfig)
	}
	if c.Login != nil {
		c.Login.applyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("%w: invalid defaults: %v", ErrInvalidConfig, err)
	}

	for route, policy := range c.Policies {
		// A disabled route carries no policy worth validating.
		if !policy.Enabled {
			continue
		}
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("%w: invalid policy for route %s: %v", ErrInvalidConfig, route, err)
		}
	}

	if _, err := c.ParseIdleThreshold(); err != nil {
		return err
	}
	if _, err := c.ParseSweepInterval(); err != nil {
		return err
	}

	if c.Login != nil {
		if err := c.Login.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks if a PolicyConfig is valid.
func (p *PolicyConfig) Validate() error {
	if p.RequestsPerSecond <= 0 {
		return ErrInvalidRate
	}
	if p.BurstSize <= 0 {
		return ErrInvalidBurst
	}
	return nil
}

// GetPolicy returns the rate limit policy for a given route.
// If no specific policy exists for the route, the default policy applies.
func (c *Config) GetPolicy(route string) PolicyConfig {
	if policy, exists := c.Policies[route]; exists {
		return policy
	}
	return c.Defaults
}

// SetPolicy sets a rate limit policy for a specific route.
func (c *Config) SetPolicy(route string, policy PolicyConfig) error {
	if policy.Enabled {
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if c.Policies == nil {
		c.Policies = make(map[string]PolicyConfig)
	}
	c.Policies[route] = policy
	return nil
}

// ParseIdleThreshold parses the configured idle threshold.
// Zero means the sweep is disabled.
func (c *Config) ParseIdleThreshold() (time.Duration, error) {
	return c.parseDuration("idle_threshold", c.IdleThreshold, 10*time.Minute)
}

// ParseSweepInterval parses the configured sweep interval.
func (c *Config) ParseSweepInterval() (time.Duration, error) {
	return c.parseDuration("sweep_interval", c.SweepInterval, time.Minute)
}

func (c *Config) parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	if value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q: %v", ErrInvalidConfig, field, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s cannot be negative", ErrInvalidConfig, field)
	}
	return d, nil
}

// ToBucketConfig converts a PolicyConfig to a BucketConfig for store creation.
func (p *PolicyConfig) ToBucketConfig() BucketConfig {
	return BucketConfig{
		Capacity:   p.BurstSize,
		RefillRate: p.RequestsPerSecond,
	}
}
