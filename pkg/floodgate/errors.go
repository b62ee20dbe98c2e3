package floodgate

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidRate is returned when the refill rate is zero or negative
	ErrInvalidRate = errors.New("requests per second must be positive")

	// ErrInvalidBurst is returned when the burst size is zero or negative
	ErrInvalidBurst = errors.New("burst size must be positive")

	// ErrInvalidKey is returned when the rate limit key is empty
	ErrInvalidKey = errors.New("rate limit key cannot be empty")

	// ErrInvalidCost is returned when a request cost is zero or negative
	ErrInvalidCost = errors.New("request cost must be positive")

	// ErrKeyExtractionFailed is returned when key extraction from a request fails
	ErrKeyExtractionFailed = errors.New("failed to extract key from request")

	// ErrAccountLocked is returned by LoginLimiter.Check while an account lockout is active
	ErrAccountLocked = errors.New("account locked")
)
