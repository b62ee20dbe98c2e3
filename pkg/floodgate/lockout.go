package floodgate

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LoginConfig configures the login lockout limiter.
type LoginConfig struct {
	// MaxAttempts is how many failed attempts within AttemptWindow trigger
	// a lockout
	MaxAttempts int `yaml:"max_attempts"`

	// AttemptWindow is the rolling window failed attempts are counted over.
	// Format: "60s", "5m".
	AttemptWindow string `yaml:"attempt_window,omitempty"`

	// LockoutDuration is how long an account stays locked. Format: "5m".
	LockoutDuration string `yaml:"lockout_duration,omitempty"`
}

func (c *LoginConfig) applyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.AttemptWindow == "" {
		c.AttemptWindow = "60s"
	}
	if c.LockoutDuration == "" {
		c.LockoutDuration = "5m"
	}
}

// Validate checks if the login configuration is valid.
func (c *LoginConfig) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w: login max_attempts must be positive", ErrInvalidConfig)
	}
	if _, err := c.parseWindow(); err != nil {
		return err
	}
	if _, err := c.parseLockout(); err != nil {
		return err
	}
	return nil
}

func (c *LoginConfig) parseWindow() (time.Duration, error) {
	d, err := time.ParseDuration(c.AttemptWindow)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: invalid login attempt_window %q", ErrInvalidConfig, c.AttemptWindow)
	}
	return d, nil
}

func (c *LoginConfig) parseLockout() (time.Duration, error) {
	d, err := time.ParseDuration(c.LockoutDuration)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: invalid login lockout_duration %q", ErrInvalidConfig, c.LockoutDuration)
	}
	return d, nil
}

// loginEntry tracks failed attempts and an active lockout for one identifier.
type loginEntry struct {
	failures    []time.Time
	lockedUntil time.Time
}

// LoginLimiter rate limits authentication attempts per identifier (username,
// account ID) and locks an account once it accumulates too many failures
// inside the rolling window. Unlike the token-bucket limiter, only failures
// count against the budget: a successful login clears the slate.
type LoginLimiter struct {
	maxAttempts int
	window      time.Duration
	lockout     time.Duration
	clock       Clock
	logger      zerolog.Logger

	mu      sync.Mutex
	entries map[string]*loginEntry
}

// LoginOption configures a LoginLimiter.
type LoginOption func(*LoginLimiter)

// WithLoginClock sets the time source for the login limiter.
func WithLoginClock(clock Clock) LoginOption {
	return func(l *LoginLimiter) { l.clock = clock }
}

// WithLoginLogger sets the logger for lockout events.
func WithLoginLogger(logger zerolog.Logger) LoginOption {
	return func(l *LoginLimiter) { l.logger = logger }
}

// NewLoginLimiter creates a login lockout limiter. A nil config uses the
// defaults: 5 attempts per 60 seconds, 5 minute lockout.
func NewLoginLimiter(cfg *LoginConfig, opts ...LoginOption) (*LoginLimiter, error) {
	if cfg == nil {
		cfg = &LoginConfig{}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	window, _ := cfg.parseWindow()
	lockout, _ := cfg.parseLockout()

	l := &LoginLimiter{
		maxAttempts: cfg.MaxAttempts,
		window:      window,
		lockout:     lockout,
		clock:       SystemClock(),
		logger:      zerolog.Nop(),
		entries:     make(map[string]*loginEntry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Check reports whether a login attempt for the identifier may proceed.
// It returns an error wrapping ErrAccountLocked while a lockout is active,
// and starts a lockout when the failure budget is already exhausted.
// A permitted attempt is not recorded; call RecordFailure or RecordSuccess
// with the outcome.
func (l *LoginLimiter) Check(identifier string) error {
	if identifier == "" {
		return ErrInvalidKey
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	entry, ok := l.entries[identifier]
	if !ok {
		entry = &loginEntry{}
		l.entries[identifier] = entry
	}

	if !entry.lockedUntil.IsZero() {
		if now.Before(entry.lockedUntil) {
			remaining := entry.lockedUntil.Sub(now)
			l.logger.Warn().
				Str("identifier", identifier).
				Dur("remaining", remaining).
				Msg("login attempt for locked account")
			return fmt.Errorf("%w: try again in %s", ErrAccountLocked, remaining.Round(time.Second))
		}
		// Lockout expired, start fresh.
		entry.lockedUntil = time.Time{}
		entry.failures = nil
	}

	entry.pruneLocked(now, l.window)

	if len(entry.failures) >= l.maxAttempts {
		entry.lockedUntil = now.Add(l.lockout)
		l.logger.Warn().
			Str("identifier", identifier).
			Time("locked_until", entry.lockedUntil).
			Msg("account locked after repeated failed logins")
		return fmt.Errorf("%w: try again in %s", ErrAccountLocked, l.lockout)
	}

	return nil
}

// RecordFailure records a failed login attempt for the identifier.
func (l *LoginLimiter) RecordFailure(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[identifier]
	if !ok {
		entry = &loginEntry{}
		l.entries[identifier] = entry
	}
	entry.failures = append(entry.failures, l.clock.Now())

	l.logger.Info().Str("identifier", identifier).Msg("failed login attempt recorded")
}

// RecordSuccess clears all tracked failures for the identifier.
func (l *LoginLimiter) RecordSuccess(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, identifier)
}

// LockedUntil returns when the identifier's lockout expires, if one is active.
func (l *LoginLimiter) LockedUntil(identifier string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[identifier]
	if !ok || entry.lockedUntil.IsZero() {
		return time.Time{}, false
	}
	if !l.clock.Now().Before(entry.lockedUntil) {
		return time.Time{}, false
	}
	return entry.lockedUntil, true
}

// Sweep drops entries with no recent failures and no active lockout.
// Returns the number of entries removed.
func (l *LoginLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	removed := 0
	for identifier, entry := range l.entries {
		if !entry.lockedUntil.IsZero() && now.Before(entry.lockedUntil) {
			continue
		}
		entry.pruneLocked(now, l.window)
		if len(entry.failures) == 0 {
			delete(l.entries, identifier)
			removed++
		}
	}
	return removed
}

// StartBackgroundSweep launches a goroutine that sweeps periodically.
// Call the returned function to stop it.
func (l *LoginLimiter) StartBackgroundSweep(interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				l.Sweep()
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

// pruneLocked drops failures older than the rolling window.
// Must be called with l.mu held.
func (e *loginEntry) pruneLocked(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	kept := e.failures[:0]
	for _, t := range e.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.failures = kept
}
