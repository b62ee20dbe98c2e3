// Package floodgate re-exports the core types from pkg/floodgate so callers
// can import the module root directly.
package floodgate

import (
	"github.com/yourusername/floodgate/pkg/floodgate"
)

// Re-export main types for convenience
type (
	Config       = floodgate.Config
	PolicyConfig = floodgate.PolicyConfig
	LoginConfig  = floodgate.LoginConfig
	Limiter      = floodgate.Limiter
	LoginLimiter = floodgate.LoginLimiter
	Decision     = floodgate.Decision
	Bucket       = floodgate.Bucket
	Store        = floodgate.Store
	Clock        = floodgate.Clock
	ManualClock  = floodgate.ManualClock
	KeyExtractor = floodgate.KeyExtractor
	Option       = floodgate.Option
)

// Constructors and helpers
var (
	New             = floodgate.New
	NewLoginLimiter = floodgate.NewLoginLimiter
	NewConfig       = floodgate.NewConfig
	NewShardedStore = floodgate.NewShardedStore
	SystemClock     = floodgate.SystemClock
	NewManualClock  = floodgate.NewManualClock
)
