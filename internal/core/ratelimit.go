package core

import "time"

// RateLimitPolicy configures the per-user sliding window.
type RateLimitPolicy struct {
	Window       time.Duration
	MaxPerWindow int
}

// Defaults applied when a policy field is unset.
const (
	DefaultRateWindow          = time.Hour
	DefaultMaxPerWindow        = 30
	DefaultCompactionThreshold = 3
	DefaultSummaryWordCap      = 300
	DefaultMaxBufferBytes      = 16 * 1024
)

// WithDefaults fills unset fields.
func (p RateLimitPolicy) WithDefaults() RateLimitPolicy {
	if p.Window <= 0 {
		p.Window = DefaultRateWindow
	}
	if p.MaxPerWindow <= 0 {
		p.MaxPerWindow = DefaultMaxPerWindow
	}
	return p
}
