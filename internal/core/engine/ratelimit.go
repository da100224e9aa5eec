package engine

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/core"
)

// RateLimiter admits at most Policy.MaxPerWindow requests per user in any
// trailing Policy.Window.
type RateLimiter struct {
	Store  WindowStore
	Policy core.RateLimitPolicy
	Clock  func() time.Time
	Logger *logging.Logger
}

// windowSweeper is implemented by stores that can drop expired windows.
type windowSweeper interface {
	Sweep(now time.Time, window time.Duration) int
	Len() int
}

// NewRateLimiter returns a limiter over store with defaults applied to policy.
func NewRateLimiter(store WindowStore, policy core.RateLimitPolicy) *RateLimiter {
	return &RateLimiter{Store: store, Policy: policy.WithDefaults()}
}

// Admit prunes the user's window relative to now and records now when the
// user is under the limit. Rejected requests are not recorded.
func (r *RateLimiter) Admit(userID string, now time.Time) bool {
	if r == nil || r.Store == nil {
		return true
	}

	policy := r.Policy.WithDefaults()
	admitted := false
	r.Store.Update(userID, func(window []time.Time) []time.Time {
		kept := prune(window, now, policy.Window)
		if len(kept) >= policy.MaxPerWindow {
			return kept
		}
		admitted = true
		return append(kept, now)
	})

	if !admitted && r.Logger != nil {
		r.Logger.Debug("Rate limit reached",
			zap.String("user_id", userID),
			zap.Int("max_per_window", policy.MaxPerWindow),
			zap.Duration("window", policy.Window))
	}
	return admitted
}

// Allow is Admit evaluated at the limiter's clock.
func (r *RateLimiter) Allow(userID string) bool {
	return r.Admit(userID, r.now())
}

// Remaining reports how many more requests the user may make at now, or -1
// for a limiter without a store.
func (r *RateLimiter) Remaining(userID string, now time.Time) int {
	if r == nil || r.Store == nil {
		return -1
	}

	policy := r.Policy.WithDefaults()
	count := 0
	r.Store.Update(userID, func(window []time.Time) []time.Time {
		kept := prune(window, now, policy.Window)
		count = len(kept)
		return kept
	})

	if count >= policy.MaxPerWindow {
		return 0
	}
	return policy.MaxPerWindow - count
}

// Sweep removes fully expired windows when the store supports it.
func (r *RateLimiter) Sweep(now time.Time) int {
	if r == nil {
		return 0
	}
	sweeper, ok := r.Store.(windowSweeper)
	if !ok {
		return 0
	}
	return sweeper.Sweep(now, r.Policy.WithDefaults().Window)
}

// Tracked returns the number of windows held by the store, or -1 when the
// store cannot report it.
func (r *RateLimiter) Tracked() int {
	if r == nil {
		return -1
	}
	sweeper, ok := r.Store.(windowSweeper)
	if !ok {
		return -1
	}
	return sweeper.Len()
}

// RunSweeper sweeps expired windows every interval until ctx is done.
func (r *RateLimiter) RunSweeper(ctx context.Context, interval time.Duration, onSweep func(removed, tracked int)) {
	if r == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := r.Sweep(r.now())
			tracked := r.Tracked()
			if r.Logger != nil && removed > 0 {
				r.Logger.Debug("Swept expired rate windows",
					zap.Int("removed", removed),
					zap.Int("tracked", tracked))
			}
			if onSweep != nil {
				onSweep(removed, tracked)
			}
		}
	}
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

// prune keeps timestamps younger than window, reusing the backing array.
func prune(window []time.Time, now time.Time, span time.Duration) []time.Time {
	kept := window[:0]
	for _, ts := range window {
		if now.Sub(ts) < span {
			kept = append(kept, ts)
		}
	}
	return kept
}
