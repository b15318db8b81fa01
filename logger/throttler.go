package logger

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Throttler suppresses repeated events for a time window per key. It is used
// to rate-limit noisy log lines such as writes against an already-closed
// connection, where every queued outbound message would otherwise produce an
// identical warning. Safe for concurrent use.
type Throttler struct {
	seen *cache.Cache
}

// NewThrottler creates a Throttler. Expired suppression entries are removed
// in the background at cleanupInterval.
//
// Parameters:
//   - cleanupInterval: Interval at which expired suppression entries are purged
//
// Returns:
//   - A new Throttler instance
func NewThrottler(cleanupInterval time.Duration) *Throttler {
	return &Throttler{
		seen: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

// Allow reports whether an event for the given key may be emitted. The first
// call for a key returns true and starts a suppression window of the given
// interval; calls within the window return false. After the window expires
// the next call returns true again.
//
// Parameters:
//   - key: Identifier of the event class (e.g. "closed_write:" + clientID)
//   - interval: Suppression window after an allowed event
//
// Returns:
//   - true if the event should be emitted, false if it is suppressed
func (t *Throttler) Allow(key string, interval time.Duration) bool {
	return t.seen.Add(key, struct{}{}, interval) == nil
}
