// Package stat collects per-address connection statistics for a running
// server: the live and total connection counts, the peak concurrent count,
// per-IP connection counts with a last-activity window, and the set of
// distinct remote addresses seen since start.
package stat

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/cyberinferno/wsbridge/safeset"
)

// DefaultActivityWindow is how long a remote address keeps its connection
// count after its last connection. Counts restart from one afterwards.
const DefaultActivityWindow = 12 * time.Hour

// Statistics tracks connection counts for a server. All methods are safe for
// concurrent use.
type Statistics struct {
	startedAt time.Time

	nowConnected  atomic.Int64
	maxConcurrent atomic.Int64
	total         atomic.Int64

	mu       sync.Mutex
	perAddr  *cache.Cache
	distinct *safeset.SafeSet[string]
}

// New creates a Statistics collector. Per-address counts expire after the
// given activity window; a non-positive window uses DefaultActivityWindow.
//
// Parameters:
//   - activityWindow: How long a per-address count survives inactivity
//
// Returns:
//   - A ready-to-use Statistics collector
func New(activityWindow time.Duration) *Statistics {
	if activityWindow <= 0 {
		activityWindow = DefaultActivityWindow
	}

	return &Statistics{
		startedAt: time.Now(),
		perAddr:   cache.New(activityWindow, activityWindow),
		distinct:  safeset.NewSafeSet[string](),
	}
}

// ConnectionOpened records one new connection from the given remote host and
// returns the host's current connection count within the activity window.
//
// Parameters:
//   - host: The remote host (IP without port)
//
// Returns:
//   - The host's connection count inside the current activity window
func (s *Statistics) ConnectionOpened(host string) int64 {
	s.total.Add(1)
	now := s.nowConnected.Add(1)

	for {
		peak := s.maxConcurrent.Load()
		if now <= peak || s.maxConcurrent.CompareAndSwap(peak, now) {
			break
		}
	}

	s.distinct.Add(host)

	s.mu.Lock()
	defer s.mu.Unlock()

	count := int64(1)
	if v, found := s.perAddr.Get(host); found {
		if prev, ok := v.(int64); ok {
			count = prev + 1
		}
	}

	// SetDefault also restarts the activity window for the host.
	s.perAddr.SetDefault(host, count)
	return count
}

// ConnectionClosed records that one connection has gone away.
func (s *Statistics) ConnectionClosed() {
	s.nowConnected.Add(-1)
}

// Snapshot is a point-in-time view of the collected statistics.
type Snapshot struct {
	StartedAt         time.Time `json:"started_at"`
	NowConnected      int64     `json:"now_connected"`
	MaxConcurrent     int64     `json:"max_concurrent"`
	TotalConnections  int64     `json:"total_connections"`
	DistinctAddresses int       `json:"distinct_addresses"`
}

// Snapshot returns the current statistics.
//
// Returns:
//   - A point-in-time copy of the counters
func (s *Statistics) Snapshot() Snapshot {
	return Snapshot{
		StartedAt:         s.startedAt,
		NowConnected:      s.nowConnected.Load(),
		MaxConcurrent:     s.maxConcurrent.Load(),
		TotalConnections:  s.total.Load(),
		DistinctAddresses: s.distinct.Size(),
	}
}

// AddressCount returns the connection count recorded for a host inside the
// current activity window.
//
// Parameters:
//   - host: The remote host to look up
//
// Returns:
//   - The count, or 0 if the host has no activity inside the window
func (s *Statistics) AddressCount(host string) int64 {
	v, found := s.perAddr.Get(host)
	if !found {
		return 0
	}

	count, ok := v.(int64)
	if !ok {
		return 0
	}

	return count
}
