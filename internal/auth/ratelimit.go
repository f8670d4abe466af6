// Package auth implements the API key store and key-management rate
// limiter of §4.6, adapted from the teacher's generic action rate
// limiter (pkg/action/rate_limiter.go) into a one-purpose limiter
// scoped to the dashboard key-management endpoints.
package auth

import (
	"sync"
	"time"
)

// KeyManagementLimit is the "20 requests per minute per source IP" bound
// §4.6 places on the key-management endpoints.
const KeyManagementLimit = 20

// KeyManagementWindow is the sliding window over which KeyManagementLimit
// is enforced.
const KeyManagementWindow = time.Minute

// rateLimiter is a sliding-window limiter keyed by source IP, grounded
// on the teacher's pkg/action/rate_limiter.go.
type rateLimiter struct {
	mu              sync.Mutex
	windows         map[string][]time.Time
	cleanupInterval time.Duration
	stopCh          chan struct{}
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		windows:         make(map[string][]time.Time),
		cleanupInterval: time.Minute,
		stopCh:          make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow records the call and reports whether key is still within limit
// requests over window.
func (r *rateLimiter) Allow(key string, limit int, window time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)

	existing := r.windows[key]
	active := make([]time.Time, 0, len(existing))
	for _, t := range existing {
		if t.After(cutoff) {
			active = append(active, t)
		}
	}

	if len(active) >= limit {
		r.windows[key] = active
		return false
	}

	r.windows[key] = append(active, now)
	return true
}

func (r *rateLimiter) cleanupLoop() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.stopCh:
			return
		}
	}
}

func (r *rateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	maxAge := 10 * time.Minute
	cutoff := time.Now().Add(-maxAge)

	for key, timestamps := range r.windows {
		active := make([]time.Time, 0, len(timestamps))
		for _, t := range timestamps {
			if t.After(cutoff) {
				active = append(active, t)
			}
		}
		if len(active) == 0 {
			delete(r.windows, key)
		} else {
			r.windows[key] = active
		}
	}
}

func (r *rateLimiter) stop() {
	close(r.stopCh)
}

// KeyManagementLimiter rate-limits the dashboard key CRUD endpoints by
// source IP.
type KeyManagementLimiter struct {
	rl *rateLimiter
}

// NewKeyManagementLimiter constructs a limiter enforcing
// KeyManagementLimit per KeyManagementWindow.
func NewKeyManagementLimiter() *KeyManagementLimiter {
	return &KeyManagementLimiter{rl: newRateLimiter()}
}

// Allow reports whether sourceIP may perform another key-management
// operation this window.
func (k *KeyManagementLimiter) Allow(sourceIP string) bool {
	return k.rl.Allow(sourceIP, KeyManagementLimit, KeyManagementWindow)
}

// Stop terminates the background cleanup goroutine.
func (k *KeyManagementLimiter) Stop() {
	k.rl.stop()
}
