// Package ratelimit provides the token bucket that caps how many events a
// single connection may push through the transport. The sync core itself
// imposes no limit; this guards the process, not the log semantics.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token bucket refilled at a fixed rate, up to burst tokens.
type Limiter struct {
	rate       float64
	burst      int
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewLimiter creates a limiter allowing rate events per second with the
// given burst capacity. The bucket starts full.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
}

// Allow consumes one token if available and reports whether the event may
// proceed.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastUpdate).Seconds()
	l.lastUpdate = now

	l.tokens += elapsed * l.rate
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}

	if l.tokens >= 1 {
		l.tokens--
		return true
	}

	return false
}
