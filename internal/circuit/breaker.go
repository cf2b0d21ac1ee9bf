// Package circuit implements the per-endpoint circuit breaker shared by the RPC
// Client Fabric (spec §4.1) and the Webhook Fan-out's per-target circuit (spec §4.9).
package circuit

import (
	"sync"
	"time"
)

// State is one of closed, open, half-open.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half-open"
)

// Breaker tracks consecutive failures for one key (an RPC endpoint or a webhook
// target) and decides whether a call is currently permitted.
type Breaker struct {
	mu             sync.Mutex
	failures       int
	openedAt       time.Time
	state          State
	threshold      int
	pause          time.Duration
}

// New creates a closed breaker with the given consecutive-failure threshold and
// open-state pause duration.
func New(threshold int, pause time.Duration) *Breaker {
	return &Breaker{state: Closed, threshold: threshold, pause: pause}
}

// Allow reports whether a call may proceed right now, transitioning open->half-open
// once the pause has elapsed.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if now.Sub(b.openedAt) >= b.pause {
			b.state = HalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess resets the breaker to closed with a zero failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
}

// RecordFailure increments the failure count and opens the breaker once the
// threshold is reached (from closed) or immediately (from half-open).
func (b *Breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.state = Open
		b.openedAt = now
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = Open
		b.openedAt = now
	}
}

// CurrentState returns the current state (for metrics/inspection).
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Registry owns one Breaker per key (endpoint or webhook target), created lazily.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	threshold int
	pause     time.Duration
}

// NewRegistry creates a Registry whose breakers share threshold/pause settings.
func NewRegistry(threshold int, pause time.Duration) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), threshold: threshold, pause: pause}
}

// Get returns (creating if necessary) the breaker for key.
func (r *Registry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[key]
	if !ok {
		b = New(r.threshold, r.pause)
		r.breakers[key] = b
	}
	return b
}
