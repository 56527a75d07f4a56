package resilience

import (
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/rotisserie/eris"
)

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// BreakerClosed lets every call through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen lets a single trial call through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned for calls rejected while the upstream is
// considered down.
var ErrBreakerOpen = eris.New("resilience: upstream unavailable, breaker open")

// BreakerConfig controls when a Breaker opens and how long it stays open.
type BreakerConfig struct {
	// Threshold is the number of consecutive transient failures that opens
	// the breaker. Default: 5.
	Threshold int

	// Cooldown is how long the breaker stays open before a trial call. Default: 30s.
	Cooldown time.Duration

	// OnStateChange runs on every transition, outside the lock.
	OnStateChange func(from, to BreakerState)

	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// Breaker stops calling an upstream that keeps failing transiently. Only
// transient errors count; a 4xx answer means the upstream is alive.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Breaker{cfg: cfg}
}

// State returns the current state. An open breaker past its cooldown
// reports half-open.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.cooledLocked() {
		return BreakerHalfOpen
	}
	return b.state
}

// Allow reports whether a call may proceed. Every nil return must be
// followed by exactly one Record.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	var from BreakerState
	changed := false
	switch b.state {
	case BreakerOpen:
		if !b.cooledLocked() {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		from, changed = b.state, true
		b.state = BreakerHalfOpen
		b.probing = true
	case BreakerHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.probing = true
	}
	b.mu.Unlock()

	if changed {
		b.notify(from, BreakerHalfOpen)
	}
	return nil
}

// Record reports the outcome of an allowed call. Cancellations are neutral.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	from := b.state
	to := from

	switch {
	case IsCanceled(err):
		b.probing = false
	case !IsTransient(err):
		b.failures = 0
		b.probing = false
		to = BreakerClosed
	default:
		b.failures++
		b.probing = false
		if from == BreakerHalfOpen || b.failures >= b.cfg.Threshold {
			to = BreakerOpen
			b.openedAt = b.cfg.Clock.Now()
		}
	}
	b.state = to
	b.mu.Unlock()

	if to != from {
		b.notify(from, to)
	}
}

// Guard runs fn through b. A nil breaker runs fn directly.
func Guard[T any](b *Breaker, fn func() (T, error)) (T, error) {
	if b == nil {
		return fn()
	}
	if err := b.Allow(); err != nil {
		var zero T
		return zero, err
	}
	v, err := fn()
	b.Record(err)
	return v, err
}

func (b *Breaker) cooledLocked() bool {
	return b.cfg.Clock.Now().Sub(b.openedAt) >= b.cfg.Cooldown
}

func (b *Breaker) notify(from, to BreakerState) {
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
