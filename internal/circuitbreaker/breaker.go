// Package circuitbreaker implements the breaker that sits in front of the
// fast-path store. While the breaker is open, fast-store calls are skipped
// entirely and the cache engine goes straight to the durable store.
//
// # State machine
//
//	Closed ──(failure rate ≥ threshold)──► Open ──(OpenDuration elapsed)──► HalfOpen
//	  ▲                                                                        │
//	  └──────────────(all probes succeed)───────────────────────────────────────┘
//	                  (any probe fails) ──────────────────────────────────► Open
//
// # Invariants
//
//   - successes and failures only hold timestamps inside the current window;
//     trimWindow runs after every write.
//   - The breaker never trips before MinRequests outcomes were observed in
//     the window, so a single timeout on an idle service does not open it.
//   - halfOpenProbes is reset to 0 on every Open→HalfOpen transition.
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation, calls pass through
	StateOpen                  // Calls are rejected
	StateHalfOpen              // Limited probe calls are allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the circuit breaker configuration.
type Config struct {
	ErrorPct       float64       // Failure percentage that trips the breaker (0-100)
	MinRequests    int           // Outcomes required in the window before tripping
	WindowDuration time.Duration // Sliding window for the failure rate
	OpenDuration   time.Duration // Time spent open before probing
	HalfOpenProbes int           // Probe calls allowed in half-open state
}

// DefaultConfig is used for the fast store when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ErrorPct:       50,
		MinRequests:    10,
		WindowDuration: 10 * time.Second,
		OpenDuration:   5 * time.Second,
		HalfOpenProbes: 1,
	}
}

// Enabled reports whether cfg describes a usable breaker.
func (c Config) Enabled() bool {
	return c.ErrorPct > 0 && c.WindowDuration > 0 && c.OpenDuration > 0
}

// Breaker guards a single downstream dependency.
type Breaker struct {
	mu             sync.Mutex
	cfg            Config
	state          State
	successes      []time.Time
	failures       []time.Time
	openedAt       time.Time
	halfOpenProbes int
	halfOpenOK     int

	onChange func(from, to State)
}

// New creates a new circuit breaker with the given configuration.
func New(cfg Config) *Breaker {
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}
	return &Breaker{cfg: cfg}
}

// OnStateChange registers fn to be called after every transition. fn runs
// with the breaker lock held and must not call back into the breaker.
func (b *Breaker) OnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) < b.cfg.OpenDuration {
			return false
		}
		b.transition(StateHalfOpen)
		b.halfOpenProbes = 1
		return true
	case StateHalfOpen:
		if b.halfOpenProbes < b.cfg.HalfOpenProbes {
			b.halfOpenProbes++
			return true
		}
		return false
	}
	return true
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.state {
	case StateClosed:
		b.successes = append(b.successes, now)
		b.trimWindow(now)
	case StateHalfOpen:
		b.halfOpenOK++
		if b.halfOpenOK >= b.cfg.HalfOpenProbes {
			b.transition(StateClosed)
			b.successes = b.successes[:0]
			b.failures = b.failures[:0]
		}
	}
}

// RecordFailure records a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.state {
	case StateClosed:
		b.failures = append(b.failures, now)
		b.trimWindow(now)
		b.checkThreshold(now)
	case StateHalfOpen:
		b.transition(StateOpen)
		b.openedAt = now
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.openedAt) >= b.cfg.OpenDuration {
		b.transition(StateHalfOpen)
	}
	return b.state
}

// transition must be called under lock.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == StateHalfOpen {
		b.halfOpenProbes = 0
		b.halfOpenOK = 0
	}
	if b.onChange != nil {
		b.onChange(from, to)
	}
}

// maxWindowEntries caps each window slice.
const maxWindowEntries = 10000

// trimWindow must be called under lock.
func (b *Breaker) trimWindow(now time.Time) {
	cutoff := now.Add(-b.cfg.WindowDuration)
	b.successes = trimBefore(b.successes, cutoff)
	b.failures = trimBefore(b.failures, cutoff)

	if len(b.successes) > maxWindowEntries {
		b.successes = b.successes[len(b.successes)-maxWindowEntries:]
	}
	if len(b.failures) > maxWindowEntries {
		b.failures = b.failures[len(b.failures)-maxWindowEntries:]
	}
}

// checkThreshold must be called under lock.
func (b *Breaker) checkThreshold(now time.Time) {
	total := len(b.successes) + len(b.failures)
	if total == 0 || total < b.cfg.MinRequests {
		return
	}
	errorPct := float64(len(b.failures)) / float64(total) * 100
	if errorPct >= b.cfg.ErrorPct {
		b.transition(StateOpen)
		b.openedAt = now
	}
}

func trimBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	copy(times, times[i:])
	return times[:len(times)-i]
}
