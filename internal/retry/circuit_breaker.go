package retry

import (
	"fmt"
	"sync"
	"time"

	ncerr "wsbridge/internal/errors"
)

// State is where a [CircuitBreaker] stands.
type State int

const (
	StateClosed   State = iota // calls pass
	StateOpen                  // calls fail fast until ResetTimeout passes
	StateHalfOpen              // trial calls decide whether to close again
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig configures a [CircuitBreaker].  Zero fields take
// the values from [DefaultCircuitBreakerConfig].
type CircuitBreakerConfig struct {
	MaxFailures  int           // consecutive failures that open the circuit
	ResetTimeout time.Duration // time spent open before a trial call
	HalfOpenMax  int           // trial successes needed to close

	// OnStateChange runs on every transition while the breaker's lock
	// is held.  It must not call back into the breaker.
	OnStateChange func(from, to State)
}

// DefaultCircuitBreakerConfig opens after 5 failures, waits 30s, and
// closes after 2 good trials.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  2,
	}
}

// CircuitBreaker counts consecutive failures of a call and, past a
// threshold, refuses the call for a while.  Refusals wrap
// [ncerr.ErrCircuitOpen].
//
// Use [CircuitBreaker.Execute], or pair [CircuitBreaker.Allow] with
// [CircuitBreaker.Record] when the outcome is only known later.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	now       func() time.Time
}

// NewCircuitBreaker returns a closed breaker.  A nil cfg means
// [DefaultCircuitBreakerConfig].
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	c := *def
	if cfg != nil {
		c = *cfg
		if c.MaxFailures <= 0 {
			c.MaxFailures = def.MaxFailures
		}
		if c.ResetTimeout <= 0 {
			c.ResetTimeout = def.ResetTimeout
		}
		if c.HalfOpenMax <= 0 {
			c.HalfOpenMax = def.HalfOpenMax
		}
	}
	return &CircuitBreaker{cfg: c, now: time.Now}
}

// Allow reports whether a call may go ahead.  An open breaker whose
// timeout has passed moves to half-open and lets the call through.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	left := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
	if left <= 0 {
		cb.setState(StateHalfOpen)
		return nil
	}
	return fmt.Errorf("%w after %d failures, next try in %v",
		ncerr.ErrCircuitOpen, cb.failures, left.Truncate(time.Millisecond))
}

// Record feeds the outcome of an allowed call back into the breaker.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.successes = 0
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.MaxFailures {
			cb.openedAt = cb.now()
			cb.setState(StateOpen)
		}
		return
	}

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenMax {
			cb.failures, cb.successes = 0, 0
			cb.setState(StateClosed)
		}
	}
}

// Execute runs fn if [CircuitBreaker.Allow] permits and records its
// result.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn()
	cb.Record(err)
	return err
}

// CurrentState returns the breaker's state without advancing it.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures, cb.successes = 0, 0
	cb.setState(StateClosed)
}

func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}
