// Package retry paces repeated attempts and stops dialing targets that
// keep failing.  The relay uses a Backoff between failed Accept calls
// and while reaching an SSH gateway, and a CircuitBreaker in front of
// target dials.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// PermanentError ends a [Backoff.Do] loop on the first attempt that
// returns it.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err so that Do returns it without another attempt.
// A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, came from
// [Permanent].
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Backoff describes a doubling delay between attempts.  Zero fields
// take the defaults noted on each.
type Backoff struct {
	InitialDelay time.Duration // 1s
	MaxDelay     time.Duration // 60s
	Multiplier   float64       // 2
	MaxAttempts  int           // 0 retries until ctx is done
	Jitter       bool          // ±25% per wait
}

// AcceptBackoff paces failed Accept calls: 5ms doubling to 1s, never
// giving up on its own.
func AcceptBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

// GatewayBackoff paces attempts to reach an SSH gateway: three tries
// spaced 200ms then 400ms apart.
func GatewayBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
		MaxAttempts:  3,
		Jitter:       true,
	}
}

// Do calls fn until it returns nil, returns a [Permanent] error, runs
// out of attempts or ctx is done.  attempt starts at 1.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	s := b.schedule()
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return errors.Unwrap(err)
		case b.MaxAttempts > 0 && attempt >= b.MaxAttempts:
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		t := time.NewTimer(s.next())
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-t.C:
		}
	}
}

// schedule is the mutable half of a Backoff: the delay to use next.
type schedule struct {
	delay  time.Duration
	max    time.Duration
	mult   float64
	jitter bool
}

func (b *Backoff) schedule() *schedule {
	s := &schedule{
		delay:  b.InitialDelay,
		max:    b.MaxDelay,
		mult:   b.Multiplier,
		jitter: b.Jitter,
	}
	if s.delay <= 0 {
		s.delay = time.Second
	}
	if s.max <= 0 {
		s.max = time.Minute
	}
	if s.mult <= 0 {
		s.mult = 2
	}
	return s
}

// next returns the wait before the coming attempt and grows the delay
// for the one after it.
func (s *schedule) next() time.Duration {
	wait := s.delay
	if s.jitter {
		wait = jitter(wait)
	}
	s.delay = time.Duration(float64(s.delay) * s.mult)
	if s.delay > s.max {
		s.delay = s.max
	}
	return wait
}

// jitter spreads d over [0.75d, 1.25d], never below a millisecond.
func jitter(d time.Duration) time.Duration {
	spread := float64(d) / 2
	j := time.Duration(float64(d) - spread/2 + rand.Float64()*spread)
	if j < time.Millisecond {
		return time.Millisecond
	}
	return j
}
