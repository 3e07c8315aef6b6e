package transport

import (
	"context"
	"net"

	"wsbridge/internal/retry"
)

// BreakerDialer stops dialing a target that keeps failing.  While the
// breaker is open, Dial fails immediately with an error wrapping
// [errors.ErrCircuitOpen] instead of waiting out a connect timeout for
// every client.
type BreakerDialer struct {
	Dialer  Dialer
	Breaker *retry.CircuitBreaker
}

// NewBreakerDialer wraps d with a breaker built from cfg.
func NewBreakerDialer(d Dialer, cfg *retry.CircuitBreakerConfig) *BreakerDialer {
	return &BreakerDialer{Dialer: d, Breaker: retry.NewCircuitBreaker(cfg)}
}

// Dial dials through the wrapped dialer when the breaker allows it.
// A dial abandoned because ctx ended says nothing about the target and
// is not counted.
func (d *BreakerDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.Breaker.Allow(); err != nil {
		return nil, err
	}
	conn, err := d.Dialer.Dial(ctx, network, address)
	if err != nil && ctx.Err() != nil {
		return nil, err
	}
	d.Breaker.Record(err)
	return conn, err
}

// Close closes the wrapped dialer.
func (d *BreakerDialer) Close() error { return d.Dialer.Close() }
