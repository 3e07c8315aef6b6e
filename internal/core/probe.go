package core

import (
	"context"
	"time"

	ncerr "wsbridge/internal/errors"
	"wsbridge/internal/transport"
)

// ProbeResult records whether the inner target answered a test dial.
type ProbeResult struct {
	Address string
	Open    bool
	Latency time.Duration
	Err     error
}

// Probe dials address once through d and closes the connection
// straight away.  The relay starts either way; the result only tells
// the operator whether the first clients will get through.
func Probe(ctx context.Context, d transport.Dialer, address string, timeout time.Duration) ProbeResult {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	conn, err := d.Dial(ctx, "tcp", address)
	if err != nil {
		return ProbeResult{Address: address, Err: ncerr.Wrap("probe", address, err)}
	}
	conn.Close()
	return ProbeResult{Address: address, Open: true, Latency: time.Since(start)}
}
