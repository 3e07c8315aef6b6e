// Package bridge splices two established connections together until one
// side closes, the session idles out, or the caller cancels.
package bridge

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	ncerr "wsbridge/internal/errors"
	"wsbridge/internal/metrics"
	"wsbridge/util"
)

// DefaultPollInterval bounds every blocking read so both pumps wake up
// regularly even when no data moves.
const DefaultPollInterval = 3 * time.Second

// Config tunes one bridged session.  The zero value is usable: reads poll
// every [DefaultPollInterval] in 4 KiB chunks and idle sessions are kept.
type Config struct {
	PollInterval time.Duration
	// IdleTimeout ends the session once no byte has moved in either
	// direction for this long.  Zero disables reaping.
	IdleTimeout time.Duration
	BufSize     int
}

// Stats summarises a finished session.
type Stats struct {
	ClientToTarget int64
	TargetToClient int64
	Duration       time.Duration
	// Reason is nil when a peer closed normally, [ncerr.ErrIdleTimeout]
	// when the session was reaped, the context error on cancellation, or
	// the read/write error that ended it.
	Reason error
}

type bridge struct {
	cfg        Config
	lastActive atomic.Int64

	stop   chan struct{}
	once   sync.Once
	reason error
}

// Run copies client→target and target→client until either direction
// ends.  It always closes both connections before returning, and it waits
// for both pumps to exit.  m may be nil.
func Run(ctx context.Context, client, target net.Conn, cfg Config, m *metrics.Collector) Stats {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BufSize <= 0 {
		cfg.BufSize = util.DefaultBufSize
	}

	b := &bridge{cfg: cfg, stop: make(chan struct{})}
	start := time.Now()
	b.lastActive.Store(start.UnixNano())

	var up, down int64
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.pump(target, client, func(n int) {
			up += int64(n)
			m.BytesUpstream(int64(n))
		})
	}()
	go func() {
		defer wg.Done()
		b.pump(client, target, func(n int) {
			down += int64(n)
			m.BytesDownstream(int64(n))
		})
	}()

	select {
	case <-ctx.Done():
		b.halt(ctx.Err())
	case <-b.stop:
	}

	client.Close()
	target.Close()
	wg.Wait()

	return Stats{
		ClientToTarget: up,
		TargetToClient: down,
		Duration:       time.Since(start),
		Reason:         b.reason,
	}
}

// halt records why the session ends.  Only the first call counts.
func (b *bridge) halt(reason error) {
	b.once.Do(func() {
		b.reason = reason
		close(b.stop)
	})
}

func (b *bridge) stopped() bool {
	select {
	case <-b.stop:
		return true
	default:
		return false
	}
}

func (b *bridge) idle() bool {
	if b.cfg.IdleTimeout <= 0 {
		return false
	}
	last := time.Unix(0, b.lastActive.Load())
	return time.Since(last) >= b.cfg.IdleTimeout
}

// pump forwards src to dst one chunk at a time.  Each chunk is written in
// full before the next read, so ordering is preserved and nothing is
// buffered beyond the current chunk.
func (b *bridge) pump(dst, src net.Conn, count func(int)) {
	buf, release := util.RelayBuf(b.cfg.BufSize)
	defer release()

	for !b.stopped() {
		src.SetReadDeadline(time.Now().Add(b.cfg.PollInterval))
		n, err := src.Read(buf)
		if n > 0 {
			b.lastActive.Store(time.Now().UnixNano())
			if _, werr := util.WriteFull(dst, buf[:n]); werr != nil {
				b.halt(werr)
				return
			}
			count(n)
		}
		switch {
		case err == nil && n == 0:
			// A zero-length read is treated as the peer closing.
			b.halt(nil)
			return
		case err == nil:
		case util.IsTimeout(err):
			if b.idle() {
				b.halt(ncerr.ErrIdleTimeout)
				return
			}
		case errors.Is(err, io.EOF):
			b.halt(nil)
			return
		default:
			b.halt(err)
			return
		}
	}
}
