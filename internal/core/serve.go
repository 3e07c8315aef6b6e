package core

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"wsbridge/config"
	"wsbridge/internal/capability"
	ncerr "wsbridge/internal/errors"
	"wsbridge/internal/metrics"
	"wsbridge/internal/retry"
	"wsbridge/internal/session"
	"wsbridge/internal/transport"
	"wsbridge/util"
)

// ServeMode accepts clients on one listening socket and runs the
// capability for each on its own goroutine.  The accept loop never waits
// on a handler; it only waits for a free slot when MaxConns is set.
type ServeMode struct {
	Address string

	// MaxConns caps concurrently served clients.  At the cap, further
	// clients wait in the kernel backlog.  Zero means unbounded.
	MaxConns int
	// AcceptRate limits accepts per second (zero = unlimited).
	AcceptRate  float64
	AcceptBurst int

	Capability capability.Capability
	// Dialer is closed at shutdown when set.
	Dialer  transport.Dialer
	Metrics *metrics.Collector
	Logger  *util.Logger

	// StatsInterval logs a metrics snapshot periodically (zero = off).
	StatsInterval time.Duration
	// GracePeriod is how long shutdown waits for in-flight sessions.
	GracePeriod time.Duration
}

// Run binds Address and serves until ctx is cancelled.  A bind failure
// is returned as is; it is the only fatal error.
func (m *ServeMode) Run(ctx context.Context) error {
	ln, err := transport.Listen(ctx, m.Address)
	if err != nil {
		return ncerr.Wrap("listen", m.Address, err)
	}
	m.Logger.Info("listening on %s", ln.Addr())
	return m.Serve(ctx, ln)
}

// Connect brings up the SSH gateway, when one is configured, so that
// credential prompts and gateway errors surface before the first client.
func (m *ServeMode) Connect(ctx context.Context) error {
	d := m.Dialer
	if b, ok := d.(*transport.BreakerDialer); ok {
		d = b.Dialer
	}
	if s, ok := d.(*transport.SSHDialer); ok {
		return s.Connect(ctx)
	}
	return nil
}

// Serve accepts connections on ln until ctx is cancelled or ln is
// closed.  Individual accept failures are logged and retried with
// backoff.  Serve closes ln and returns nil on shutdown.
func (m *ServeMode) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Shut the listener down when the context expires.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var sem *semaphore.Weighted
	if m.MaxConns > 0 {
		sem = semaphore.NewWeighted(int64(m.MaxConns))
	}
	var limiter *rate.Limiter
	if m.AcceptRate > 0 {
		burst := m.AcceptBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(m.AcceptRate), burst)
	}
	if m.StatsInterval > 0 {
		go m.statsLoop(ctx)
	}

	var wg sync.WaitGroup
	backoff := retry.AcceptBackoff()
	for {
		// A fresh Do per connection resets the delay after a success.
		err := backoff.Do(ctx, func(attempt int) error {
			conn, err := m.accept(ctx, ln, sem, limiter)
			if err != nil {
				return err
			}
			wg.Add(1)
			go m.serveConn(ctx, conn, sem, &wg)
			return nil
		})
		if err != nil {
			break
		}
	}

	m.shutdown(&wg)
	return nil
}

// accept waits for a slot and the rate limiter, then accepts one
// connection.  Errors that end the loop are wrapped with
// [retry.Permanent].
func (m *ServeMode) accept(ctx context.Context, ln net.Listener, sem *semaphore.Weighted, limiter *rate.Limiter) (net.Conn, error) {
	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, retry.Permanent(err)
		}
	}
	release := func() {
		if sem != nil {
			sem.Release(1)
		}
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			release()
			return nil, retry.Permanent(err)
		}
	}

	conn, err := ln.Accept()
	if err != nil {
		release()
		if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
			return nil, retry.Permanent(err)
		}
		m.Metrics.RecordError("accept: " + err.Error())
		m.Logger.Warn("accept: %v", err)
		return nil, err
	}
	return conn, nil
}

func (m *ServeMode) serveConn(ctx context.Context, conn net.Conn, sem *semaphore.Weighted, wg *sync.WaitGroup) {
	defer wg.Done()
	if sem != nil {
		defer sem.Release(1)
	}

	sess := session.New(conn, m.Logger, m.Metrics)
	m.Metrics.SessionOpened()
	defer m.Metrics.SessionClosed()

	sess.Logger.Verbose("connection from %s", sess.RemoteAddr())

	err := m.Capability.Handle(ctx, sess)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, ncerr.ErrRejected):
		sess.Logger.Debug("%v", err)
	default:
		m.Metrics.RecordError(err.Error())
		sess.Logger.Verbose("%v", err)
	}
	sess.Logger.Debug("session ended after %v", sess.Age().Truncate(time.Millisecond))
}

// shutdown waits up to GracePeriod for in-flight sessions, then releases
// the dialer.
func (m *ServeMode) shutdown(wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	grace := m.GracePeriod
	if grace <= 0 {
		grace = config.DefaultGracePeriod
	}
	select {
	case <-done:
	case <-time.After(grace):
		m.Logger.Warn("%d sessions still open after %v, exiting anyway",
			m.Metrics.ActiveSessions(), grace)
	}

	if m.Dialer != nil {
		m.Dialer.Close()
	}
	m.Logger.Verbose("stats: %s", m.Metrics.JSON())
	m.Logger.Info("shut down")
}

func (m *ServeMode) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(m.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Logger.Info("stats: %s", m.Metrics.JSON())
		}
	}
}
