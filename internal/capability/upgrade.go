package capability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wsbridge/internal/bridge"
	ncerr "wsbridge/internal/errors"
	"wsbridge/internal/handshake"
	"wsbridge/internal/session"
	"wsbridge/internal/transport"
	"wsbridge/util"
)

// errEmpty marks a client that closed before sending anything.
var errEmpty = errors.New("empty session")

// Upgrade answers a qualifying handshake with the fixed 101 response and
// then splices the client to the inner target.
type Upgrade struct {
	Dialer transport.Dialer
	// Target is the inner service's host:port.
	Target string
	// Strict disables the raw substring compatibility rule.
	Strict bool

	// HandshakeTimeout bounds reading the request.  Zero waits forever.
	HandshakeTimeout time.Duration
	DialTimeout      time.Duration

	Bridge bridge.Config
}

// Handle serves one client.  A rejected handshake returns an error
// wrapping [ncerr.ErrRejected] with nothing written to the client.  The
// client connection is closed on every path.
func (u *Upgrade) Handle(ctx context.Context, sess *session.Session) error {
	conn := sess.Conn
	defer conn.Close()

	log := sess.Logger
	remote := sess.RemoteAddr()

	// Unblock the handshake read on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	res, err := u.readRequest(sess)
	if !stop() {
		return ctx.Err()
	}

	switch {
	case errors.Is(err, errEmpty):
		sess.Metrics.EmptySession()
		log.Debug("%s closed without sending a request", remote)
		return nil
	case res.Verdict != handshake.Accept:
		sess.Metrics.HandshakeRejected()
		if err != nil {
			log.Debug("%s handshake read ended: %v", remote, err)
		}
		return fmt.Errorf("%s: %w", remote, ncerr.ErrRejected)
	}

	log.Verbose("%s matched %s (%s %s host=%q)", remote, res.Match, res.Method, res.Target, res.Host)
	if res.RealIP != "" {
		log.Verbose("%s forwarded for %s", remote, res.RealIP)
	}

	if _, err := util.WriteFull(conn, []byte(handshake.Response)); err != nil {
		return ncerr.Wrap("write 101", remote, err)
	}

	dialCtx := ctx
	if u.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, u.DialTimeout)
		defer cancel()
	}
	target, err := u.Dialer.Dial(dialCtx, "tcp", u.Target)
	if err != nil {
		sess.Metrics.DialFailed()
		return ncerr.Wrap("dial", u.Target, err)
	}
	log.Verbose("%s bridged to %s", remote, u.Target)

	st := bridge.Run(ctx, conn, target, u.Bridge, sess.Metrics)
	log.Verbose("%s closed after %v: %d bytes up, %d bytes down%s",
		remote, st.Duration.Truncate(time.Millisecond),
		st.ClientToTarget, st.TargetToClient, reasonSuffix(st.Reason))

	if st.Reason != nil && !util.IsHarmless(st.Reason) &&
		!errors.Is(st.Reason, ncerr.ErrIdleTimeout) &&
		!errors.Is(st.Reason, context.Canceled) {
		return ncerr.Wrap("bridge", remote, st.Reason)
	}
	return nil
}

// readRequest reads into the handshake window until the sniffer reaches
// a verdict, the window fills, or the client stops sending.
func (u *Upgrade) readRequest(sess *session.Session) (handshake.Result, error) {
	conn := sess.Conn
	if u.HandshakeTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(u.HandshakeTimeout))
		defer conn.SetReadDeadline(time.Time{})
	}

	buf := make([]byte, handshake.MaxRequestSize)
	n := 0
	for {
		r, err := conn.Read(buf[n:])
		n += r
		if n == 0 && (err != nil || r == 0) {
			return handshake.Result{Verdict: handshake.Reject}, errEmpty
		}
		if r > 0 {
			res := handshake.Sniff(buf[:n], u.Strict)
			if res.Verdict != handshake.Incomplete {
				return res, nil
			}
			sess.Logger.Debug("partial request (%d bytes), reading more", n)
		}
		if err != nil {
			return handshake.Result{Verdict: handshake.Reject}, err
		}
		if r == 0 {
			return handshake.Result{Verdict: handshake.Reject}, nil
		}
	}
}

func reasonSuffix(reason error) string {
	switch {
	case reason == nil:
		return ""
	case errors.Is(reason, ncerr.ErrIdleTimeout):
		return " (idle)"
	default:
		return fmt.Sprintf(" (%v)", reason)
	}
}
