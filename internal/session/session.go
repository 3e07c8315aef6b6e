// Package session represents a single accepted client connection and the
// context a handler needs to serve it.
//
// A session is owned by exactly one handler goroutine.  Nothing in it is
// shared between sessions except the metrics collector, which is safe for
// concurrent use.
package session

import (
	"net"
	"time"

	"github.com/google/uuid"

	"wsbridge/internal/metrics"
	"wsbridge/util"
)

// Session encapsulates the runtime context for a single connection.
type Session struct {
	ID      string
	Conn    net.Conn
	Logger  *util.Logger
	Metrics *metrics.Collector
	Started time.Time
}

// New creates a Session for conn with a fresh short id.  The logger is
// tagged with that id so interleaved sessions stay readable.
func New(conn net.Conn, logger *util.Logger, m *metrics.Collector) *Session {
	id := uuid.NewString()[:8]
	if logger == nil {
		logger = util.NewLogger(int(util.LogQuiet))
	}
	return &Session{
		ID:      id,
		Conn:    conn,
		Logger:  logger.With(id),
		Metrics: m,
		Started: time.Now(),
	}
}

// RemoteAddr returns the client address as a string, or "-" when unknown.
func (s *Session) RemoteAddr() string {
	if s.Conn == nil || s.Conn.RemoteAddr() == nil {
		return "-"
	}
	return s.Conn.RemoteAddr().String()
}

// Age is how long the session has been open.
func (s *Session) Age() time.Duration {
	return time.Since(s.Started)
}
