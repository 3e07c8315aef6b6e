// Package capability defines what happens over an accepted client
// connection.  A Capability operates on a Session rather than a raw
// net.Conn, which keeps it testable and decoupled from how the
// connection was accepted.
package capability

import (
	"context"

	"wsbridge/internal/session"
)

// Capability handles a single connection.  The relay's only
// implementation is [Upgrade].
type Capability interface {
	// Handle runs the capability against the given session.
	// It blocks until the connection is done or the context is
	// cancelled, and it closes the session's connection before
	// returning.
	Handle(ctx context.Context, sess *session.Session) error
}
