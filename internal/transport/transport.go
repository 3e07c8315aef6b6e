// Package transport opens the relay's sockets: the listening socket
// clients arrive on and the outbound connection to the inner target.
// Transports handle how bytes reach the target (plain TCP, through an
// SSH gateway, behind a circuit breaker) independent of what the
// handler does with them.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound network connections.  Dialers compose: an
// SSH-tunnelled dialer or a circuit breaker may sit in front of the
// plain TCP one.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
