//go:build !unix

package transport

import (
	"context"
	"net"
)

// Listen opens a TCP listener on address.
func Listen(ctx context.Context, address string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", address)
}
