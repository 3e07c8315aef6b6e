package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	ncerr "wsbridge/internal/errors"
	"wsbridge/internal/retry"
	"wsbridge/tunnel"
	"wsbridge/util"
)

// SSHDialer routes connections through an SSH gateway.  When the tunnel
// is down, the next Dial reconnects it before dialing.
type SSHDialer struct {
	tunnel tunnel.Tunnel
	name   string
	logger *util.Logger
	mu     sync.Mutex
}

// NewSSHDialer creates a dialer that forwards connections through an
// SSH tunnel to the gateway described by cfg.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return &SSHDialer{
		tunnel: tunnel.NewSSHTunnel(cfg, logger),
		name:   fmt.Sprintf("%s@%s", cfg.User, cfg.Addr()),
		logger: logger,
	}
}

// Connect establishes the tunnel if it is not already up.  Network
// failures are retried a few times; rejected credentials are not.
// Callers use it at startup so credential prompts and gateway errors
// surface before the first client arrives.
func (d *SSHDialer) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tunnel.IsAlive() {
		return nil
	}

	d.logger.Verbose("establishing SSH tunnel to %s", d.name)
	err := retry.GatewayBackoff().Do(ctx, func(attempt int) error {
		err := d.tunnel.Connect(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !ncerr.IsRetryable(err) {
			return retry.Permanent(err)
		}
		d.logger.Verbose("SSH tunnel attempt %d: %v", attempt, err)
		return err
	})
	if err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}
	d.logger.Verbose("SSH tunnel established")
	return nil
}

// Dial connects to address through the SSH tunnel.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.Connect(ctx); err != nil {
		return nil, err
	}
	return d.tunnel.Dial(ctx, network, address)
}

// Close tears down the underlying SSH tunnel.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tunnel.Close()
}
