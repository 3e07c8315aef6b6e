package tunnel

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "wsbridge/internal/errors"
	"wsbridge/util"
)

// SSHConfig holds everything needed to dial an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	Password      string // used as-is when set, never prompted for
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// KeepAlive is the interval between keepalive@openssh.com probes.
	// A failed probe marks the tunnel dead.  Zero disables probing.
	KeepAlive time.Duration
}

// Addr returns the gateway's host:port.
func (c *SSHConfig) Addr() string {
	return util.FormatAddr(c.Host, c.Port)
}

// SSHTunnel implements [Tunnel] by opening an SSH connection and
// forwarding traffic with ssh.Client.Dial.
//
// Authentication methods are resolved once, on the first Connect, so
// reconnecting after the gateway drops never prompts again.
type SSHTunnel struct {
	config *SSHConfig
	logger *util.Logger

	mu     sync.RWMutex
	client *ssh.Client
	alive  bool
	auth   []ssh.AuthMethod
}

// NewSSHTunnel creates a tunnel that is ready to [Connect].
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger) *SSHTunnel {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	return &SSHTunnel{config: cfg, logger: logger}
}

func (t *SSHTunnel) authMethods() ([]ssh.AuthMethod, error) {
	t.mu.RLock()
	cached := t.auth
	t.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	methods, err := BuildAuthMethods(t.config)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.auth = methods
	t.mu.Unlock()
	return methods, nil
}

// Connect dials the SSH gateway and completes the handshake.  Calling
// it on a live tunnel replaces the old connection.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	cc, err := t.clientConfig()
	if err != nil {
		return err
	}
	client, err := t.handshake(ctx, cc)
	if err != nil {
		return err
	}

	t.mu.Lock()
	old := t.client
	t.client, t.alive = client, true
	t.mu.Unlock()
	if old != nil {
		old.Close()
	}

	go t.monitor(client)
	if t.config.KeepAlive > 0 {
		go t.keepalive(client)
	}
	return nil
}

func (t *SSHTunnel) clientConfig() (*ssh.ClientConfig, error) {
	auth, err := t.authMethods()
	if err != nil {
		return nil, ncerr.WrapSSH("auth", t.config.Host, t.config.Port, err)
	}
	hostKey, err := hostKeyCallback(t.config)
	if err != nil {
		return nil, ncerr.WrapSSH("hostkey", t.config.Host, t.config.Port, err)
	}
	return &ssh.ClientConfig{
		User:            t.config.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         t.config.ConnTimeout,
	}, nil
}

// handshake opens the TCP connection and runs the SSH handshake on it.
// ssh.NewClientConn takes no context, so ctx's deadline (or
// ConnTimeout) is set on the socket for the duration.
func (t *SSHTunnel) handshake(ctx context.Context, cc *ssh.ClientConfig) (*ssh.Client, error) {
	addr := t.config.Addr()
	t.logger.Debug("SSH: dialing %s as %s", addr, cc.User)

	d := net.Dialer{Timeout: t.config.ConnTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, ncerr.Wrap("dial", addr, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(t.config.ConnTimeout)
	}
	conn.SetDeadline(deadline)
	sc, chans, reqs, err := ssh.NewClientConn(conn, addr, cc)
	if err != nil {
		conn.Close()
		op := "handshake"
		if strings.Contains(err.Error(), "unable to authenticate") {
			op, err = "auth", fmt.Errorf("%w: %v", ncerr.ErrAuthFailed, err)
		}
		return nil, ncerr.WrapSSH(op, t.config.Host, t.config.Port, err)
	}
	conn.SetDeadline(time.Time{})
	return ssh.NewClient(sc, chans, reqs), nil
}

// Dial forwards a connection through the tunnel.
func (t *SSHTunnel) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	t.mu.RLock()
	client := t.client
	alive := t.alive
	t.mu.RUnlock()

	if !alive || client == nil {
		return nil, ncerr.ErrNotConnected
	}

	t.logger.Debug("tunnel: dialing %s %s", network, address)

	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := client.Dial(network, address)
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("tunnel dial %s: %w", address, r.err)
		}
		return r.conn, nil
	case <-ctx.Done():
		// The late connection, if any, is discarded.
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, fmt.Errorf("tunnel dial %s: %w", address, ctx.Err())
	}
}

// Close shuts down the SSH connection.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.alive = false
	if t.client != nil {
		err := t.client.Close()
		t.client = nil
		return err
	}
	return nil
}

// IsAlive reports whether the tunnel is still connected.
func (t *SSHTunnel) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// markDead clears the alive flag if client is still the current one.
func (t *SSHTunnel) markDead(client *ssh.Client) {
	t.mu.Lock()
	if t.client == client {
		t.alive = false
	}
	t.mu.Unlock()
}

// monitor blocks until the SSH connection closes and flips the alive flag.
func (t *SSHTunnel) monitor(client *ssh.Client) {
	err := client.Wait()
	t.markDead(client)

	if err != nil {
		t.logger.Debug("SSH tunnel closed: %v", err)
	} else {
		t.logger.Debug("SSH tunnel closed")
	}
}

// keepalive probes the gateway until the connection goes away.
func (t *SSHTunnel) keepalive(client *ssh.Client) {
	ticker := time.NewTicker(t.config.KeepAlive)
	defer ticker.Stop()

	for range ticker.C {
		t.mu.RLock()
		current := t.client == client && t.alive
		t.mu.RUnlock()
		if !current {
			return
		}

		if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
			t.logger.Warn("SSH keepalive to %s failed: %v", t.config.Addr(), err)
			t.markDead(client)
			client.Close()
			return
		}
		t.logger.Debug("SSH keepalive OK")
	}
}
