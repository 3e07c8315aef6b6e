package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultListenAddr binds every interface.
	DefaultListenAddr = "0.0.0.0"

	// DefaultListenPort is where clients expect a web server.
	DefaultListenPort = 80

	// DefaultTargetAddr and DefaultTargetPort locate the inner service,
	// normally the local SSH daemon.
	DefaultTargetAddr = "127.0.0.1"
	DefaultTargetPort = 22

	// DefaultSSHPort is the standard port of an SSH gateway.
	DefaultSSHPort = 22

	// DefaultMaxConns caps concurrently served clients.
	DefaultMaxConns = 1024

	// DefaultHandshakeTimeout bounds reading the client's request.
	DefaultHandshakeTimeout = 60 * time.Second

	// DefaultDialTimeout bounds connecting to the inner target.
	DefaultDialTimeout = 10 * time.Second

	// DefaultPollInterval is the bridge's liveness poll.
	DefaultPollInterval = 3 * time.Second

	// DefaultBreakerReset is how long an open circuit breaker waits
	// before probing the target again.
	DefaultBreakerReset = 30 * time.Second

	// DefaultConnTimeout is the SSH gateway connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultSSHKeepAlive is the interval between SSH gateway probes.
	DefaultSSHKeepAlive = 30 * time.Second

	// DefaultGracePeriod is how long shutdown waits for handlers to finish.
	DefaultGracePeriod = 5 * time.Second
)
