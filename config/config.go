// Package config defines the runtime configuration for wsbridge and
// provides the parser for SSH gateway specifications.
//
// A Config is assembled once at startup (defaults, then environment,
// then flags), checked with Validate, and treated as read-only from then
// on.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	ncerr "wsbridge/internal/errors"
	"wsbridge/util"
)

// Config holds every tuneable for a wsbridge process.
type Config struct {
	// ── Listener ─────────────────────────────────────────────────────
	ListenAddr string
	ListenPort int

	// ── Inner target ─────────────────────────────────────────────────
	TargetAddr string
	TargetPort int

	// Password is reserved for a shared secret.  It is accepted and
	// carried but not enforced.
	Password string

	// ── Limits ───────────────────────────────────────────────────────
	MaxConns    int     // 0 = unbounded
	AcceptRate  float64 // accepts per second, 0 = unlimited
	AcceptBurst int

	HandshakeTimeout time.Duration // 0 = wait forever
	DialTimeout      time.Duration
	PollInterval     time.Duration
	IdleTimeout      time.Duration // 0 = never reap

	// Strict turns off the raw substring compatibility rule.
	Strict bool

	BreakerFailures int // 0 = no circuit breaker
	BreakerReset    time.Duration

	StatsInterval time.Duration // 0 = off

	// ── SSH gateway ──────────────────────────────────────────────────
	ViaSpec        string // raw [user@]host[:port] from -J
	ViaEnabled     bool
	ViaUser        string
	ViaHost        string
	ViaPort        int
	SSHKeyPath     string
	SSHPassword    bool   // true → prompt interactively
	SSHPass        string // non-interactive password, env only
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string
	SSHKeepAlive   time.Duration

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	Quiet   bool
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		ListenAddr:       DefaultListenAddr,
		ListenPort:       DefaultListenPort,
		TargetAddr:       DefaultTargetAddr,
		TargetPort:       DefaultTargetPort,
		MaxConns:         DefaultMaxConns,
		HandshakeTimeout: DefaultHandshakeTimeout,
		DialTimeout:      DefaultDialTimeout,
		PollInterval:     DefaultPollInterval,
		BreakerReset:     DefaultBreakerReset,
		SSHKeepAlive:     DefaultSSHKeepAlive,
	}
}

// ListenAddress returns the host:port the relay binds.
func (c *Config) ListenAddress() string {
	return util.FormatAddr(c.ListenAddr, c.ListenPort)
}

// TargetAddress returns the inner target's host:port.
func (c *Config) TargetAddress() string {
	return util.FormatAddr(c.TargetAddr, c.TargetPort)
}

// ResolveVia parses ViaSpec into the ViaUser, ViaHost and ViaPort fields.
// An empty spec disables the gateway.
func (c *Config) ResolveVia() error {
	if c.ViaSpec == "" {
		c.ViaEnabled = false
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.ViaSpec)
	if err != nil {
		return &ncerr.ConfigError{
			Field:   "via",
			Value:   c.ViaSpec,
			Message: err.Error(),
			Hint:    "use -J user@gateway[:port]",
		}
	}
	c.ViaEnabled = true
	c.ViaUser = user
	c.ViaHost = host
	c.ViaPort = port
	return nil
}

// LogLevel folds Verbose and Quiet into a util.Logger verbosity.
func (c *Config) LogLevel() int {
	if c.Quiet {
		return 0
	}
	return 1 + c.Verbose
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid gateway spec %q: expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid gateway port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("gateway host is required")
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return &ncerr.ConfigError{
			Field: "port", Value: c.ListenPort,
			Message: "must be between 0 and 65535",
		}
	}
	if c.TargetAddr == "" {
		return &ncerr.ConfigError{
			Field:   "target-addr",
			Message: "target address is required",
			Hint:    "use -t 127.0.0.1 for a local SSH daemon",
		}
	}
	if c.TargetPort < 1 || c.TargetPort > 65535 {
		return &ncerr.ConfigError{
			Field: "target-port", Value: c.TargetPort,
			Message: "must be between 1 and 65535",
			Hint:    "use -P 22 for SSH",
		}
	}

	if c.MaxConns < 0 {
		return &ncerr.ConfigError{
			Field: "max-conns", Value: c.MaxConns,
			Message: "must not be negative",
			Hint:    "use 0 for no limit",
		}
	}
	if c.AcceptRate < 0 || c.AcceptBurst < 0 {
		return &ncerr.ConfigError{
			Field: "accept-rate", Value: c.AcceptRate,
			Message: "rate and burst must not be negative",
		}
	}

	if c.PollInterval <= 0 {
		return &ncerr.ConfigError{
			Field: "poll-interval", Value: c.PollInterval,
			Message: "must be positive",
			Hint:    "the default is 3s",
		}
	}
	if c.HandshakeTimeout < 0 || c.DialTimeout < 0 || c.StatsInterval < 0 {
		return &ncerr.ConfigError{
			Field:   "timeout",
			Message: "timeouts and intervals must not be negative",
		}
	}
	if c.IdleTimeout < 0 {
		return &ncerr.ConfigError{
			Field: "idle-timeout", Value: c.IdleTimeout,
			Message: "must not be negative",
			Hint:    "use 0 to keep idle sessions open",
		}
	}
	if c.IdleTimeout > 0 && c.IdleTimeout < c.PollInterval {
		return &ncerr.ConfigError{
			Field: "idle-timeout", Value: c.IdleTimeout,
			Message: fmt.Sprintf("shorter than --poll-interval (%v)", c.PollInterval),
			Hint:    "idle sessions are only checked once per poll interval",
		}
	}

	if c.BreakerFailures < 0 {
		return &ncerr.ConfigError{
			Field: "breaker-failures", Value: c.BreakerFailures,
			Message: "must not be negative",
			Hint:    "use 0 to disable the circuit breaker",
		}
	}
	if c.BreakerFailures > 0 && c.BreakerReset <= 0 {
		return &ncerr.ConfigError{
			Field: "breaker-reset", Value: c.BreakerReset,
			Message: "must be positive when the circuit breaker is enabled",
		}
	}

	if c.ViaEnabled && c.ViaHost == "" {
		return &ncerr.ConfigError{
			Field:   "via",
			Message: "gateway host is required",
			Hint:    "use -J user@gateway[:port]",
		}
	}
	if !c.ViaEnabled && (c.SSHKeyPath != "" || c.SSHPassword || c.UseSSHAgent) {
		return &ncerr.ConfigError{
			Field:   "via",
			Message: "SSH credentials given without a gateway",
			Hint:    "add -J user@gateway or drop --ssh-key/--ssh-password/--ssh-agent",
		}
	}

	if c.Quiet && c.Verbose > 0 {
		return &ncerr.ConfigError{
			Field:   "quiet",
			Message: "-q and -v are mutually exclusive",
		}
	}
	return nil
}
