package core

import (
	"wsbridge/config"
	"wsbridge/internal/bridge"
	"wsbridge/internal/capability"
	"wsbridge/internal/metrics"
	"wsbridge/internal/retry"
	"wsbridge/internal/transport"
	"wsbridge/tunnel"
	"wsbridge/util"
)

// Build constructs the relay from a validated configuration.
func Build(cfg *config.Config, logger *util.Logger) (*ServeMode, error) {
	dialer := buildDialer(cfg, logger)

	return &ServeMode{
		Address:     cfg.ListenAddress(),
		MaxConns:    cfg.MaxConns,
		AcceptRate:  cfg.AcceptRate,
		AcceptBurst: cfg.AcceptBurst,
		Capability: &capability.Upgrade{
			Dialer:           dialer,
			Target:           cfg.TargetAddress(),
			Strict:           cfg.Strict,
			HandshakeTimeout: cfg.HandshakeTimeout,
			DialTimeout:      cfg.DialTimeout,
			Bridge: bridge.Config{
				PollInterval: cfg.PollInterval,
				IdleTimeout:  cfg.IdleTimeout,
				BufSize:      util.DefaultBufSize,
			},
		},
		Dialer:        dialer,
		Metrics:       metrics.New(),
		Logger:        logger,
		StatsInterval: cfg.StatsInterval,
		GracePeriod:   config.DefaultGracePeriod,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the transport.Dialer chain for the inner target:
// TCP or the SSH gateway, optionally behind a circuit breaker.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	var d transport.Dialer
	if cfg.ViaEnabled {
		d = transport.NewSSHDialer(sshConfig(cfg), logger)
	} else {
		d = &transport.TCPDialer{Timeout: cfg.DialTimeout}
	}

	if cfg.BreakerFailures > 0 {
		d = transport.NewBreakerDialer(d, &retry.CircuitBreakerConfig{
			MaxFailures:  cfg.BreakerFailures,
			ResetTimeout: cfg.BreakerReset,
			OnStateChange: func(from, to retry.State) {
				logger.Warn("target %s: circuit %s -> %s", cfg.TargetAddress(), from, to)
			},
		})
	}
	return d
}

// sshConfig maps the gateway fields of cfg onto a tunnel configuration.
func sshConfig(cfg *config.Config) *tunnel.SSHConfig {
	return &tunnel.SSHConfig{
		User:          cfg.ViaUser,
		Host:          cfg.ViaHost,
		Port:          cfg.ViaPort,
		KeyPath:       cfg.SSHKeyPath,
		Password:      cfg.SSHPass,
		PromptPass:    cfg.SSHPassword,
		UseAgent:      cfg.UseSSHAgent,
		StrictHostKey: cfg.StrictHostKey,
		KnownHosts:    cfg.KnownHostsPath,
		ConnTimeout:   config.DefaultConnTimeout,
		KeepAlive:     cfg.SSHKeepAlive,
	}
}
