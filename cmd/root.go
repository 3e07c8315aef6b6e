// Package cmd wires up the CLI flags and runs the relay.
package cmd

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"wsbridge/config"
	"wsbridge/internal/core"
	ncerr "wsbridge/internal/errors"
	"wsbridge/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X wsbridge/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the relay until ctx is cancelled.
func Execute(ctx context.Context, args []string) error {
	// Environment first, so flag defaults reflect it and flags win.
	cfg := config.Default()
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("wsbridge", flag.ContinueOnError)

	// ── listener and target ──────────────────────────────────────
	fs.StringVarP(&cfg.ListenAddr, "listen-addr", "l", cfg.ListenAddr, "Address to listen on")
	fs.IntVarP(&cfg.ListenPort, "port", "p", cfg.ListenPort, "Port to listen on")
	fs.StringVarP(&cfg.TargetAddr, "target-addr", "t", cfg.TargetAddr, "Inner target address")
	fs.IntVarP(&cfg.TargetPort, "target-port", "P", cfg.TargetPort, "Inner target port")
	fs.StringVar(&cfg.Password, "password", cfg.Password, "Reserved shared secret (not enforced)")

	// ── limits ───────────────────────────────────────────────────
	fs.IntVarP(&cfg.MaxConns, "max-conns", "m", cfg.MaxConns, "Maximum concurrent clients (0 = unbounded)")
	fs.Float64Var(&cfg.AcceptRate, "accept-rate", cfg.AcceptRate, "Maximum accepts per second (0 = unlimited)")
	fs.IntVar(&cfg.AcceptBurst, "accept-burst", cfg.AcceptBurst, "Accept burst above --accept-rate")
	fs.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "Time allowed for the client request (0 = forever)")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "Time allowed to connect to the target")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Bridge liveness poll interval")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Close sessions idle this long (0 = never)")
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "Match the request grammar only, no raw substring match")
	fs.IntVar(&cfg.BreakerFailures, "breaker-failures", cfg.BreakerFailures, "Consecutive dial failures that pause dialing (0 = off)")
	fs.DurationVar(&cfg.BreakerReset, "breaker-reset", cfg.BreakerReset, "How long dialing stays paused")
	fs.DurationVar(&cfg.StatsInterval, "stats-interval", cfg.StatsInterval, "Log statistics this often (0 = off)")

	// ── SSH gateway ──────────────────────────────────────────────
	fs.StringVarP(&cfg.ViaSpec, "via", "J", cfg.ViaSpec, "Reach the target through SSH gateway [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&cfg.Quiet, "quiet", "q", cfg.Quiet, "Only log errors")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&dryRun, "dry-run", false, "Validate configuration and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("wsbridge %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v (use --help for usage)", fs.Args())
	}

	// ── gateway spec and validation ──────────────────────────────
	if err := cfg.ResolveVia(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := util.NewLogger(cfg.LogLevel())

	if dryRun {
		logger.Info("configuration OK: %s -> %s", cfg.ListenAddress(), cfg.TargetAddress())
		return nil
	}

	if cfg.Password != "" {
		logger.Warn("--password is reserved and not enforced; any client can connect")
	}

	// ── build and run ────────────────────────────────────────────
	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	if err := mode.Connect(ctx); err != nil {
		// Bad credentials or host key will never work; an unreachable
		// gateway may come back, and dials reconnect on demand.
		var sshErr *ncerr.SSHError
		if ncerr.As(err, &sshErr) && sshErr.Fatal() {
			return err
		}
		logger.Warn("SSH gateway not reachable yet: %v", err)
	}

	if res := core.Probe(ctx, mode.Dialer, cfg.TargetAddress(), cfg.DialTimeout); !res.Open {
		logger.Warn("target not reachable yet: %v", res.Err)
	} else {
		logger.Verbose("target %s answered in %v", res.Address, res.Latency)
	}

	logger.Info("relaying to %s", cfg.TargetAddress())
	if cfg.ViaEnabled {
		logger.Info("via SSH gateway %s@%s:%d", cfg.ViaUser, cfg.ViaHost, cfg.ViaPort)
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `wsbridge %s

Accepts HTTP clients that ask for a WebSocket upgrade (or CONNECT),
answers 101 Switching Protocols and relays the raw stream to an inner
TCP service, normally sshd.

Usage:
  wsbridge [options]

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment:
  WSBRIDGE_LISTEN_ADDR, WSBRIDGE_PORT, WSBRIDGE_TARGET_ADDR,
  WSBRIDGE_TARGET_PORT, WSBRIDGE_MAX_CONNS, WSBRIDGE_IDLE_TIMEOUT, ...
  Flags take precedence over the environment.

Examples:
  wsbridge                                  0.0.0.0:80 -> 127.0.0.1:22
  wsbridge -p 8080 -P 2222                  Custom ports
  wsbridge --idle-timeout 10m -m 256        Reap idle sessions, cap clients
  wsbridge -J ops@bastion -t 10.0.0.5       Reach sshd through a gateway
`)
}
