package core

import (
	"context"
	"testing"
	"time"

	"wsbridge/config"
	"wsbridge/internal/capability"
	"wsbridge/internal/transport"
	"wsbridge/util"
)

// TestBuild_Defaults verifies that Build wires the handler from a
// default configuration.
func TestBuild_Defaults(t *testing.T) {
	cfg := config.Default()
	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}

	if mode.Address != "0.0.0.0:80" {
		t.Errorf("Address = %q", mode.Address)
	}
	if mode.MaxConns != config.DefaultMaxConns {
		t.Errorf("MaxConns = %d", mode.MaxConns)
	}
	up, ok := mode.Capability.(*capability.Upgrade)
	if !ok {
		t.Fatalf("expected *capability.Upgrade, got %T", mode.Capability)
	}
	if up.Target != "127.0.0.1:22" {
		t.Errorf("Target = %q", up.Target)
	}
	if up.Bridge.PollInterval != 3*time.Second || up.Bridge.IdleTimeout != 0 {
		t.Errorf("bridge config = %+v", up.Bridge)
	}
	if _, ok := up.Dialer.(*transport.TCPDialer); !ok {
		t.Errorf("expected *transport.TCPDialer, got %T", up.Dialer)
	}
	if mode.Metrics == nil {
		t.Error("Build should create a metrics collector")
	}
}

// TestBuild_Breaker verifies --breaker-failures wraps the dialer.
func TestBuild_Breaker(t *testing.T) {
	cfg := config.Default()
	cfg.BreakerFailures = 3

	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	bd, ok := mode.Dialer.(*transport.BreakerDialer)
	if !ok {
		t.Fatalf("expected *transport.BreakerDialer, got %T", mode.Dialer)
	}
	if _, ok := bd.Dialer.(*transport.TCPDialer); !ok {
		t.Errorf("breaker should wrap the TCP dialer, got %T", bd.Dialer)
	}
}

// TestBuild_Via verifies -J routes dials through the SSH gateway.
func TestBuild_Via(t *testing.T) {
	cfg := config.Default()
	cfg.ViaSpec = "ops@bastion:2222"
	if err := cfg.ResolveVia(); err != nil {
		t.Fatal(err)
	}

	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mode.Dialer.(*transport.SSHDialer); !ok {
		t.Errorf("expected *transport.SSHDialer, got %T", mode.Dialer)
	}

	sc := sshConfig(cfg)
	if sc.User != "ops" || sc.Host != "bastion" || sc.Port != 2222 {
		t.Errorf("ssh config = %+v", sc)
	}
	if sc.KeepAlive != config.DefaultSSHKeepAlive {
		t.Errorf("KeepAlive = %v", sc.KeepAlive)
	}
}

// TestBuild_Strict verifies handshake options reach the handler.
func TestBuild_Strict(t *testing.T) {
	cfg := config.Default()
	cfg.Strict = true
	cfg.IdleTimeout = time.Minute
	cfg.HandshakeTimeout = 0

	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	up := mode.Capability.(*capability.Upgrade)
	if !up.Strict || up.Bridge.IdleTimeout != time.Minute || up.HandshakeTimeout != 0 {
		t.Errorf("handler = %+v", up)
	}
}

// TestServeMode_ConnectWithoutGateway is a no-op for plain TCP.
func TestServeMode_ConnectWithoutGateway(t *testing.T) {
	mode, err := Build(config.Default(), util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	if err := mode.Connect(context.Background()); err != nil {
		t.Errorf("Connect: %v", err)
	}
}
