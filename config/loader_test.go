package config

import (
	"testing"
	"time"
)

func TestLoadFromEnv_Addresses(t *testing.T) {
	t.Setenv("WSBRIDGE_LISTEN_ADDR", "127.0.0.1")
	t.Setenv("WSBRIDGE_PORT", "8080")
	t.Setenv("WSBRIDGE_TARGET_ADDR", "10.0.0.2")
	t.Setenv("WSBRIDGE_TARGET_PORT", "2222")
	t.Setenv("WSBRIDGE_PASSWORD", "s3cret")

	cfg := Default()
	LoadFromEnv(cfg)

	if cfg.ListenAddress() != "127.0.0.1:8080" {
		t.Errorf("ListenAddress() = %q", cfg.ListenAddress())
	}
	if cfg.TargetAddress() != "10.0.0.2:2222" {
		t.Errorf("TargetAddress() = %q", cfg.TargetAddress())
	}
	if cfg.Password != "s3cret" {
		t.Errorf("Password = %q", cfg.Password)
	}
}

func TestLoadFromEnv_Booleans(t *testing.T) {
	for _, v := range []string{"1", "true", "yes", "TRUE", "Yes"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("WSBRIDGE_STRICT", v)
			t.Setenv("WSBRIDGE_SSH_AGENT", v)
			cfg := Default()
			LoadFromEnv(cfg)
			if !cfg.Strict {
				t.Error("Strict should be true")
			}
			if !cfg.UseSSHAgent {
				t.Error("UseSSHAgent should be true")
			}
		})
	}

	t.Run("false", func(t *testing.T) {
		t.Setenv("WSBRIDGE_STRICT", "no")
		cfg := Default()
		LoadFromEnv(cfg)
		if cfg.Strict {
			t.Error("Strict should stay false")
		}
	})
}

func TestLoadFromEnv_Durations(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"10", 10 * time.Second},
		{"90s", 90 * time.Second},
		{"2m", 2 * time.Minute},
		{"0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("WSBRIDGE_IDLE_TIMEOUT", tt.value)
			cfg := Default()
			LoadFromEnv(cfg)
			if cfg.IdleTimeout != tt.want {
				t.Errorf("IdleTimeout = %v, want %v", cfg.IdleTimeout, tt.want)
			}
		})
	}
}

func TestLoadFromEnv_InvalidIgnored(t *testing.T) {
	t.Setenv("WSBRIDGE_PORT", "not-a-number")
	t.Setenv("WSBRIDGE_POLL_INTERVAL", "soon")
	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.ListenPort != DefaultListenPort {
		t.Errorf("ListenPort should keep its default for invalid input, got %d", cfg.ListenPort)
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want default", cfg.PollInterval)
	}
}

func TestLoadFromEnv_SSHFields(t *testing.T) {
	t.Setenv("WSBRIDGE_VIA", "admin@bastion:2222")
	t.Setenv("WSBRIDGE_SSH_KEY", "/home/user/.ssh/id_ed25519")
	t.Setenv("WSBRIDGE_SSH_PASS", "pw")
	t.Setenv("WSBRIDGE_STRICT_HOSTKEY", "yes")
	t.Setenv("WSBRIDGE_KNOWN_HOSTS", "/custom/known_hosts")

	cfg := Default()
	LoadFromEnv(cfg)

	if cfg.ViaSpec != "admin@bastion:2222" {
		t.Errorf("ViaSpec = %q", cfg.ViaSpec)
	}
	if cfg.SSHKeyPath != "/home/user/.ssh/id_ed25519" {
		t.Errorf("SSHKeyPath = %q", cfg.SSHKeyPath)
	}
	if cfg.SSHPass != "pw" {
		t.Errorf("SSHPass = %q", cfg.SSHPass)
	}
	if !cfg.StrictHostKey {
		t.Error("StrictHostKey should be true")
	}
	if cfg.KnownHostsPath != "/custom/known_hosts" {
		t.Errorf("KnownHostsPath = %q", cfg.KnownHostsPath)
	}
}

func TestLoadFromEnv_NoOverrideWhenEmpty(t *testing.T) {
	t.Setenv("WSBRIDGE_TARGET_ADDR", "")
	t.Setenv("WSBRIDGE_MAX_CONNS", "")

	cfg := &Config{TargetAddr: "original", MaxConns: 7}
	LoadFromEnv(cfg)

	if cfg.TargetAddr != "original" {
		t.Errorf("TargetAddr was overridden: %q", cfg.TargetAddr)
	}
	if cfg.MaxConns != 7 {
		t.Errorf("MaxConns was overridden: %d", cfg.MaxConns)
	}
}

func TestLoadFromEnv_Verbose(t *testing.T) {
	t.Setenv("WSBRIDGE_VERBOSE", "3")
	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.Verbose != 3 {
		t.Errorf("Verbose = %d, want 3", cfg.Verbose)
	}
}
