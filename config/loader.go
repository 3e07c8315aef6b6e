package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the WSBRIDGE_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// duration strings ("90s", "2m") or a whole number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty,
// well-formed values override the existing value.  This should be called
// BEFORE CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("WSBRIDGE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v, ok := envInt("WSBRIDGE_PORT"); ok {
		cfg.ListenPort = v
	}
	if v := os.Getenv("WSBRIDGE_TARGET_ADDR"); v != "" {
		cfg.TargetAddr = v
	}
	if v, ok := envInt("WSBRIDGE_TARGET_PORT"); ok {
		cfg.TargetPort = v
	}
	if v := os.Getenv("WSBRIDGE_PASSWORD"); v != "" {
		cfg.Password = v
	}

	// Limits
	if v, ok := envInt("WSBRIDGE_MAX_CONNS"); ok {
		cfg.MaxConns = v
	}
	if v, ok := envDuration("WSBRIDGE_IDLE_TIMEOUT"); ok {
		cfg.IdleTimeout = v
	}
	if v, ok := envDuration("WSBRIDGE_POLL_INTERVAL"); ok {
		cfg.PollInterval = v
	}
	if v, ok := envDuration("WSBRIDGE_HANDSHAKE_TIMEOUT"); ok {
		cfg.HandshakeTimeout = v
	}
	if v, ok := envDuration("WSBRIDGE_DIAL_TIMEOUT"); ok {
		cfg.DialTimeout = v
	}
	if envBool("WSBRIDGE_STRICT") {
		cfg.Strict = true
	}

	// SSH gateway
	if v := os.Getenv("WSBRIDGE_VIA"); v != "" {
		cfg.ViaSpec = v
	}
	if v := os.Getenv("WSBRIDGE_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if v := os.Getenv("WSBRIDGE_SSH_PASS"); v != "" {
		cfg.SSHPass = v
	}
	if envBool("WSBRIDGE_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("WSBRIDGE_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("WSBRIDGE_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v, ok := envInt("WSBRIDGE_VERBOSE"); ok && v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	if sec, err := strconv.Atoi(v); err == nil {
		return time.Duration(sec) * time.Second, true
	}
	return 0, false
}
