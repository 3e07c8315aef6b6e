// Package errors holds the relay's error values: sentinels for the
// outcomes callers branch on, and structured types that keep the
// operation and address next to the cause.
package errors

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	// ErrRejected means the client's opening bytes were not an
	// upgrade request.  It is an expected outcome and logged quietly.
	ErrRejected = errors.New("handshake rejected")
	// ErrIdleTimeout ends a bridge that carried no bytes for too long.
	ErrIdleTimeout = errors.New("session idle timeout")
	// ErrNotConnected is returned by tunnel dials while the gateway
	// is down.
	ErrNotConnected = errors.New("not connected")
	// ErrCircuitOpen is returned while target dials are paused.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrAuthFailed means the SSH gateway refused every offered
	// credential.
	ErrAuthFailed = errors.New("authentication failed")
)

// NetworkError is a failed socket operation on one address.
type NetworkError struct {
	Op        string // "listen", "dial", "probe", "write 101", "bridge"
	Addr      string
	Err       error
	Retryable bool // a later attempt may succeed
}

func (e *NetworkError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("%s %s: %v (retryable)", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError is a failure talking to the SSH gateway.
type SSHError struct {
	Op   string // "auth", "hostkey", "handshake"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// Fatal reports whether reconnecting cannot help: the credentials or
// host key are wrong, not the network.
func (e *SSHError) Fatal() bool {
	return e.Op == "auth" || e.Op == "hostkey" || errors.Is(e.Err, ErrAuthFailed)
}

// ConfigError is a rejected setting, named by its flag.
type ConfigError struct {
	Field   string      // flag name without dashes
	Value   interface{} // nil when the setting is missing
	Message string
	Hint    string
}

func (e *ConfigError) Error() string {
	flag := "--" + e.Field
	if e.Value != nil {
		flag = fmt.Sprintf("%s=%v", flag, e.Value)
	}
	if e.Hint == "" {
		return fmt.Sprintf("config: %s: %s", flag, e.Message)
	}
	return fmt.Sprintf("config: %s: %s\n  hint: %s", flag, e.Message, e.Hint)
}

// Wrap records op on addr failing with err and classifies it.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{Op: op, Addr: addr, Err: err, Retryable: transient(err)}
}

// WrapSSH records a gateway failure.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// IsRetryable reports whether repeating the failed operation may
// succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *SSHError
	if errors.As(err, &se) {
		return !se.Fatal()
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return transient(err)
}

// transient matches the failures a peer that is restarting or briefly
// unreachable produces.
func transient(err error) bool {
	if err == nil {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	var dns *net.DNSError
	if errors.As(err, &dns) {
		return dns.IsTemporary || dns.IsTimeout
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	return false
}

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }
