package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	ncerr "wsbridge/internal/errors"
	"wsbridge/internal/retry"
	"wsbridge/util"
)

// TestTCPDialer_Connect verifies that TCPDialer can reach a local
// TCP server and exchange data.
func TestTCPDialer_Connect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	// Server: accept, send an SSH banner, close.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("SSH-2.0-OpenSSH_9.6\r\n")) //nolint:errcheck
	}()

	d := &TCPDialer{Timeout: 2 * time.Second}
	conn, err := d.Dial(context.Background(), "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("read: %v", err)
	}
	if got := string(buf[:n]); got != "SSH-2.0-OpenSSH_9.6\r\n" {
		t.Errorf("got %q", got)
	}
}

// TestTCPDialer_ContextCancel verifies that a cancelled context stops the dial.
func TestTCPDialer_ContextCancel(t *testing.T) {
	d := &TCPDialer{Timeout: 5 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Dial(ctx, "tcp", "127.0.0.1:1"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestTCPDialer_Refused(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	d := &TCPDialer{Timeout: time.Second}
	if _, err := d.Dial(context.Background(), "tcp", util.FormatAddr("127.0.0.1", port)); err == nil {
		t.Fatal("expected connection refused")
	}
}

// TestTCPDialer_Close verifies Close is a no-op and returns nil.
func TestTCPDialer_Close(t *testing.T) {
	d := &TCPDialer{}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// ── circuit breaker ──────────────────────────────────────────────────

type failingDialer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (d *failingDialer) Dial(context.Context, string, string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return nil, d.err
}

func (d *failingDialer) Close() error { return nil }

func TestBreakerDialer_OpensAfterFailures(t *testing.T) {
	inner := &failingDialer{err: errors.New("connection refused")}
	d := NewBreakerDialer(inner, &retry.CircuitBreakerConfig{
		MaxFailures:  3,
		ResetTimeout: time.Minute,
	})

	for i := 0; i < 3; i++ {
		if _, err := d.Dial(context.Background(), "tcp", "127.0.0.1:22"); err == nil {
			t.Fatalf("dial %d should fail", i)
		}
	}

	start := time.Now()
	_, err := d.Dial(context.Background(), "tcp", "127.0.0.1:22")
	if !ncerr.Is(err, ncerr.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("open breaker should fail fast")
	}
	if inner.calls != 3 {
		t.Errorf("inner dialer called %d times, want 3", inner.calls)
	}
}

func TestBreakerDialer_PassesThrough(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()

	d := NewBreakerDialer(&TCPDialer{Timeout: time.Second}, retry.DefaultCircuitBreakerConfig())
	conn, err := d.Dial(context.Background(), "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
	if d.Breaker.CurrentState() != retry.StateClosed {
		t.Errorf("state = %v, want closed", d.Breaker.CurrentState())
	}
}

func TestBreakerDialer_IgnoresCancelledDials(t *testing.T) {
	inner := &failingDialer{err: context.Canceled}
	d := NewBreakerDialer(inner, &retry.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		d.Dial(ctx, "tcp", "127.0.0.1:22") //nolint:errcheck
	}
	if d.Breaker.CurrentState() != retry.StateClosed {
		t.Errorf("state = %v, cancelled dials should not open the breaker", d.Breaker.CurrentState())
	}
	if inner.calls != 3 {
		t.Errorf("inner calls = %d, want 3", inner.calls)
	}
}

// ── SSH dialer ───────────────────────────────────────────────────────

type fakeTunnel struct {
	alive    bool
	connects int
	connErr  error
	target   net.Conn
}

func (f *fakeTunnel) Connect(context.Context) error {
	f.connects++
	if f.connErr != nil {
		return f.connErr
	}
	f.alive = true
	return nil
}

func (f *fakeTunnel) Dial(context.Context, string, string) (net.Conn, error) {
	if !f.alive {
		return nil, ncerr.ErrNotConnected
	}
	return f.target, nil
}

func (f *fakeTunnel) Close() error  { f.alive = false; return nil }
func (f *fakeTunnel) IsAlive() bool { return f.alive }

func TestSSHDialer_ReconnectsWhenDead(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ft := &fakeTunnel{target: a}
	d := &SSHDialer{tunnel: ft, name: "u@gw:22", logger: util.NewLogger(0)}

	if _, err := d.Dial(context.Background(), "tcp", "127.0.0.1:22"); err != nil {
		t.Fatalf("first dial: %v", err)
	}
	if _, err := d.Dial(context.Background(), "tcp", "127.0.0.1:22"); err != nil {
		t.Fatalf("second dial: %v", err)
	}
	if ft.connects != 1 {
		t.Errorf("connects = %d, want 1 while alive", ft.connects)
	}

	ft.alive = false
	if _, err := d.Dial(context.Background(), "tcp", "127.0.0.1:22"); err != nil {
		t.Fatalf("dial after drop: %v", err)
	}
	if ft.connects != 2 {
		t.Errorf("connects = %d, want reconnect", ft.connects)
	}
}

func TestSSHDialer_ConnectError(t *testing.T) {
	ft := &fakeTunnel{connErr: errors.New("handshake failed")}
	d := &SSHDialer{tunnel: ft, name: "u@gw:22", logger: util.NewLogger(0)}

	if err := d.Connect(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	if _, err := d.Dial(context.Background(), "tcp", "127.0.0.1:22"); err == nil {
		t.Fatal("dial should fail while the tunnel cannot connect")
	}
}

func TestSSHDialer_RetriesTransientFailures(t *testing.T) {
	ft := &fakeTunnel{connErr: ncerr.Wrap("dial", "gw:22", syscall.ECONNREFUSED)}
	d := &SSHDialer{tunnel: ft, name: "u@gw:22", logger: util.NewLogger(0)}

	if err := d.Connect(context.Background()); !errors.Is(err, syscall.ECONNREFUSED) {
		t.Fatalf("Connect = %v, want ECONNREFUSED", err)
	}
	if ft.connects != 3 {
		t.Errorf("connects = %d, want 3 attempts", ft.connects)
	}
}

func TestSSHDialer_AuthFailureNotRetried(t *testing.T) {
	ft := &fakeTunnel{connErr: ncerr.WrapSSH("auth", "gw", 22, ncerr.ErrAuthFailed)}
	d := &SSHDialer{tunnel: ft, name: "u@gw:22", logger: util.NewLogger(0)}

	if err := d.Connect(context.Background()); !ncerr.Is(err, ncerr.ErrAuthFailed) {
		t.Fatalf("Connect = %v, want ErrAuthFailed", err)
	}
	if ft.connects != 1 {
		t.Errorf("connects = %d, want 1", ft.connects)
	}
}

// ── listener ─────────────────────────────────────────────────────────

func TestListen_Rebind(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()

	// Leave a connection behind so the port has TIME_WAIT state.
	go func() {
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()
	if c, err := net.Dial("tcp", addr); err == nil {
		io.Copy(io.Discard, c)
		c.Close()
	}
	ln.Close()

	ln2, err := Listen(context.Background(), addr)
	if err != nil {
		t.Fatalf("rebind %s: %v", addr, err)
	}
	ln2.Close()
}
