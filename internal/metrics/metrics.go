// Package metrics counts what the relay does across all sessions:
// sessions opened and live, handshakes refused, target dial failures
// and bytes moved each way.
//
// All methods are safe for concurrent use, and a nil *Collector
// ignores writes and reads as zero, so call sites never nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

type counter int

const (
	sessionsActive counter = iota
	sessionsPeak
	sessionsTotal
	rejected
	empty
	dialFailures
	bytesUp   // client to target
	bytesDown // target to client
	errorsTotal
	numCounters
)

// Collector holds the relay's counters.
type Collector struct {
	counters [numCounters]atomic.Int64
	started  time.Time

	mu        sync.Mutex
	lastErrAt time.Time
	lastErr   string
}

// New returns a Collector whose uptime starts now.
func New() *Collector {
	return &Collector{started: time.Now()}
}

func (c *Collector) add(k counter, n int64) int64 {
	if c == nil {
		return 0
	}
	return c.counters[k].Add(n)
}

func (c *Collector) get(k counter) int64 {
	if c == nil {
		return 0
	}
	return c.counters[k].Load()
}

// SessionOpened counts a new session and raises the peak if needed.
func (c *Collector) SessionOpened() {
	live := c.add(sessionsActive, 1)
	c.add(sessionsTotal, 1)
	if c == nil {
		return
	}
	for {
		peak := c.counters[sessionsPeak].Load()
		if live <= peak || c.counters[sessionsPeak].CompareAndSwap(peak, live) {
			return
		}
	}
}

func (c *Collector) SessionClosed()        { c.add(sessionsActive, -1) }
func (c *Collector) ActiveSessions() int64 { return c.get(sessionsActive) }
func (c *Collector) PeakSessions() int64   { return c.get(sessionsPeak) }
func (c *Collector) TotalSessions() int64  { return c.get(sessionsTotal) }

// HandshakeRejected counts a client whose opening bytes were not an
// upgrade request.
func (c *Collector) HandshakeRejected() { c.add(rejected, 1) }
func (c *Collector) Rejected() int64    { return c.get(rejected) }

// EmptySession counts a client that closed before sending anything.
func (c *Collector) EmptySession()        { c.add(empty, 1) }
func (c *Collector) EmptySessions() int64 { return c.get(empty) }

func (c *Collector) DialFailed()         { c.add(dialFailures, 1) }
func (c *Collector) DialFailures() int64 { return c.get(dialFailures) }

func (c *Collector) BytesUpstream(n int64)   { c.add(bytesUp, n) }
func (c *Collector) BytesDownstream(n int64) { c.add(bytesDown, n) }
func (c *Collector) TotalBytesUp() int64     { return c.get(bytesUp) }
func (c *Collector) TotalBytesDown() int64   { return c.get(bytesDown) }

// RecordError counts a session failure and keeps msg as the latest.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.add(errorsTotal, 1)
	c.mu.Lock()
	c.lastErrAt, c.lastErr = time.Now(), msg
	c.mu.Unlock()
}

func (c *Collector) ErrorCount() int64 { return c.get(errorsTotal) }

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsPeak     int64  `json:"sessions_peak"`
	SessionsTotal    int64  `json:"sessions_total"`
	Rejected         int64  `json:"handshakes_rejected"`
	EmptySessions    int64  `json:"sessions_empty"`
	DialFailures     int64  `json:"dial_failures"`
	BytesUp          int64  `json:"bytes_client_to_target"`
	BytesDown        int64  `json:"bytes_target_to_client"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot reads every counter.  Counters are read one at a time, so
// a snapshot taken under load may be off by in-flight updates.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	s := Snapshot{
		Uptime:         time.Since(c.started).Truncate(time.Second).String(),
		SessionsActive: c.get(sessionsActive),
		SessionsPeak:   c.get(sessionsPeak),
		SessionsTotal:  c.get(sessionsTotal),
		Rejected:       c.get(rejected),
		EmptySessions:  c.get(empty),
		DialFailures:   c.get(dialFailures),
		BytesUp:        c.get(bytesUp),
		BytesDown:      c.get(bytesDown),
		ErrorsTotal:    c.get(errorsTotal),
	}
	c.mu.Lock()
	if !c.lastErrAt.IsZero() {
		s.LastError = c.lastErrAt.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErr
	}
	c.mu.Unlock()
	return s
}

// JSON renders the snapshot on one line for the periodic stats log.
func (c *Collector) JSON() string {
	data, err := json.Marshal(c.Snapshot())
	if err != nil {
		return "{}"
	}
	return string(data)
}
