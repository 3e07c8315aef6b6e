// Package handshake recognises the opening request of a client that wants
// its connection switched to a raw byte stream, and holds the fixed reply
// sent once it does.
//
// Only a handful of request fields are inspected.  Everything else in the
// request is ignored, and the request body (if any) is never read.
package handshake

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Response is written verbatim to an accepted client.
const Response = "HTTP/1.1 101 Switching Protocols\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"\r\n"

// MaxRequestSize is the largest request window that is ever sniffed.
// Bytes beyond it are never read during the handshake.
const MaxRequestSize = 1024

// Verdict is the outcome of sniffing a request window.
type Verdict int

const (
	// Incomplete means more bytes may still turn the window into a match.
	Incomplete Verdict = iota
	Accept
	Reject
)

func (v Verdict) String() string {
	switch v {
	case Incomplete:
		return "incomplete"
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Match records which rule accepted a request.
type Match int

const (
	MatchNone    Match = iota
	MatchConnect       // request-line method is CONNECT
	MatchUpgrade       // Upgrade header carries the websocket token
	MatchLegacy        // raw substring rule, non-strict only
)

func (m Match) String() string {
	switch m {
	case MatchConnect:
		return "connect"
	case MatchUpgrade:
		return "upgrade"
	case MatchLegacy:
		return "legacy"
	default:
		return "none"
	}
}

// Result describes a sniffed request.  Method, Target and Host are filled
// in as far as the window allowed and are informational only.
type Result struct {
	Verdict Verdict
	Match   Match
	Method  string
	Target  string
	Host    string
	// RealIP is the CF-Connecting-IP header, when a CDN sits in front.
	RealIP string
}

var (
	legacyUpgrade = []byte("Upgrade: websocket")
	legacyConnect = []byte("CONNECT")
)

// Sniff classifies the bytes received so far.
//
// The window must be UTF-8 text.  Invalid bytes reject it outright; a
// multi-byte character cut off by the end of the window leaves it
// Incomplete while there is room for the rest.
//
// A request is accepted when its method is CONNECT or when an Upgrade
// header lists the websocket token.  Unless strict is set, the request is
// also accepted when the literal "Upgrade: websocket" or "CONNECT" appears
// anywhere in data.  A request that does not match is Incomplete while its
// header block is unterminated and the window has room, and Reject
// otherwise.
func Sniff(data []byte, strict bool) Result {
	var res Result
	switch textState(data) {
	case textInvalid:
		res.Verdict = Reject
		return res
	case textCut:
		if len(data) >= MaxRequestSize {
			res.Verdict = Reject
		}
		return res
	}

	head, terminated := headerBlock(data)

	lines := completeLines(head, terminated)
	if len(lines) > 0 {
		res.Method, res.Target = requestLine(lines[0])
		if res.Method == "CONNECT" {
			res.Match = MatchConnect
		}
		for _, line := range lines[1:] {
			name, value, ok := headerField(line)
			if !ok {
				continue
			}
			switch {
			case strings.EqualFold(name, "Upgrade"):
				if res.Match == MatchNone && hasToken(value, "websocket") {
					res.Match = MatchUpgrade
				}
			case strings.EqualFold(name, "X-Real-Host"):
				res.Host = value
			case strings.EqualFold(name, "Host"):
				if res.Host == "" {
					res.Host = value
				}
			case strings.EqualFold(name, "CF-Connecting-IP"):
				res.RealIP = value
			}
		}
	}

	if res.Match == MatchNone && !strict &&
		(bytes.Contains(data, legacyUpgrade) || bytes.Contains(data, legacyConnect)) {
		res.Match = MatchLegacy
	}

	switch {
	case res.Match != MatchNone:
		res.Verdict = Accept
	case !terminated && len(data) < MaxRequestSize:
		res.Verdict = Incomplete
	default:
		res.Verdict = Reject
	}
	return res
}

type textValidity int

const (
	textOK textValidity = iota
	textCut
	textInvalid
)

// textState reports whether data is valid UTF-8, and if not, whether the
// only fault is a character truncated at the end.
func textState(data []byte) textValidity {
	if utf8.Valid(data) {
		return textOK
	}
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax+1; i-- {
		if utf8.RuneStart(data[i]) {
			if !utf8.FullRune(data[i:]) && utf8.Valid(data[:i]) {
				return textCut
			}
			break
		}
	}
	return textInvalid
}

// headerBlock returns data up to the end of the header block and whether
// the empty line closing it has been seen.
func headerBlock(data []byte) ([]byte, bool) {
	crlf := bytes.Index(data, []byte("\r\n\r\n"))
	lf := bytes.Index(data, []byte("\n\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf <= lf):
		return data[:crlf+2], true
	case lf >= 0:
		return data[:lf+1], true
	default:
		return data, false
	}
}

// completeLines splits head into newline-terminated lines with the line
// ending removed.  A trailing partial line is dropped unless the block is
// terminated.
func completeLines(head []byte, terminated bool) [][]byte {
	var lines [][]byte
	for len(head) > 0 {
		i := bytes.IndexByte(head, '\n')
		if i < 0 {
			if terminated {
				lines = append(lines, head)
			}
			break
		}
		lines = append(lines, bytes.TrimSuffix(head[:i], []byte("\r")))
		head = head[i+1:]
	}
	return lines
}

// requestLine splits "METHOD SP TARGET [SP VERSION]".
func requestLine(line []byte) (method, target string) {
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return "", ""
	}
	method = string(fields[0])
	if len(fields) > 1 {
		target = string(fields[1])
	}
	return method, target
}

func headerField(line []byte) (name, value string, ok bool) {
	i := bytes.IndexByte(line, ':')
	if i <= 0 {
		return "", "", false
	}
	name = string(bytes.TrimSpace(line[:i]))
	value = string(bytes.TrimSpace(line[i+1:]))
	return name, value, name != ""
}

// hasToken reports whether the comma-separated list contains token,
// compared case-insensitively.
func hasToken(list, token string) bool {
	for _, part := range strings.Split(list, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
