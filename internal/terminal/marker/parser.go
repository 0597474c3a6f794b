package marker

import (
	"bytes"
	"crypto/subtle"
)

const (
	esc = 0x1b
	bel = 0x07
)

// DefaultMaxMarkerBytes bounds the body of a single in-flight marker.
const DefaultMaxMarkerBytes = 4096

// LeadIn opens every marker: an OSC 777 sequence with the "vibe" namespace.
// The body that follows is KIND ';' SECRET ';' PAYLOAD, closed by BEL or ST.
var LeadIn = []byte("\x1b]777;vibe;")

var separator = []byte{';'}

// DropReason says why a candidate marker produced no event.
type DropReason int

const (
	DropMalformed DropReason = iota
	DropSecretMismatch
	DropOverflow
	DropInterrupted
)

func (r DropReason) String() string {
	switch r {
	case DropMalformed:
		return "malformed"
	case DropSecretMismatch:
		return "secret_mismatch"
	case DropOverflow:
		return "overflow"
	case DropInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

type parserState uint8

const (
	stateGround parserState = iota
	stateBody
	stateBodyEscape
)

// Parser extracts Events from a chunked byte stream. It keeps only the bytes
// of the marker currently in flight and is not safe for concurrent use.
type Parser struct {
	secret  []byte
	max     int
	onDrop  func(DropReason)
	state   parserState
	matched int
	body    []byte
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxMarkerBytes sets the largest marker body the parser will buffer.
func WithMaxMarkerBytes(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.max = n
		}
	}
}

// WithDropHook registers fn to be told about every discarded marker.
func WithDropHook(fn func(DropReason)) Option {
	return func(p *Parser) {
		p.onDrop = fn
	}
}

// New creates a parser that accepts only markers carrying secret.
// An empty secret accepts nothing.
func New(secret string, opts ...Option) *Parser {
	p := &Parser{
		secret: []byte(secret),
		max:    DefaultMaxMarkerBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Feed scans chunk and returns the events completed by it, in stream order.
// Every chunk read from the shell must be fed, in order, without gaps.
func (p *Parser) Feed(chunk []byte) []Event {
	var events []Event
	for _, b := range chunk {
		switch p.state {
		case stateGround:
			p.scan(b)
		case stateBody:
			switch b {
			case bel:
				if ev, ok := p.finish(); ok {
					events = append(events, ev)
				}
			case esc:
				p.state = stateBodyEscape
			default:
				if len(p.body) >= p.max {
					p.abandon(DropOverflow)
					continue
				}
				p.body = append(p.body, b)
			}
		case stateBodyEscape:
			if b == '\\' {
				if ev, ok := p.finish(); ok {
					events = append(events, ev)
				}
				continue
			}
			// A fresh escape inside a marker means the marker was cut short;
			// the ESC may start the next one.
			p.abandon(DropInterrupted)
			p.matched = 1
			p.scan(b)
		}
	}
	return events
}

// Pending reports how many marker bytes are buffered.
func (p *Parser) Pending() int {
	if p.state == stateGround {
		return p.matched
	}
	return len(LeadIn) + len(p.body)
}

// Reset discards any in-flight marker.
func (p *Parser) Reset() {
	p.state = stateGround
	p.matched = 0
	p.body = p.body[:0]
}

// scan advances the lead-in match. ESC occurs only at the start of LeadIn,
// so a mismatch falls back to either zero or one matched byte.
func (p *Parser) scan(b byte) {
	if b == LeadIn[p.matched] {
		p.matched++
		if p.matched == len(LeadIn) {
			p.matched = 0
			p.state = stateBody
			p.body = p.body[:0]
		}
		return
	}
	p.matched = 0
	if b == LeadIn[0] {
		p.matched = 1
	}
}

func (p *Parser) finish() (Event, bool) {
	defer p.Reset()

	name, rest, ok := bytes.Cut(p.body, separator)
	if !ok || len(name) == 0 {
		p.drop(DropMalformed)
		return Event{}, false
	}
	secret, payload, ok := bytes.Cut(rest, separator)
	if !ok {
		p.drop(DropMalformed)
		return Event{}, false
	}
	if !p.authentic(secret) {
		p.drop(DropSecretMismatch)
		return Event{}, false
	}
	return decode(string(name), string(payload)), true
}

func (p *Parser) authentic(secret []byte) bool {
	if len(p.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(secret, p.secret) == 1
}

func (p *Parser) abandon(reason DropReason) {
	p.Reset()
	p.drop(reason)
}

func (p *Parser) drop(reason DropReason) {
	if p.onDrop != nil {
		p.onDrop(reason)
	}
}

// Encode renders a marker exactly as the shell hooks emit it.
func Encode(name, secret, payload string) []byte {
	buf := make([]byte, 0, len(LeadIn)+len(name)+len(secret)+len(payload)+3)
	buf = append(buf, LeadIn...)
	buf = append(buf, name...)
	buf = append(buf, ';')
	buf = append(buf, secret...)
	buf = append(buf, ';')
	buf = append(buf, payload...)
	buf = append(buf, bel)
	return buf
}
