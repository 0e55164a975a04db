/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package auth implements the line-oriented SASL-style handshake relay:
// request/reply line counting on both sides of a client connection, the
// WAITING_FOR_BEGIN / WAITING_FOR_BACKLOG / COMPLETE state machine, and
// the 16 KiB safety bound.
package auth

import (
	"bytes"
	"fmt"
	"sync"

	liberr "github.com/sabouaram/dbusproxy/errors"
)

// State is the relay's position in the handshake.
type State uint8

const (
	WaitingForBegin State = iota
	WaitingForBacklog
	Complete
)

func (s State) String() string {
	switch s {
	case WaitingForBacklog:
		return "waiting_for_backlog"
	case Complete:
		return "complete"
	default:
		return "waiting_for_begin"
	}
}

// maxAuthBuffer is the safety bound on auth_buffer growth without a BEGIN.
const maxAuthBuffer = 16 * 1024

// Relay tracks one client connection's handshake. It owns no sockets; the
// caller feeds it the raw bytes read from each side and acts on the
// returned state transitions (stall client reads, wake them, switch to
// binary framing). FeedClient and FeedBus run concurrently from the
// client-side and bus-side read loops respectively, so every field is
// guarded by mu rather than assuming single-goroutine access.
type Relay struct {
	mu sync.Mutex

	state State

	authRequests int
	authReplies  int

	clientBuf []byte
	busBuf    []byte

	firstByteSeen bool

	// ClientExtra holds bytes the client sent past the CRLF following its
	// BEGIN line; BusExtra holds bytes the bus sent past the last reply
	// line consumed while completing WAITING_FOR_BACKLOG. Both are
	// binary-phase data and must be replayed before any further reads.
	// Each is written once under mu (ClientExtra on BEGIN, BusExtra when
	// the backlog drains) and is only read after the relay reaches
	// COMPLETE, so they need no locking of their own.
	ClientExtra []byte
	BusExtra    []byte
}

// NewRelay returns a relay in its initial WAITING_FOR_BEGIN state.
func NewRelay() *Relay {
	return &Relay{state: WaitingForBegin}
}

// State returns the relay's current state.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// NextClientBufferSize reports how large the next read buffer on the
// client side should be: 1 byte until the credential-carrying first byte
// has been seen, 256 bytes at a time afterward.
func (r *Relay) NextClientBufferSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.firstByteSeen {
		return 1
	}
	return 256
}

// ConsumeFirstByte marks the credential byte as seen. The caller is
// responsible for forwarding that byte verbatim to the bus side.
func (r *Relay) ConsumeFirstByte() {
	r.mu.Lock()
	r.firstByteSeen = true
	r.mu.Unlock()
}

// StalledForBacklog reports whether client-side reads must be held back
// during the WAITING_FOR_BACKLOG stall.
func (r *Relay) StalledForBacklog() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == WaitingForBacklog
}

// FeedClient appends data arriving from the client and processes as many
// complete CRLF lines as are available. It returns the span of data that
// is now confirmed line content and must be relayed to the bus verbatim;
// bytes still awaiting a terminating CRLF are held back (returned on a
// later call), and any bytes past a BEGIN line are withheld entirely into
// ClientExtra rather than forwarded here. It must not be called once the
// relay has reached COMPLETE.
func (r *Relay) FeedClient(data []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Complete {
		return nil, liberr.Newf(liberr.CodeMalformedWire, "auth: FeedClient called after handshake completed")
	}

	r.clientBuf = append(r.clientBuf, data...)
	if len(r.clientBuf) > maxAuthBuffer {
		return nil, liberr.Newf(liberr.CodeMalformedWire, "auth: auth_buffer exceeded %d bytes without BEGIN", maxAuthBuffer)
	}

	var forward []byte
	for {
		idx := bytes.Index(r.clientBuf, crlf)
		if idx < 0 {
			return forward, nil
		}
		line := r.clientBuf[:idx]
		rest := r.clientBuf[idx+2:]

		if err := validateLine(line); err != nil {
			return forward, liberr.New(liberr.CodeMalformedWire, err)
		}
		forward = append(forward, r.clientBuf[:idx+2]...)

		if string(line) == "BEGIN" {
			r.clientBuf = nil
			r.ClientExtra = append([]byte(nil), rest...)
			if r.authRequests == r.authReplies {
				r.state = Complete
			} else {
				r.state = WaitingForBacklog
			}
			return forward, nil
		}

		r.authRequests++
		r.clientBuf = rest
	}
}

// FeedBus appends data arriving from the bus and counts each complete
// CRLF-terminated reply line. It returns the span of data now confirmed as
// reply-line content, to be relayed to the client verbatim; bytes past the
// line that completes the backlog are withheld into BusExtra instead. It
// must not be called once the relay has reached COMPLETE.
func (r *Relay) FeedBus(data []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Complete {
		return nil, liberr.Newf(liberr.CodeMalformedWire, "auth: FeedBus called after handshake completed")
	}

	r.busBuf = append(r.busBuf, data...)

	var forward []byte
	for {
		idx := bytes.Index(r.busBuf, crlf)
		if idx < 0 {
			return forward, nil
		}

		if r.authReplies >= r.authRequests {
			return forward, liberr.Newf(liberr.CodeMalformedWire, "auth: reply line arrived with no outstanding request")
		}
		forward = append(forward, r.busBuf[:idx+2]...)
		rest := r.busBuf[idx+2:]
		r.authReplies++
		r.busBuf = rest

		if r.state == WaitingForBacklog && r.authReplies == r.authRequests {
			r.state = Complete
			r.BusExtra = append([]byte(nil), r.busBuf...)
			r.busBuf = nil
			return forward, nil
		}
	}
}

var crlf = []byte("\r\n")

// validateLine enforces the "ASCII-printable, starts with an uppercase
// letter" grammar shared by both SASL directions.
func validateLine(line []byte) error {
	if len(line) == 0 {
		return fmt.Errorf("auth: empty line")
	}
	if line[0] < 'A' || line[0] > 'Z' {
		return fmt.Errorf("auth: line must begin with an uppercase letter, got %q", line)
	}
	for _, b := range line {
		if b < 0x20 || b > 0x7e {
			return fmt.Errorf("auth: line contains non-printable byte 0x%02x", b)
		}
	}
	return nil
}
