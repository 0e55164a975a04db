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

package bus

import (
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/sabouaram/dbusproxy/auth"
	liberr "github.com/sabouaram/dbusproxy/errors"
	"github.com/sabouaram/dbusproxy/wire"
)

// outMsg is one queued write: the framed message bytes plus any fds that
// must travel glued to its final byte.
type outMsg struct {
	data []byte
	fds  []int
}

// Side owns one half of a proxied connection's sockets: the read loop that
// frames incoming messages and classifies them, and the write loop that
// drains its outgoing queue. It is handed a pointer back to its Client at
// construction; Go's garbage collector makes the cycle this creates
// harmless, so no index-based indirection is needed.
type Side struct {
	Name   SideName
	Conn   *net.UnixConn
	Client *Client

	outCh     chan outMsg
	closeOnce sync.Once
	closed    chan struct{}
}

// NewSide wires a socket into client under name and registers it on the
// client's Sides table.
func NewSide(name SideName, conn *net.UnixConn, client *Client) *Side {
	s := &Side{
		Name:   name,
		Conn:   conn,
		Client: client,
		outCh:  make(chan outMsg, 64),
		closed: make(chan struct{}),
	}
	client.Sides[name] = s
	return s
}

func (s *Side) peer() *Side { return s.Client.Sides[s.Name.Other()] }

// wakeBlockedAuthRead arms a past-due read deadline on this side's
// connection so a ReadMsgUnix call blocked in RunAuth — or about to
// start one — returns immediately with a timeout instead of waiting on
// bytes that will never arrive once the peer has already reached
// COMPLETE. RunAuth clears the deadline again before it returns.
func (s *Side) wakeBlockedAuthRead() {
	_ = s.Conn.SetReadDeadline(time.Unix(0, 1))
}

// Enqueue queues data (with any attached fds) for delivery on this side.
// Called from the peer side's read loop, so writes to a closed side are
// expected and simply drop the fds rather than leaking them.
func (s *Side) Enqueue(data []byte, fds []int) {
	select {
	case s.outCh <- outMsg{data: data, fds: fds}:
	case <-s.closed:
		_ = wire.CloseFds(fds)
	}
}

// Close shuts the side down exactly once. The caller is expected to have
// already drained this side's outgoing queue via WriteLoop before the
// peer calls Close; WriteLoop exits on its own once the channel and
// closed signal race resolves.
func (s *Side) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.Conn.Close()
	})
}

// WriteLoop drains outCh until the side is closed.
func (s *Side) WriteLoop() {
	for {
		select {
		case m := <-s.outCh:
			if _, err := wire.WriteMsgUnix(s.Conn, m.data, m.fds); err != nil {
				s.Close()
				return
			}
		case <-s.closed:
			return
		}
	}
}

// RunAuth drives this side's half of the handshake relay until the
// client's shared auth.Relay reaches COMPLETE or an error/close occurs.
// The client side additionally honors StalledForBacklog by waiting on the
// client's backlog-release signal instead of issuing further reads.
//
// The two sides share one Relay but each blocks in its own ReadMsgUnix
// call, so the side whose half of the handshake finishes last is the
// only one that ever observes COMPLETE on its own — the side that
// finishes first (e.g. a single AUTH/OK round trip immediately followed
// by BEGIN) must wake its peer's pending read rather than let it block
// forever waiting for bytes that will never come. wakeBlockedAuthRead
// arms a past-due deadline on the peer's connection for exactly that;
// the resulting timeout is recognized below as a clean exit once this
// side's own relay view says COMPLETE.
func (s *Side) RunAuth() error {
	relay := s.Client.Auth
	for relay.State() != auth.Complete {
		if s.Name == ClientSide && relay.StalledForBacklog() {
			s.Client.pauseBacklog()
			s.Client.waitForBacklogRelease()
			continue
		}

		size := 256
		if s.Name == ClientSide {
			size = relay.NextClientBufferSize()
		}
		buf := make([]byte, size)
		n, _, err := wire.ReadMsgUnix(s.Conn, buf)
		if err != nil {
			if relay.State() == auth.Complete {
				break
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return liberr.New(liberr.CodeTransport, err)
		}
		data := buf[:n]

		if s.Name == ClientSide {
			firstByte := !relay.StalledForBacklog() && size == 1
			if firstByte {
				relay.ConsumeFirstByte()
				s.peer().Enqueue(append([]byte(nil), data...), nil)
			} else {
				forward, err := relay.FeedClient(data)
				if err != nil {
					return err
				}
				if len(forward) > 0 {
					s.peer().Enqueue(forward, nil)
				}
			}
		} else {
			forward, err := relay.FeedBus(data)
			if err != nil {
				return err
			}
			if len(forward) > 0 {
				s.peer().Enqueue(forward, nil)
			}
		}

		if relay.State() == auth.Complete {
			s.Client.releaseBacklog()
			s.peer().wakeBlockedAuthRead()
			break
		}
	}
	_ = s.Conn.SetReadDeadline(time.Time{})
	return nil
}

// RunMessages drives the post-auth binary message loop: frame one
// complete message at a time, parse its header, classify/apply (client
// side) or resolve replies and broadcasts (bus side), and enqueue the
// result onto the peer.
func (s *Side) RunMessages() error {
	carry := s.initialCarry()
	for {
		if s.Name == ClientSide {
			s.Client.waitForBacklogRelease()
		}
		buf, fds, rest, err := s.readMessage(carry)
		carry = rest
		if err != nil {
			return err
		}

		h, err := wire.ParseHeader(buf.Data)
		if err != nil {
			_ = wire.CloseFds(fds)
			return err
		}
		if err := attachFds(h, buf, fds); err != nil {
			return err
		}

		if s.Name == ClientSide {
			if h.Serial > MaxClientSerial {
				buf.Release()
				return liberr.Newf(liberr.CodeMalformedWire, "bus: client serial exceeds MAX_CLIENT_SERIAL")
			}
			handler := s.Client.Classify(h)
			out := s.Client.Apply(handler, h, buf.Data)
			if out.Drop {
				buf.Release()
				continue
			}
			if out.ForwardFds {
				s.peer().Enqueue(out.Forward, buf.TakeFds())
			} else {
				buf.Release()
				s.peer().Enqueue(out.Forward, nil)
			}
		} else {
			out := s.Client.HandleIncoming(h, buf.Data)
			if out.ResumeClient {
				s.Client.releaseBacklog()
			}
			for _, msg := range out.ToBus {
				s.Enqueue(msg, nil)
			}
			if out.Drop {
				buf.Release()
				continue
			}
			if out.ForwardFds {
				s.peer().Enqueue(out.Forward, buf.TakeFds())
			} else {
				buf.Release()
				s.peer().Enqueue(out.Forward, nil)
			}
		}
	}
}

// initialCarry returns any bytes the auth handshake read past its last
// consumed line, so the binary phase doesn't lose them.
func (s *Side) initialCarry() []byte {
	if s.Name == ClientSide {
		return s.Client.Auth.ClientExtra
	}
	return s.Client.Auth.BusExtra
}

// readMessage accumulates one full D-Bus message (16-byte fixed header,
// aligned field array, body) across as many socket reads as needed,
// growing the buffer once the declared lengths are known. Bytes are taken
// from carry before the socket is read; whatever part of carry lies past
// this message is returned for the next call.
func (s *Side) readMessage(carry []byte) (*wire.Buffer, []int, []byte, error) {
	buf := wire.NewBuffer(16)
	var fds []int

	if len(carry) > 0 {
		n := copy(buf.Data, carry)
		buf.Pos = n
		carry = carry[n:]
	}

	for buf.Pos < 16 {
		n, f, err := wire.ReadMsgUnix(s.Conn, buf.Data[buf.Pos:])
		if err != nil {
			return nil, nil, nil, liberr.New(liberr.CodeTransport, err)
		}
		buf.Pos += n
		fds = append(fds, f...)
	}

	total := messageTotalLength(buf.Data)
	if total > len(buf.Data) {
		buf = wire.GrowBuffer(buf, total)
		if len(carry) > 0 {
			n := copy(buf.Data[buf.Pos:], carry)
			buf.Pos += n
			carry = carry[n:]
		}
	}

	for buf.Pos < len(buf.Data) {
		n, f, err := wire.ReadMsgUnix(s.Conn, buf.Data[buf.Pos:])
		if err != nil {
			return nil, nil, nil, liberr.New(liberr.CodeTransport, err)
		}
		buf.Pos += n
		fds = append(fds, f...)
	}

	return buf, fds, carry, nil
}

// messageTotalLength reads just enough of the fixed header to compute the
// full message size (header-array length, 8-byte aligned, plus body
// length), without doing full field validation — that's ParseHeader's job
// once the whole message is in hand.
func messageTotalLength(buf []byte) int {
	var order binary.ByteOrder = binary.BigEndian
	if buf[0] == 'l' {
		order = binary.LittleEndian
	}
	bodyLen := int(order.Uint32(buf[4:8]))
	arrayLen := int(order.Uint32(buf[12:16]))
	headerEnd := (16 + arrayLen + 7) &^ 7
	return headerEnd + bodyLen
}

// attachFds moves fds read alongside the final byte of the message onto
// the parsed header's declared unix-fd count. A mismatch is a protocol
// violation.
func attachFds(h *wire.Header, buf *wire.Buffer, fds []int) error {
	if uint32(len(fds)) != h.UnixFDs {
		_ = wire.CloseFds(fds)
		return liberr.Newf(liberr.CodeMalformedWire, "bus: unix_fds count does not match attached ancillary fds")
	}
	buf.Fds = fds
	return nil
}
