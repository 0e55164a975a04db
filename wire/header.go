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

package wire

import (
	"encoding/binary"

	liberr "github.com/sabouaram/dbusproxy/errors"
)

// MessageType is the D-Bus wire message type (offset 1 of the fixed header).
type MessageType byte

const (
	TypeInvalid      MessageType = 0
	TypeMethodCall   MessageType = 1
	TypeMethodReturn MessageType = 2
	TypeError        MessageType = 3
	TypeSignal       MessageType = 4
)

// Header field codes, per the D-Bus 1.0 wire format.
const (
	fieldInvalid     = 0
	fieldPath        = 1
	fieldInterface   = 2
	fieldMember      = 3
	fieldErrorName   = 4
	fieldReplySerial = 5
	fieldDestination = 6
	fieldSender      = 7
	fieldSignature   = 8
	fieldUnixFDs     = 9
)

const (
	busName      = "org.freedesktop.DBus"
	introspectIf = "org.freedesktop.DBus.Introspectable"
	localPath    = "/org/freedesktop/DBus/Local"
	localIf      = "org.freedesktop.DBus.Local"

	// NoReplyExpected is bit 0 of the header flags byte.
	NoReplyExpected byte = 0x1
	// NoAutoStart is bit 1 of the header flags byte: the sender does not
	// want the bus to launch an activatable service to satisfy this call.
	NoAutoStart byte = 0x2
)

// Header is the decoded form of a completed message buffer. It retains the
// raw bytes so callers can still read the body (policy only ever needs the
// first argument, decoded on demand via DecodeFirstString et al.).
type Header struct {
	Order       binary.ByteOrder
	Type        MessageType
	Flags       byte
	BodyLength  uint32
	Serial      uint32
	Path        string
	Interface   string
	Member      string
	ErrorName   string
	Destination string
	Sender      string
	Signature   string
	ReplySerial uint32
	HasReply    bool
	UnixFDs     uint32

	Raw []byte
}

// ParseHeader decodes buf (which must hold exactly one complete message).
// Any violation returns an error; the caller closes the offending side
// and drops the buffer.
func ParseHeader(buf []byte) (h *Header, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, liberr.Newf(liberr.CodeMalformedWire, "wire: header field overruns buffer")
		}
	}()

	if len(buf) < 16 {
		return nil, liberr.Newf(liberr.CodeMalformedWire, "wire: short header (%d bytes)", len(buf))
	}

	var order binary.ByteOrder
	switch buf[0] {
	case 'B':
		order = binary.BigEndian
	case 'l':
		order = binary.LittleEndian
	default:
		return nil, liberr.Newf(liberr.CodeMalformedWire, "wire: invalid endian marker %q", buf[0])
	}

	h = &Header{
		Order: order,
		Type:  MessageType(buf[1]),
		Flags: buf[2],
	}

	if buf[3] != 1 {
		return nil, liberr.Newf(liberr.CodeMalformedWire, "wire: unsupported protocol version %d", buf[3])
	}

	h.BodyLength = order.Uint32(buf[4:8])
	h.Serial = order.Uint32(buf[8:12])
	if h.Serial == 0 {
		return nil, liberr.Newf(liberr.CodeMalformedWire, "wire: zero serial")
	}
	arrayLen := order.Uint32(buf[12:16])

	headerEnd := align8(16 + int(arrayLen))
	if headerEnd > len(buf) {
		return nil, liberr.Newf(liberr.CodeMalformedWire, "wire: header array overruns buffer")
	}

	off := 16
	limit := 16 + int(arrayLen)
	for off < limit {
		off = align8(off)
		if off >= limit {
			break
		}
		code := buf[off]
		off++
		sigLen := int(buf[off])
		off++
		sig := string(buf[off : off+sigLen])
		off += sigLen + 1 // skip NUL terminator of signature

		switch code {
		case fieldPath, fieldInterface, fieldMember, fieldErrorName, fieldDestination, fieldSender:
			wantSig := "s"
			if code == fieldPath {
				wantSig = "o"
			}
			if sig != wantSig {
				return nil, liberr.Newf(liberr.CodeMalformedWire, "wire: field %d has signature %q, want %q", code, sig, wantSig)
			}
			off = align4(off)
			strLen := int(order.Uint32(buf[off : off+4]))
			off += 4
			val := string(buf[off : off+strLen])
			off += strLen + 1 // NUL

			switch code {
			case fieldPath:
				h.Path = val
			case fieldInterface:
				h.Interface = val
			case fieldMember:
				h.Member = val
			case fieldErrorName:
				h.ErrorName = val
			case fieldDestination:
				h.Destination = val
			case fieldSender:
				h.Sender = val
			}
		case fieldSignature:
			if sig != "g" {
				return nil, liberr.Newf(liberr.CodeMalformedWire, "wire: signature field has signature %q, want g", sig)
			}
			sigStrLen := int(buf[off])
			off++
			h.Signature = string(buf[off : off+sigStrLen])
			off += sigStrLen + 1
		case fieldReplySerial, fieldUnixFDs:
			if sig != "u" {
				return nil, liberr.Newf(liberr.CodeMalformedWire, "wire: field %d has signature %q, want u", code, sig)
			}
			off = align4(off)
			val := order.Uint32(buf[off : off+4])
			off += 4
			if code == fieldReplySerial {
				h.ReplySerial = val
				h.HasReply = true
			} else {
				h.UnixFDs = val
			}
		default:
			// Unknown field: skip past its value using its declared
			// signature's alignment/size as best-effort; unknown single
			// basic-typed fields we don't care about.
			off = skipUnknown(buf, off, sig, order)
		}
	}

	if err := h.validate(); err != nil {
		return nil, err
	}

	h.Raw = buf
	return h, nil
}

func (h *Header) validate() error {
	switch h.Type {
	case TypeMethodCall:
		if h.Path == "" || h.Member == "" {
			return liberr.Newf(liberr.CodeMalformedWire, "wire: method call missing path/member")
		}
	case TypeMethodReturn:
		if !h.HasReply {
			return liberr.Newf(liberr.CodeMalformedWire, "wire: method return missing reply-serial")
		}
	case TypeError:
		if h.ErrorName == "" || !h.HasReply {
			return liberr.Newf(liberr.CodeMalformedWire, "wire: error missing error-name/reply-serial")
		}
	case TypeSignal:
		if h.Path == "" || h.Interface == "" || h.Member == "" {
			return liberr.Newf(liberr.CodeMalformedWire, "wire: signal missing path/interface/member")
		}
		if h.Path == localPath || h.Interface == localIf {
			return liberr.Newf(liberr.CodeMalformedWire, "wire: signal on local interface/path rejected")
		}
	default:
		return liberr.Newf(liberr.CodeMalformedWire, "wire: unknown message type %d", h.Type)
	}
	return nil
}

// IsForBus reports whether the message targets the bus driver itself.
func (h *Header) IsForBus() bool { return h.Destination == busName }

// IsDBusMethodCall reports whether this is a method call on the bus
// driver's own interface.
func (h *Header) IsDBusMethodCall() bool {
	return h.IsForBus() && h.Interface == busName
}

// IsIntrospectionCall reports whether this call targets the standard
// introspection interface (always allowed through, regardless of policy).
func (h *Header) IsIntrospectionCall() bool {
	return h.Interface == introspectIf
}

// ClientMessageGeneratesReply reports whether a method call expects a
// reply (i.e. is not flagged NO_REPLY_EXPECTED).
func (h *Header) ClientMessageGeneratesReply() bool {
	return h.Type == TypeMethodCall && h.Flags&NoReplyExpected == 0
}

// Body returns the message payload (the bytes after the aligned header).
func (h *Header) Body() []byte {
	arrayLen := 0
	if len(h.Raw) >= 16 {
		arrayLen = int(h.Order.Uint32(h.Raw[12:16]))
	}
	start := align8(16 + arrayLen)
	if start > len(h.Raw) {
		return nil
	}
	return h.Raw[start:]
}

func align4(n int) int { return (n + 3) &^ 3 }
func align8(n int) int { return (n + 7) &^ 7 }

func skipUnknown(buf []byte, off int, sig string, order binary.ByteOrder) int {
	switch sig {
	case "s", "o":
		off = align4(off)
		l := int(order.Uint32(buf[off : off+4]))
		return off + 4 + l + 1
	case "g":
		l := int(buf[off])
		return off + 1 + l + 1
	case "u", "i", "n", "q", "b":
		off = align4(off)
		return off + 4
	case "y":
		return off + 1
	case "t", "x", "d":
		off = align8(off)
		return off + 8
	default:
		// Unrecognized/compound signature on a field we don't care about:
		// best effort, stop scanning further header fields rather than
		// risk misreading the buffer.
		return len(buf)
	}
}
