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
	"fmt"
)

// builder accumulates a D-Bus message body with the padding the wire format
// requires between differently-aligned basic types. It's deliberately
// narrow: this proxy only ever serializes strings, booleans, and
// string arrays into synthesized replies, never arbitrary variant bodies
// (that's delegated to the decode helpers below).
type builder struct {
	order binary.ByteOrder
	buf   []byte
}

func newBuilder(order binary.ByteOrder) *builder {
	return &builder{order: order}
}

func (b *builder) alignTo(n int) {
	for len(b.buf)%n != 0 {
		b.buf = append(b.buf, 0)
	}
}

func (b *builder) putString(s string) {
	b.alignTo(4)
	lb := make([]byte, 4)
	b.order.PutUint32(lb, uint32(len(s)))
	b.buf = append(b.buf, lb...)
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
}

func (b *builder) putBool(v bool) {
	b.alignTo(4)
	lb := make([]byte, 4)
	if v {
		b.order.PutUint32(lb, 1)
	}
	b.buf = append(b.buf, lb...)
}

func (b *builder) putStringArray(ss []string) {
	b.alignTo(4)
	lenPos := len(b.buf)
	b.buf = append(b.buf, 0, 0, 0, 0)
	start := len(b.buf)
	for _, s := range ss {
		b.putString(s)
	}
	b.order.PutUint32(b.buf[lenPos:lenPos+4], uint32(len(b.buf)-start))
}

// EncodeStringBody returns a message body containing a single string
// argument (signature "s").
func EncodeStringBody(order binary.ByteOrder, s string) []byte {
	b := newBuilder(order)
	b.putString(s)
	return b.buf
}

// EncodeBoolBody returns a message body containing a single boolean
// argument (signature "b").
func EncodeBoolBody(order binary.ByteOrder, v bool) []byte {
	b := newBuilder(order)
	b.putBool(v)
	return b.buf
}

// EncodeStringArrayBody returns a message body containing a single
// array-of-string argument (signature "as").
func EncodeStringArrayBody(order binary.ByteOrder, ss []string) []byte {
	b := newBuilder(order)
	b.putStringArray(ss)
	return b.buf
}

type headerField struct {
	code byte
	sig  string
	enc  func(b *builder)
}

func encodeMessage(order binary.ByteOrder, typ MessageType, flags byte, serial uint32, fields []headerField, body []byte) []byte {
	hb := newBuilder(order)
	for _, f := range fields {
		hb.alignTo(8)
		hb.buf = append(hb.buf, f.code, byte(len(f.sig)))
		hb.buf = append(hb.buf, f.sig...)
		hb.buf = append(hb.buf, 0)
		f.enc(hb)
	}

	out := make([]byte, 16)
	if order == binary.BigEndian {
		out[0] = 'B'
	} else {
		out[0] = 'l'
	}
	out[1] = byte(typ)
	out[2] = flags
	out[3] = 1
	order.PutUint32(out[4:8], uint32(len(body)))
	order.PutUint32(out[8:12], serial)
	order.PutUint32(out[12:16], uint32(len(hb.buf)))
	out = append(out, hb.buf...)
	for len(out)%8 != 0 {
		out = append(out, 0)
	}
	out = append(out, body...)
	return out
}

func fString(code byte, v string) headerField {
	return headerField{code: code, sig: "s", enc: func(b *builder) { b.putString(v) }}
}

func fPath(code byte, v string) headerField {
	return headerField{code: code, sig: "o", enc: func(b *builder) { b.putString(v) }}
}

func fUint32(code byte, v uint32) headerField {
	return headerField{code: code, sig: "u", enc: func(b *builder) {
		b.alignTo(4)
		lb := make([]byte, 4)
		b.order.PutUint32(lb, v)
		b.buf = append(b.buf, lb...)
	}}
}

func fSignature(code byte, v string) headerField {
	return headerField{code: code, sig: "g", enc: func(b *builder) {
		b.buf = append(b.buf, byte(len(v)))
		b.buf = append(b.buf, v...)
		b.buf = append(b.buf, 0)
	}}
}

// EncodeMethodCall builds a complete, wire-ready method-call message — used
// by the rewrite pipeline to synthesize its Peer.Ping round trips and the
// initial AddMatch/GetNameOwner/ListNames burst.
func EncodeMethodCall(order binary.ByteOrder, serial uint32, path, iface, member, destination, signature string, body []byte, noReply bool) []byte {
	fields := []headerField{
		fPath(fieldPath, path),
		fString(fieldMember, member),
	}
	if iface != "" {
		fields = append(fields, fString(fieldInterface, iface))
	}
	if destination != "" {
		fields = append(fields, fString(fieldDestination, destination))
	}
	if signature != "" {
		fields = append(fields, fSignature(fieldSignature, signature))
	}
	var flags byte
	if noReply {
		flags = NoReplyExpected
	}
	return encodeMessage(order, TypeMethodCall, flags, serial, fields, body)
}

// EncodeMethodReturn builds a method-return message replying to
// replySerial.
func EncodeMethodReturn(order binary.ByteOrder, serial, replySerial uint32, signature string, body []byte) []byte {
	fields := []headerField{fUint32(fieldReplySerial, replySerial)}
	if signature != "" {
		fields = append(fields, fSignature(fieldSignature, signature))
	}
	return encodeMessage(order, TypeMethodReturn, 0, serial, fields, body)
}

// EncodeError builds an error reply to replySerial with the given
// well-known D-Bus error name.
func EncodeError(order binary.ByteOrder, serial, replySerial uint32, errorName, signature string, body []byte) []byte {
	fields := []headerField{
		fString(fieldErrorName, errorName),
		fUint32(fieldReplySerial, replySerial),
	}
	if signature != "" {
		fields = append(fields, fSignature(fieldSignature, signature))
	}
	return encodeMessage(order, TypeError, 0, serial, fields, body)
}

// DecodeFirstString reads the first "s" or "o" argument from a body whose
// signature starts with that type — the only body shape policy decisions
// need (the target name argument of RequestName, NameHasOwner, ...).
// Numeric/compound variant decoding beyond this is out of scope: it is
// delegated to whatever full D-Bus codec the eventual client/bus library
// uses for application-level message bodies.
func DecodeFirstString(order binary.ByteOrder, body []byte) (string, error) {
	if len(body) < 4 {
		return "", fmt.Errorf("wire: body too short for string argument")
	}
	l := int(order.Uint32(body[0:4]))
	if 4+l+1 > len(body) {
		return "", fmt.Errorf("wire: truncated string argument")
	}
	return string(body[4 : 4+l]), nil
}

// DecodeStringArray reads a single "as" argument from a body.
func DecodeStringArray(order binary.ByteOrder, body []byte) ([]string, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("wire: body too short for array argument")
	}
	arrLen := int(order.Uint32(body[0:4]))
	off := 4
	end := off + arrLen
	if end > len(body) {
		return nil, fmt.Errorf("wire: truncated array argument")
	}
	var out []string
	for off < end {
		off = align4(off)
		if off+4 > len(body) {
			return nil, fmt.Errorf("wire: truncated array element")
		}
		l := int(order.Uint32(body[off : off+4]))
		off += 4
		if off+l+1 > len(body) {
			return nil, fmt.Errorf("wire: truncated array element string")
		}
		out = append(out, string(body[off:off+l]))
		off += l + 1
	}
	return out, nil
}

// DecodeNameOwnerChangedArgs reads the (name, old_owner, new_owner) triple
// from a NameOwnerChanged signal body (signature "sss").
func DecodeNameOwnerChangedArgs(order binary.ByteOrder, body []byte) (name, oldOwner, newOwner string, err error) {
	off := 0
	vals := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		off = align4(off)
		if off+4 > len(body) {
			return "", "", "", fmt.Errorf("wire: truncated NameOwnerChanged body")
		}
		l := int(order.Uint32(body[off : off+4]))
		off += 4
		if off+l+1 > len(body) {
			return "", "", "", fmt.Errorf("wire: truncated NameOwnerChanged body")
		}
		vals = append(vals, string(body[off:off+l]))
		off += l + 1
	}
	return vals[0], vals[1], vals[2], nil
}
