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

// Package wire implements the D-Bus binary message framing: a growable byte
// buffer with attached ancillary (out-of-band) data, the fixed 16-byte
// header plus variable-length header-field array, and the small set of
// message-serialization helpers the policy/rewrite layer needs to build its
// own replies.
package wire

import "golang.org/x/sys/unix"

// Buffer is one in-flight message region: a write cursor (Pos), a send
// cursor (Sent), and the list of file descriptors that arrived glued to
// the last byte written into it (or that must be sent alongside it).
//
// Invariant: Sent <= Pos <= len(Data).
type Buffer struct {
	Data            []byte
	Pos             int
	Sent            int
	SendCredentials bool
	Fds             []int
}

// NewBuffer allocates an empty buffer sized to target.
func NewBuffer(size int) *Buffer {
	return &Buffer{Data: make([]byte, size)}
}

// GrowBuffer allocates a buffer of newSize and migrates old's filled prefix,
// cursors, and ancillary fds into it. old's fd list is cleared (ownership
// moved).
func GrowBuffer(old *Buffer, newSize int) *Buffer {
	n := &Buffer{Data: make([]byte, newSize)}
	copy(n.Data, old.Data[:old.Pos])
	n.Pos = old.Pos
	n.Sent = old.Sent
	n.Fds = old.Fds
	old.Fds = nil
	return n
}

// Full reports whether the buffer has been completely written (Pos ==
// len(Data)).
func (b *Buffer) Full() bool {
	return b.Pos == len(b.Data)
}

// Drained reports whether everything written has also been sent.
func (b *Buffer) Drained() bool {
	return b.Sent == b.Pos
}

// Release closes any fds still owned by the buffer. Called when a buffer
// is dropped without being forwarded (malformed message, filtered signal,
// canned reply substitution).
func (b *Buffer) Release() {
	for _, fd := range b.Fds {
		_ = unix.Close(fd)
	}
	b.Fds = nil
}

// TakeFds removes and returns the buffer's fds, clearing the list without
// closing them (ownership transferred to the caller).
func (b *Buffer) TakeFds() []int {
	fds := b.Fds
	b.Fds = nil
	return fds
}
