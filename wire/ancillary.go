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
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// ErrControlTruncated reports that the kernel truncated an ancillary
// (SCM_RIGHTS) control message; the connection carrying it must be closed,
// since we can no longer account for which fds were sent.
var ErrControlTruncated = errors.New("wire: ancillary control message truncated")

const oobSpace = 512

// ReadMsgUnix reads into buf from a Unix-domain connection, returning any
// fds that arrived as SCM_RIGHTS ancillary data alongside the bytes. It is
// the substrate for Side's read pump: the fds it returns are held by the
// caller until the completed message buffer is handed to the client, at
// which point they attach to that buffer's final byte to preserve the
// ordering D-Bus requires between an fd and the message that carries it.
func ReadMsgUnix(conn *net.UnixConn, buf []byte) (n int, fds []int, err error) {
	oob := make([]byte, oobSpace)
	n, oobn, flags, _, rerr := conn.ReadMsgUnix(buf, oob)
	if flags&unix.MSG_CTRUNC != 0 {
		return n, nil, ErrControlTruncated
	}
	if oobn > 0 {
		var perr error
		fds, perr = parseRights(oob[:oobn])
		if perr != nil {
			return n, fds, perr
		}
	}
	if rerr != nil {
		return n, fds, rerr
	}
	return n, fds, nil
}

// WriteMsgUnix writes buf to conn, attaching fds as a single SCM_RIGHTS
// control message when non-empty.
func WriteMsgUnix(conn *net.UnixConn, buf []byte, fds []int) (n int, err error) {
	if len(fds) == 0 {
		return conn.Write(buf)
	}
	oob := unix.UnixRights(fds...)
	n, oobn, werr := conn.WriteMsgUnix(buf, oob, nil)
	if werr != nil {
		return n, werr
	}
	if oobn != len(oob) {
		return n, fmt.Errorf("wire: short ancillary write (%d of %d bytes)", oobn, len(oob))
	}
	return n, nil
}

func parseRights(oob []byte) ([]int, error) {
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, err
	}
	var fds []int
	var errs []error
	for _, scm := range scms {
		if scm.Header.Level != unix.SOL_SOCKET || scm.Header.Type != unix.SCM_RIGHTS {
			continue
		}
		rights, rerr := unix.ParseUnixRights(&scm)
		if rerr != nil {
			errs = append(errs, rerr)
			continue
		}
		fds = append(fds, rights...)
	}
	if len(errs) != 0 {
		return fds, errors.Join(errs...)
	}
	return fds, nil
}

// CloseFds closes every fd in the slice, collecting (not stopping on) the
// first error per fd — dropping one bad fd must never leak the rest.
func CloseFds(fds []int) error {
	var errs []error
	for _, fd := range fds {
		if e := unix.Close(fd); e != nil {
			errs = append(errs, e)
		}
	}
	if len(errs) != 0 {
		return errors.Join(errs...)
	}
	return nil
}
