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

// Package errors is a small error-code classification scheme covering the
// four failure kinds this proxy distinguishes, rather than a general
// HTTP-status-derived code table.
package errors

// CodeError classifies an Error into one of those four kinds.
type CodeError uint16

const (
	// CodeMalformedWire: header parse, framing, oversize auth buffer,
	// invalid protocol version. The offending side is closed.
	CodeMalformedWire CodeError = 400 + iota
	// CodePolicyViolation: a call/reply/signal the policy engine rejects.
	// Surfaced as a rewritten D-Bus error reply when one is expected.
	CodePolicyViolation
	// CodeTransport: would-block, reset, EOF. Treated as side-closed.
	CodeTransport
	// CodeConfiguration: malformed rule, unique-name-as-filter-name.
	// Rejected at startup.
	CodeConfiguration
)

func (c CodeError) String() string {
	switch c {
	case CodeMalformedWire:
		return "malformed-wire"
	case CodePolicyViolation:
		return "policy-violation"
	case CodeTransport:
		return "transport"
	case CodeConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}
