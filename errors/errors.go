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

package errors

import (
	"fmt"
	"runtime"
)

// Error extends the standard error with a CodeError classification and a
// capture-site trace, scoped to the operations this proxy exercises (no
// hierarchy pool, no gin binding).
type Error interface {
	error

	Code() CodeError
	Is(code CodeError) bool
	Unwrap() error

	File() string
	Line() int
}

type wireError struct {
	code   CodeError
	parent error
	file   string
	line   int
}

func (e *wireError) Error() string {
	if e.parent != nil {
		return fmt.Sprintf("%s: %s", e.code, e.parent)
	}
	return e.code.String()
}

func (e *wireError) Code() CodeError   { return e.code }
func (e *wireError) Is(c CodeError) bool { return e.code == c }
func (e *wireError) Unwrap() error     { return e.parent }
func (e *wireError) File() string      { return e.file }
func (e *wireError) Line() int         { return e.line }

// New builds an Error of the given code, capturing the caller's file/line
// and wrapping parent (which may be nil).
func New(code CodeError, parent error) Error {
	_, file, line, _ := runtime.Caller(1)
	return &wireError{code: code, parent: parent, file: file, line: line}
}

// Newf is New with a formatted parent message.
func Newf(code CodeError, format string, args ...interface{}) Error {
	_, file, line, _ := runtime.Caller(1)
	return &wireError{code: code, parent: fmt.Errorf(format, args...), file: file, line: line}
}

// HasCode reports whether err is an Error of the given code, unwrapping
// through the standard chain.
func HasCode(err error, code CodeError) bool {
	for err != nil {
		if e, ok := err.(Error); ok && e.Is(code) {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
