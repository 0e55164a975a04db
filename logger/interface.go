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

// Package logger is a structured logging facade over logrus, scoped down
// to what a single-purpose proxy process needs: level control, structured
// fields, and one entry point per level.
package logger

// Logger is the structured logging facade used across the proxy. It wraps
// a single logrus entry/field-set pair so every subsystem logs through the
// same sink with a consistent set of base fields (client id, component...).
type Logger interface {
	// SetLevel changes the minimal level of messages that reach the sink.
	SetLevel(lvl Level)
	// GetLevel returns the current minimal level.
	GetLevel() Level

	// WithFields returns a derived Logger carrying the given fields merged
	// on top of the receiver's own fields.
	WithFields(f Fields) Logger

	Debug(message string, f Fields)
	Info(message string, f Fields)
	Warn(message string, f Fields)
	Error(message string, err error, f Fields)
}
