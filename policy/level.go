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

// Package policy implements the filter-rule data model and the max_policy
// resolution/matching algorithm: the totally ordered
// {NONE < SEE < TALK < OWN} visibility grade, per-name rule matching with
// dotted-prefix subtrees, and call/broadcast constraint matching.
package policy

// Level is the totally ordered policy grade a connection holds for a given
// bus name.
type Level uint8

const (
	None Level = iota
	See
	Talk
	Own
)

func (l Level) String() string {
	switch l {
	case See:
		return "see"
	case Talk:
		return "talk"
	case Own:
		return "own"
	default:
		return "none"
	}
}

// Max returns the greater of the two levels.
func Max(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}

// TypeMask selects which message shapes a call/broadcast rule covers.
type TypeMask uint8

const (
	TypeCall TypeMask = 1 << iota
	TypeBroadcast
)

func (m TypeMask) has(t TypeMask) bool { return m&t != 0 }
