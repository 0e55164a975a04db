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

// ExpectedKind tags what a pending reply serial means to the client.
// NORMAL is an ordinary forwarded call; everything else is a synthesized
// round trip the proxy itself is tracking.
type ExpectedKind uint8

const (
	ExpectNone ExpectedKind = iota
	ExpectNormal
	ExpectHello
	ExpectRewrite
	ExpectFakeListNames
	ExpectFakeGetNameOwner
	ExpectFilter
	ExpectListNames
)

// Expectation is one entry in a client's expected-reply table.
type Expectation struct {
	Kind ExpectedKind
	// Name carries the well-known name a FAKE_GET_NAME_OWNER lookup was
	// issued for, so the eventual reply can be associated back to it.
	Name string
}
