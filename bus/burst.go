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
	"fmt"

	"github.com/sabouaram/dbusproxy/wire"
)

// EmitHelloBurst builds the synthesized bus calls issued once, right
// after the client's Hello reply arrives, and
// records their expectations on c. It returns the wire-ready messages,
// to be enqueued on the bus side in order; none of their replies ever
// reach the client.
func (c *Client) EmitHelloBurst(order binary.ByteOrder, names []string) [][]byte {
	var out [][]byte
	hasSubtree := false

	for _, name := range names {
		subtree := false
		for _, r := range c.Filters[name] {
			if r.NameIsSubtree {
				subtree = true
			}
		}
		if subtree {
			hasSubtree = true
		}

		matchArg := fmt.Sprintf("type='signal',sender='org.freedesktop.DBus',interface='org.freedesktop.DBus',member='NameOwnerChanged',arg0='%s'", name)
		if subtree {
			matchArg = fmt.Sprintf("type='signal',sender='org.freedesktop.DBus',interface='org.freedesktop.DBus',member='NameOwnerChanged',arg0namespace='%s'", name)
		}
		serial := c.NextSynthSerial()
		c.setExpected(serial, Expectation{Kind: ExpectFilter})
		out = append(out, wire.EncodeMethodCall(order, serial, "/org/freedesktop/DBus", "org.freedesktop.DBus", "AddMatch", "org.freedesktop.DBus", "s", wire.EncodeStringBody(order, matchArg), false))

		if !subtree {
			serial = c.NextSynthSerial()
			c.setExpected(serial, Expectation{Kind: ExpectFakeGetNameOwner, Name: name})
			c.setGetOwnerReplyTarget(serial, name)
			out = append(out, wire.EncodeMethodCall(order, serial, "/org/freedesktop/DBus", "org.freedesktop.DBus", "GetNameOwner", "org.freedesktop.DBus", "s", wire.EncodeStringBody(order, name), false))
		}
	}

	if hasSubtree {
		serial := c.NextSynthSerial()
		c.setExpected(serial, Expectation{Kind: ExpectFakeListNames})
		c.pauseBacklog()
		out = append(out, wire.EncodeMethodCall(order, serial, "/org/freedesktop/DBus", "org.freedesktop.DBus", "ListNames", "org.freedesktop.DBus", "", nil, false))
	}

	return out
}

// pauseBacklog marks the client-side reader stalled so it blocks in
// waitForBacklogRelease until the FAKE_LIST_NAMES reply arrives and
// calls releaseBacklog.
func (c *Client) pauseBacklog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backlogStalled = true
}
