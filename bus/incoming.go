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
	"strings"

	"github.com/sabouaram/dbusproxy/policy"
	"github.com/sabouaram/dbusproxy/wire"
)

// IncomingOutcome is what the client side should do with a message that
// arrived from the bus.
type IncomingOutcome struct {
	Forward      []byte
	Drop         bool
	ResumeClient bool // re-enable client-side reads (FAKE_LIST_NAMES settled)
	// ForwardFds is true when Forward is the original message unchanged
	// and its ancillary fds must travel with it.
	ForwardFds bool
	// ToBus holds extra messages to send upstream as a side effect (the
	// synthesized burst triggered once the Hello reply arrives).
	ToBus [][]byte
}

// HandleIncoming runs a bus→client message through reply resolution and
// broadcast filtering.
func (c *Client) HandleIncoming(h *wire.Header, raw []byte) IncomingOutcome {
	if h.HasReply {
		return c.handleReply(h, raw)
	}

	if h.Type == wire.TypeMethodReturn || h.Type == wire.TypeError {
		return IncomingOutcome{Drop: true}
	}

	if h.Type == wire.TypeSignal {
		if h.Interface == "org.freedesktop.DBus" && h.Member == "NameOwnerChanged" {
			return c.handleNameOwnerChanged(h, raw)
		}
		if h.Destination == "" {
			return c.handleBroadcast(h, raw)
		}
	}

	if strings.HasPrefix(h.Sender, ":") {
		c.RaisePolicy(h.Sender, policy.See)
	}
	return IncomingOutcome{Forward: raw, ForwardFds: true}
}

func (c *Client) handleReply(h *wire.Header, raw []byte) IncomingOutcome {
	e, ok := c.takeExpected(h.ReplySerial)
	if !ok || e.Kind == ExpectNone {
		return IncomingOutcome{Drop: true}
	}

	switch e.Kind {
	case ExpectHello:
		var burst [][]byte
		if h.Type == wire.TypeMethodReturn {
			if name, err := wire.DecodeFirstString(h.Order, h.Body()); err == nil {
				c.SetOwnUniqueName(name)
			}
			if names := c.configuredFilterNames(); len(names) > 0 {
				burst = c.EmitHelloBurst(h.Order, names)
			}
		}
		return IncomingOutcome{Forward: raw, ForwardFds: true, ToBus: burst}

	case ExpectRewrite:
		canned, ok := c.takeRewriteReply(h.ReplySerial)
		if !ok {
			return IncomingOutcome{Drop: true}
		}
		stampSerial(canned, h.Order, h.Serial)
		return IncomingOutcome{Forward: canned}

	case ExpectFakeListNames:
		return IncomingOutcome{Drop: true, ResumeClient: true}

	case ExpectFakeGetNameOwner:
		if h.Type == wire.TypeMethodReturn {
			if name, ok := c.takeGetOwnerReplyTarget(h.ReplySerial); ok {
				if owner, err := wire.DecodeFirstString(h.Order, h.Body()); err == nil {
					c.RecordOwnership(owner, name)
				}
			}
		}
		return IncomingOutcome{Drop: true}

	case ExpectFilter:
		return IncomingOutcome{Drop: true}

	case ExpectListNames:
		if h.Type != wire.TypeMethodReturn {
			return IncomingOutcome{Forward: raw, ForwardFds: true}
		}
		names, err := wire.DecodeStringArray(h.Order, h.Body())
		if err != nil {
			return IncomingOutcome{Forward: raw}
		}
		visible := names[:0]
		for _, n := range names {
			if c.MaxPolicy(n) >= policy.See {
				visible = append(visible, n)
			}
		}
		body := wire.EncodeStringArrayBody(h.Order, visible)
		return IncomingOutcome{Forward: wire.EncodeMethodReturn(h.Order, h.Serial, h.ReplySerial, "as", body)}

	default: // ExpectNormal
		return IncomingOutcome{Forward: raw, ForwardFds: true}
	}
}

func (c *Client) handleNameOwnerChanged(h *wire.Header, raw []byte) IncomingOutcome {
	name, _, newOwner, err := wire.DecodeNameOwnerChangedArgs(h.Order, h.Body())
	if err != nil {
		return IncomingOutcome{Drop: true}
	}
	if newOwner != "" {
		c.RecordOwnership(newOwner, name)
	}

	visible := c.MaxPolicy(name) >= policy.See
	if !visible && c.SloppyNames && strings.HasPrefix(name, ":") {
		visible = true
	}
	if !visible {
		return IncomingOutcome{Drop: true}
	}
	return IncomingOutcome{Forward: raw, ForwardFds: true}
}

func (c *Client) handleBroadcast(h *wire.Header, raw []byte) IncomingOutcome {
	lvl, matched := c.MaxPolicyAndMatched(h.Sender)
	if lvl >= policy.Talk {
		return IncomingOutcome{Forward: raw, ForwardFds: true}
	}
	if policy.MatchesAnyCallOrBroadcast(matched, policy.TypeBroadcast, h.Path, h.Interface, h.Member) {
		return IncomingOutcome{Forward: raw, ForwardFds: true}
	}
	return IncomingOutcome{Drop: true}
}

// stampSerial overwrites a synthesized message's own serial field in
// place, setting it to the serial of the message that just arrived: the
// canned reply was built with a placeholder serial since the real one
// isn't known until the round-trip ping answer arrives.
func stampSerial(buf []byte, order binary.ByteOrder, serial uint32) {
	if len(buf) >= 12 {
		order.PutUint32(buf[8:12], serial)
	}
}
