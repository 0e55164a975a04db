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

	"github.com/sabouaram/dbusproxy/logger"
	"github.com/sabouaram/dbusproxy/policy"
	"github.com/sabouaram/dbusproxy/wire"
)

// Handler is the dispatch decision the classifier reaches for one
// outgoing client message.
type Handler uint8

const (
	HandlerPass Handler = iota
	HandlerDeny
	HandlerHide
	HandlerValidateOwn
	HandlerValidateTalk
	HandlerValidateSee
	HandlerValidateMatch
	HandlerFilterHasOwnerReply
	HandlerFilterGetOwnerReply
	HandlerFilterNameListReply
)

const (
	errNameHasNoOwner = "org.freedesktop.DBus.Error.NameHasNoOwner"
	errServiceUnknown = "org.freedesktop.DBus.Error.ServiceUnknown"
	errAccessDenied   = "org.freedesktop.DBus.Error.AccessDenied"
)

// classifyBusCall dispatches a method call addressed to the bus driver
// itself.
func classifyBusCall(member string) Handler {
	switch member {
	case "AddMatch":
		return HandlerValidateMatch
	case "Hello", "RemoveMatch", "GetId":
		return HandlerPass
	case "UpdateActivationEnvironment", "BecomeMonitor":
		return HandlerDeny
	case "RequestName", "ReleaseName", "ListQueuedOwners":
		return HandlerValidateOwn
	case "NameHasOwner":
		return HandlerFilterHasOwnerReply
	case "GetNameOwner":
		return HandlerFilterGetOwnerReply
	case "GetConnectionUnixProcessID", "GetConnectionCredentials", "GetConnectionUnixUser",
		"GetConnectionSELinuxSecurityContext", "GetAdtAuditSessionData":
		return HandlerValidateSee
	case "StartServiceByName":
		return HandlerValidateTalk
	case "ListNames", "ListActivatableNames":
		return HandlerFilterNameListReply
	default:
		return HandlerDeny
	}
}

// Classify decides the handler for an outgoing (client→bus) message, not
// accounting for the MAX_CLIENT_SERIAL bound (the side checks that before
// calling Classify, since it closes the connection rather than producing
// a handler result).
func (c *Client) Classify(h *wire.Header) Handler {
	if !c.FilterOn {
		return HandlerPass
	}

	if h.HasReply {
		if e, ok := c.peekExpected(h.ReplySerial); ok && e.Kind != ExpectNone {
			return HandlerPass
		}
		return HandlerDeny
	}

	if h.IsIntrospectionCall() {
		return HandlerPass
	}

	if h.IsDBusMethodCall() {
		return classifyBusCall(h.Member)
	}

	lvl := c.MaxPolicy(h.Destination)
	if lvl < policy.See {
		return HandlerHide
	}
	if lvl < policy.Talk {
		return HandlerDeny
	}
	if lvl >= policy.Own {
		return HandlerPass
	}
	_, matched := c.MaxPolicyAndMatched(h.Destination)
	if policy.MatchesAnyCallOrBroadcast(matched, policy.TypeCall, h.Path, h.Interface, h.Member) {
		return HandlerPass
	}
	return HandlerDeny
}

// Outcome is what the side should do with an outgoing client message
// after classification and any rewrite synthesis.
type Outcome struct {
	// Forward, if non-nil, is the exact bytes to send to the bus instead
	// of (or identical to) the original message.
	Forward []byte
	// Drop indicates nothing should be sent to the bus at all.
	Drop bool
	// ForwardFds is true when Forward is the original message unchanged
	// and any ancillary fds it carried must travel with it. Synthesized
	// messages (Ping round trips, canned replies) never carry them.
	ForwardFds bool
}

// Apply runs h (already classified) through its handler's effect:
// forwarding unchanged, recording an expectation, or substituting a
// synthesized Peer.Ping round trip carrying a canned reply for later
// delivery.
func (c *Client) Apply(handler Handler, h *wire.Header, raw []byte) Outcome {
	order := h.Order
	wantsReply := h.ClientMessageGeneratesReply()

	switch handler {
	case HandlerPass:
		if wantsReply {
			c.setExpected(h.Serial, Expectation{Kind: ExpectNormal})
		}
		if h.IsDBusMethodCall() && h.Member == "Hello" {
			c.mu.Lock()
			c.helloSerial = h.Serial
			c.mu.Unlock()
			c.setExpected(h.Serial, Expectation{Kind: ExpectHello})
		}
		return Outcome{Forward: raw, ForwardFds: true}

	case HandlerValidateMatch:
		arg, err := wire.DecodeFirstString(order, h.Body())
		if err != nil || strings.Contains(arg, "eavesdrop=") {
			return c.rewriteDeny(order, h, wantsReply)
		}
		if wantsReply {
			c.setExpected(h.Serial, Expectation{Kind: ExpectNormal})
		}
		return Outcome{Forward: raw, ForwardFds: true}

	case HandlerValidateOwn:
		return c.validateLevel(order, h, raw, wantsReply, policy.Own)
	case HandlerValidateTalk:
		return c.validateLevel(order, h, raw, wantsReply, policy.Talk)
	case HandlerValidateSee:
		return c.validateLevel(order, h, raw, wantsReply, policy.See)

	case HandlerFilterHasOwnerReply:
		name, err := wire.DecodeFirstString(order, h.Body())
		if err != nil {
			return c.rewriteDeny(order, h, wantsReply)
		}
		if c.MaxPolicy(name) < policy.See {
			return c.rewriteCanned(order, h, wantsReply, wire.EncodeMethodReturn(order, 0, h.Serial, "b", wire.EncodeBoolBody(order, false)))
		}
		c.setExpected(h.Serial, Expectation{Kind: ExpectNormal})
		return Outcome{Forward: raw, ForwardFds: true}

	case HandlerFilterGetOwnerReply:
		name, err := wire.DecodeFirstString(order, h.Body())
		if err != nil {
			return c.rewriteDeny(order, h, wantsReply)
		}
		if c.MaxPolicy(name) < policy.See {
			return c.rewriteCanned(order, h, wantsReply, wire.EncodeError(order, 0, h.Serial, errNameHasNoOwner, "s", wire.EncodeStringBody(order, name)))
		}
		c.setExpected(h.Serial, Expectation{Kind: ExpectNormal})
		return Outcome{Forward: raw, ForwardFds: true}

	case HandlerFilterNameListReply:
		if wantsReply {
			c.setExpected(h.Serial, Expectation{Kind: ExpectListNames})
		}
		return Outcome{Forward: raw, ForwardFds: true}

	case HandlerHide:
		c.Log.Debug("hiding destination from client", logger.Fields{
			"destination": h.Destination,
			"member":      h.Member,
		})
		return c.rewriteCanned(order, h, wantsReply, hideReplyFor(order, h))

	case HandlerDeny:
		fallthrough
	default:
		return c.rewriteDeny(order, h, wantsReply)
	}
}

func (c *Client) validateLevel(order binary.ByteOrder, h *wire.Header, raw []byte, wantsReply bool, required policy.Level) Outcome {
	name, err := wire.DecodeFirstString(order, h.Body())
	if err != nil {
		return c.rewriteDeny(order, h, wantsReply)
	}
	if c.MaxPolicy(name) >= required {
		if wantsReply {
			c.setExpected(h.Serial, Expectation{Kind: ExpectNormal})
		}
		return Outcome{Forward: raw, ForwardFds: true}
	}
	if c.MaxPolicy(name) < policy.See {
		return c.rewriteCanned(order, h, wantsReply, hideReplyForName(order, h, name))
	}
	return c.rewriteDeny(order, h, wantsReply)
}

func hideReplyFor(order binary.ByteOrder, h *wire.Header) []byte {
	return hideReplyForName(order, h, h.Destination)
}

// hideReplyForName picks between ServiceUnknown and NameHasNoOwner the same
// way the upstream bus itself would answer a lookup for a name it cannot
// resolve: a unique name can never be auto-started, and neither can a call
// that explicitly disclaims auto-start, so both are reported as simply
// unknown rather than "no owner yet".
func hideReplyForName(order binary.ByteOrder, h *wire.Header, name string) []byte {
	if strings.HasPrefix(name, ":") || h.Flags&wire.NoAutoStart != 0 {
		return wire.EncodeError(order, 0, h.Serial, errServiceUnknown, "s", wire.EncodeStringBody(order, name))
	}
	return wire.EncodeError(order, 0, h.Serial, errNameHasNoOwner, "s", wire.EncodeStringBody(order, name))
}

func (c *Client) rewriteDeny(order binary.ByteOrder, h *wire.Header, wantsReply bool) Outcome {
	c.Log.Warn("denying message: policy violation", logger.Fields{
		"destination": h.Destination,
		"interface":   h.Interface,
		"member":      h.Member,
	})
	return c.rewriteCanned(order, h, wantsReply, wire.EncodeError(order, 0, h.Serial, errAccessDenied, "", nil))
}

// rewriteCanned implements the synthesized round trip: if the original
// call wanted no reply it is simply dropped; otherwise the canned reply
// (its serial not yet set — the Side fills it in when the Ping answer
// arrives) is stashed under the client's own serial and a Peer.Ping
// carrying that same serial is sent upstream in its place.
func (c *Client) rewriteCanned(order binary.ByteOrder, h *wire.Header, wantsReply bool, canned []byte) Outcome {
	if !wantsReply {
		c.Log.Debug("dropping no-reply message after policy rewrite", logger.Fields{
			"destination": h.Destination,
			"member":      h.Member,
		})
		return Outcome{Drop: true}
	}
	c.setRewriteReply(h.Serial, canned)
	c.setExpected(h.Serial, Expectation{Kind: ExpectRewrite})
	ping := wire.EncodeMethodCall(order, h.Serial, "/", "org.freedesktop.DBus.Peer", "Ping", "", "", nil, false)
	return Outcome{Forward: ping}
}
