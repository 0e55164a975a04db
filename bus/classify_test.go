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

package bus_test

import (
	"encoding/binary"

	"github.com/sabouaram/dbusproxy/bus"
	"github.com/sabouaram/dbusproxy/logger"
	"github.com/sabouaram/dbusproxy/policy"
	"github.com/sabouaram/dbusproxy/wire"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newTestClient(filterOn bool, rules ...policy.Rule) *bus.Client {
	engine := policy.NewEngine()
	filters := map[string][]policy.Rule{}
	for _, r := range rules {
		engine.AddRule(r)
		filters[r.Name] = append(filters[r.Name], r)
	}
	return bus.NewClient(engine, filters, filterOn, false, logger.Discard())
}

var _ = Describe("Outgoing call classification", func() {
	var c *bus.Client

	Describe("Denied talk", func() {
		BeforeEach(func() {
			c = newTestClient(true, policy.NewNamePolicyRule("org.example.B", false, policy.See))
		})

		It("rewrites a denied call into a Ping round trip and a canned AccessDenied reply", func() {
			msg := wire.EncodeMethodCall(binary.BigEndian, 5, "/org/example/B", "org.example.B", "DoThing", "org.example.B", "", nil, false)
			h, err := wire.ParseHeader(msg)
			Expect(err).ToNot(HaveOccurred())

			handler := c.Classify(h)
			Expect(handler).To(Equal(bus.HandlerDeny))

			out := c.Apply(handler, h, msg)
			Expect(out.Drop).To(BeFalse())
			Expect(out.ForwardFds).To(BeFalse())

			ping, err := wire.ParseHeader(out.Forward)
			Expect(err).ToNot(HaveOccurred())
			Expect(ping.Serial).To(Equal(uint32(5)))
			Expect(ping.Member).To(Equal("Ping"))
			Expect(ping.Interface).To(Equal("org.freedesktop.DBus.Peer"))

			// The Ping's reply now arrives from the bus with reply-serial 5.
			pingReply := wire.EncodeMethodReturn(binary.BigEndian, 99, 5, "", nil)
			rh, err := wire.ParseHeader(pingReply)
			Expect(err).ToNot(HaveOccurred())

			in := c.HandleIncoming(rh, pingReply)
			Expect(in.Drop).To(BeFalse())

			final, err := wire.ParseHeader(in.Forward)
			Expect(err).ToNot(HaveOccurred())
			Expect(final.Type).To(Equal(wire.TypeError))
			Expect(final.ReplySerial).To(Equal(uint32(5)))
			Expect(final.ErrorName).To(Equal("org.freedesktop.DBus.Error.AccessDenied"))
		})
	})

	Describe("NameHasOwner hiding", func() {
		BeforeEach(func() {
			c = newTestClient(true, policy.NewNamePolicyRule("org.a", false, policy.See))
		})

		It("answers through a Ping round trip instead of forwarding NameHasOwner", func() {
			body := wire.EncodeStringBody(binary.BigEndian, "org.b")
			msg := wire.EncodeMethodCall(binary.BigEndian, 7, "/org/freedesktop/DBus", "org.freedesktop.DBus", "NameHasOwner", "org.freedesktop.DBus", "s", body, false)
			h, err := wire.ParseHeader(msg)
			Expect(err).ToNot(HaveOccurred())

			handler := c.Classify(h)
			Expect(handler).To(Equal(bus.HandlerFilterHasOwnerReply))

			out := c.Apply(handler, h, msg)
			Expect(out.ForwardFds).To(BeFalse())

			ping, err := wire.ParseHeader(out.Forward)
			Expect(err).ToNot(HaveOccurred())

			pingReply := wire.EncodeMethodReturn(binary.BigEndian, 1, 7, "", nil)
			rh, _ := wire.ParseHeader(pingReply)
			in := c.HandleIncoming(rh, pingReply)

			final, err := wire.ParseHeader(in.Forward)
			Expect(err).ToNot(HaveOccurred())
			Expect(final.ReplySerial).To(Equal(uint32(7)))
			Expect(ping.Member).To(Equal("Ping"))
		})
	})

	Describe("ListNames filtering", func() {
		BeforeEach(func() {
			c = newTestClient(true, policy.NewNamePolicyRule("org.a", false, policy.See))
		})

		It("strips names the connection cannot see from the reply", func() {
			call := wire.EncodeMethodCall(binary.BigEndian, 3, "/org/freedesktop/DBus", "org.freedesktop.DBus", "ListNames", "org.freedesktop.DBus", "", nil, false)
			h, _ := wire.ParseHeader(call)
			handler := c.Classify(h)
			Expect(handler).To(Equal(bus.HandlerFilterNameListReply))
			out := c.Apply(handler, h, call)
			Expect(out.ForwardFds).To(BeTrue())

			replyBody := wire.EncodeStringArrayBody(binary.BigEndian, []string{"org.a", "org.b", "org.c"})
			reply := wire.EncodeMethodReturn(binary.BigEndian, 10, 3, "as", replyBody)
			rh, _ := wire.ParseHeader(reply)

			in := c.HandleIncoming(rh, reply)
			fh, err := wire.ParseHeader(in.Forward)
			Expect(err).ToNot(HaveOccurred())
			names, err := wire.DecodeStringArray(binary.BigEndian, fh.Body())
			Expect(err).ToNot(HaveOccurred())
			Expect(names).To(Equal([]string{"org.a"}))
		})
	})

	Describe("serial-space boundary", func() {
		It("reserves exactly the top 65536 serials for synthesized messages", func() {
			Expect(uint64(bus.MaxClientSerial)).To(Equal(uint64(1<<32 - 65536)))
		})
	})
})
