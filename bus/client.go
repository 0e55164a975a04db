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

// Package bus implements one proxied connection: the two sides (client and
// bus), the auth handshake that gates them, and the classification,
// rewrite, and reply-filtering pipeline that decides what crosses from
// one side to the other.
//
// A Client owns two Sides addressed by SideName, each running its own
// goroutine over blocking reads; Client carries a mutex guarding the
// shared classification state (expected replies, unique-name policy,
// owned-name bookkeeping) both goroutines touch. Each Side stores a
// pointer back to its Client, set when NewSide attaches it.
package bus

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/sabouaram/dbusproxy/auth"
	"github.com/sabouaram/dbusproxy/logger"
	"github.com/sabouaram/dbusproxy/policy"
)

// MaxClientSerial is the highest serial a real client message may carry;
// everything above it is reserved for the proxy's own synthesized
// messages.
const MaxClientSerial = math.MaxUint32 - 65536

// SideName distinguishes the two ends of a proxied connection.
type SideName uint8

const (
	ClientSide SideName = iota
	BusSide
)

// Other returns the opposite side.
func (s SideName) Other() SideName {
	if s == ClientSide {
		return BusSide
	}
	return ClientSide
}

func (s SideName) String() string {
	if s == BusSide {
		return "bus"
	}
	return "client"
}

// Client holds everything one proxied connection needs beyond the two
// raw sockets: the policy engine shared across every connection the
// proxy serves, this connection's derived unique-name bookkeeping, and
// the expected-reply/rewrite tables the classification pipeline
// populates and drains.
type Client struct {
	Engine       *policy.Engine
	Filters      map[string][]policy.Rule
	FilterOn     bool
	SloppyNames  bool
	Log          logger.Logger

	Sides [2]*Side
	Auth  *auth.Relay

	backlogStalled bool
	backlogCond    *sync.Cond

	mu              sync.Mutex
	uniquePolicy    map[string]policy.Level
	ownedNames      map[string][]string
	expected        map[uint32]Expectation
	rewriteReply    map[uint32][]byte
	getOwnerReply   map[uint32]string
	helloSerial     uint32
	ownUniqueName   string
	nextSynthSerial uint32
}

// NewClient builds a client bound to engine/filters. Sides are attached
// separately once both sockets exist (see NewSide).
func NewClient(engine *policy.Engine, filters map[string][]policy.Rule, filterOn, sloppyNames bool, log logger.Logger) *Client {
	c := &Client{
		Engine:          engine,
		Filters:         filters,
		FilterOn:        filterOn,
		SloppyNames:     sloppyNames,
		Log:             log,
		Auth:            auth.NewRelay(),
		uniquePolicy:    map[string]policy.Level{},
		ownedNames:      map[string][]string{},
		expected:        map[uint32]Expectation{},
		rewriteReply:    map[uint32][]byte{},
		getOwnerReply:   map[uint32]string{},
		nextSynthSerial: math.MaxUint32,
	}
	c.backlogCond = sync.NewCond(&c.mu)
	return c
}

// waitForBacklogRelease blocks the caller while client-side reads are
// held back: either the auth handshake's WAITING_FOR_BACKLOG stall
// hasn't drained, or the initial synthetic ListNames burst hasn't
// answered. It returns immediately when nothing has paused the backlog,
// so calling it on every RunMessages iteration costs only the mutex.
func (c *Client) waitForBacklogRelease() {
	c.mu.Lock()
	for c.backlogStalled {
		c.backlogCond.Wait()
	}
	c.mu.Unlock()
}

// releaseBacklog clears any backlog stall and wakes every waiter. Safe
// to call when nothing is stalled.
func (c *Client) releaseBacklog() {
	c.mu.Lock()
	c.backlogStalled = false
	c.mu.Unlock()
	c.backlogCond.Broadcast()
}

// clientLookup adapts Client's per-connection maps to policy.Lookup.
type clientLookup struct{ c *Client }

func (l clientLookup) UniquePolicy(name string) policy.Level { return l.c.uniquePolicy[name] }
func (l clientLookup) OwnedNames(name string) []string       { return l.c.ownedNames[name] }

func (c *Client) lookup() policy.Lookup { return clientLookup{c} }

// MaxPolicy resolves a name's policy under this connection's current
// bookkeeping.
func (c *Client) MaxPolicy(name string) policy.Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Engine.MaxPolicy(name, c.lookup())
}

// MaxPolicyAndMatched resolves a name's policy and matching rules.
func (c *Client) MaxPolicyAndMatched(name string) (policy.Level, []policy.Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Engine.MaxPolicyAndMatched(name, c.lookup())
}

// RaisePolicy raises name's stored policy to at least level; a
// connection's policy for a name only ever climbs, never drops.
func (c *Client) RaisePolicy(name string, level policy.Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur := c.uniquePolicy[name]; level > cur {
		c.uniquePolicy[name] = level
	}
}

// RecordOwnership associates owner (a unique name) with a well-known name
// it now owns.
func (c *Client) RecordOwnership(owner, name string) {
	if !strings.HasPrefix(owner, ":") || owner == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.ownedNames[owner] {
		if n == name {
			return
		}
	}
	c.ownedNames[owner] = append(c.ownedNames[owner], name)
}

// SetOwnUniqueName records the unique name the bus assigned this
// connection in reply to Hello.
func (c *Client) SetOwnUniqueName(name string) {
	c.mu.Lock()
	c.ownUniqueName = name
	c.mu.Unlock()
	c.RaisePolicy(name, policy.Talk)
}

// NextSynthSerial allocates the next strictly-decreasing synthesized
// serial, always greater than MaxClientSerial.
func (c *Client) NextSynthSerial() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSynthSerial--
	if c.nextSynthSerial <= MaxClientSerial {
		// Exhausting the synthesized serial space would require more than
		// 65,000 synthesized calls in one connection's lifetime;
		// treat it as a programming error rather than silently wrapping
		// into client-owned serial space.
		panic(fmt.Sprintf("bus: synthesized serial space exhausted for client %p", c))
	}
	return c.nextSynthSerial
}

// configuredFilterNames returns the proxy-wide filter table's name keys,
// in no particular order — used once, right after Hello, to drive the
// initial synthesized burst.
func (c *Client) configuredFilterNames() []string {
	names := make([]string, 0, len(c.Filters))
	for n := range c.Filters {
		names = append(names, n)
	}
	return names
}

func (c *Client) setExpected(serial uint32, e Expectation) {
	c.mu.Lock()
	c.expected[serial] = e
	c.mu.Unlock()
}

func (c *Client) takeExpected(serial uint32) (Expectation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.expected[serial]
	if ok {
		delete(c.expected, serial)
	}
	return e, ok
}

func (c *Client) peekExpected(serial uint32) (Expectation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.expected[serial]
	return e, ok
}

func (c *Client) setRewriteReply(serial uint32, reply []byte) {
	c.mu.Lock()
	c.rewriteReply[serial] = reply
	c.mu.Unlock()
}

func (c *Client) takeRewriteReply(serial uint32) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rewriteReply[serial]
	if ok {
		delete(c.rewriteReply, serial)
	}
	return r, ok
}

func (c *Client) setGetOwnerReplyTarget(serial uint32, name string) {
	c.mu.Lock()
	c.getOwnerReply[serial] = name
	c.mu.Unlock()
}

func (c *Client) takeGetOwnerReplyTarget(serial uint32) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.getOwnerReply[serial]
	if ok {
		delete(c.getOwnerReply, serial)
	}
	return n, ok
}
