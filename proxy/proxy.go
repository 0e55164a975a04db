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

// Package proxy accepts client connections on a listening Unix socket,
// dials the real bus for each one, and wires the two sockets together
// through a bus.Client so every message crosses its classification and
// rewrite pipeline.
package proxy

import (
	"context"
	"net"
	"os"
	"sync"

	"github.com/sabouaram/dbusproxy/bus"
	liberr "github.com/sabouaram/dbusproxy/errors"
	"github.com/sabouaram/dbusproxy/logger"
	"github.com/sabouaram/dbusproxy/policy"
)

// Dialer opens a fresh connection to the upstream bus for one proxied
// client. Production wiring dials a Unix socket at a fixed address or an
// address handed to the process by its own parent (session/system bus
// activation) — kept as an interface so tests can substitute a
// pre-connected socket pair.
type Dialer interface {
	DialBus(ctx context.Context) (*net.UnixConn, error)
}

// UnixDialer dials a fixed Unix socket address.
type UnixDialer struct{ Address string }

func (d UnixDialer) DialBus(ctx context.Context) (*net.UnixConn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", d.Address)
	if err != nil {
		return nil, liberr.New(liberr.CodeTransport, err)
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		_ = conn.Close()
		return nil, liberr.Newf(liberr.CodeConfiguration, "proxy: upstream dial did not yield a unix socket")
	}
	return uc, nil
}

// Config is everything a Proxy needs to run.
type Config struct {
	SocketPath  string
	Dialer      Dialer
	Engine      *policy.Engine
	Filters     map[string][]policy.Rule
	FilterOn    bool
	SloppyNames bool
	Log         logger.Logger
	Metrics     *Metrics
	// OnReady, if set, is called once the listening socket is bound and
	// before the accept loop starts — the hook point for signaling a
	// liveness descriptor that startup succeeded.
	OnReady func()
}

// Proxy listens on a Unix socket and proxies every accepted connection to
// the bus address its Dialer resolves.
type Proxy struct {
	cfg Config

	mu       sync.Mutex
	listener *net.UnixListener
	wg       sync.WaitGroup
}

// New builds a Proxy from cfg. A nil Log is replaced with a discarding
// logger; a nil Metrics leaves metrics uncollected.
func New(cfg Config) *Proxy {
	if cfg.Log == nil {
		cfg.Log = logger.Discard()
	}
	return &Proxy{cfg: cfg}
}

// ListenAndServe removes any stale socket file at cfg.SocketPath, binds a
// fresh listener, and accepts connections until ctx is cancelled. It
// blocks until the accept loop exits and every in-flight connection has
// been torn down.
func (p *Proxy) ListenAndServe(ctx context.Context) error {
	_ = os.Remove(p.cfg.SocketPath)

	addr, err := net.ResolveUnixAddr("unix", p.cfg.SocketPath)
	if err != nil {
		return liberr.New(liberr.CodeConfiguration, err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return liberr.New(liberr.CodeTransport, err)
	}

	p.mu.Lock()
	p.listener = ln
	p.mu.Unlock()

	if p.cfg.OnReady != nil {
		p.cfg.OnReady()
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	defer func() {
		_ = ln.Close()
		_ = os.Remove(p.cfg.SocketPath)
		p.wg.Wait()
	}()

	for {
		conn, err := ln.AcceptUnix()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.Connections.Inc()
			p.cfg.Metrics.ConnectionsAlive.Inc()
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.serve(ctx, conn)
			if p.cfg.Metrics != nil {
				p.cfg.Metrics.ConnectionsAlive.Dec()
			}
		}()
	}
}

// serve dials upstream, builds the Client/Side pair, and runs both
// directions of the connection until either side closes.
func (p *Proxy) serve(ctx context.Context, clientConn *net.UnixConn) {
	defer func() { _ = clientConn.Close() }()

	busConn, err := p.cfg.Dialer.DialBus(ctx)
	if err != nil {
		p.cfg.Log.Error("dialing upstream bus", err, nil)
		return
	}
	defer func() { _ = busConn.Close() }()

	client := bus.NewClient(p.cfg.Engine, p.cfg.Filters, p.cfg.FilterOn, p.cfg.SloppyNames, p.cfg.Log)
	clientSide := bus.NewSide(bus.ClientSide, clientConn, client)
	busSide := bus.NewSide(bus.BusSide, busConn, client)

	go clientSide.WriteLoop()
	go busSide.WriteLoop()

	authErr := make(chan error, 2)
	go func() { authErr <- clientSide.RunAuth() }()
	go func() { authErr <- busSide.RunAuth() }()

	for i := 0; i < 2; i++ {
		if err := <-authErr; err != nil {
			if p.cfg.Metrics != nil {
				p.cfg.Metrics.AuthFailures.Inc()
			}
			clientSide.Close()
			busSide.Close()
			return
		}
	}

	msgErr := make(chan struct {
		side SideLabel
		err  error
	}, 2)
	go func() { msgErr <- struct {
		side SideLabel
		err  error
	}{SideClient, clientSide.RunMessages()} }()
	go func() { msgErr <- struct {
		side SideLabel
		err  error
	}{SideBus, busSide.RunMessages()} }()

	first := <-msgErr
	p.recordClosure(first.side, first.err)
	clientSide.Close()
	busSide.Close()
	second := <-msgErr
	p.recordClosure(second.side, second.err)
}

// SideLabel names which half of a connection produced a closure, for
// metrics/logging only.
type SideLabel string

const (
	SideClient SideLabel = "client"
	SideBus    SideLabel = "bus"
)

func (p *Proxy) recordClosure(side SideLabel, err error) {
	reason := "eof"
	if err != nil {
		reason = "error"
	}
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.SideClosures.WithLabelValues(string(side), reason).Inc()
	}
	if err != nil {
		p.cfg.Log.Debug("connection side closed", logger.Fields{"side": string(side), "error": err.Error()})
	}
}
