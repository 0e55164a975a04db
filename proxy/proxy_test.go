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

package proxy_test

import (
	"context"
	"encoding/binary"
	"net"
	"path/filepath"

	"github.com/sabouaram/dbusproxy/logger"
	"github.com/sabouaram/dbusproxy/policy"
	"github.com/sabouaram/dbusproxy/proxy"
	"github.com/sabouaram/dbusproxy/wire"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// readFullMessage mirrors bus.Side's own framing: accumulate the 16-byte
// fixed header, compute the total message length, then read the rest.
func readFullMessage(conn net.Conn) ([]byte, *wire.Header) {
	buf := make([]byte, 16)
	read := 0
	for read < 16 {
		n, err := conn.Read(buf[read:])
		Expect(err).ToNot(HaveOccurred())
		read += n
	}

	var order binary.ByteOrder = binary.BigEndian
	if buf[0] == 'l' {
		order = binary.LittleEndian
	}
	bodyLen := int(order.Uint32(buf[4:8]))
	arrayLen := int(order.Uint32(buf[12:16]))
	headerEnd := (16 + arrayLen + 7) &^ 7
	total := headerEnd + bodyLen

	if total > len(buf) {
		grown := make([]byte, total)
		copy(grown, buf)
		buf = grown
	}
	for read < total {
		n, err := conn.Read(buf[read:])
		Expect(err).ToNot(HaveOccurred())
		read += n
	}

	h, err := wire.ParseHeader(buf)
	Expect(err).ToNot(HaveOccurred())
	return buf, h
}

var _ = Describe("Proxy accept loop", func() {
	var (
		dir          string
		proxySocket  string
		busSocket    string
		busListener  *net.UnixListener
		p            *proxy.Proxy
		ctx          context.Context
		cancel       context.CancelFunc
		serverErr    chan error
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		proxySocket = filepath.Join(dir, "proxy.sock")
		busSocket = filepath.Join(dir, "bus.sock")

		addr, err := net.ResolveUnixAddr("unix", busSocket)
		Expect(err).ToNot(HaveOccurred())
		busListener, err = net.ListenUnix("unix", addr)
		Expect(err).ToNot(HaveOccurred())

		p = proxy.New(proxy.Config{
			SocketPath: proxySocket,
			Dialer:     proxy.UnixDialer{Address: busSocket},
			Engine:     policy.NewEngine(),
			Filters:    map[string][]policy.Rule{},
			FilterOn:   false,
			Log:        logger.Discard(),
		})

		ctx, cancel = context.WithCancel(context.Background())
		serverErr = make(chan error, 1)
		go func() { serverErr <- p.ListenAndServe(ctx) }()

		Eventually(func() error {
			c, err := net.Dial("unix", proxySocket)
			if err == nil {
				_ = c.Close()
			}
			return err
		}, "2s", "10ms").Should(Succeed())
	})

	AfterEach(func() {
		cancel()
		_ = busListener.Close()
		Eventually(serverErr, "2s").Should(Receive())
	})

	It("relays the auth handshake and a Hello round trip end to end", func() {
		busAccepted := make(chan *net.UnixConn, 1)
		go func() {
			c, err := busListener.AcceptUnix()
			if err == nil {
				busAccepted <- c
			}
		}()

		client, err := net.Dial("unix", proxySocket)
		Expect(err).ToNot(HaveOccurred())
		defer func() { _ = client.Close() }()

		_, err = client.Write([]byte{0})
		Expect(err).ToNot(HaveOccurred())
		_, err = client.Write([]byte("AUTH EXTERNAL 31303030\r\n"))
		Expect(err).ToNot(HaveOccurred())

		var busConn *net.UnixConn
		Eventually(busAccepted, "2s").Should(Receive(&busConn))
		defer func() { _ = busConn.Close() }()

		cred := make([]byte, 1)
		n, err := busConn.Read(cred)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(1))

		authLine := make([]byte, 64)
		n, err = busConn.Read(authLine)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(authLine[:n])).To(Equal("AUTH EXTERNAL 31303030\r\n"))

		_, err = busConn.Write([]byte("OK 0123456789abcdef0123456789abcdef\r\n"))
		Expect(err).ToNot(HaveOccurred())

		_, err = client.Write([]byte("BEGIN\r\n"))
		Expect(err).ToNot(HaveOccurred())

		hello := wire.EncodeMethodCall(binary.BigEndian, 1, "/org/freedesktop/DBus", "org.freedesktop.DBus", "Hello", "org.freedesktop.DBus", "", nil, false)
		_, err = client.Write(hello)
		Expect(err).ToNot(HaveOccurred())

		_, h := readFullMessage(busConn)
		Expect(h.Member).To(Equal("Hello"))
		Expect(h.Serial).To(Equal(uint32(1)))

		reply := wire.EncodeMethodReturn(binary.BigEndian, 50, h.Serial, "s", wire.EncodeStringBody(binary.BigEndian, ":1.42"))
		_, err = busConn.Write(reply)
		Expect(err).ToNot(HaveOccurred())

		_, rh := readFullMessage(client)
		Expect(rh.Type).To(Equal(wire.TypeMethodReturn))
		Expect(rh.ReplySerial).To(Equal(uint32(1)))
		name, err := wire.DecodeFirstString(binary.BigEndian, rh.Body())
		Expect(err).ToNot(HaveOccurred())
		Expect(name).To(Equal(":1.42"))
	})
})
