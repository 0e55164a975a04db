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

package proxy

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters a running Proxy exposes for scraping. They
// are registered against whatever prometheus.Registerer the caller hands
// in — production wiring typically uses prometheus.DefaultRegisterer via
// promhttp, left to the cmd/ entry point.
type Metrics struct {
	Connections      prometheus.Counter
	ConnectionsAlive prometheus.Gauge
	AuthFailures     prometheus.Counter
	PolicyDecisions  *prometheus.CounterVec
	SideClosures     *prometheus.CounterVec
}

// NewMetrics builds and registers a Metrics set on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dbusproxy",
			Name:      "connections_total",
			Help:      "Client connections accepted since startup.",
		}),
		ConnectionsAlive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dbusproxy",
			Name:      "connections_active",
			Help:      "Client connections currently proxied.",
		}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dbusproxy",
			Name:      "auth_failures_total",
			Help:      "Handshakes that failed or were aborted before COMPLETE.",
		}),
		PolicyDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dbusproxy",
			Name:      "policy_decisions_total",
			Help:      "Outgoing call classifications by handler.",
		}, []string{"handler"}),
		SideClosures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dbusproxy",
			Name:      "side_closures_total",
			Help:      "Connection sides closed, by side and reason.",
		}, []string{"side", "reason"}),
	}
	reg.MustRegister(m.Connections, m.ConnectionsAlive, m.AuthFailures, m.PolicyDecisions, m.SideClosures)
	return m
}
