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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sabouaram/dbusproxy/config"
	"github.com/sabouaram/dbusproxy/logger"
	"github.com/sabouaram/dbusproxy/policy"
	"github.com/sabouaram/dbusproxy/proxy"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	flagConfig       string
	flagSocketPath   string
	flagUpstreamAddr string
	flagFilter       bool
	flagLog          bool
	flagSloppyNames  bool
	flagReadinessFD  int
)

func main() {
	root := &cobra.Command{
		Use:           "dbusproxy",
		Short:         "filtering relay between a D-Bus client and an upstream bus",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          run,
	}

	fl := root.Flags()
	fl.StringVar(&flagConfig, "config", "", "path to a YAML configuration document")
	fl.StringVar(&flagSocketPath, "socket", "", "listening unix socket path (overrides config)")
	fl.StringVar(&flagUpstreamAddr, "upstream", "", "upstream bus unix socket address (overrides config)")
	fl.BoolVar(&flagFilter, "filter", true, "enable filtering (disable for pass-through debugging)")
	fl.BoolVar(&flagLog, "log", true, "enable logging")
	fl.BoolVar(&flagSloppyNames, "sloppy-names", false, "deliver NameOwnerChanged signals for unique names regardless of policy")
	fl.IntVar(&flagReadinessFD, "fd", -1, "inherited descriptor to signal readiness on")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	rules, err := config.CompileAll(cfg.Rules)
	if err != nil {
		return err
	}

	engine := policy.NewEngine()
	for _, rs := range rules {
		for _, r := range rs {
			engine.AddRule(r)
		}
	}

	log := logger.New(os.Stderr)
	if !cfg.LogOn {
		log = logger.Discard()
	}

	reg := prometheus.NewRegistry()
	metrics := proxy.NewMetrics(reg)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	onReady := func() {}
	if flagReadinessFD >= 0 {
		onReady = func() { signalReadiness(flagReadinessFD) }
		go watchReadinessFD(flagReadinessFD, cancel)
	}

	p := proxy.New(proxy.Config{
		SocketPath:  cfg.SocketPath,
		Dialer:      proxy.UnixDialer{Address: cfg.UpstreamAddr},
		Engine:      engine,
		Filters:     rules,
		FilterOn:    cfg.FilterOn,
		SloppyNames: cfg.SloppyNames,
		Log:         log,
		Metrics:     metrics,
		OnReady:     onReady,
	})

	return p.ListenAndServe(ctx)
}

func loadConfig() (*config.ProxyConfig, error) {
	var cfg *config.ProxyConfig
	var err error

	if flagConfig != "" {
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = &config.ProxyConfig{SocketMode: config.DefaultSocketMode, FilterOn: true, LogOn: true}
	}

	if flagSocketPath != "" {
		cfg.SocketPath = flagSocketPath
	}
	if flagUpstreamAddr != "" {
		cfg.UpstreamAddr = flagUpstreamAddr
	}
	cfg.FilterOn = flagFilter
	cfg.LogOn = flagLog
	cfg.SloppyNames = cfg.SloppyNames || flagSloppyNames

	return cfg, nil
}

// signalReadiness writes a single zero byte to fd, telling whatever
// process handed it to us that the listening socket is bound.
func signalReadiness(fd int) {
	f := os.NewFile(uintptr(fd), "readiness-fd-"+strconv.Itoa(fd))
	if f == nil {
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = f.Write([]byte{0})
}

// watchReadinessFD cancels the proxy when the readiness descriptor
// reports EOF or error, mirroring a supervisor hanging up on us.
func watchReadinessFD(fd int, cancel context.CancelFunc) {
	f := os.NewFile(uintptr(fd), "readiness-fd-"+strconv.Itoa(fd))
	if f == nil {
		return
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 1)
	for {
		if _, err := f.Read(buf); err != nil {
			cancel()
			return
		}
	}
}
