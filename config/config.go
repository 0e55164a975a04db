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

package config

import (
	"fmt"
	"os"

	liberr "github.com/sabouaram/dbusproxy/errors"
	"gopkg.in/yaml.v3"
)

// ProxyConfig is the top-level YAML document a cmd/dbusproxy front end
// decodes and turns into a proxy.Proxy.
type ProxyConfig struct {
	SocketPath   string       `yaml:"socket_path"`
	SocketMode   SocketMode   `yaml:"socket_mode,omitempty"`
	UpstreamAddr string       `yaml:"upstream_address"`
	FilterOn     bool         `yaml:"filter"`
	LogOn        bool         `yaml:"log"`
	SloppyNames  bool         `yaml:"sloppy_names"`
	Rules        []FilterRule `yaml:"rules,omitempty"`
}

// Load decodes a YAML document from path into a ProxyConfig, applying
// DefaultSocketMode when the document doesn't set one.
func Load(path string) (*ProxyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, liberr.New(liberr.CodeConfiguration, fmt.Errorf("config: reading %s: %w", path, err))
	}

	cfg := &ProxyConfig{SocketMode: DefaultSocketMode}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, liberr.New(liberr.CodeConfiguration, fmt.Errorf("config: parsing %s: %w", path, err))
	}
	return cfg, nil
}

// Validate checks required fields and every filter rule, without
// compiling them.
func (c *ProxyConfig) Validate() error {
	if c.SocketPath == "" {
		return liberr.Newf(liberr.CodeConfiguration, "config: socket_path is required")
	}
	if c.UpstreamAddr == "" {
		return liberr.Newf(liberr.CodeConfiguration, "config: upstream_address is required")
	}
	for _, r := range c.Rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}
