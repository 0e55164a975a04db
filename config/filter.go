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

// Package config decodes YAML configuration into the shapes the rest of
// the proxy consumes: filter rules compiled into policy.Rule values, and
// the top-level ProxyConfig a cmd/dbusproxy front end builds a
// proxy.Proxy from.
package config

import (
	"fmt"
	"strings"

	liberr "github.com/sabouaram/dbusproxy/errors"
	"github.com/sabouaram/dbusproxy/policy"
)

// FilterRule is one decoded YAML rule entry. Exactly one of Policy,
// CallRule, or BroadcastRule should be set; Compile rejects entries with
// none or more than one set.
type FilterRule struct {
	Name          string `yaml:"name"`
	Subtree       bool   `yaml:"subtree,omitempty"`
	Policy        string `yaml:"policy,omitempty"`
	CallRule      string `yaml:"call,omitempty"`
	BroadcastRule string `yaml:"broadcast,omitempty"`
}

// Validate rejects a unique-name filter target, an empty name, and a name
// containing whitespace.
func (f FilterRule) Validate() error {
	n := f.Name
	if n == "" {
		return liberr.Newf(liberr.CodeConfiguration, "config: filter rule has an empty name")
	}
	if strings.HasPrefix(n, ":") {
		return liberr.Newf(liberr.CodeConfiguration, "config: filter rule name %q is a unique name, not allowed", n)
	}
	if strings.ContainsAny(n, " \t\r\n") {
		return liberr.Newf(liberr.CodeConfiguration, "config: filter rule name %q contains whitespace", n)
	}
	return nil
}

// Compile turns a decoded entry into the policy engine's Rule type.
func (f FilterRule) Compile() (policy.Rule, error) {
	if err := f.Validate(); err != nil {
		return policy.Rule{}, err
	}

	set := 0
	if f.Policy != "" {
		set++
	}
	if f.CallRule != "" {
		set++
	}
	if f.BroadcastRule != "" {
		set++
	}
	if set != 1 {
		return policy.Rule{}, liberr.Newf(liberr.CodeConfiguration, "config: filter rule %q must set exactly one of policy/call/broadcast", f.Name)
	}

	switch {
	case f.Policy != "":
		lvl, err := parseLevel(f.Policy)
		if err != nil {
			return policy.Rule{}, liberr.New(liberr.CodeConfiguration, fmt.Errorf("config: filter rule %q: %w", f.Name, err))
		}
		return policy.NewNamePolicyRule(f.Name, f.Subtree, lvl), nil
	case f.CallRule != "":
		r, err := policy.NewCallRule(f.Name, f.Subtree, f.CallRule)
		if err != nil {
			return policy.Rule{}, liberr.New(liberr.CodeConfiguration, fmt.Errorf("config: filter rule %q: %w", f.Name, err))
		}
		return r, nil
	default:
		r, err := policy.NewBroadcastRule(f.Name, f.Subtree, f.BroadcastRule)
		if err != nil {
			return policy.Rule{}, liberr.New(liberr.CodeConfiguration, fmt.Errorf("config: filter rule %q: %w", f.Name, err))
		}
		return r, nil
	}
}

func parseLevel(s string) (policy.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "see":
		return policy.See, nil
	case "talk":
		return policy.Talk, nil
	case "own":
		return policy.Own, nil
	case "none":
		return policy.None, nil
	default:
		return policy.None, liberr.Newf(liberr.CodeConfiguration, "invalid policy level %q", s)
	}
}

// CompileAll compiles rules into the name → []Rule table bus.Client and
// policy.Engine expect, validating every entry before compiling any of
// them so a single bad entry rejects the whole configuration.
func CompileAll(rules []FilterRule) (map[string][]policy.Rule, error) {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	out := map[string][]policy.Rule{}
	for _, r := range rules {
		compiled, err := r.Compile()
		if err != nil {
			return nil, err
		}
		out[r.Name] = append(out[r.Name], compiled)
	}
	return out, nil
}
