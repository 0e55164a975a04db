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

package policy

import "strings"

// Engine holds the proxy's static, immutable rule table and resolves
// max_policy against it. Per-connection state (unique_id_policy,
// unique_id_owned_names) lives on the Client and is passed in by the
// caller rather than stored here, keeping the engine itself stateless and
// safe to share across every client the proxy serves.
type Engine struct {
	filters map[string][]Rule
}

// NewEngine returns an empty rule table.
func NewEngine() *Engine {
	return &Engine{filters: map[string][]Rule{}}
}

// AddRule registers r under its exact name key.
func (e *Engine) AddRule(r Rule) {
	e.filters[r.Name] = append(e.filters[r.Name], r)
}

// Lookup returns the state a caller needs to resolve Engine.MaxPolicy
// against per-connection unique-name bookkeeping.
type Lookup interface {
	UniquePolicy(uniqueName string) Level
	OwnedNames(uniqueName string) []string
}

// MaxPolicy returns the highest policy level source holds.
func (e *Engine) MaxPolicy(source string, l Lookup) Level {
	lvl, _ := e.MaxPolicyAndMatched(source, l)
	return lvl
}

// MaxPolicyAndMatched is MaxPolicy plus the full set of matching rules,
// used by broadcast filtering. For names whose policy derives from
// bookkeeping rather than a concrete rule (any unique name), a sentinel
// match-all rule at the resolved level is appended so downstream broadcast
// matching sees SEE/TALK/OWN coverage uniformly.
func (e *Engine) MaxPolicyAndMatched(source string, l Lookup) (Level, []Rule) {
	if source == "" {
		return Talk, nil
	}

	if strings.HasPrefix(source, ":") {
		lvl := l.UniquePolicy(source)
		var matched []Rule
		for _, owned := range l.OwnedNames(source) {
			ol, om := e.MaxPolicyAndMatched(owned, l)
			lvl = Max(lvl, ol)
			matched = append(matched, om...)
		}
		matched = append(matched, Rule{Policy: lvl, TypeMask: TypeCall | TypeBroadcast})
		return lvl, matched
	}

	lvl := None
	var matched []Rule
	name := source
	first := true
	for {
		for _, r := range e.filters[name] {
			if r.NameIsSubtree || first {
				lvl = Max(lvl, r.Policy)
				matched = append(matched, r)
			}
		}
		dot := strings.LastIndexByte(name, '.')
		if dot < 0 {
			break
		}
		name = name[:dot]
		first = false
	}
	return lvl, matched
}

// MatchesAnyCallOrBroadcast reports whether any rule in matched accepts
// the given (path, interface, member) triple for kind.
func MatchesAnyCallOrBroadcast(matched []Rule, kind TypeMask, path, iface, member string) bool {
	for _, r := range matched {
		if r.MatchesCallOrBroadcast(kind, path, iface, member) {
			return true
		}
	}
	return false
}
