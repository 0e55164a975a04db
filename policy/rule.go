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

import (
	"fmt"
	"strings"
)

// Rule is a single filter-rule record: a name pattern, whether it is a
// dotted-prefix subtree, a policy level, a type mask (for call/
// broadcast rules; zero for plain name-policy rules), and optional
// interface/member/path constraints.
type Rule struct {
	Name          string
	NameIsSubtree bool
	Policy        Level
	TypeMask      TypeMask

	Interface   string // "" means any
	Member      string // "" means any
	Path        string // "" means no path constraint
	PathSubtree bool
}

// NewNamePolicyRule builds a plain SEE/TALK/OWN rule: only the level
// applies, no call/broadcast constraints.
func NewNamePolicyRule(name string, subtree bool, level Level) Rule {
	return Rule{Name: name, NameIsSubtree: subtree, Policy: level}
}

// NewCallRule parses a call-rule string of the form
// "[interface[.member]][@path]" and builds a TALK-level rule restricted to
// TypeCall. A bare "*" (or an empty selector) means any interface and
// member. A path suffix ending in "/*" marks the path as a subtree; a
// missing "@path" means no path constraint at all (not root "/").
func NewCallRule(name string, subtree bool, ruleString string) (Rule, error) {
	return newConstrainedRule(name, subtree, TypeCall, ruleString)
}

// NewBroadcastRule is NewCallRule for TypeBroadcast (signal) rules.
func NewBroadcastRule(name string, subtree bool, ruleString string) (Rule, error) {
	return newConstrainedRule(name, subtree, TypeBroadcast, ruleString)
}

func newConstrainedRule(name string, subtree bool, mask TypeMask, ruleString string) (Rule, error) {
	r := Rule{Name: name, NameIsSubtree: subtree, Policy: Talk, TypeMask: mask}

	selector := ruleString
	if at := strings.IndexByte(ruleString, '@'); at >= 0 {
		selector = ruleString[:at]
		path := ruleString[at+1:]
		if path == "" {
			return r, fmt.Errorf("policy: empty path after '@' in rule %q", ruleString)
		}
		if strings.HasSuffix(path, "/*") {
			r.PathSubtree = true
			path = strings.TrimSuffix(path, "/*")
			if path == "" {
				path = "/"
			}
		}
		r.Path = path
	}

	if selector == "" || selector == "*" {
		return r, nil
	}

	if dot := strings.LastIndexByte(selector, '.'); dot >= 0 {
		iface := selector[:dot]
		member := selector[dot+1:]
		if iface != "*" && iface != "" {
			r.Interface = iface
		}
		if member != "*" && member != "" {
			r.Member = member
		}
	} else {
		// No dot: a bare interface name with no member constraint.
		r.Interface = selector
	}

	return r, nil
}

// MatchesCallOrBroadcast reports whether the rule applies to a message of
// the given kind with the given (path, interface, member) triple: policy
// must be at least TALK, the type mask must include the requested kind,
// and any constraints present on the rule must all match.
func (r Rule) MatchesCallOrBroadcast(kind TypeMask, path, iface, member string) bool {
	if r.Policy < Talk {
		return false
	}
	if !r.TypeMask.has(kind) {
		return false
	}
	if r.Interface != "" && r.Interface != iface {
		return false
	}
	if r.Member != "" && r.Member != member {
		return false
	}
	if r.Path == "" {
		return true
	}
	if r.PathSubtree {
		return path == r.Path || strings.HasPrefix(path, r.Path+"/")
	}
	return path == r.Path
}
