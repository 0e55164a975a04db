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

package config_test

import (
	"testing"

	"github.com/sabouaram/dbusproxy/config"
	"github.com/sabouaram/dbusproxy/policy"
)

func TestValidateRejectsUniqueName(t *testing.T) {
	f := config.FilterRule{Name: ":1.5", Policy: "talk"}
	if err := f.Validate(); err == nil {
		t.Fatal("expected error for unique-name filter target")
	}
}

func TestValidateRejectsEmptyName(t *testing.T) {
	f := config.FilterRule{Name: "", Policy: "talk"}
	if err := f.Validate(); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestValidateRejectsWhitespace(t *testing.T) {
	f := config.FilterRule{Name: "org. example", Policy: "talk"}
	if err := f.Validate(); err == nil {
		t.Fatal("expected error for whitespace in name")
	}
}

func TestCompileNamePolicy(t *testing.T) {
	f := config.FilterRule{Name: "org.example.A", Subtree: true, Policy: "talk"}
	r, err := f.Compile()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Policy != policy.Talk || !r.NameIsSubtree {
		t.Fatalf("unexpected compiled rule: %+v", r)
	}
}

func TestCompileRejectsAmbiguousRule(t *testing.T) {
	f := config.FilterRule{Name: "org.example.A", Policy: "talk", CallRule: "*.Foo"}
	if _, err := f.Compile(); err == nil {
		t.Fatal("expected error when both policy and call are set")
	}
}

func TestCompileCallRule(t *testing.T) {
	f := config.FilterRule{Name: "org.example.A", CallRule: "org.example.Iface.Method@/obj/*"}
	r, err := f.Compile()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.MatchesCallOrBroadcast(policy.TypeCall, "/obj/sub", "org.example.Iface", "Method") {
		t.Fatal("expected compiled call rule to match")
	}
}

func TestCompileAllRejectsOneBadEntryWholeSale(t *testing.T) {
	rules := []config.FilterRule{
		{Name: "org.example.A", Policy: "talk"},
		{Name: ":1.2", Policy: "see"},
	}
	if _, err := config.CompileAll(rules); err == nil {
		t.Fatal("expected CompileAll to reject the whole set")
	}
}

func TestCompileAllGroupsByName(t *testing.T) {
	rules := []config.FilterRule{
		{Name: "org.example.A", Policy: "see"},
		{Name: "org.example.A", CallRule: "*.Method"},
	}
	out, err := config.CompileAll(rules)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out["org.example.A"]) != 2 {
		t.Fatalf("expected 2 rules under org.example.A, got %d", len(out["org.example.A"]))
	}
}
