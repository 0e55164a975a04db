package policy_test

import (
	"testing"

	"github.com/sabouaram/dbusproxy/policy"
)

type fakeLookup struct {
	unique map[string]policy.Level
	owned  map[string][]string
}

func (f fakeLookup) UniquePolicy(name string) policy.Level { return f.unique[name] }
func (f fakeLookup) OwnedNames(name string) []string       { return f.owned[name] }

func TestMaxPolicyEmptySourceIsTalk(t *testing.T) {
	e := policy.NewEngine()
	if lvl := e.MaxPolicy("", fakeLookup{}); lvl != policy.Talk {
		t.Fatalf("got %v, want talk", lvl)
	}
}

func TestMaxPolicyWellKnownSubtree(t *testing.T) {
	e := policy.NewEngine()
	e.AddRule(policy.NewNamePolicyRule("org.example", true, policy.See))
	e.AddRule(policy.NewNamePolicyRule("org.example.Service", false, policy.Talk))

	if lvl := e.MaxPolicy("org.example.Service", fakeLookup{}); lvl != policy.Talk {
		t.Fatalf("got %v, want talk", lvl)
	}
	if lvl := e.MaxPolicy("org.example.Service.Sub", fakeLookup{}); lvl != policy.See {
		t.Fatalf("got %v, want see (only the subtree rule should apply)", lvl)
	}
	if lvl := e.MaxPolicy("org.other", fakeLookup{}); lvl != policy.None {
		t.Fatalf("got %v, want none", lvl)
	}
}

func TestMaxPolicyUniqueNameCombinesOwnedNames(t *testing.T) {
	e := policy.NewEngine()
	e.AddRule(policy.NewNamePolicyRule("org.example.Service", false, policy.Own))

	l := fakeLookup{
		unique: map[string]policy.Level{":1.42": policy.See},
		owned:  map[string][]string{":1.42": {"org.example.Service"}},
	}
	lvl, matched := e.MaxPolicyAndMatched(":1.42", l)
	if lvl != policy.Own {
		t.Fatalf("got %v, want own", lvl)
	}
	if len(matched) == 0 {
		t.Fatalf("expected matched rules to include the owned-name rule and the sentinel")
	}
}

func TestMatchesCallRuleWildcardInterface(t *testing.T) {
	r, err := policy.NewCallRule("org.example.Service", false, "*@/org/example/Obj/*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.MatchesCallOrBroadcast(policy.TypeCall, "/org/example/Obj/Child", "any.iface", "AnyMember") {
		t.Fatalf("expected subtree path match with wildcard interface to succeed")
	}
	if r.MatchesCallOrBroadcast(policy.TypeCall, "/org/other", "any.iface", "AnyMember") {
		t.Fatalf("expected non-matching path to be rejected")
	}
}

func TestMatchesAnyCallOrBroadcast(t *testing.T) {
	r, err := policy.NewBroadcastRule("org.example.Service", false, "org.example.I.Changed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matched := []policy.Rule{r}
	if !policy.MatchesAnyCallOrBroadcast(matched, policy.TypeBroadcast, "/p", "org.example.I", "Changed") {
		t.Fatalf("expected broadcast match")
	}
	if policy.MatchesAnyCallOrBroadcast(matched, policy.TypeCall, "/p", "org.example.I", "Changed") {
		t.Fatalf("rule is broadcast-only, should not match a call")
	}
}
