// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package acl

import (
	"testing"

	"grimm.is/foreman/internal/errors"
)

func TestParseAndIsAllowed(t *testing.T) {
	tests := []struct {
		name      string
		spec      string
		principal Principal
		want      bool
	}{
		{"wildcard allows anyone", "*", Principal{Name: "nobody"}, true},
		{"user match", "alice,bob operators", Principal{Name: "alice"}, true},
		{"second user match", "alice,bob operators", Principal{Name: "bob"}, true},
		{"group match", "alice operators,admins", Principal{Name: "carol", Groups: []string{"admins"}}, true},
		{"no match", "alice operators", Principal{Name: "carol", Groups: []string{"dev"}}, false},
		{"empty spec denies", "", Principal{Name: "alice"}, false},
		{"users only", "alice", Principal{Name: "alice"}, true},
		{"groups only", " operators", Principal{Name: "x", Groups: []string{"operators"}}, true},
		{"extra separator space tolerated", "alice,bob  operators", Principal{Name: "x", Groups: []string{"operators"}}, true},
		{"wildcard not partial", "*x", Principal{Name: "y"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.spec).IsAllowed(tt.principal)
			if got != tt.want {
				t.Errorf("Parse(%q).IsAllowed(%v) = %v, want %v", tt.spec, tt.principal, got, tt.want)
			}
		})
	}
}

func TestListString(t *testing.T) {
	tests := []struct {
		spec string
		want string
	}{
		{"*", "*"},
		{"bob,alice", "alice,bob"},
		{"bob,alice ops,admins", "alice,bob admins,ops"},
		{" admins", " admins"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Parse(tt.spec).String(); got != tt.want {
			t.Errorf("Parse(%q).String() = %q, want %q", tt.spec, got, tt.want)
		}
	}
}

func TestGateAuthorize(t *testing.T) {
	g := NewGate("alice")

	if err := g.Authorize(Principal{Name: "alice"}, "refreshQueues"); err != nil {
		t.Fatalf("expected alice to be authorized: %v", err)
	}
	err := g.Authorize(Principal{Name: "bob"}, "refreshQueues")
	if err == nil {
		t.Fatal("expected bob to be denied")
	}
	if !errors.IsKind(err, errors.KindPermission) {
		t.Errorf("expected permission kind, got %v", errors.GetKind(err))
	}
}

func TestGateSwap(t *testing.T) {
	g := NewGate("alice")
	bob := Principal{Name: "bob"}

	if err := g.Authorize(bob, "op"); err == nil {
		t.Fatal("bob should be denied before swap")
	}
	g.Swap("alice,bob")
	if err := g.Authorize(bob, "op"); err != nil {
		t.Fatalf("bob should be allowed after swap: %v", err)
	}
	if got := g.Current().String(); got != "alice,bob" {
		t.Errorf("Current().String() = %q, want %q", got, "alice,bob")
	}
}
