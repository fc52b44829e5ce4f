// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package acl implements access control lists for privileged operations.
//
// An ACL is written as two space-separated fields, "users groups", each
// a comma-separated list. A single "*" grants access to everyone. The
// empty string grants access to no one.
package acl

import (
	"sort"
	"strings"
)

// Wildcard grants access to every principal.
const Wildcard = "*"

// Principal identifies an authenticated caller.
type Principal struct {
	Name   string
	Groups []string
}

// List is an immutable parsed ACL. Being immutable, a List may be
// shared across goroutines without locking.
type List struct {
	users    map[string]struct{}
	groups   map[string]struct{}
	allowAll bool
}

// Parse builds a List from its textual form. Whitespace around entries
// is trimmed and empty entries are ignored.
func Parse(spec string) *List {
	l := &List{
		users:  make(map[string]struct{}),
		groups: make(map[string]struct{}),
	}

	if strings.TrimSpace(spec) == Wildcard {
		l.allowAll = true
		return l
	}

	// The field separator is the first space: " admins" has no user
	// entries, only groups.
	userPart, groupPart, _ := strings.Cut(spec, " ")
	for _, u := range strings.Split(userPart, ",") {
		if u = strings.TrimSpace(u); u != "" {
			l.users[u] = struct{}{}
		}
	}
	for _, g := range strings.Split(groupPart, ",") {
		if g = strings.TrimSpace(g); g != "" {
			l.groups[g] = struct{}{}
		}
	}
	return l
}

// IsAllowed reports whether p matches the list, either by user name or
// by membership in any listed group.
func (l *List) IsAllowed(p Principal) bool {
	if l.allowAll {
		return true
	}
	if _, ok := l.users[p.Name]; ok {
		return true
	}
	for _, g := range p.Groups {
		if _, ok := l.groups[g]; ok {
			return true
		}
	}
	return false
}

// String renders the list back to its textual form with entries sorted,
// suitable for audit lines.
func (l *List) String() string {
	if l.allowAll {
		return Wildcard
	}
	users := keys(l.users)
	groups := keys(l.groups)
	if len(groups) == 0 {
		return strings.Join(users, ",")
	}
	return strings.Join(users, ",") + " " + strings.Join(groups, ",")
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
