// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package acl

import (
	"sync/atomic"

	"grimm.is/foreman/internal/errors"
)

// Gate authorizes callers against a replaceable ACL. The current list
// is held behind an atomic pointer so checks never block a concurrent
// refresh; a caller sees either the old list or the new one, never a
// partial state.
type Gate struct {
	list atomic.Pointer[List]
}

// NewGate parses spec and returns a gate enforcing it.
func NewGate(spec string) *Gate {
	g := &Gate{}
	g.list.Store(Parse(spec))
	return g
}

// Authorize returns nil when p may perform op, or a permission error
// naming the caller and the operation.
func (g *Gate) Authorize(p Principal, op string) error {
	if g.list.Load().IsAllowed(p) {
		return nil
	}
	return errors.Errorf(errors.KindPermission,
		"user %s is not authorized to perform %s", p.Name, op)
}

// Swap atomically replaces the enforced ACL.
func (g *Gate) Swap(spec string) {
	g.list.Store(Parse(spec))
}

// Current returns the list being enforced right now.
func (g *Gate) Current() *List {
	return g.list.Load()
}
