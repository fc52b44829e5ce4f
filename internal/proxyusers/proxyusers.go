// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package proxyusers governs which service accounts may impersonate
// other users, and from which hosts.
package proxyusers

import (
	"sync/atomic"

	"grimm.is/foreman/internal/acl"
	"grimm.is/foreman/internal/config"
	"grimm.is/foreman/internal/errors"
)

// Rule names the groups a proxy user may impersonate on behalf of and
// the hosts it may connect from. A "*" entry matches everything.
type Rule struct {
	Groups map[string]struct{}
	Hosts  map[string]struct{}
}

func (r Rule) allowsGroup(groups []string) bool {
	if _, ok := r.Groups[acl.Wildcard]; ok {
		return true
	}
	for _, g := range groups {
		if _, ok := r.Groups[g]; ok {
			return true
		}
	}
	return false
}

func (r Rule) allowsHost(host string) bool {
	if _, ok := r.Hosts[acl.Wildcard]; ok {
		return true
	}
	_, ok := r.Hosts[host]
	return ok
}

// Store holds the active impersonation rules behind an atomic pointer;
// Authorize reads a consistent snapshot while Refresh installs a new
// one.
type Store struct {
	load  func() ([]config.ProxyUser, error)
	rules atomic.Pointer[map[string]Rule]
}

// NewStore builds a store that pulls rules from load on each Refresh,
// installing the given initial rules immediately.
func NewStore(initial []config.ProxyUser, load func() ([]config.ProxyUser, error)) *Store {
	s := &Store{load: load}
	s.install(initial)
	return s
}

func (s *Store) install(entries []config.ProxyUser) {
	rules := make(map[string]Rule, len(entries))
	for _, e := range entries {
		r := Rule{
			Groups: make(map[string]struct{}, len(e.Groups)),
			Hosts:  make(map[string]struct{}, len(e.Hosts)),
		}
		for _, g := range e.Groups {
			r.Groups[g] = struct{}{}
		}
		for _, h := range e.Hosts {
			r.Hosts[h] = struct{}{}
		}
		rules[e.Name] = r
	}
	s.rules.Store(&rules)
}

// Refresh reloads the rules from the configured source. On error the
// previous rules stay in effect.
func (s *Store) Refresh() error {
	entries, err := s.load()
	if err != nil {
		return errors.Wrap(err, errors.KindConfiguration, "failed to reload proxy user rules")
	}
	s.install(entries)
	return nil
}

// Authorize returns nil when proxyUser, connecting from host, may act
// for a user in realGroups.
func (s *Store) Authorize(proxyUser string, realGroups []string, host string) error {
	rules := *s.rules.Load()
	r, ok := rules[proxyUser]
	if !ok {
		return errors.Errorf(errors.KindPermission,
			"user %s is not a configured proxy user", proxyUser)
	}
	if !r.allowsHost(host) {
		return errors.Errorf(errors.KindPermission,
			"proxy user %s may not connect from %s", proxyUser, host)
	}
	if !r.allowsGroup(realGroups) {
		return errors.Errorf(errors.KindPermission,
			"proxy user %s may not impersonate members of %v", proxyUser, realGroups)
	}
	return nil
}

// Len returns the number of active rules.
func (s *Store) Len() int {
	return len(*s.rules.Load())
}
