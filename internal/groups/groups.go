// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package groups resolves the group memberships of users. Lookups are
// cached with a TTL; Refresh drops the cache so the next lookup hits
// the backend again.
package groups

import (
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"grimm.is/foreman/internal/errors"
)

// Mapper resolves users to groups.
type Mapper interface {
	// Groups returns the groups user belongs to, sorted.
	Groups(user string) ([]string, error)

	// Refresh invalidates any cached memberships.
	Refresh() error
}

// Backend is the uncached source of group memberships.
type Backend interface {
	Lookup(user string) ([]string, error)
}

// Service is a caching Mapper over a Backend.
type Service struct {
	backend Backend
	cache   *gocache.Cache
}

// NewService wraps backend with a cache holding entries for ttl.
func NewService(backend Backend, ttl time.Duration) *Service {
	return &Service{
		backend: backend,
		cache:   gocache.New(ttl, 2*ttl),
	}
}

// Groups implements Mapper.
func (s *Service) Groups(user string) ([]string, error) {
	if v, ok := s.cache.Get(user); ok {
		return v.([]string), nil
	}
	gs, err := s.backend.Lookup(user)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "group lookup for %s failed", user)
	}
	sorted := append([]string(nil), gs...)
	sort.Strings(sorted)
	s.cache.SetDefault(user, sorted)
	return sorted, nil
}

// Refresh implements Mapper.
func (s *Service) Refresh() error {
	s.cache.Flush()
	return nil
}

// StaticBackend serves memberships from a fixed in-memory table. Used
// for configured overrides and in tests.
type StaticBackend struct {
	mu    sync.RWMutex
	table map[string][]string
}

// NewStaticBackend copies table into a backend.
func NewStaticBackend(table map[string][]string) *StaticBackend {
	b := &StaticBackend{table: make(map[string][]string, len(table))}
	for u, gs := range table {
		b.table[u] = append([]string(nil), gs...)
	}
	return b
}

// Lookup implements Backend. Unknown users resolve to no groups.
func (b *StaticBackend) Lookup(user string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.table[user]...), nil
}

// Set replaces the memberships of one user.
func (b *StaticBackend) Set(user string, groups []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.table[user] = append([]string(nil), groups...)
}
