// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package groups

import (
	"reflect"
	"testing"
	"time"
)

type countingBackend struct {
	inner   Backend
	lookups int
}

func (c *countingBackend) Lookup(user string) ([]string, error) {
	c.lookups++
	return c.inner.Lookup(user)
}

func TestServiceCachesLookups(t *testing.T) {
	backend := &countingBackend{inner: NewStaticBackend(map[string][]string{
		"alice": {"operators", "analytics"},
	})}
	svc := NewService(backend, time.Minute)

	for i := 0; i < 3; i++ {
		gs, err := svc.Groups("alice")
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"analytics", "operators"}
		if !reflect.DeepEqual(gs, want) {
			t.Fatalf("Groups(alice) = %v, want %v", gs, want)
		}
	}
	if backend.lookups != 1 {
		t.Errorf("backend hit %d times, want 1", backend.lookups)
	}
}

func TestServiceRefreshDropsCache(t *testing.T) {
	static := NewStaticBackend(map[string][]string{"alice": {"operators"}})
	backend := &countingBackend{inner: static}
	svc := NewService(backend, time.Minute)

	if _, err := svc.Groups("alice"); err != nil {
		t.Fatal(err)
	}
	static.Set("alice", []string{"operators", "admins"})

	// Still cached: the update must not be visible yet.
	gs, _ := svc.Groups("alice")
	if !reflect.DeepEqual(gs, []string{"operators"}) {
		t.Fatalf("expected stale cached groups, got %v", gs)
	}

	if err := svc.Refresh(); err != nil {
		t.Fatal(err)
	}
	gs, err := svc.Groups("alice")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(gs, []string{"admins", "operators"}) {
		t.Fatalf("Groups(alice) after refresh = %v", gs)
	}
	if backend.lookups != 2 {
		t.Errorf("backend hit %d times, want 2", backend.lookups)
	}
}

func TestServiceUnknownUser(t *testing.T) {
	svc := NewService(NewStaticBackend(nil), time.Minute)
	gs, err := svc.Groups("ghost")
	if err != nil {
		t.Fatal(err)
	}
	if len(gs) != 0 {
		t.Errorf("expected no groups for unknown user, got %v", gs)
	}
}
