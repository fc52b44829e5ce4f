// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package nodes tracks which cluster hosts may join, driven by include
// and exclude host-list files.
package nodes

import (
	"bufio"
	"os"
	"strings"
	"sync/atomic"

	"grimm.is/foreman/internal/errors"
	"grimm.is/foreman/internal/logging"
)

// hostSet is an immutable snapshot of both lists.
type hostSet struct {
	include map[string]struct{}
	exclude map[string]struct{}
}

// Registry answers membership queries against the host lists read at
// the last Refresh. Queries never block a concurrent refresh.
type Registry struct {
	includeFile string
	excludeFile string
	log         *logging.Logger
	set         atomic.Pointer[hostSet]
}

// NewRegistry returns a registry over the given list files. Either
// path may be empty: an empty include file means all hosts are
// eligible, an empty exclude file means none are barred. The lists are
// not read until Refresh is called.
func NewRegistry(includeFile, excludeFile string, log *logging.Logger) *Registry {
	r := &Registry{
		includeFile: includeFile,
		excludeFile: excludeFile,
		log:         log.With("component", "nodes"),
	}
	r.set.Store(&hostSet{})
	return r
}

// Refresh re-reads both list files and atomically installs the result.
// On error the previous lists stay in effect.
func (r *Registry) Refresh() error {
	include, err := readHostFile(r.includeFile)
	if err != nil {
		return errors.Wrap(err, errors.KindConfiguration, "failed to read include file")
	}
	exclude, err := readHostFile(r.excludeFile)
	if err != nil {
		return errors.Wrap(err, errors.KindConfiguration, "failed to read exclude file")
	}
	r.set.Store(&hostSet{include: include, exclude: exclude})
	r.log.Info("node lists refreshed", "included", len(include), "excluded", len(exclude))
	return nil
}

// IsAllowed reports whether host may participate in the cluster: it
// must not be excluded, and when an include list exists it must be on
// it.
func (r *Registry) IsAllowed(host string) bool {
	s := r.set.Load()
	if _, barred := s.exclude[host]; barred {
		return false
	}
	if len(s.include) == 0 {
		return true
	}
	_, ok := s.include[host]
	return ok
}

// Counts returns the sizes of the current include and exclude lists.
func (r *Registry) Counts() (included, excluded int) {
	s := r.set.Load()
	return len(s.include), len(s.exclude)
}

// readHostFile parses one host per line; blank lines and lines starting
// with '#' are skipped. A missing path yields an empty set.
func readHostFile(path string) (map[string]struct{}, error) {
	hosts := make(map[string]struct{})
	if path == "" {
		return hosts, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hosts[line] = struct{}{}
	}
	return hosts, sc.Err()
}
