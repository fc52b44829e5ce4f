// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package authorize enforces service-level authorization: before any
// per-operation check, the connecting principal must be allowed to
// speak the protocol at all. The policy file maps protocol names to
// ACLs:
//
//	admin.protocol: "alice,bob operators"
//	ha.protocol: "*"
package authorize

import (
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"grimm.is/foreman/internal/acl"
	"grimm.is/foreman/internal/errors"
)

// Protocol names understood by the control plane.
const (
	AdminProtocol = "admin.protocol"
	HAProtocol    = "ha.protocol"
)

// Policy maps protocol names to parsed ACLs. Protocols absent from the
// policy are open.
type Policy map[string]*acl.List

// ParsePolicy decodes a YAML protocol-to-ACL document.
func ParsePolicy(data []byte) (Policy, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, errors.KindConfiguration, "failed to parse policy")
	}
	p := make(Policy, len(raw))
	for proto, spec := range raw {
		p[proto] = acl.Parse(spec)
	}
	return p, nil
}

// Enforcer applies the policy to incoming calls. When disabled it
// admits everything; Refresh is rejected so an operator learns the
// policy is not in force instead of silently reloading a dead file.
type Enforcer struct {
	enabled bool
	path    string
	policy  atomic.Pointer[Policy]
}

// NewEnforcer builds an enforcer over the policy file at path. When
// enabled, the file is loaded immediately.
func NewEnforcer(enabled bool, path string) (*Enforcer, error) {
	e := &Enforcer{enabled: enabled, path: path}
	empty := Policy{}
	e.policy.Store(&empty)
	if enabled {
		if err := e.Refresh(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Enabled reports whether service-level authorization is in force.
func (e *Enforcer) Enabled() bool { return e.enabled }

// Refresh re-reads the policy file and atomically installs it. On
// error the previous policy stays in effect.
func (e *Enforcer) Refresh() error {
	if !e.enabled {
		return errors.New(errors.KindConfiguration,
			"service authorization is not enabled; cannot refresh policy")
	}
	data, err := os.ReadFile(e.path)
	if err != nil {
		return errors.Wrap(err, errors.KindConfiguration, "failed to read policy file")
	}
	p, err := ParsePolicy(data)
	if err != nil {
		return err
	}
	e.policy.Store(&p)
	return nil
}

// Current returns the policy in force right now.
func (e *Enforcer) Current() Policy {
	return *e.policy.Load()
}

// Authorize returns nil when p may use the named protocol.
func (e *Enforcer) Authorize(protocol string, p acl.Principal) error {
	if !e.enabled {
		return nil
	}
	list, ok := (*e.policy.Load())[protocol]
	if !ok {
		return nil
	}
	if list.IsAllowed(p) {
		return nil
	}
	return errors.Errorf(errors.KindPermission,
		"user %s is not authorized for protocol %s", p.Name, protocol)
}
