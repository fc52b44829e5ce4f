// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ha manages the active/standby role of a controller instance
// and the lifecycle of the services that only the active instance runs.
package ha

import (
	"sync"

	"grimm.is/foreman/internal/errors"
	"grimm.is/foreman/internal/logging"
	"grimm.is/foreman/internal/metrics"
)

// Role is the high-availability role of this instance.
type Role string

const (
	RoleInitializing Role = "initializing"
	RoleActive       Role = "active"
	RoleStandby      Role = "standby"
	RoleStopping     Role = "stopping"
)

// ActiveServices is the bundle of work that must run on exactly one
// instance at a time.
type ActiveServices interface {
	Start() error
	Stop() error
	Running() bool
}

// ServiceStatus is the externally visible HA state.
type ServiceStatus struct {
	Role                Role
	ReadyToBecomeActive bool
	Reason              string
}

// StateController serializes role transitions. The role is only
// published after the work of a transition has completed, so a reader
// never observes "active" while the active services are still coming
// up.
type StateController struct {
	services ActiveServices
	log      *logging.Logger

	mu   sync.RWMutex
	role Role
}

// NewStateController returns a controller in the initializing role.
func NewStateController(services ActiveServices, log *logging.Logger) *StateController {
	c := &StateController{
		services: services,
		log:      log.With("component", "ha"),
		role:     RoleInitializing,
	}
	metrics.SetRole(string(RoleInitializing))
	return c
}

// Role returns the current role.
func (c *StateController) Role() Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// IsActive reports whether this instance currently holds the active
// role.
func (c *StateController) IsActive() bool {
	return c.Role() == RoleActive
}

// TransitionToActive starts the active services and then assumes the
// active role. Requesting the role already held is a no-op. On failure
// the previous role is kept.
func (c *StateController) TransitionToActive() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.role == RoleActive {
		c.log.Info("already active, nothing to do")
		return nil
	}
	if c.role == RoleStopping {
		return errors.New(errors.KindTransition, "instance is stopping")
	}

	c.log.Info("transitioning to active", "from", string(c.role))
	if err := c.services.Start(); err != nil {
		metrics.ObserveTransition(string(RoleActive), false)
		return errors.Wrap(err, errors.KindTransition, "failed to start active services")
	}
	c.setRole(RoleActive)
	metrics.ObserveTransition(string(RoleActive), true)
	return nil
}

// TransitionToStandby stops the active services, if running, and
// assumes the standby role. Requesting the role already held is a
// no-op.
func (c *StateController) TransitionToStandby() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.role == RoleStandby {
		c.log.Info("already standby, nothing to do")
		return nil
	}
	if c.role == RoleStopping {
		return errors.New(errors.KindTransition, "instance is stopping")
	}

	c.log.Info("transitioning to standby", "from", string(c.role))
	if c.role == RoleActive {
		if err := c.services.Stop(); err != nil {
			metrics.ObserveTransition(string(RoleStandby), false)
			return errors.Wrap(err, errors.KindTransition, "failed to stop active services")
		}
	}
	c.setRole(RoleStandby)
	metrics.ObserveTransition(string(RoleStandby), true)
	return nil
}

// MonitorHealth returns nil when the instance is healthy. An active
// instance whose services are not running is unhealthy; a standby or
// initializing instance is always healthy.
func (c *StateController) MonitorHealth() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.role == RoleActive && !c.services.Running() {
		return errors.New(errors.KindHealth, "active services are not running")
	}
	return nil
}

// Status reports the current role and whether the instance could take
// over as active.
func (c *StateController) Status() ServiceStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := ServiceStatus{Role: c.role}
	switch c.role {
	case RoleActive, RoleStandby:
		st.ReadyToBecomeActive = true
	case RoleInitializing:
		st.Reason = "still initializing"
	case RoleStopping:
		st.Reason = "shutting down"
	}
	return st
}

// Stop moves the instance into the stopping role, halting active
// services first when they are running.
func (c *StateController) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.role == RoleStopping {
		return nil
	}
	var err error
	if c.role == RoleActive {
		err = c.services.Stop()
	}
	c.setRole(RoleStopping)
	if err != nil {
		return errors.Wrap(err, errors.KindTransition, "failed to stop active services")
	}
	return nil
}

// setRole publishes a new role. Callers hold the write lock.
func (c *StateController) setRole(r Role) {
	c.role = r
	metrics.SetRole(string(r))
	c.log.Info("role changed", "role", string(r))
}
