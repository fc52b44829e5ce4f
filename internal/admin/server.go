// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package admin is the privileged control plane of the controller. It
// serves the refresh and HA operations over RPC, gating every
// privileged call on the admin ACL and writing one audit record per
// call.
package admin

import (
	stderrors "errors"
	"net"
	"net/rpc"
	"sync"

	"grimm.is/foreman/internal/acl"
	"grimm.is/foreman/internal/audit"
	"grimm.is/foreman/internal/authorize"
	"grimm.is/foreman/internal/config"
	"grimm.is/foreman/internal/errors"
	"grimm.is/foreman/internal/groups"
	"grimm.is/foreman/internal/ha"
	"grimm.is/foreman/internal/logging"
	"grimm.is/foreman/internal/metrics"
	"grimm.is/foreman/internal/nodes"
	"grimm.is/foreman/internal/proxyusers"
	"grimm.is/foreman/internal/sched"
)

// PolicyReceiver is a service endpoint that enforces its own copy of
// the service-authorization policy and must be told when it changes.
type PolicyReceiver interface {
	Name() string
	ApplyPolicy(authorize.Policy) error
}

// Collaborators are the subsystems the refresh operations act on.
type Collaborators struct {
	Scheduler sched.Scheduler
	Nodes     *nodes.Registry
	Proxies   *proxyusers.Store
	Groups    groups.Mapper

	// PolicyReceivers get the new policy after a successful
	// refreshServiceAcls on the active instance.
	PolicyReceivers []PolicyReceiver
}

// opSpec declares how one operation is dispatched.
type opSpec struct {
	protocol       string
	requiresActive bool
	audited        bool
}

// ops is the dispatch table for gated operations. Operations absent
// here (monitorHealth, getServiceStatus, getGroupsForUser) skip the
// admin ACL and the audit trail.
var ops = map[string]opSpec{
	OpTransitionToActive:     {authorize.HAProtocol, false, true},
	OpTransitionToStandby:    {authorize.HAProtocol, false, true},
	OpRefreshQueues:          {authorize.AdminProtocol, true, true},
	OpRefreshNodes:           {authorize.AdminProtocol, true, true},
	OpRefreshSuperUserGroups: {authorize.AdminProtocol, true, true},
	OpRefreshUserToGroups:    {authorize.AdminProtocol, true, true},
	OpRefreshAdminAcls:       {authorize.AdminProtocol, false, true},
	OpRefreshServiceAcls:     {authorize.AdminProtocol, false, true},
}

// Server hosts the control plane.
type Server struct {
	cfg      *config.Config
	log      *logging.Logger
	gate     *acl.Gate
	trail    *audit.Trail
	state    *ha.StateController
	enforcer *authorize.Enforcer
	collab   Collaborators

	// reloadConfig re-reads the configuration file for
	// refreshAdminAcls.
	reloadConfig func() (*config.Config, error)

	// mu serializes the body of every mutating operation. Refreshes
	// and transitions are rare; one coarse lock keeps their
	// interleavings trivial to reason about.
	mu sync.Mutex

	// sem bounds concurrently executing handlers.
	sem chan struct{}

	ln   net.Listener
	done chan struct{}
	wg   sync.WaitGroup
}

// NewServer wires up a control-plane server. reloadConfig is consulted
// by refreshAdminAcls; config.Loader provides one for file-backed
// deployments.
func NewServer(
	cfg *config.Config,
	log *logging.Logger,
	trail *audit.Trail,
	state *ha.StateController,
	enforcer *authorize.Enforcer,
	collab Collaborators,
	reloadConfig func() (*config.Config, error),
) *Server {
	return &Server{
		cfg:          cfg,
		log:          log.With("component", "admin"),
		gate:         acl.NewGate(cfg.AdminACL),
		trail:        trail,
		state:        state,
		enforcer:     enforcer,
		collab:       collab,
		reloadConfig: reloadConfig,
		sem:          make(chan struct{}, cfg.HandlerPool),
		done:         make(chan struct{}),
	}
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to listen on admin address")
	}
	return s.StartWithListener(ln)
}

// StartWithListener serves the control plane on ln. The HA operations
// are only exposed when HA is enabled.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.ln = ln

	srv := rpc.NewServer()
	if err := srv.RegisterName("Admin", &adminAPI{s}); err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to register admin protocol")
	}
	if s.haEnabled() {
		if err := srv.RegisterName("HA", &haAPI{s}); err != nil {
			return errors.Wrap(err, errors.KindInternal, "failed to register HA protocol")
		}
	}

	s.log.Info("control plane listening",
		"addr", ln.Addr().String(),
		"ha", s.haEnabled(),
		"handlers", s.cfg.HandlerPool)

	s.wg.Add(1)
	go s.serve(srv)
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Stop closes the listener. In-flight calls run to completion on their
// own connections.
func (s *Server) Stop() {
	close(s.done)
	if s.ln != nil {
		s.ln.Close()
	}
	s.wg.Wait()
	s.log.Info("control plane stopped")
}

func (s *Server) serve(srv *rpc.Server) {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if stderrors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}
		go func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("connection handler panicked", "panic", r)
				}
			}()
			srv.ServeConn(conn)
		}()
	}
}

func (s *Server) haEnabled() bool {
	return s.cfg.HA != nil && s.cfg.HA.Enabled
}

// principal resolves the caller into an ACL principal. Groups come
// from the server-side mapper, never from the wire.
func (s *Server) principal(c CallerInfo) acl.Principal {
	p := acl.Principal{Name: c.User}
	if s.collab.Groups != nil {
		if gs, err := s.collab.Groups.Groups(c.User); err == nil {
			p.Groups = gs
		} else {
			s.log.Warn("group resolution failed", "user", c.User, "error", err)
		}
	}
	return p
}

// run executes one gated operation: service-level authorization, then
// the admin ACL, then the active-role check and fn under the operation
// lock. Exactly one audit record is written per call, and
// authorization is always checked before the role so a denied caller
// cannot learn whether this instance is active.
func (s *Server) run(op string, caller CallerInfo, fn func() error) error {
	spec, ok := ops[op]
	if !ok {
		return errors.Errorf(errors.KindInternal, "unknown operation %s", op)
	}
	aclNow := s.gate.Current().String()
	if caller.User == "" {
		s.deny(acl.Principal{Name: "anonymous"}, op, aclNow, caller)
		return errors.New(errors.KindPermission, "anonymous callers are rejected")
	}
	p := s.principal(caller)

	if err := s.enforcer.Authorize(spec.protocol, p); err != nil {
		s.deny(p, op, aclNow, caller)
		return err
	}
	if err := s.gate.Authorize(p, op); err != nil {
		s.deny(p, op, aclNow, caller)
		return err
	}

	// The role is only examined under the operation lock: a call that
	// queues behind an in-flight transition must see the role that
	// transition produced, not the one it passed on the way in.
	s.sem <- struct{}{}
	s.mu.Lock()
	var err error
	if spec.requiresActive && s.haEnabled() && !s.state.IsActive() {
		err = errors.Errorf(errors.KindNotActive,
			"instance is in %s state; %s requires the active role", s.state.Role(), op)
	} else {
		err = fn()
	}
	s.mu.Unlock()
	<-s.sem

	if spec.audited {
		if err != nil {
			s.trail.Failure(p.Name, op, aclNow, err.Error())
		} else {
			s.trail.Success(p.Name, op, aclNow)
		}
	}
	metrics.ObserveOperation(op, err == nil)
	if err != nil {
		s.log.Warn("operation failed", "op", op, "user", p.Name, "request_id", caller.RequestID, "error", err)
	} else {
		s.log.Info("operation completed", "op", op, "user", p.Name, "request_id", caller.RequestID)
	}
	return err
}

// deny audits an authorization failure.
func (s *Server) deny(p acl.Principal, op, aclNow string, caller CallerInfo) {
	s.trail.Failure(p.Name, op, aclNow, "access denied")
	metrics.ObserveOperation(op, false)
	s.log.Warn("access denied", "op", op, "user", p.Name, "request_id", caller.RequestID)
}

// admit applies only service-level authorization, for getGroupsForUser:
// any authenticated caller of the admin protocol may resolve groups.
func (s *Server) admit(protocol string, caller CallerInfo) error {
	if caller.User == "" {
		return errors.New(errors.KindPermission, "anonymous callers are rejected")
	}
	return s.enforcer.Authorize(protocol, s.principal(caller))
}

// verify applies service-level authorization and the admin ACL, for the
// read-only HA operations that are authorized but not audited.
func (s *Server) verify(protocol, op string, caller CallerInfo) error {
	if caller.User == "" {
		return errors.New(errors.KindPermission, "anonymous callers are rejected")
	}
	p := s.principal(caller)
	if err := s.enforcer.Authorize(protocol, p); err != nil {
		return err
	}
	return s.gate.Authorize(p, op)
}

func (s *Server) monitorHealth(caller CallerInfo) error {
	if err := s.verify(authorize.HAProtocol, OpMonitorHealth, caller); err != nil {
		return err
	}
	return s.state.MonitorHealth()
}

func (s *Server) transitionToActive(caller CallerInfo, source string) error {
	return s.run(OpTransitionToActive, caller, func() error {
		s.log.Info("transition to active requested", "source", source, "user", caller.User)
		return s.state.TransitionToActive()
	})
}

func (s *Server) transitionToStandby(caller CallerInfo, source string) error {
	return s.run(OpTransitionToStandby, caller, func() error {
		s.log.Info("transition to standby requested", "source", source, "user", caller.User)
		return s.state.TransitionToStandby()
	})
}

func (s *Server) getServiceStatus(caller CallerInfo) (ha.ServiceStatus, error) {
	if err := s.verify(authorize.HAProtocol, OpGetServiceStatus, caller); err != nil {
		return ha.ServiceStatus{}, err
	}
	return s.state.Status(), nil
}

// The refresh delegates below treat their collaborators as external
// subsystems: a failure comes back as a remote-operation error wrapping
// the cause.

func (s *Server) refreshQueues(caller CallerInfo) error {
	return s.run(OpRefreshQueues, caller, func() error {
		if err := s.collab.Scheduler.Reinitialize(); err != nil {
			return errors.Wrap(err, errors.KindRemote, "scheduler reinitialization failed")
		}
		return nil
	})
}

func (s *Server) refreshNodes(caller CallerInfo) error {
	return s.run(OpRefreshNodes, caller, func() error {
		if err := s.collab.Nodes.Refresh(); err != nil {
			return errors.Wrap(err, errors.KindRemote, "node registry refresh failed")
		}
		return nil
	})
}

func (s *Server) refreshSuperUserGroups(caller CallerInfo) error {
	return s.run(OpRefreshSuperUserGroups, caller, func() error {
		if err := s.collab.Proxies.Refresh(); err != nil {
			return errors.Wrap(err, errors.KindRemote, "proxy user reload failed")
		}
		return nil
	})
}

func (s *Server) refreshUserToGroups(caller CallerInfo) error {
	return s.run(OpRefreshUserToGroups, caller, func() error {
		if err := s.collab.Groups.Refresh(); err != nil {
			return errors.Wrap(err, errors.KindRemote, "group mapping refresh failed")
		}
		return nil
	})
}

// refreshAdminAcls re-reads the configuration and swaps the admin ACL.
// It is deliberately allowed on a standby instance: an operator locked
// out by a bad ACL must be able to fix it without a failover.
func (s *Server) refreshAdminAcls(caller CallerInfo) error {
	return s.run(OpRefreshAdminAcls, caller, func() error {
		cfg, err := s.reloadConfig()
		if err != nil {
			return errors.Wrap(err, errors.KindConfiguration, "failed to reload configuration")
		}
		s.gate.Swap(cfg.AdminACL)
		s.log.Info("admin ACL refreshed", "acl", cfg.AdminACL)
		return nil
	})
}

// refreshServiceAcls reloads the service-authorization policy. The
// local reload happens on any role; propagation to the other policy
// receivers only happens on the active instance, and a propagation
// failure does not roll back the local reload.
func (s *Server) refreshServiceAcls(caller CallerInfo) error {
	return s.run(OpRefreshServiceAcls, caller, func() error {
		if err := s.enforcer.Refresh(); err != nil {
			return err
		}
		if s.haEnabled() && !s.state.IsActive() {
			s.log.Info("policy refreshed locally; standby skips propagation")
			return nil
		}
		policy := s.enforcer.Current()
		for _, rcv := range s.collab.PolicyReceivers {
			if err := rcv.ApplyPolicy(policy); err != nil {
				return errors.Wrapf(err, errors.KindRemote,
					"failed to propagate policy to %s", rcv.Name())
			}
		}
		return nil
	})
}

func (s *Server) getGroupsForUser(caller CallerInfo, user string) ([]string, error) {
	if err := s.admit(authorize.AdminProtocol, caller); err != nil {
		return nil, err
	}
	if s.collab.Groups == nil {
		return nil, errors.New(errors.KindInternal, "no group mapper configured")
	}
	gs, err := s.collab.Groups.Groups(user)
	if err != nil {
		return nil, err
	}
	return gs, nil
}
