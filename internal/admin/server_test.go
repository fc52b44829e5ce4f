// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package admin

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"grimm.is/foreman/internal/audit"
	"grimm.is/foreman/internal/authorize"
	"grimm.is/foreman/internal/config"
	"grimm.is/foreman/internal/errors"
	"grimm.is/foreman/internal/groups"
	"grimm.is/foreman/internal/ha"
	"grimm.is/foreman/internal/logging"
	"grimm.is/foreman/internal/nodes"
	"grimm.is/foreman/internal/proxyusers"
)

type captureSink struct {
	records []audit.Record
}

func (c *captureSink) Emit(r audit.Record) { c.records = append(c.records, r) }

func (c *captureSink) last(t *testing.T) audit.Record {
	t.Helper()
	if len(c.records) == 0 {
		t.Fatal("no audit records")
	}
	return c.records[len(c.records)-1]
}

type mockScheduler struct {
	calls int
	err   error
}

func (m *mockScheduler) Reinitialize() error {
	m.calls++
	return m.err
}

type mockActiveServices struct {
	running  bool
	startErr error
}

func (m *mockActiveServices) Start() error {
	if m.startErr != nil {
		return m.startErr
	}
	m.running = true
	return nil
}

func (m *mockActiveServices) Stop() error { m.running = false; return nil }

func (m *mockActiveServices) Running() bool { return m.running }

type mockReceiver struct {
	name    string
	applied int
	err     error
}

func (m *mockReceiver) Name() string { return m.name }
func (m *mockReceiver) ApplyPolicy(authorize.Policy) error {
	m.applied++
	return m.err
}

type fixture struct {
	cfg   *config.Config
	srv   *Server
	sink  *captureSink
	sched *mockScheduler
	svcs  *mockActiveServices
	state *ha.StateController
}

// newFixture builds a server with HA enabled, admin ACL "alice ops",
// a static group mapper (alice has no groups, carol is in ops) and
// service authorization off unless a policy file is given.
func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	log := logging.New(logging.Config{Level: "error"})

	cfg := &config.Config{
		AdminACL: "alice ops",
		HA:       &config.HAConfig{Enabled: true, NodeID: "foreman-1"},
	}
	if mutate != nil {
		mutate(cfg)
	}
	cfg.ApplyDefaults()

	enforcer, err := authorize.NewEnforcer(cfg.ServiceAuthorization, cfg.PolicyFile)
	if err != nil {
		t.Fatal(err)
	}

	mapper := groups.NewService(groups.NewStaticBackend(map[string][]string{
		"carol": {"ops"},
	}), time.Minute)

	svcs := &mockActiveServices{}
	f := &fixture{
		cfg:   cfg,
		sink:  &captureSink{},
		sched: &mockScheduler{},
		svcs:  svcs,
		state: ha.NewStateController(svcs, log),
	}
	reload := func() (*config.Config, error) {
		c := *cfg
		return &c, nil
	}
	f.srv = NewServer(cfg, log,
		audit.NewTrail(cfg.Audit.Target, f.sink),
		f.state, enforcer,
		Collaborators{
			Scheduler: f.sched,
			Nodes:     nodes.NewRegistry("", "", log),
			Proxies:   proxyusers.NewStore(nil, func() ([]config.ProxyUser, error) { return nil, nil }),
			Groups:    mapper,
		},
		reload)
	return f
}

func (f *fixture) activate(t *testing.T) {
	t.Helper()
	if err := f.state.TransitionToActive(); err != nil {
		t.Fatal(err)
	}
}

func caller(user string) CallerInfo {
	return CallerInfo{User: user, Host: "testhost", RequestID: "req-1"}
}

func TestRefreshQueuesSuccess(t *testing.T) {
	f := newFixture(t, nil)
	f.activate(t)

	if err := f.srv.refreshQueues(caller("alice")); err != nil {
		t.Fatal(err)
	}
	if f.sched.calls != 1 {
		t.Errorf("scheduler reinitialized %d times, want 1", f.sched.calls)
	}
	if len(f.sink.records) != 1 {
		t.Fatalf("expected exactly 1 audit record, got %d", len(f.sink.records))
	}
	rec := f.sink.last(t)
	if rec.Outcome != audit.Success || rec.Operation != OpRefreshQueues || rec.Actor != "alice" {
		t.Errorf("unexpected audit record: %+v", rec)
	}
	if rec.Target != "foreman-1" {
		t.Errorf("audit target = %q, want foreman-1", rec.Target)
	}
}

func TestDeniedBeforeActiveCheck(t *testing.T) {
	// bob is not on the ACL and the instance is not active. The caller
	// must see the permission error, not the standby error.
	f := newFixture(t, nil)

	err := f.srv.refreshQueues(caller("bob"))
	if err == nil {
		t.Fatal("expected denial")
	}
	if !errors.IsKind(err, errors.KindPermission) {
		t.Errorf("expected permission kind, got %v", errors.GetKind(err))
	}
	rec := f.sink.last(t)
	if rec.Outcome != audit.Failure || rec.Reason != "access denied" {
		t.Errorf("unexpected audit record: %+v", rec)
	}
	if f.sched.calls != 0 {
		t.Error("scheduler must not run for a denied caller")
	}
}

func TestGroupMembershipAuthorizes(t *testing.T) {
	// carol is authorized via the ops group, resolved server side.
	f := newFixture(t, nil)
	f.activate(t)

	if err := f.srv.refreshQueues(caller("carol")); err != nil {
		t.Fatalf("group member should be authorized: %v", err)
	}
}

func TestStandbyRejectsRefresh(t *testing.T) {
	f := newFixture(t, nil)

	err := f.srv.refreshQueues(caller("alice"))
	if err == nil {
		t.Fatal("expected standby rejection")
	}
	if !errors.IsKind(err, errors.KindNotActive) {
		t.Errorf("expected not-active kind, got %v", errors.GetKind(err))
	}
	rec := f.sink.last(t)
	if rec.Outcome != audit.Failure {
		t.Error("rejected operation must audit a failure")
	}
	if f.sched.calls != 0 {
		t.Error("scheduler must not run on a standby instance")
	}
}

func TestNonHARefreshNeedsNoRole(t *testing.T) {
	// Without HA the instance never transitions; refreshes must work.
	f := newFixture(t, func(c *config.Config) { c.HA = nil })

	if err := f.srv.refreshQueues(caller("alice")); err != nil {
		t.Fatal(err)
	}
}

func TestOperationFailureAudited(t *testing.T) {
	f := newFixture(t, nil)
	f.activate(t)
	f.sched.err = errors.New(errors.KindInternal, "queue rebuild failed")

	err := f.srv.refreshQueues(caller("alice"))
	if err == nil {
		t.Fatal("expected operation error")
	}
	if !errors.IsKind(err, errors.KindRemote) {
		t.Errorf("collaborator failure should wrap as remote, got %v", errors.GetKind(err))
	}
	if len(f.sink.records) != 1 {
		t.Fatalf("expected exactly 1 audit record, got %d", len(f.sink.records))
	}
	rec := f.sink.last(t)
	if rec.Outcome != audit.Failure || rec.Reason == "" {
		t.Errorf("unexpected audit record: %+v", rec)
	}
}

func TestRefreshAdminAclsOnStandby(t *testing.T) {
	// The canonical lockout recovery: bob is denied, the configuration
	// now lists bob, refreshAdminAcls on the standby picks it up, and
	// bob's next call is authorized.
	f := newFixture(t, nil)
	f.activate(t)

	if err := f.srv.refreshQueues(caller("bob")); err == nil {
		t.Fatal("bob should start out denied")
	}

	f.cfg.AdminACL = "alice,bob ops"
	if err := f.state.TransitionToStandby(); err != nil {
		t.Fatal(err)
	}
	if err := f.srv.refreshAdminAcls(caller("alice")); err != nil {
		t.Fatalf("refreshAdminAcls must work on standby: %v", err)
	}
	f.activate(t)
	if err := f.srv.refreshQueues(caller("bob")); err != nil {
		t.Fatalf("bob should be authorized after the refresh: %v", err)
	}
}

func TestRefreshNodesAndMappings(t *testing.T) {
	f := newFixture(t, nil)
	f.activate(t)

	if err := f.srv.refreshNodes(caller("alice")); err != nil {
		t.Fatal(err)
	}
	if err := f.srv.refreshSuperUserGroups(caller("alice")); err != nil {
		t.Fatal(err)
	}
	if err := f.srv.refreshUserToGroups(caller("alice")); err != nil {
		t.Fatal(err)
	}
	if len(f.sink.records) != 3 {
		t.Errorf("expected 3 audit records, got %d", len(f.sink.records))
	}
}

func TestRefreshServiceAclsDisabled(t *testing.T) {
	f := newFixture(t, nil)
	f.activate(t)

	err := f.srv.refreshServiceAcls(caller("alice"))
	if err == nil {
		t.Fatal("expected configuration error with authorization disabled")
	}
	if !errors.IsKind(err, errors.KindConfiguration) {
		t.Errorf("expected configuration kind, got %v", errors.GetKind(err))
	}
	if f.sink.last(t).Outcome != audit.Failure {
		t.Error("failed refresh must audit a failure")
	}
}

func writePolicyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRefreshServiceAclsPropagates(t *testing.T) {
	path := writePolicyFile(t, "admin.protocol: \"*\"\n")
	f := newFixture(t, func(c *config.Config) {
		c.ServiceAuthorization = true
		c.PolicyFile = path
	})
	rcv := &mockReceiver{name: "client-endpoint"}
	f.srv.collab.PolicyReceivers = []PolicyReceiver{rcv}
	f.activate(t)

	if err := f.srv.refreshServiceAcls(caller("alice")); err != nil {
		t.Fatal(err)
	}
	if rcv.applied != 1 {
		t.Errorf("policy applied to receiver %d times, want 1", rcv.applied)
	}
}

func TestRefreshServiceAclsStandbySkipsPropagation(t *testing.T) {
	path := writePolicyFile(t, "admin.protocol: \"*\"\n")
	f := newFixture(t, func(c *config.Config) {
		c.ServiceAuthorization = true
		c.PolicyFile = path
	})
	rcv := &mockReceiver{name: "client-endpoint"}
	f.srv.collab.PolicyReceivers = []PolicyReceiver{rcv}

	if err := f.state.TransitionToStandby(); err != nil {
		t.Fatal(err)
	}
	if err := f.srv.refreshServiceAcls(caller("alice")); err != nil {
		t.Fatalf("standby must still reload locally: %v", err)
	}
	if rcv.applied != 0 {
		t.Error("standby must not propagate the policy")
	}
}

func TestRefreshServiceAclsPropagationFailure(t *testing.T) {
	path := writePolicyFile(t, "admin.protocol: \"*\"\n")
	f := newFixture(t, func(c *config.Config) {
		c.ServiceAuthorization = true
		c.PolicyFile = path
	})
	rcv := &mockReceiver{name: "tracker-endpoint", err: errors.New(errors.KindInternal, "unreachable")}
	f.srv.collab.PolicyReceivers = []PolicyReceiver{rcv}
	f.activate(t)

	err := f.srv.refreshServiceAcls(caller("alice"))
	if err == nil {
		t.Fatal("expected propagation error")
	}
	if !errors.IsKind(err, errors.KindRemote) {
		t.Errorf("expected remote kind, got %v", errors.GetKind(err))
	}
}

func TestTransitionsThroughServer(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.srv.transitionToActive(caller("alice"), "cli"); err != nil {
		t.Fatal(err)
	}
	if !f.state.IsActive() {
		t.Error("expected active role")
	}
	if f.sink.last(t).Operation != OpTransitionToActive {
		t.Errorf("unexpected audit operation: %q", f.sink.last(t).Operation)
	}

	if err := f.srv.transitionToStandby(caller("alice"), "cli"); err != nil {
		t.Fatal(err)
	}
	if f.state.Role() != ha.RoleStandby {
		t.Error("expected standby role")
	}

	err := f.srv.transitionToActive(caller("bob"), "cli")
	if err == nil {
		t.Fatal("bob must not trigger a transition")
	}
	if !errors.IsKind(err, errors.KindPermission) {
		t.Errorf("expected permission kind, got %v", errors.GetKind(err))
	}
}

func TestReadOnlyOpsNotAudited(t *testing.T) {
	f := newFixture(t, nil)
	f.activate(t)

	if err := f.srv.monitorHealth(caller("alice")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.srv.getServiceStatus(caller("alice")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.srv.getGroupsForUser(caller("alice"), "carol"); err != nil {
		t.Fatal(err)
	}
	if len(f.sink.records) != 0 {
		t.Errorf("read-only operations must not audit, got %d records", len(f.sink.records))
	}
}

func TestReadOnlyHAOpsRequireAdminACL(t *testing.T) {
	// bob is not on the admin ACL: he may not read the role or the
	// health of the instance, though group resolution stays open to
	// any authenticated caller.
	f := newFixture(t, nil)
	f.activate(t)

	err := f.srv.monitorHealth(caller("bob"))
	if !errors.IsKind(err, errors.KindPermission) {
		t.Errorf("monitorHealth for bob: expected permission kind, got %v", err)
	}
	if _, err := f.srv.getServiceStatus(caller("bob")); !errors.IsKind(err, errors.KindPermission) {
		t.Errorf("getServiceStatus for bob: expected permission kind, got %v", err)
	}
	if len(f.sink.records) != 0 {
		t.Errorf("read-only denials must not audit, got %d records", len(f.sink.records))
	}

	if _, err := f.srv.getGroupsForUser(caller("bob"), "carol"); err != nil {
		t.Errorf("getGroupsForUser should admit any authenticated caller: %v", err)
	}
}

// blockingScheduler parks the first caller inside Reinitialize until
// released, so a test can hold the operation lock at a known point.
type blockingScheduler struct {
	inner   *mockScheduler
	entered chan struct{}
	release chan struct{}
}

func (b *blockingScheduler) Reinitialize() error {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return b.inner.Reinitialize()
}

func TestRoleCheckedUnderOperationLock(t *testing.T) {
	// A refresh that queues behind the lock while the instance is
	// active must observe a role change that lands before its turn: the
	// role is examined inside the critical section, not on the way in.
	f := newFixture(t, nil)
	f.activate(t)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	f.srv.collab.Scheduler = &blockingScheduler{inner: f.sched, entered: entered, release: release}

	first := make(chan error, 1)
	go func() { first <- f.srv.refreshQueues(caller("alice")) }()
	<-entered // refresh #1 holds the operation lock inside the scheduler

	second := make(chan error, 1)
	go func() { second <- f.srv.refreshQueues(caller("alice")) }()

	// Give refresh #2 time to queue, then demote the instance while it
	// waits.
	time.Sleep(50 * time.Millisecond)
	if err := f.state.TransitionToStandby(); err != nil {
		t.Fatal(err)
	}
	close(release)

	if err := <-first; err != nil {
		t.Fatal(err)
	}
	err := <-second
	if !errors.IsKind(err, errors.KindNotActive) {
		t.Fatalf("queued refresh ran on a standby instance: %v", err)
	}
	if f.sched.calls != 1 {
		t.Errorf("scheduler invoked %d times, want 1", f.sched.calls)
	}
}

func TestFailedTransitionAuditsOneFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.svcs.startErr = errors.New(errors.KindInternal, "bind failed")

	err := f.srv.transitionToActive(caller("alice"), "cli")
	if err == nil {
		t.Fatal("expected transition error")
	}
	if !errors.IsKind(err, errors.KindTransition) {
		t.Errorf("expected transition kind, got %v", errors.GetKind(err))
	}
	if got := f.state.Role(); got != ha.RoleInitializing {
		t.Errorf("role = %q after failed transition, want initializing", got)
	}
	if len(f.sink.records) != 1 {
		t.Fatalf("expected exactly 1 audit record, got %d", len(f.sink.records))
	}
	rec := f.sink.last(t)
	if rec.Operation != OpTransitionToActive || rec.Outcome != audit.Failure || rec.Reason == "" {
		t.Errorf("unexpected audit record: %+v", rec)
	}
}

func TestGetGroupsForUser(t *testing.T) {
	f := newFixture(t, nil)

	gs, err := f.srv.getGroupsForUser(caller("anyone"), "carol")
	if err != nil {
		t.Fatal(err)
	}
	if len(gs) != 1 || gs[0] != "ops" {
		t.Errorf("groups for carol = %v, want [ops]", gs)
	}
}

func TestGetServiceStatus(t *testing.T) {
	f := newFixture(t, nil)

	st, err := f.srv.getServiceStatus(caller("alice"))
	if err != nil {
		t.Fatal(err)
	}
	if st.Role != ha.RoleInitializing || st.ReadyToBecomeActive {
		t.Errorf("unexpected status: %+v", st)
	}

	f.activate(t)
	st, err = f.srv.getServiceStatus(caller("alice"))
	if err != nil {
		t.Fatal(err)
	}
	if st.Role != ha.RoleActive || !st.ReadyToBecomeActive {
		t.Errorf("unexpected status: %+v", st)
	}
}

// TestOperatorTakeoverScenario walks one operator flow end to end: a
// denied outsider, a standby rejection, a takeover, and a refresh that
// finally reaches the scheduler.
func TestOperatorTakeoverScenario(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.AdminACL = "alice" })
	if err := f.state.TransitionToStandby(); err != nil {
		t.Fatal(err)
	}

	err := f.srv.refreshQueues(caller("bob"))
	if !errors.IsKind(err, errors.KindPermission) {
		t.Fatalf("bob on standby should see a permission error, got %v", err)
	}

	err = f.srv.refreshQueues(caller("alice"))
	if !errors.IsKind(err, errors.KindNotActive) {
		t.Fatalf("alice on standby should see a not-active error, got %v", err)
	}

	if err := f.srv.transitionToActive(caller("alice"), "cli"); err != nil {
		t.Fatal(err)
	}
	if rec := f.sink.last(t); rec.Operation != OpTransitionToActive || rec.Outcome != audit.Success {
		t.Errorf("unexpected audit record for takeover: %+v", rec)
	}

	if err := f.srv.refreshQueues(caller("alice")); err != nil {
		t.Fatal(err)
	}
	if f.sched.calls != 1 {
		t.Errorf("scheduler invoked %d times, want exactly 1", f.sched.calls)
	}
}

func TestAnonymousCallerRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.activate(t)

	err := f.srv.refreshQueues(CallerInfo{RequestID: "req-1"})
	if err == nil {
		t.Fatal("expected anonymous caller to be rejected")
	}
	if !errors.IsKind(err, errors.KindPermission) {
		t.Errorf("expected permission kind, got %v", errors.GetKind(err))
	}
	rec := f.sink.last(t)
	if rec.Actor != "anonymous" || rec.Outcome != audit.Failure {
		t.Errorf("unexpected audit record: %+v", rec)
	}

	if err := f.srv.monitorHealth(CallerInfo{}); err == nil {
		t.Error("expected anonymous health probe to be rejected")
	}
}

func TestServicePolicyCheckedBeforeAdminACL(t *testing.T) {
	// dave is on the admin ACL but barred from the protocol entirely.
	path := writePolicyFile(t, "admin.protocol: \"alice\"\n")
	f := newFixture(t, func(c *config.Config) {
		c.AdminACL = "alice,dave"
		c.ServiceAuthorization = true
		c.PolicyFile = path
	})
	f.activate(t)

	err := f.srv.refreshQueues(caller("dave"))
	if err == nil {
		t.Fatal("expected protocol-level denial")
	}
	if !errors.IsKind(err, errors.KindPermission) {
		t.Errorf("expected permission kind, got %v", errors.GetKind(err))
	}
	if f.sink.last(t).Reason != "access denied" {
		t.Errorf("unexpected audit reason: %q", f.sink.last(t).Reason)
	}
}
