// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package admin

import (
	"grimm.is/foreman/internal/errors"
)

// Operation names, used in audit records and metrics labels.
const (
	OpMonitorHealth          = "monitorHealth"
	OpTransitionToActive     = "transitionToActive"
	OpTransitionToStandby    = "transitionToStandby"
	OpGetServiceStatus       = "getServiceStatus"
	OpRefreshQueues          = "refreshQueues"
	OpRefreshNodes           = "refreshNodes"
	OpRefreshSuperUserGroups = "refreshSuperUserGroupsConfiguration"
	OpRefreshUserToGroups    = "refreshUserToGroupsMappings"
	OpRefreshAdminAcls       = "refreshAdminAcls"
	OpRefreshServiceAcls     = "refreshServiceAcls"
	OpGetGroupsForUser       = "getGroupsForUser"
)

// CallerInfo is the authenticated identity attached to every request.
// The transport is trusted to have established User; group memberships
// are always resolved server side.
type CallerInfo struct {
	User      string
	Host      string
	RequestID string
}

// OpReply is the common result envelope. Errors cross the wire as a
// message plus the kind name so clients can rebuild a typed error.
type OpReply struct {
	Success   bool
	Error     string
	ErrorKind string
}

// from fills the envelope from an operation result.
func (r *OpReply) from(err error) {
	if err == nil {
		r.Success = true
		return
	}
	r.Error = err.Error()
	r.ErrorKind = errors.GetKind(err).String()
}

// Err rebuilds the typed error carried by a failed reply.
func (r *OpReply) Err() error {
	if r.Success {
		return nil
	}
	return errors.New(errors.KindFromString(r.ErrorKind), r.Error)
}

// TransitionArgs requests a role change. Source records what initiated
// the request, e.g. "cli" or "failover-controller".
type TransitionArgs struct {
	Caller CallerInfo
	Source string
}

// MonitorHealthArgs requests a health probe.
type MonitorHealthArgs struct {
	Caller CallerInfo
}

// GetServiceStatusArgs asks for the HA status.
type GetServiceStatusArgs struct {
	Caller CallerInfo
}

// GetServiceStatusReply carries the HA status of the instance.
type GetServiceStatusReply struct {
	OpReply
	Role                string
	ReadyToBecomeActive bool
	Reason              string
}

// RefreshArgs is shared by the refresh operations that take no
// parameters beyond the caller.
type RefreshArgs struct {
	Caller CallerInfo
}

// GetGroupsForUserArgs asks which groups User belongs to.
type GetGroupsForUserArgs struct {
	Caller CallerInfo
	User   string
}

// GetGroupsForUserReply carries the resolved groups.
type GetGroupsForUserReply struct {
	OpReply
	Groups []string
}
