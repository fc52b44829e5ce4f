// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package admin

// adminAPI is the RPC receiver for the admin protocol. Operation
// failures travel inside the reply envelope, not as RPC errors, so the
// kind survives the wire.
type adminAPI struct {
	s *Server
}

func (a *adminAPI) RefreshQueues(args *RefreshArgs, reply *OpReply) error {
	reply.from(a.s.refreshQueues(args.Caller))
	return nil
}

func (a *adminAPI) RefreshNodes(args *RefreshArgs, reply *OpReply) error {
	reply.from(a.s.refreshNodes(args.Caller))
	return nil
}

func (a *adminAPI) RefreshSuperUserGroupsConfiguration(args *RefreshArgs, reply *OpReply) error {
	reply.from(a.s.refreshSuperUserGroups(args.Caller))
	return nil
}

func (a *adminAPI) RefreshUserToGroupsMappings(args *RefreshArgs, reply *OpReply) error {
	reply.from(a.s.refreshUserToGroups(args.Caller))
	return nil
}

func (a *adminAPI) RefreshAdminAcls(args *RefreshArgs, reply *OpReply) error {
	reply.from(a.s.refreshAdminAcls(args.Caller))
	return nil
}

func (a *adminAPI) RefreshServiceAcls(args *RefreshArgs, reply *OpReply) error {
	reply.from(a.s.refreshServiceAcls(args.Caller))
	return nil
}

func (a *adminAPI) GetGroupsForUser(args *GetGroupsForUserArgs, reply *GetGroupsForUserReply) error {
	gs, err := a.s.getGroupsForUser(args.Caller, args.User)
	reply.from(err)
	reply.Groups = gs
	return nil
}

// haAPI is the RPC receiver for the HA protocol. It is only registered
// when HA is enabled.
type haAPI struct {
	s *Server
}

func (h *haAPI) MonitorHealth(args *MonitorHealthArgs, reply *OpReply) error {
	reply.from(h.s.monitorHealth(args.Caller))
	return nil
}

func (h *haAPI) TransitionToActive(args *TransitionArgs, reply *OpReply) error {
	reply.from(h.s.transitionToActive(args.Caller, args.Source))
	return nil
}

func (h *haAPI) TransitionToStandby(args *TransitionArgs, reply *OpReply) error {
	reply.from(h.s.transitionToStandby(args.Caller, args.Source))
	return nil
}

func (h *haAPI) GetServiceStatus(args *GetServiceStatusArgs, reply *GetServiceStatusReply) error {
	st, err := h.s.getServiceStatus(args.Caller)
	reply.from(err)
	if err == nil {
		reply.Role = string(st.Role)
		reply.ReadyToBecomeActive = st.ReadyToBecomeActive
		reply.Reason = st.Reason
	}
	return nil
}
