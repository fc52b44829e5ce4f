// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package admin

import (
	"net/rpc"
	"os"

	"github.com/google/uuid"

	"grimm.is/foreman/internal/errors"
	"grimm.is/foreman/internal/ha"
)

// Client talks to a control-plane server on behalf of one user.
type Client struct {
	rpc  *rpc.Client
	user string
	host string
}

// Dial connects to the control plane at addr, attributing all calls to
// user.
func Dial(addr, user string) (*Client, error) {
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindRemote, "failed to connect to control plane")
	}
	host, _ := os.Hostname()
	return &Client{rpc: c, user: user, host: host}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}

func (c *Client) caller() CallerInfo {
	return CallerInfo{
		User:      c.user,
		Host:      c.host,
		RequestID: uuid.NewString(),
	}
}

// call performs one RPC and folds transport failures into the remote
// kind.
func (c *Client) call(method string, args, reply any) error {
	if err := c.rpc.Call(method, args, reply); err != nil {
		return errors.Wrapf(err, errors.KindRemote, "call %s failed", method)
	}
	return nil
}

func (c *Client) MonitorHealth() error {
	var reply OpReply
	if err := c.call("HA.MonitorHealth", &MonitorHealthArgs{Caller: c.caller()}, &reply); err != nil {
		return err
	}
	return reply.Err()
}

func (c *Client) TransitionToActive(source string) error {
	var reply OpReply
	args := &TransitionArgs{Caller: c.caller(), Source: source}
	if err := c.call("HA.TransitionToActive", args, &reply); err != nil {
		return err
	}
	return reply.Err()
}

func (c *Client) TransitionToStandby(source string) error {
	var reply OpReply
	args := &TransitionArgs{Caller: c.caller(), Source: source}
	if err := c.call("HA.TransitionToStandby", args, &reply); err != nil {
		return err
	}
	return reply.Err()
}

func (c *Client) GetServiceStatus() (ha.ServiceStatus, error) {
	var reply GetServiceStatusReply
	if err := c.call("HA.GetServiceStatus", &GetServiceStatusArgs{Caller: c.caller()}, &reply); err != nil {
		return ha.ServiceStatus{}, err
	}
	if err := reply.Err(); err != nil {
		return ha.ServiceStatus{}, err
	}
	return ha.ServiceStatus{
		Role:                ha.Role(reply.Role),
		ReadyToBecomeActive: reply.ReadyToBecomeActive,
		Reason:              reply.Reason,
	}, nil
}

func (c *Client) refresh(method string) error {
	var reply OpReply
	if err := c.call(method, &RefreshArgs{Caller: c.caller()}, &reply); err != nil {
		return err
	}
	return reply.Err()
}

func (c *Client) RefreshQueues() error { return c.refresh("Admin.RefreshQueues") }

func (c *Client) RefreshNodes() error { return c.refresh("Admin.RefreshNodes") }

func (c *Client) RefreshSuperUserGroupsConfiguration() error {
	return c.refresh("Admin.RefreshSuperUserGroupsConfiguration")
}

func (c *Client) RefreshUserToGroupsMappings() error {
	return c.refresh("Admin.RefreshUserToGroupsMappings")
}

func (c *Client) RefreshAdminAcls() error { return c.refresh("Admin.RefreshAdminAcls") }

func (c *Client) RefreshServiceAcls() error { return c.refresh("Admin.RefreshServiceAcls") }

func (c *Client) GetGroupsForUser(user string) ([]string, error) {
	var reply GetGroupsForUserReply
	args := &GetGroupsForUserArgs{Caller: c.caller(), User: user}
	if err := c.call("Admin.GetGroupsForUser", args, &reply); err != nil {
		return nil, err
	}
	if err := reply.Err(); err != nil {
		return nil, err
	}
	return reply.Groups, nil
}
