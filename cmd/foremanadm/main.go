// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// foremanadm is the operator CLI for the foreman control plane.
//
// Usage:
//
//	foremanadm [-addr host:port] [-user name] <command> [args]
//
// Commands:
//
//	monitor-health
//	get-service-status
//	transition-to-active
//	transition-to-standby
//	refresh-queues
//	refresh-nodes
//	refresh-super-user-groups
//	refresh-user-to-groups
//	refresh-admin-acls
//	refresh-service-acls
//	get-groups <user>
package main

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"strings"

	"grimm.is/foreman/internal/admin"
	"grimm.is/foreman/internal/config"
)

func main() {
	addr := flag.String("addr", config.DefaultListen, "control plane address")
	asUser := flag.String("user", "", "act as this user (defaults to the current user)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	name := *asUser
	if name == "" {
		u, err := user.Current()
		if err != nil {
			fmt.Fprintf(os.Stderr, "foremanadm: cannot determine current user: %v\n", err)
			os.Exit(1)
		}
		name = u.Username
	}

	if err := dispatch(*addr, name, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "foremanadm: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(addr, name, command string, args []string) error {
	c, err := admin.Dial(addr, name)
	if err != nil {
		return err
	}
	defer c.Close()

	switch command {
	case "monitor-health":
		if err := c.MonitorHealth(); err != nil {
			return err
		}
		fmt.Println("healthy")
	case "get-service-status":
		st, err := c.GetServiceStatus()
		if err != nil {
			return err
		}
		fmt.Printf("role: %s\nready to become active: %v\n", st.Role, st.ReadyToBecomeActive)
		if st.Reason != "" {
			fmt.Printf("reason: %s\n", st.Reason)
		}
	case "transition-to-active":
		return c.TransitionToActive("cli")
	case "transition-to-standby":
		return c.TransitionToStandby("cli")
	case "refresh-queues":
		return c.RefreshQueues()
	case "refresh-nodes":
		return c.RefreshNodes()
	case "refresh-super-user-groups":
		return c.RefreshSuperUserGroupsConfiguration()
	case "refresh-user-to-groups":
		return c.RefreshUserToGroupsMappings()
	case "refresh-admin-acls":
		return c.RefreshAdminAcls()
	case "refresh-service-acls":
		return c.RefreshServiceAcls()
	case "get-groups":
		if len(args) != 1 {
			return fmt.Errorf("usage: get-groups <user>")
		}
		gs, err := c.GetGroupsForUser(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", args[0], strings.Join(gs, ", "))
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: foremanadm [-addr host:port] [-user name] <command> [args]

commands:
  monitor-health             probe the health of the instance
  get-service-status         report the HA role
  transition-to-active       request the active role
  transition-to-standby      request the standby role
  refresh-queues             reload the scheduler queue definitions
  refresh-nodes              reload the node include/exclude lists
  refresh-super-user-groups  reload the proxy user rules
  refresh-user-to-groups     drop the cached group memberships
  refresh-admin-acls         reload the admin ACL from configuration
  refresh-service-acls       reload the service authorization policy
  get-groups <user>          show the groups a user belongs to
`)
	flag.PrintDefaults()
}
