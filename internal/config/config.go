// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config provides HCL configuration handling for the foreman
// administrative control plane.
package config

// Default values applied when the configuration leaves them unset.
const (
	// DefaultListen is the default admin listener bind address.
	DefaultListen = "127.0.0.1:8033"

	// DefaultAdminACL permits every authenticated caller.
	DefaultAdminACL = "*"

	// DefaultHandlerPool is the number of concurrently served admin
	// connections.
	DefaultHandlerPool = 1

	// DefaultGroupCacheTTL is the group-mapping cache lifetime in seconds.
	DefaultGroupCacheTTL = 300
)

// Config is the top-level structure for the admin control-plane
// configuration.
type Config struct {
	// Listen is the bind address of the administrative RPC listener.
	// @default: "127.0.0.1:8033"
	Listen string `hcl:"listen,optional" json:"listen,omitempty"`

	// AdminACL is the access-control list for administrative operations,
	// in "user1,user2 group1,group2" form. "*" permits everyone.
	// @default: "*"
	AdminACL string `hcl:"admin_acl,optional" json:"admin_acl,omitempty"`

	// HandlerPool bounds the number of admin connections served at once.
	// @default: 1
	HandlerPool int `hcl:"handler_pool,optional" json:"handler_pool,omitempty"`

	// ServiceAuthorization enables transport-level authorization: every
	// inbound call is checked against the per-protocol policy before it
	// is dispatched.
	// @default: false
	ServiceAuthorization bool `hcl:"service_authorization,optional" json:"service_authorization,omitempty"`

	// PolicyFile is the per-protocol ACL policy file (YAML), consulted
	// only when ServiceAuthorization is set.
	PolicyFile string `hcl:"policy_file,optional" json:"policy_file,omitempty"`

	HA        *HAConfig        `hcl:"ha,block" json:"ha,omitempty"`
	Nodes     *NodesConfig     `hcl:"nodes,block" json:"nodes,omitempty"`
	Proxy     []ProxyUser      `hcl:"proxy_user,block" json:"proxy_user,omitempty"`
	Groups    *GroupsConfig    `hcl:"groups,block" json:"groups,omitempty"`
	Scheduler *SchedulerConfig `hcl:"scheduler,block" json:"scheduler,omitempty"`
	Audit     *AuditConfig     `hcl:"audit,block" json:"audit,omitempty"`
	Metrics   *MetricsConfig   `hcl:"metrics,block" json:"metrics,omitempty"`
	Log       *LogConfig       `hcl:"log,block" json:"log,omitempty"`
}

// HAConfig controls the high-availability deployment shape.
type HAConfig struct {
	// Enabled registers the HA role-transition protocol on the admin
	// listener and starts the controller in STANDBY.
	Enabled bool `hcl:"enabled,optional" json:"enabled"`

	// NodeID identifies this controller instance in logs and audit lines.
	NodeID string `hcl:"node_id,optional" json:"node_id,omitempty"`
}

// NodesConfig points at the worker host list files re-read on a node
// registry refresh.
type NodesConfig struct {
	// IncludeFile lists hosts permitted to register, one per line.
	// An absent or empty file permits every host.
	IncludeFile string `hcl:"include_file,optional" json:"include_file,omitempty"`

	// ExcludeFile lists decommissioned hosts, one per line.
	ExcludeFile string `hcl:"exclude_file,optional" json:"exclude_file,omitempty"`
}

// ProxyUser names a superuser permitted to impersonate members of the
// listed groups from the listed hosts.
type ProxyUser struct {
	Name   string   `hcl:"name,label" json:"name"`
	Groups []string `hcl:"groups,optional" json:"groups,omitempty"`
	Hosts  []string `hcl:"hosts,optional" json:"hosts,omitempty"`
}

// GroupsConfig configures the group-mapping resolution service.
type GroupsConfig struct {
	// CacheTTL is the per-user cache lifetime in seconds.
	// @default: 300
	CacheTTL int `hcl:"cache_ttl,optional" json:"cache_ttl,omitempty"`

	Static []StaticGroup `hcl:"static,block" json:"static,omitempty"`
}

// StaticGroup maps a user to a fixed group list.
type StaticGroup struct {
	User   string   `hcl:"user,label" json:"user"`
	Groups []string `hcl:"groups" json:"groups"`
}

// SchedulerConfig holds the queue definitions the scheduler is
// reinitialized from.
type SchedulerConfig struct {
	Queues []Queue `hcl:"queue,block" json:"queue,omitempty"`
}

// Queue defines a scheduler queue and its share of the cluster.
type Queue struct {
	Name   string  `hcl:"name,label" json:"name"`
	Weight float64 `hcl:"weight,optional" json:"weight,omitempty"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// Target names this service instance in every audit line.
	// @default: the HA node id, or "foreman"
	Target string `hcl:"target,optional" json:"target,omitempty"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the bind address for /metrics. Empty disables the endpoint.
	Listen string `hcl:"listen,optional" json:"listen,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `hcl:"level,optional" json:"level,omitempty"`

	// Format is "text" or "json".
	Format string `hcl:"format,optional" json:"format,omitempty"`
}

// ApplyDefaults fills unset fields in place.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.AdminACL == "" {
		c.AdminACL = DefaultAdminACL
	}
	if c.HandlerPool <= 0 {
		c.HandlerPool = DefaultHandlerPool
	}
	if c.Groups == nil {
		c.Groups = &GroupsConfig{}
	}
	if c.Groups.CacheTTL <= 0 {
		c.Groups.CacheTTL = DefaultGroupCacheTTL
	}
	if c.Audit == nil {
		c.Audit = &AuditConfig{}
	}
	if c.Audit.Target == "" {
		if c.HA != nil && c.HA.NodeID != "" {
			c.Audit.Target = c.HA.NodeID
		} else {
			c.Audit.Target = "foreman"
		}
	}
}
