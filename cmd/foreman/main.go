// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// foreman is the cluster controller daemon. It serves the privileged
// control plane and, when HA is enabled, waits on standby until told to
// take over.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/foreman/internal/admin"
	"grimm.is/foreman/internal/audit"
	"grimm.is/foreman/internal/authorize"
	"grimm.is/foreman/internal/config"
	"grimm.is/foreman/internal/groups"
	"grimm.is/foreman/internal/ha"
	"grimm.is/foreman/internal/logging"
	"grimm.is/foreman/internal/nodes"
	"grimm.is/foreman/internal/proxyusers"
	"grimm.is/foreman/internal/sched"
)

func main() {
	configFile := flag.String("config", "/etc/foreman/foreman.hcl", "path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "foreman: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	if cfg.Log != nil {
		if cfg.Log.Level != "" {
			logCfg.Level = cfg.Log.Level
		}
		if cfg.Log.Format != "" {
			logCfg.Format = cfg.Log.Format
		}
	}
	log := logging.New(logCfg)
	logging.SetDefault(log)

	reload := config.Loader(configFile)

	staticGroups := make(map[string][]string)
	for _, s := range cfg.Groups.Static {
		staticGroups[s.User] = s.Groups
	}
	mapper := groups.NewService(
		groups.NewStaticBackend(staticGroups),
		time.Duration(cfg.Groups.CacheTTL)*time.Second,
	)

	var registry *nodes.Registry
	if cfg.Nodes != nil {
		registry = nodes.NewRegistry(cfg.Nodes.IncludeFile, cfg.Nodes.ExcludeFile, log)
	} else {
		registry = nodes.NewRegistry("", "", log)
	}
	if err := registry.Refresh(); err != nil {
		return err
	}

	proxies := proxyusers.NewStore(cfg.Proxy, func() ([]config.ProxyUser, error) {
		c, err := reload()
		if err != nil {
			return nil, err
		}
		return c.Proxy, nil
	})

	scheduler, err := sched.NewQueueScheduler(func() (*config.SchedulerConfig, error) {
		c, err := reload()
		if err != nil {
			return nil, err
		}
		return c.Scheduler, nil
	}, log)
	if err != nil {
		return err
	}

	enforcer, err := authorize.NewEnforcer(cfg.ServiceAuthorization, cfg.PolicyFile)
	if err != nil {
		return err
	}

	state := ha.NewStateController(&clusterServices{log: log}, log)

	srv := admin.NewServer(cfg, log,
		audit.NewTrail(cfg.Audit.Target, audit.NewLogSink(log)),
		state, enforcer,
		admin.Collaborators{
			Scheduler: scheduler,
			Nodes:     registry,
			Proxies:   proxies,
			Groups:    mapper,
		},
		reload)

	if cfg.Metrics != nil && cfg.Metrics.Listen != "" {
		go serveMetrics(cfg.Metrics.Listen, log)
	}

	if err := srv.Start(); err != nil {
		return err
	}

	// A non-HA instance is the whole cluster; it activates straight
	// away. An HA instance waits on standby for a transition request.
	if cfg.HA != nil && cfg.HA.Enabled {
		if err := state.TransitionToStandby(); err != nil {
			return err
		}
	} else {
		if err := state.TransitionToActive(); err != nil {
			return err
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	got := <-sig
	log.Info("shutting down", "signal", got.String())

	srv.Stop()
	return state.Stop()
}

func serveMetrics(addr string, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server failed", "error", err)
	}
}

// clusterServices is the work bundle only the active instance runs. The
// control-plane collaborators are all passive; what activation gates is
// accepting work from the cluster, tracked here.
type clusterServices struct {
	log     *logging.Logger
	running bool
}

func (c *clusterServices) Start() error {
	c.log.Info("active services started")
	c.running = true
	return nil
}

func (c *clusterServices) Stop() error {
	c.log.Info("active services stopped")
	c.running = false
	return nil
}

func (c *clusterServices) Running() bool { return c.running }
