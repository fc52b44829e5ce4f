// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"grimm.is/foreman/internal/errors"
)

// LoadFile reads, decodes and validates an HCL configuration file,
// applying defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindConfiguration, "failed to read config file")
	}
	return LoadHCL(data, path)
}

// LoadHCL decodes HCL configuration from a byte slice. The filename is
// used only for diagnostics.
func LoadHCL(data []byte, filename string) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, data, nil, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindConfiguration, "failed to parse config")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field consistency. Defaults are assumed to have
// been applied.
func (c *Config) Validate() error {
	if c.ServiceAuthorization && c.PolicyFile == "" {
		return errors.New(errors.KindValidation,
			"service_authorization requires policy_file")
	}
	if c.Scheduler != nil {
		seen := make(map[string]bool, len(c.Scheduler.Queues))
		for _, q := range c.Scheduler.Queues {
			if q.Name == "" {
				return errors.New(errors.KindValidation, "scheduler queue without a name")
			}
			if seen[q.Name] {
				return errors.Errorf(errors.KindValidation, "duplicate scheduler queue %q", q.Name)
			}
			seen[q.Name] = true
			if q.Weight < 0 {
				return errors.Errorf(errors.KindValidation, "queue %q has negative weight", q.Name)
			}
		}
	}
	for _, p := range c.Proxy {
		if p.Name == "" {
			return errors.New(errors.KindValidation, "proxy_user block without a name")
		}
	}
	return nil
}

// Loader returns a function that re-reads the configuration file on
// every call. It is what refresh operations use to pick up edits made
// while the controller is running.
func Loader(path string) func() (*Config, error) {
	return func() (*Config, error) {
		return LoadFile(path)
	}
}
