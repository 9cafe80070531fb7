// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the broker's configuration: an
// optional YAML file plus CLI flag overrides, the same two-layer
// shape and precedence the module's gateway/hub commands use.
package config

import (
	"fmt"
	"os"
	"os/user"

	"gopkg.in/yaml.v3"
)

// Config is the full set of parameters §6 requires.
type Config struct {
	FrontendPort int    `yaml:"frontend_port"`
	BackendPort  int    `yaml:"backend_port"`

	MinServers       int `yaml:"min_servers"`
	MaxServers       int `yaml:"max_servers"`
	MinSpareServers  int `yaml:"min_spare_servers"`
	MaxSpareServers  int `yaml:"max_spare_servers"`
	MaxRequests      int `yaml:"max_requests"`
	CheckIntervalSec int `yaml:"check_interval_seconds"`
	ShutdownGraceSec int `yaml:"shutdown_grace_seconds"`

	User     string `yaml:"user"`
	Group    string `yaml:"group"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration §6 specifies as defaults: the
// effective user/group of the invoking process, info-level logging,
// and one server.
func Default() Config {
	cfg := Config{
		MinServers:       1,
		MaxServers:       1,
		MinSpareServers:  0,
		MaxSpareServers:  1,
		MaxRequests:      0,
		CheckIntervalSec: 1,
		ShutdownGraceSec: 5,
		LogLevel:         "info",
	}
	if u, err := user.Current(); err == nil {
		cfg.User = u.Username
		if g, err := user.LookupGroupId(u.Gid); err == nil {
			cfg.Group = g.Name
		}
	}
	return cfg
}

// Load reads a YAML file at path on top of Default() with
// os.ReadFile + yaml.Unmarshal. It does not validate the result;
// callers run Validate separately.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the invariants §6 names: two distinct ports in
// range, and a sane server-count configuration.
func (c Config) Validate() error {
	if c.FrontendPort <= 0 || c.FrontendPort > 65535 {
		return fmt.Errorf("frontend port %d out of range", c.FrontendPort)
	}
	if c.BackendPort <= 0 || c.BackendPort > 65535 {
		return fmt.Errorf("backend port %d out of range", c.BackendPort)
	}
	if c.FrontendPort == c.BackendPort {
		return fmt.Errorf("frontend and backend ports must be distinct, both are %d", c.FrontendPort)
	}
	if c.MinServers < 1 {
		return fmt.Errorf("min_servers must be at least 1, got %d", c.MinServers)
	}
	if c.MaxServers < c.MinServers {
		return fmt.Errorf("max_servers (%d) must be >= min_servers (%d)", c.MaxServers, c.MinServers)
	}
	if c.MaxSpareServers < c.MinSpareServers {
		return fmt.Errorf("max_spare_servers (%d) must be >= min_spare_servers (%d)", c.MaxSpareServers, c.MinSpareServers)
	}
	if c.CheckIntervalSec <= 0 {
		return fmt.Errorf("check_interval_seconds must be positive, got %d", c.CheckIntervalSec)
	}
	if c.ShutdownGraceSec < 0 {
		return fmt.Errorf("shutdown_grace_seconds must not be negative, got %d", c.ShutdownGraceSec)
	}
	return nil
}
