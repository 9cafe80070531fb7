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

package config

import "testing"

func validConfig() Config {
	cfg := Default()
	cfg.FrontendPort = 6660
	cfg.BackendPort = 6661
	return cfg
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config to pass, got: %v", err)
	}
}

func TestValidateRejectsSamePort(t *testing.T) {
	cfg := validConfig()
	cfg.BackendPort = cfg.FrontendPort
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when frontend and backend ports are equal")
	}
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := validConfig()
	cfg.FrontendPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for out-of-range port")
	}
}

func TestValidateRejectsMaxServersBelowMin(t *testing.T) {
	cfg := validConfig()
	cfg.MinServers = 5
	cfg.MaxServers = 2
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when max_servers < min_servers")
	}
}

func TestValidateRejectsZeroMinServers(t *testing.T) {
	cfg := validConfig()
	cfg.MinServers = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for min_servers below 1")
	}
}

func TestValidateRejectsNegativeShutdownGrace(t *testing.T) {
	cfg := validConfig()
	cfg.ShutdownGraceSec = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative shutdown_grace_seconds")
	}
}
