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

// Package supervisor owns the fork/reap lifecycle (§4.3): it forks
// worker children by re-exec'ing the current binary under the
// "worker" subcommand (never syscall.Fork, so a child never inherits
// a parent zmq4 context or socket), maintains the min/max/spare
// server counts, and reaps children whose exit the signal dispatcher
// observed.
package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/arion/zmqjob/internal/childtable"
	"github.com/arion/zmqjob/internal/logger"
	"github.com/arion/zmqjob/internal/status"
)

// Params are the pool-sizing parameters §4.3 names.
type Params struct {
	MinServers      int
	MaxServers      int
	MinSpareServers int
	MaxSpareServers int
	MaxRequests     int
}

// Supervisor maintains the child process pool.
type Supervisor struct {
	params     Params
	table      *childtable.Table
	statusAddr string
	workerArgs func(identity string) []string
	forkFn     func() error
	log        zerolog.Logger
}

// New constructs a Supervisor. workerArgs builds the argv (after the
// "worker" subcommand name) for a freshly forked child given its
// identity; it is the caller's (cmd/broker.go's) job to thread the
// backend address, identity, and max-requests flags through.
func New(params Params, table *childtable.Table, statusAddr string, workerArgs func(identity string) []string) *Supervisor {
	s := &Supervisor{
		params:     params,
		table:      table,
		statusAddr: statusAddr,
		workerArgs: workerArgs,
		log:        logger.New(),
	}
	s.forkFn = s.doFork
	return s
}

// Params returns the current pool-sizing parameters.
func (s *Supervisor) Params() Params {
	return s.params
}

// GrowPool implements the TTIN signal effect: min_servers and
// max_servers each increment by one.
func (s *Supervisor) GrowPool() {
	s.params.MinServers++
	s.params.MaxServers++
	s.log.Info().Int("min_servers", s.params.MinServers).Int("max_servers", s.params.MaxServers).Msg("pool bounds grown")
}

// ShrinkPool implements the TTOU signal effect.
func (s *Supervisor) ShrinkPool() {
	if s.params.MinServers > 0 {
		s.params.MinServers--
	}
	if s.params.MaxServers > 0 {
		s.params.MaxServers--
	}
	s.log.Info().Int("min_servers", s.params.MinServers).Int("max_servers", s.params.MaxServers).Msg("pool bounds shrunk")
}

// Fork spawns one worker child and registers it in the child table.
// It delegates to forkFn so tests can substitute a stub rather than
// exec a real process.
func (s *Supervisor) Fork() error {
	return s.forkFn()
}

func (s *Supervisor) doFork() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable: %w", err)
	}
	identity := fmt.Sprintf("child_%d", os.Getpid())
	args := append([]string{"worker"}, s.workerArgs(identity)...)
	cmd := exec.Command(self, args...)
	cmd.Env = append(os.Environ(), status.EnvAddr+"="+s.statusAddr)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("fork worker: %w", err)
	}
	s.table.Add(cmd.Process.Pid)
	s.log.Info().Int("pid", cmd.Process.Pid).Str("identity", identity).Msg("forked worker")
	return nil
}

// RestartAll implements the HUP signal effect: every currently live
// child is sent HUP so it exits after its current request, and the
// next housekeeping pass forks replacements up to min_servers.
func (s *Supervisor) RestartAll() {
	for _, pid := range s.table.Pids() {
		if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
			s.log.Warn().Err(err).Int("pid", pid).Msg("failed to signal child for restart")
		}
	}
	s.log.Info().Int("count", len(s.table.Pids())).Msg("restart signaled to all children")
}

// Reap performs a non-blocking wait for any children that have
// already exited and marks them in the child table. It is the signal
// dispatcher's CHLD action, so it runs from the broker loop's
// signal-poll step, never from the signal handler; the marked records
// are removed later, by Housekeep.
func (s *Supervisor) Reap() {
	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		s.table.MarkReaped(pid)
		s.log.Info().Int("pid", pid).Msg("reaped child")
	}
}

// Housekeep implements broker.Housekeeper: fork up to spare-server
// targets, politely stop one child if there are too many spares, and
// drain any pids the signal dispatcher's Reap already marked.
func (s *Supervisor) Housekeep(_ map[string]struct{}) (reapedIdentities []string) {
	for _, pid := range s.table.ReapPending() {
		reapedIdentities = append(reapedIdentities, fmt.Sprintf("child_%d", pid))
	}

	waiting := s.table.Tally(childtable.Waiting)
	total := s.table.Count()

	if waiting < s.params.MinSpareServers && total < s.params.MaxServers {
		if err := s.Fork(); err != nil {
			s.log.Error().Err(err).Msg("failed to fork replacement worker")
		}
		return reapedIdentities
	}

	if total < s.params.MinServers {
		if err := s.Fork(); err != nil {
			s.log.Error().Err(err).Msg("failed to fork worker to reach min_servers")
		}
		return reapedIdentities
	}

	if waiting > s.params.MaxSpareServers {
		s.stopOneSpare()
	}

	return reapedIdentities
}

// stopOneSpare sends a polite HUP to a single idle child, letting the
// worker finish its serve loop's next iteration check and exit on its
// own rather than killing it outright.
func (s *Supervisor) stopOneSpare() {
	for _, pid := range s.table.Pids() {
		c, ok := s.table.Get(pid)
		if !ok || c.Status != childtable.Waiting {
			continue
		}
		if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
			s.log.Warn().Err(err).Int("pid", pid).Msg("failed to signal spare child to stop")
		}
		return
	}
}
