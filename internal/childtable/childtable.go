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

// Package childtable tracks the supervisor's forked worker processes:
// one record per pid, its reported status, and per-status tallies.
// It is only ever touched from the broker's own event loop (the
// supervisor's housekeeping runs inline in that loop, per §5's "no
// locking discipline" rule), so it carries no mutex.
package childtable

import "time"

// Status is a worker's self-reported lifecycle state.
type Status string

const (
	Starting  Status = "starting"
	Waiting   Status = "waiting"
	Processing Status = "processing"
	Exiting   Status = "exiting"
)

// Child is one live (or recently reaped) forked worker process.
type Child struct {
	Pid       int
	Identity  string
	Status    Status
	StartedAt time.Time
}

// Table is the supervisor's child process + tally bookkeeping.
type Table struct {
	byPid  map[int]*Child
	tally  map[Status]int
	reaped map[int]struct{}
}

// New returns an empty child table.
func New() *Table {
	return &Table{
		byPid:  make(map[int]*Child),
		tally:  make(map[Status]int),
		reaped: make(map[int]struct{}),
	}
}

// Add registers a newly forked child in the "starting" state.
func (t *Table) Add(pid int) {
	c := &Child{Pid: pid, Status: Starting, StartedAt: time.Now()}
	t.byPid[pid] = c
	t.tally[Starting]++
}

// SetStatus records a status transition reported by a worker,
// identifying it by pid, and keeps the tally consistent.
func (t *Table) SetStatus(pid int, identity string, status Status) {
	c, ok := t.byPid[pid]
	if !ok {
		// Late-arriving report for a pid the supervisor no longer
		// tracks (e.g. already reaped): ignored, matches §4.1's
		// "identity-to-pid mapping is not authoritative for routing".
		return
	}
	t.tally[c.Status]--
	c.Status = status
	if identity != "" {
		c.Identity = identity
	}
	t.tally[status]++
}

// MarkReaped records that SIGCHLD reported pid as exited. The record
// is not removed immediately: ReapPending removes it during the
// broker's housekeeping pass, which also scrubs the idle queue.
func (t *Table) MarkReaped(pid int) {
	t.reaped[pid] = struct{}{}
}

// ReapPending removes every child marked reaped since the last call
// and returns their pids, so the caller can also scrub dependent state
// (the idle-worker queue).
func (t *Table) ReapPending() []int {
	if len(t.reaped) == 0 {
		return nil
	}
	pids := make([]int, 0, len(t.reaped))
	for pid := range t.reaped {
		pids = append(pids, pid)
		if c, ok := t.byPid[pid]; ok {
			t.tally[c.Status]--
			delete(t.byPid, pid)
		}
	}
	t.reaped = make(map[int]struct{})
	return pids
}

// Count returns the number of live (non-reaped) children.
func (t *Table) Count() int {
	return len(t.byPid)
}

// Tally returns the live count of children in status.
func (t *Table) Tally(status Status) int {
	return t.tally[status]
}

// LiveIdentities returns the set of identities currently known to the
// table, keyed the way the idle queue stores them (raw bytes as a
// string), for use by the idle-queue scrub.
func (t *Table) LiveIdentities() map[string]struct{} {
	live := make(map[string]struct{}, len(t.byPid))
	for _, c := range t.byPid {
		if c.Identity != "" {
			live[c.Identity] = struct{}{}
		}
	}
	return live
}

// Pids returns every live child's pid.
func (t *Table) Pids() []int {
	pids := make([]int, 0, len(t.byPid))
	for pid := range t.byPid {
		pids = append(pids, pid)
	}
	return pids
}

// Get returns the child record for pid, if still tracked.
func (t *Table) Get(pid int) (*Child, bool) {
	c, ok := t.byPid[pid]
	return c, ok
}
