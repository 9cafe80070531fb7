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

//go:build integration

// Package supervisor_test covers Supervisor.Fork's actual re-exec
// behavior, using the stdlib's own os/exec_test.go "helper process"
// idiom: the test binary re-execs itself with a marker environment
// variable set, and TestMain dispatches to helper logic instead of
// running the table of tests.
package supervisor_test

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arion/zmqjob/internal/broker"
	"github.com/arion/zmqjob/internal/callback"
	"github.com/arion/zmqjob/internal/childtable"
	"github.com/arion/zmqjob/internal/supervisor"
	"github.com/arion/zmqjob/internal/transport"
	"github.com/arion/zmqjob/internal/worker"
)

const helperEnv = "ZMQJOB_TEST_HELPER_WORKER"

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		runHelperWorker()
		return
	}
	os.Exit(m.Run())
}

// runHelperWorker stands in for cmd/worker.go's RunE: a fresh context
// (never the parent's), connect, announce, serve requests until the
// socket fails or a HUP arrives, exit. It never returns.
func runHelperWorker() {
	ctx := context.Background()
	w, err := worker.New(ctx, worker.Config{
		BackendAddr: os.Args[2],
		Identity:    os.Args[3],
		Handler:     callback.Echo,
	})
	if err != nil {
		os.Exit(1)
	}
	if err := w.Announce(); err != nil {
		os.Exit(1)
	}
	_ = w.Serve()
	os.Exit(0)
}

// TestSupervisorForksRealWorkerProcess exercises Supervisor.Fork
// against a real broker: the forked child must be a genuine OS
// process capable of completing a request through the broker's
// sockets, not a stub.
func TestSupervisorForksRealWorkerProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := broker.New(ctx, "tcp://127.0.0.1:0", "tcp://127.0.0.1:0", childtable.New(), nil, nil, time.Second)
	require.NoError(t, err)
	defer b.Close()
	go b.Run(ctx)

	table := childtable.New()
	workerArgs := func(identity string) []string {
		return []string{b.BackendAddr(), identity}
	}
	sup := supervisor.New(supervisor.Params{MinServers: 1, MaxServers: 1}, table, "", workerArgs)

	require.NoError(t, os.Setenv(helperEnv, "1"))
	defer os.Unsetenv(helperEnv)

	require.NoError(t, sup.Fork())

	pids := table.Pids()
	require.Len(t, pids, 1)
	pid := pids[0]
	defer func() {
		_ = syscall.Kill(pid, syscall.SIGKILL)
		var ws syscall.WaitStatus
		_, _ = syscall.Wait4(pid, &ws, 0, nil)
	}()

	time.Sleep(100 * time.Millisecond)

	c := transport.NewReq(ctx, "c1")
	require.NoError(t, c.Connect(b.FrontendAddr()))
	defer c.Close()

	require.NoError(t, c.SendMultipart([][]byte{[]byte("ping")}))
	frames, err := c.RecvMultipart()
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, "ping", string(frames[0]))
}
