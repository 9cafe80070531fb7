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

// Package status implements the supervisor's status channel: a ROUTER
// socket independent of the backend work-traffic socket, over which
// forked workers report lifecycle transitions (waiting, processing,
// exiting). §4.3 mandates this independence so status
// reporting never competes with work traffic for framing.
package status

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arion/zmqjob/internal/childtable"
	"github.com/arion/zmqjob/internal/transport"
)

// EnvAddr is the environment variable the supervisor uses to pass the
// bound status address down to each forked worker.
const EnvAddr = "ZMQJOB_STATUS_ADDR"

// Report is one status transition a worker sends over the status
// channel, identified by pid so the supervisor can key it against the
// child table without trusting the worker's own claimed identity.
type Report struct {
	Pid      int              `json:"pid"`
	Identity string           `json:"identity"`
	Status   childtable.Status `json:"status"`
}

// Channel owns the status ROUTER socket on the supervisor side.
type Channel struct {
	sock transport.Socket
	addr string
}

// Bind opens the status ROUTER on an OS-assigned loopback port, the
// spec's preferred option (a) over piggybacking status into backend
// traffic.
func Bind(ctx context.Context) (*Channel, error) {
	sock := transport.NewRouter(ctx, "status")
	if err := sock.Bind("tcp://127.0.0.1:0"); err != nil {
		return nil, fmt.Errorf("bind status channel: %w", err)
	}
	addr, err := transport.BoundAddr(sock)
	if err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("resolve status channel address: %w", err)
	}
	return &Channel{sock: sock, addr: addr}, nil
}

// Addr returns the address workers should dial, exported to the
// supervisor so it can set EnvAddr on each forked child.
func (c *Channel) Addr() string {
	return c.addr
}

// Reader starts draining status reports into a buffered channel, the
// same reader-goroutine-over-blocking-socket shape internal/transport
// uses for the frontend and backend sockets.
func (c *Channel) Reader(ctx context.Context) <-chan Report {
	out := make(chan Report, 64)
	inbound := transport.Reader(ctx, c.sock, 64)
	go func() {
		defer close(out)
		for in := range inbound {
			if in.Err != nil {
				return
			}
			report, err := decode(in.Frames)
			if err != nil {
				continue
			}
			select {
			case out <- report:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Close closes the underlying socket.
func (c *Channel) Close() error {
	return c.sock.Close()
}

func decode(frames [][]byte) (Report, error) {
	if len(frames) < 3 || len(frames[1]) != 0 {
		return Report{}, fmt.Errorf("malformed status message: %d frames", len(frames))
	}
	var report Report
	if err := json.Unmarshal(frames[2], &report); err != nil {
		return Report{}, fmt.Errorf("decode status report: %w", err)
	}
	return report, nil
}

// Client is the worker-side handle used to report status transitions.
// It is a DEALER rather than a ROUTER: the worker talks to exactly one
// peer (the supervisor) and never needs to address replies itself.
type Client struct {
	sock transport.Socket
}

// Dial connects to the status channel at addr using identity as the
// sender identity the supervisor's ROUTER will see on frame 0.
func Dial(ctx context.Context, addr, identity string) (*Client, error) {
	sock := transport.NewDealer(ctx, identity)
	if err := sock.Connect(addr); err != nil {
		return nil, fmt.Errorf("dial status channel: %w", err)
	}
	return &Client{sock: sock}, nil
}

// Report sends a status transition.
func (c *Client) Report(pid int, identity string, st childtable.Status) error {
	body, err := json.Marshal(Report{Pid: pid, Identity: identity, Status: st})
	if err != nil {
		return fmt.Errorf("encode status report: %w", err)
	}
	return c.sock.SendMultipart([][]byte{transport.Empty(), body})
}

// Close closes the underlying socket.
func (c *Client) Close() error {
	return c.sock.Close()
}
