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

// Package worker implements the Worker Runtime: one instance per
// forked child process. It owns a single backend-facing socket,
// performs the READY handshake, and serves requests one at a time by
// invoking the application callback.
package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/arion/zmqjob/internal/callback"
	"github.com/arion/zmqjob/internal/childtable"
	"github.com/arion/zmqjob/internal/logger"
	"github.com/arion/zmqjob/internal/status"
	"github.com/arion/zmqjob/internal/transport"
	"github.com/arion/zmqjob/internal/wire"
)

// FailurePolicy controls what a worker replies with when its
// application callback panics or returns an error.
type FailurePolicy int

const (
	// EmptyReply sends a zero-length result frame.
	EmptyReply FailurePolicy = iota
	// ErrorFramedReply sends the error's text as the result frame.
	ErrorFramedReply
)

// Stats is the worker's own introspection snapshot.
type Stats struct {
	RequestsHandled int
	RequestsFailed  int
}

// Worker serves requests dispatched by the broker's backend socket.
type Worker struct {
	identity     string
	sock         transport.Socket
	handler      callback.RequestHandler
	policy       FailurePolicy
	maxRequests  int
	statusClient *status.Client
	pid          int
	log          zerolog.Logger
	stats        Stats
	hupCh        chan os.Signal
}

// Config collects the parameters needed to start a worker.
type Config struct {
	BackendAddr  string
	Identity     string
	Handler      callback.RequestHandler
	Policy       FailurePolicy
	MaxRequests  int // 0 means unbounded
	StatusClient *status.Client
	Pid          int
}

// New creates a worker socket per §4.2 startup steps 2-4. The ctx
// passed in must be created fresh inside the worker process (never
// the supervisor's own), since a messaging context must never cross
// a fork/exec boundary.
func New(ctx context.Context, cfg Config) (*Worker, error) {
	if cfg.Handler == nil {
		cfg.Handler = callback.Echo
	}
	sock := transport.NewReq(ctx, cfg.Identity)
	if err := sock.SetLinger(0); err != nil {
		return nil, fmt.Errorf("set linger: %w", err)
	}
	if err := sock.Connect(cfg.BackendAddr); err != nil {
		return nil, fmt.Errorf("connect to backend: %w", err)
	}
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	return &Worker{
		identity:     cfg.Identity,
		sock:         sock,
		handler:      cfg.Handler,
		policy:       cfg.Policy,
		maxRequests:  cfg.MaxRequests,
		statusClient: cfg.StatusClient,
		pid:          cfg.Pid,
		log:          logger.New(),
		hupCh:        hupCh,
	}, nil
}

// Stats returns the worker's current counters.
func (w *Worker) Stats() Stats {
	return w.stats
}

// Announce sends the READY handshake (§4.2 step 5) and reports
// "waiting" over the status channel.
func (w *Worker) Announce() error {
	if err := w.sock.SendMultipart(wire.WorkerReadyFrames()); err != nil {
		return fmt.Errorf("send READY: %w", err)
	}
	w.reportStatus(childtable.Waiting)
	return nil
}

// Serve runs the serve loop (§4.2) until the socket returns an error
// (parent closed the connection), a HUP has arrived by the time a
// reply is sent, or max_requests_per_worker is reached.
func (w *Worker) Serve() error {
	defer w.reportStatus(childtable.Exiting)
	for {
		frames, err := w.sock.RecvMultipart()
		if err != nil {
			return fmt.Errorf("recv request: %w", err)
		}
		inbound, err := wire.ParseClientFrontendMessage(frames)
		if err != nil {
			w.log.Warn().Err(err).Msg("dropping malformed request")
			continue
		}

		w.reportStatus(childtable.Processing)
		result := w.invoke(inbound.Payload)

		if err := w.sock.SendMultipart(wire.WorkerReplyFrames(inbound.ClientID, result)); err != nil {
			return fmt.Errorf("send reply: %w", err)
		}
		w.stats.RequestsHandled++

		select {
		case <-w.hupCh:
			w.log.Info().Msg("HUP received, exiting after this request")
			return nil
		default:
		}

		w.reportStatus(childtable.Waiting)

		if w.maxRequests > 0 && w.stats.RequestsHandled >= w.maxRequests {
			return nil
		}
	}
}

// invoke calls the application callback, recovering a panic and
// applying the configured failure policy, per §4.2's failure
// semantics: the worker must never leave the broker believing it is
// idle while actually dead, so even a recovered panic still produces
// a reply before the worker moves on.
func (w *Worker) invoke(payload []byte) (result []byte) {
	defer func() {
		if r := recover(); r != nil {
			w.stats.RequestsFailed++
			result = w.failureResult(fmt.Errorf("callback panic: %v", r))
		}
	}()
	out, err := w.handler.Handle(payload)
	if err != nil {
		w.stats.RequestsFailed++
		return w.failureResult(err)
	}
	return out
}

func (w *Worker) failureResult(err error) []byte {
	switch w.policy {
	case ErrorFramedReply:
		return []byte(err.Error())
	default:
		return []byte{}
	}
}

// Close shuts the worker socket down. Per §4.2 the messaging context
// itself must also be destroyed; that happens when the process exits,
// since each worker process owns exactly one context for its lifetime.
func (w *Worker) Close() error {
	signal.Stop(w.hupCh)
	if w.statusClient != nil {
		_ = w.statusClient.Close()
	}
	return w.sock.Close()
}

func (w *Worker) reportStatus(st childtable.Status) {
	if w.statusClient == nil {
		return
	}
	if err := w.statusClient.Report(w.pid, w.identity, st); err != nil {
		w.log.Warn().Err(err).Msg("failed to report status")
	}
}
