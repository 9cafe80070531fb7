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

// Package signals implements the Signal Dispatcher (§4.4): it
// registers the full signal set the spec requires via os/signal.Notify
// into a buffered channel, the same registration idiom the module's
// daemon code and the pack's kedacore-keda controller use, but drains
// that channel non-blockingly from inside the broker's own loop
// instead of acting from the OS handler, to stay async-signal-safe.
package signals

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/arion/zmqjob/internal/logger"
)

// Actions is the set of callbacks the broker loop invokes in response
// to a translated signal. Each is called synchronously from Poll, so
// it runs on the broker's own goroutine and may safely touch broker
// state.
type Actions struct {
	Shutdown    func(kindQuit bool) // INT, TERM, QUIT
	RestartAll  func()              // HUP
	Reap        func()              // CHLD
	GrowPool    func()              // TTIN
	ShrinkPool  func()              // TTOU
}

// Dispatcher owns the OS signal channel and translates arrivals into
// Actions calls when Poll is invoked.
type Dispatcher struct {
	ch      chan os.Signal
	actions Actions
	log     zerolog.Logger
}

// New registers the full signal set §4.4 names and returns a
// Dispatcher ready to be polled from the broker loop. PIPE is
// registered and then simply never translated into an action, which
// is the deliberate "ignore" behavior §4.4 specifies (letting it
// reach the process default would terminate it on a broken pipe).
func New(actions Actions) *Dispatcher {
	ch := make(chan os.Signal, 16)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
		syscall.SIGHUP,
		syscall.SIGCHLD,
		syscall.SIGTTIN,
		syscall.SIGTTOU,
		syscall.SIGPIPE,
	)
	return &Dispatcher{ch: ch, actions: actions, log: logger.New()}
}

// Stop unregisters the signal handlers.
func (d *Dispatcher) Stop() {
	signal.Stop(d.ch)
}

// Poll drains every signal currently buffered on the channel,
// non-blockingly, and dispatches each to the matching action. It
// returns true if it acted on at least one signal.
func (d *Dispatcher) Poll() bool {
	acted := false
	for {
		select {
		case sig := <-d.ch:
			d.dispatch(sig)
			acted = true
		default:
			return acted
		}
	}
}

func (d *Dispatcher) dispatch(sig os.Signal) {
	switch sig {
	case syscall.SIGINT:
		d.log.Info().Str("signal", "INT").Msg("graceful shutdown requested")
		if d.actions.Shutdown != nil {
			d.actions.Shutdown(false)
		}
	case syscall.SIGTERM:
		d.log.Info().Str("signal", "TERM").Msg("graceful shutdown requested")
		if d.actions.Shutdown != nil {
			d.actions.Shutdown(false)
		}
	case syscall.SIGQUIT:
		d.log.Info().Str("signal", "QUIT").Msg("graceful shutdown requested (quit)")
		if d.actions.Shutdown != nil {
			d.actions.Shutdown(true)
		}
	case syscall.SIGHUP:
		d.log.Info().Str("signal", "HUP").Msg("restarting all workers")
		if d.actions.RestartAll != nil {
			d.actions.RestartAll()
		}
	case syscall.SIGCHLD:
		d.log.Debug().Str("signal", "CHLD").Msg("reap pending")
		if d.actions.Reap != nil {
			d.actions.Reap()
		}
	case syscall.SIGTTIN:
		d.log.Info().Str("signal", "TTIN").Msg("growing pool bounds by one")
		if d.actions.GrowPool != nil {
			d.actions.GrowPool()
		}
	case syscall.SIGTTOU:
		d.log.Info().Str("signal", "TTOU").Msg("shrinking pool bounds by one")
		if d.actions.ShrinkPool != nil {
			d.actions.ShrinkPool()
		}
	case syscall.SIGPIPE:
		// Ignored per §4.4.
	}
}
