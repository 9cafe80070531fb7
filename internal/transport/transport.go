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

// Package transport is the Messaging Port adapter: the thin contract
// the broker, worker and status channel depend on, backed by
// github.com/go-zeromq/zmq4. It exists so the core never imports zmq4
// directly outside this package.
//
// The spec's "has_pollin" capability (a non-blocking readable check)
// is realized here as a reader goroutine per socket feeding a buffered
// channel, the same shape as internal/hermes's socketReader/messagesCh
// pair in the teacher this package is adapted from: Recv is blocking,
// so a dedicated goroutine turns it into a channel the broker loop can
// select on instead of polling.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"
)

// Socket is the capability the core requires of a messaging socket:
// bind/connect, multipart send/recv, identity and linger.
type Socket interface {
	Bind(addr string) error
	Connect(addr string) error
	SetLinger(d time.Duration) error
	SendMultipart(frames [][]byte) error
	RecvMultipart() ([][]byte, error)
	Close() error
}

type socket struct {
	zmq4.Socket
}

// NewRouter opens a ROUTER socket: server-side, peer-addressable.
func NewRouter(ctx context.Context, identity string) Socket {
	opts := []zmq4.Option{}
	if identity != "" {
		opts = append(opts, zmq4.WithID(zmq4.SocketIdentity(identity)))
	}
	return &socket{Socket: zmq4.NewRouter(ctx, opts...)}
}

// NewReq opens the worker-side request socket the §6 Messaging Port
// contract names: it sets its own identity before connect, and its
// Send/Recv alternate strictly (request then reply). Being a strict
// REQ, it manages the ZMTP envelope delimiter itself: Send implicitly
// prepends one empty frame and Recv strips the leading one, so
// internal/wire's frame builders for the worker side are written one
// delimiter short of what the backend ROUTER actually puts on the wire.
func NewReq(ctx context.Context, identity string) Socket {
	return &socket{Socket: zmq4.NewReq(ctx, zmq4.WithID(zmq4.SocketIdentity(identity)))}
}

// NewDealer opens a DEALER socket: used for fire-and-forget, single-peer
// traffic that doesn't need the strict request/reply alternation REQ
// enforces (the worker-side status channel client, which is independent
// of the §6 backend contract).
func NewDealer(ctx context.Context, identity string) Socket {
	return &socket{Socket: zmq4.NewDealer(ctx, zmq4.WithID(zmq4.SocketIdentity(identity)))}
}

// Empty returns a fresh protocol delimiter frame.
func Empty() []byte {
	return []byte{}
}

// BoundAddr returns the address a just-Bind'd socket is listening on,
// used to discover the OS-assigned port for "tcp://127.0.0.1:0" binds
// (the status channel).
func BoundAddr(s Socket) (string, error) {
	sock, ok := s.(*socket)
	if !ok {
		return "", fmt.Errorf("not a transport socket")
	}
	addr := sock.Socket.Addr()
	if addr == nil {
		return "", fmt.Errorf("socket is not bound")
	}
	return fmt.Sprintf("tcp://%s", addr.String()), nil
}

func (s *socket) Bind(addr string) error {
	return s.Socket.Listen(addr)
}

func (s *socket) Connect(addr string) error {
	return s.Socket.Dial(addr)
}

func (s *socket) SetLinger(d time.Duration) error {
	return s.Socket.SetOption(zmq4.OptionLinger, d)
}

func (s *socket) SendMultipart(frames [][]byte) error {
	return s.Socket.Send(zmq4.NewMsgFromBytes(frames))
}

func (s *socket) RecvMultipart() ([][]byte, error) {
	msg, err := s.Socket.Recv()
	if err != nil {
		return nil, err
	}
	return msg.Frames, nil
}

func (s *socket) Close() error {
	return s.Socket.Close()
}

// Inbound is one multipart message read off a socket, or the error
// that terminated the read loop.
type Inbound struct {
	Frames [][]byte
	Err    error
}

// Reader continuously drains Socket into a buffered channel of
// Inbound messages until ctx is cancelled, realizing the spec's
// has_pollin contract as a channel the broker loop selects on. The
// returned channel is closed when the reader stops.
func Reader(ctx context.Context, s Socket, buffer int) <-chan Inbound {
	out := make(chan Inbound, buffer)
	go func() {
		defer close(out)
		for {
			frames, err := s.RecvMultipart()
			select {
			case out <- Inbound{Frames: frames, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}()
	return out
}
