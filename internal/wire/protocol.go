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

// Package wire defines the frame format the broker and worker runtime
// speak over the backend and frontend sockets: the "simple pirate"
// request/reply pattern.
package wire

import (
	"bytes"
	"fmt"
)

// ReadySentinel is the single byte a worker sends as the body of its
// first backend message to announce availability.
const ReadySentinel = byte(0x01)

// Empty is the protocol delimiter frame required between an identity
// frame and a payload frame.
var Empty = []byte{}

// IsEmpty reports whether frame is a valid delimiter frame.
func IsEmpty(frame []byte) bool {
	return len(frame) == 0
}

// IsReady reports whether body is the READY sentinel.
func IsReady(body []byte) bool {
	return len(body) == 1 && body[0] == ReadySentinel
}

// ReadyBody returns the single-byte READY sentinel body.
func ReadyBody() []byte {
	return []byte{ReadySentinel}
}

// ClientFrontendMessage is what the frontend ROUTER receives from a
// client: [client_id, empty, payload].
type ClientFrontendMessage struct {
	ClientID []byte
	Payload  []byte
}

// ParseClientFrontendMessage validates and decodes a frontend message.
// Malformed messages (fewer than 3 frames, or a non-empty delimiter)
// are rejected so the broker can drop and log them.
func ParseClientFrontendMessage(frames [][]byte) (ClientFrontendMessage, error) {
	if len(frames) < 3 {
		return ClientFrontendMessage{}, errMalformed("frontend", len(frames))
	}
	if !IsEmpty(frames[1]) {
		return ClientFrontendMessage{}, errDelimiter("frontend")
	}
	return ClientFrontendMessage{ClientID: frames[0], Payload: frames[2]}, nil
}

// BackendWorkerMessage is what the backend ROUTER receives from a
// worker. Frame 0 is always the worker identity. If Ready is true the
// message was a check-in and ClientID/Result are unset.
type BackendWorkerMessage struct {
	WorkerID []byte
	Ready    bool
	ClientID []byte
	Result   []byte
}

// ParseBackendWorkerMessage validates and decodes a backend message.
func ParseBackendWorkerMessage(frames [][]byte) (BackendWorkerMessage, error) {
	if len(frames) < 2 {
		return BackendWorkerMessage{}, errMalformed("backend", len(frames))
	}
	workerID := frames[0]
	if !IsEmpty(frames[1]) {
		return BackendWorkerMessage{}, errDelimiter("backend")
	}
	if len(frames) == 3 && IsReady(frames[2]) {
		return BackendWorkerMessage{WorkerID: workerID, Ready: true}, nil
	}
	if len(frames) < 5 {
		return BackendWorkerMessage{}, errMalformed("backend reply", len(frames))
	}
	if !IsEmpty(frames[3]) {
		return BackendWorkerMessage{}, errDelimiter("backend reply")
	}
	return BackendWorkerMessage{
		WorkerID: workerID,
		ClientID: frames[2],
		Result:   frames[4],
	}, nil
}

// FrontendRequestFrames builds the broker -> backend frames for
// forwarding a client request to worker_id.
func FrontendRequestFrames(workerID, clientID, payload []byte) [][]byte {
	return [][]byte{workerID, Empty, clientID, Empty, payload}
}

// FrontendReplyFrames builds the broker -> frontend frames for
// delivering a worker's result back to the originating client.
func FrontendReplyFrames(clientID, result []byte) [][]byte {
	return [][]byte{clientID, Empty, result}
}

// WorkerInboundFrames builds the backend -> worker frames for a
// dispatched request, as the worker's REQ socket itself receives them:
// the ROUTER strips its own addressing frame (the worker identity) and
// the REQ socket strips the one ZMTP envelope delimiter it expects,
// leaving [client_id, empty, payload].
func WorkerInboundFrames(clientID, payload []byte) [][]byte {
	return [][]byte{clientID, Empty, payload}
}

// WorkerReplyFrames builds the worker -> broker frames for a reply.
func WorkerReplyFrames(clientID, result []byte) [][]byte {
	return [][]byte{clientID, Empty, result}
}

// WorkerReadyFrames builds the worker -> broker application frames for
// the initial READY announcement, as handed to the REQ socket's Send:
// a single frame, since REQ itself prepends the ZMTP envelope
// delimiter that turns this into the 3-frame message the backend
// ROUTER receives ([worker_id, empty, READY_sentinel]).
func WorkerReadyFrames() [][]byte {
	return [][]byte{ReadyBody()}
}

// Equal reports whether two identity/frame byte slices carry the same
// value. The idle queue does not use it: per the §4.1 tie-break it
// appends repeated identities without comparing them.
func Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}

func errMalformed(side string, parts int) error {
	return fmt.Errorf("malformed %s message: insufficient frames (%d)", side, parts)
}

func errDelimiter(side string) error {
	return fmt.Errorf("malformed %s message: non-empty delimiter frame", side)
}
