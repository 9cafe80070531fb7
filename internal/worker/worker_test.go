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

package worker

import (
	"errors"
	"testing"

	"github.com/arion/zmqjob/internal/callback"
	"github.com/arion/zmqjob/internal/logger"
)

func newBareWorker(policy FailurePolicy, handler callback.RequestHandler) *Worker {
	return &Worker{
		handler: handler,
		policy:  policy,
		log:     logger.New(),
	}
}

func TestInvokeSuccess(t *testing.T) {
	w := newBareWorker(EmptyReply, callback.Echo)
	out := w.invoke([]byte("hello"))
	if string(out) != "hello" {
		t.Errorf("expected echo, got %q", out)
	}
	if w.stats.RequestsFailed != 0 {
		t.Errorf("expected no failures recorded, got %d", w.stats.RequestsFailed)
	}
}

func TestInvokeErrorEmptyReplyPolicy(t *testing.T) {
	handler := callback.HandlerFunc(func(req []byte) ([]byte, error) {
		return nil, errors.New("boom")
	})
	w := newBareWorker(EmptyReply, handler)
	out := w.invoke([]byte("x"))
	if len(out) != 0 {
		t.Errorf("expected empty reply on callback error, got %q", out)
	}
	if w.stats.RequestsFailed != 1 {
		t.Errorf("expected 1 failure recorded, got %d", w.stats.RequestsFailed)
	}
}

func TestInvokeErrorFramedReplyPolicy(t *testing.T) {
	handler := callback.HandlerFunc(func(req []byte) ([]byte, error) {
		return nil, errors.New("boom")
	})
	w := newBareWorker(ErrorFramedReply, handler)
	out := w.invoke([]byte("x"))
	if string(out) != "boom" {
		t.Errorf("expected error-framed reply 'boom', got %q", out)
	}
}

func TestInvokeRecoversPanic(t *testing.T) {
	handler := callback.HandlerFunc(func(req []byte) ([]byte, error) {
		panic("callback exploded")
	})
	w := newBareWorker(ErrorFramedReply, handler)

	var out []byte
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("panic escaped invoke: %v", r)
			}
		}()
		out = w.invoke([]byte("x"))
	}()

	if len(out) == 0 {
		t.Error("expected a non-empty error-framed reply after recovering a panic")
	}
	if w.stats.RequestsFailed != 1 {
		t.Errorf("expected 1 failure recorded for the panic, got %d", w.stats.RequestsFailed)
	}
}
