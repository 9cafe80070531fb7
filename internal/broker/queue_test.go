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

package broker

import "testing"

func TestIdleQueueFIFO(t *testing.T) {
	q := newIdleQueue()
	q.push([]byte("w1"))
	q.push([]byte("w2"))
	q.push([]byte("w3"))

	t.Run("PopsInOrder", func(t *testing.T) {
		for _, want := range []string{"w1", "w2", "w3"} {
			id, ok := q.pop()
			if !ok {
				t.Fatalf("expected a worker identity, queue was empty")
			}
			if string(id) != want {
				t.Errorf("expected %q, got %q", want, id)
			}
		}
	})

	t.Run("EmptyQueuePopFails", func(t *testing.T) {
		if _, ok := q.pop(); ok {
			t.Error("expected pop on empty queue to fail")
		}
	})
}

func TestIdleQueueDuplicateAppend(t *testing.T) {
	q := newIdleQueue()
	q.push([]byte("w1"))
	q.push([]byte("w1"))

	if q.len() != 2 {
		t.Fatalf("expected duplicate pushes to both be retained (§4.1 tie-break), got len=%d", q.len())
	}
}

func TestIdleQueueScrub(t *testing.T) {
	q := newIdleQueue()
	q.push([]byte("w1"))
	q.push([]byte("w2"))
	q.push([]byte("w3"))

	live := map[string]struct{}{"w1": {}, "w3": {}}
	removed := q.scrub(live)

	if removed != 1 {
		t.Errorf("expected 1 entry removed, got %d", removed)
	}
	if q.len() != 2 {
		t.Errorf("expected 2 entries remaining, got %d", q.len())
	}
	for _, id := range q.ids {
		if string(id) == "w2" {
			t.Error("scrub should have removed w2, which is not in the live set")
		}
	}
}
