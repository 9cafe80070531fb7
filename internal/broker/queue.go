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

// idleQueue is the FIFO of worker identities currently available for
// work. It is only ever touched from the broker's own loop goroutine,
// so it carries no locking of its own.
type idleQueue struct {
	ids [][]byte
}

func newIdleQueue() *idleQueue {
	return &idleQueue{}
}

// push appends a worker identity to the tail. The spec's §4.1 tie-break
// is honored here: a later message from the same identity is appended
// again rather than deduplicated, so it simply surfaces earlier on the
// next pop.
func (q *idleQueue) push(id []byte) {
	cp := make([]byte, len(id))
	copy(cp, id)
	q.ids = append(q.ids, cp)
}

// pop removes and returns the head identity, or ok=false if empty.
func (q *idleQueue) pop() (id []byte, ok bool) {
	if len(q.ids) == 0 {
		return nil, false
	}
	id = q.ids[0]
	q.ids = q.ids[1:]
	return id, true
}

func (q *idleQueue) len() int {
	return len(q.ids)
}

// scrub removes every queued identity not present in live, the set of
// identities the child table currently recognizes as alive. This is
// the resolution of the §9 open question: rather than a hard size cap,
// periodic housekeeping keeps the queue free of reaped workers.
func (q *idleQueue) scrub(live map[string]struct{}) (removed int) {
	kept := q.ids[:0]
	for _, id := range q.ids {
		if _, ok := live[string(id)]; ok {
			kept = append(kept, id)
		} else {
			removed++
		}
	}
	q.ids = kept
	return removed
}
