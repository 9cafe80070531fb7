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

//go:build linux

// Package proctitle sets the process title shown by ps/top, per §6's
// "zmq broker <fport>-<bport>" / "zmq worker <bport>" convention.
package proctitle

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Set renames the process via PR_SET_NAME. The kernel truncates names
// longer than 15 bytes; that's an accepted limitation of prctl-based
// renaming, not something worth working around with argv rewriting.
func Set(title string) error {
	buf := make([]byte, 16)
	copy(buf, title)
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&buf[0])), 0, 0, 0)
}
