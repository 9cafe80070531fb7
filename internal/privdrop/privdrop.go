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

// Package privdrop drops process privileges to a named user/group
// once the frontend and backend sockets are already bound, the
// classic prefork-daemon ordering: open listening sockets first
// (requires privilege when binding low ports), then give it up before
// any application code runs.
package privdrop

import (
	"fmt"
	"os/user"
	"strconv"
	"syscall"
)

// To drops the process to the named group then user. Group is dropped
// first because setuid(2) on most platforms can make a later setgid(2)
// fail once the process no longer has permission to change it.
func To(userName, groupName string) error {
	if groupName != "" {
		gid, err := lookupGid(groupName)
		if err != nil {
			return fmt.Errorf("resolve group %q: %w", groupName, err)
		}
		if err := syscall.Setgid(gid); err != nil {
			return fmt.Errorf("setgid(%d): %w", gid, err)
		}
	}
	if userName != "" {
		uid, err := lookupUid(userName)
		if err != nil {
			return fmt.Errorf("resolve user %q: %w", userName, err)
		}
		if err := syscall.Setuid(uid); err != nil {
			return fmt.Errorf("setuid(%d): %w", uid, err)
		}
	}
	return nil
}

func lookupUid(name string) (int, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(u.Uid)
}

func lookupGid(name string) (int, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(g.Gid)
}
