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

package status

import (
	"encoding/json"
	"testing"

	"github.com/arion/zmqjob/internal/childtable"
)

func TestDecodeReport(t *testing.T) {
	body, err := json.Marshal(Report{Pid: 42, Identity: "child_42", Status: childtable.Processing})
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	frames := [][]byte{[]byte("child_42"), {}, body}

	report, err := decode(frames)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if report.Pid != 42 || report.Identity != "child_42" || report.Status != childtable.Processing {
		t.Errorf("unexpected decoded report: %+v", report)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	if _, err := decode([][]byte{[]byte("child_1")}); err == nil {
		t.Error("expected error for too few frames")
	}
	if _, err := decode([][]byte{[]byte("child_1"), []byte("x"), []byte("{}")}); err == nil {
		t.Error("expected error for non-empty delimiter frame")
	}
}
