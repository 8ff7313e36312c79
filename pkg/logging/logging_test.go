// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetDebug(false)
	})
	return &buf
}

func TestLevels(t *testing.T) {
	buf := captureOutput(t)

	Debug("hidden %d", 1)
	Info("shown %d", 2)
	Warn("careful %s", "now")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level: %q", out)
	}
	if !strings.Contains(out, "INFO shown 2") {
		t.Errorf("info record missing: %q", out)
	}
	if !strings.Contains(out, "WARNING careful now") {
		t.Errorf("warning record missing: %q", out)
	}

	buf.Reset()
	SetDebug(true)
	Debug("visible %d", 3)
	if !strings.Contains(buf.String(), "DEBUG visible 3") {
		t.Errorf("debug record missing after SetDebug: %q", buf.String())
	}
}

func TestWithFieldsSortsKeys(t *testing.T) {
	buf := captureOutput(t)

	WithFields(Fields{"state": "SUBMIT", "attempt": 2}).Info("launching")

	line := buf.String()
	if !strings.HasSuffix(strings.TrimSpace(line), "launching attempt=2 state=SUBMIT") {
		t.Errorf("unexpected record %q", line)
	}
}

func TestFatalExits(t *testing.T) {
	buf := captureOutput(t)
	code := -1
	exit = func(c int) { code = c }
	defer func() { exit = os.Exit }()

	Fatal("boom: %v", "bad")

	if code != 1 {
		t.Errorf("Fatal exit code = %d, want 1", code)
	}
	if !strings.Contains(buf.String(), "ERROR boom: bad") {
		t.Errorf("Fatal record missing: %q", buf.String())
	}
}
