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

package outline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPrepareCommand(t *testing.T) {
	frame := 7
	tests := []struct {
		name  string
		cmd   CommandLine
		frame *int
		env   map[string]string
		want  []string
	}{
		{
			name:  "frame and range",
			cmd:   Tokens("render", "-f", "%{ZFRAME}", "-r", "%{RANGE}"),
			frame: &frame,
			env:   map[string]string{EnvLayerRange: "1-10"},
			want:  []string{"render", "-f", "0007", "-r", "1-10"},
		},
		{
			name:  "range untouched without env",
			cmd:   Tokens("render", "-r", "%{RANGE}", "%{FRAME}"),
			frame: &frame,
			want:  []string{"render", "-r", "%{RANGE}", "7"},
		},
		{
			name: "frame untouched without frame",
			cmd:  Tokens("render", "%{FRAME}"),
			want: []string{"render", "%{FRAME}"},
		},
		{
			name:  "string command",
			cmd:   Line(`nuke -x "my comp.nk" -F %{FRAME}`),
			frame: &frame,
			want:  []string{"nuke", "-x", "my comp.nk", "-F", "7"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := PrepareCommand(tc.cmd, tc.frame, tc.env)
			if err != nil {
				t.Fatalf("PrepareCommand() error = %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("PrepareCommand() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := PrepareCommand(Line(`echo "unterminated`), nil, nil); err == nil {
		t.Error("PrepareCommand(unterminated quote) error = nil")
	}
}
