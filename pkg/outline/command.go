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
	"fmt"
	"strconv"
	"strings"
)

// Environment variables set for every executed frame.
const (
	EnvBaseSessionPath  = "OL_BASE_SESSION_PATH"
	EnvLayerSessionPath = "OL_LAYER_SESSION_PATH"
	EnvLayerRange       = "OL_LAYER_RANGE"
)

// Command tokens substituted by PrepareCommand.
const (
	TokenFrame  = "%{FRAME}"
	TokenZFrame = "%{ZFRAME}"
	TokenRange  = "%{RANGE}"
)

// PrepareCommand splits cmd into tokens and substitutes frame tokens. Frame
// tokens are only replaced when frame is non-nil, and %{RANGE} only when env
// carries OL_LAYER_RANGE.
func PrepareCommand(cmd CommandLine, frame *int, env map[string]string) ([]string, error) {
	argv, err := cmd.Split()
	if err != nil {
		return nil, err
	}
	rng, hasRange := env[EnvLayerRange]

	out := make([]string, 0, len(argv))
	for _, word := range argv {
		if frame != nil {
			word = strings.ReplaceAll(word, TokenFrame, strconv.Itoa(*frame))
			word = strings.ReplaceAll(word, TokenZFrame, fmt.Sprintf("%04d", *frame))
		}
		if hasRange {
			word = strings.ReplaceAll(word, TokenRange, rng)
		}
		out = append(out, word)
	}
	return out, nil
}
