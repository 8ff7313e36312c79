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

package executor

import (
	"context"
	"errors"
	"io"
	"os/exec"

	"opencue-outline/pkg/logging"
	"opencue-outline/pkg/shell"
)

// ShellRunner runs layer commands as child processes, streaming their
// output to Stdout and Stderr.
type ShellRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Run starts argv with env and waits for it. A child killed by a signal
// reports 128+signal. The error is only set when the command could not be
// started.
func (r *ShellRunner) Run(ctx context.Context, argv, env []string) (int, error) {
	cmd := shell.NewCommand(argv[0], argv[1:]...)
	cmd.SetEnv(env)
	cmd.SetOutput(r.Stdout, r.Stderr)
	res := cmd.Run(ctx)
	var exitErr *exec.ExitError
	if res.Err != nil && errors.As(res.Err, &exitErr) {
		if !exitErr.Exited() {
			logging.Warn("%s was killed: %v", argv[0], exitErr)
		}
		return shell.ExitCode(res.Err), nil
	}
	return res.ExitCode, res.Err
}
