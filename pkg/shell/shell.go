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

// Package shell runs child processes and reports their exit status.
package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"syscall"
)

// StartFailureCode is the exit code reported when a command could not be
// started at all.
const StartFailureCode = 16

// CommandResult holds the outcome of a finished command. Stdout and Stderr are
// only populated when the output was captured.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// Command is a child process waiting to be executed.
type Command struct {
	name   string
	args   []string
	input  string
	env    []string
	stdout io.Writer
	stderr io.Writer
}

// NewCommand prepares name with args. Nothing runs until Run.
func NewCommand(name string, args ...string) *Command {
	return &Command{name: name, args: args}
}

// SetInput feeds s to the command's stdin.
func (c *Command) SetInput(s string) {
	c.input = s
}

// SetEnv replaces the child environment. A nil env inherits the parent's.
func (c *Command) SetEnv(env []string) {
	c.env = env
}

// SetOutput streams stdout and stderr to the given writers instead of
// capturing them in the result.
func (c *Command) SetOutput(stdout, stderr io.Writer) {
	c.stdout = stdout
	c.stderr = stderr
}

// String renders the command line for logging.
func (c *Command) String() string {
	return strings.Join(append([]string{c.name}, c.args...), " ")
}

// Run runs the command to completion, killing it if ctx is cancelled.
func (c *Command) Run(ctx context.Context) CommandResult {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	cmd.Env = c.env
	if c.input != "" {
		cmd.Stdin = strings.NewReader(c.input)
	}

	var stdout, stderr bytes.Buffer
	if c.stdout != nil {
		cmd.Stdout = c.stdout
	} else {
		cmd.Stdout = &stdout
	}
	if c.stderr != nil {
		cmd.Stderr = c.stderr
	} else {
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	return CommandResult{
		ExitCode: ExitCode(err),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Err:      err,
	}
}

// ExitCode maps the error of a finished command to a shell exit status: the
// child's own status, 128+signal when it was killed by a signal, and
// StartFailureCode when it never ran.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return StartFailureCode
	}
	if code := exitErr.ExitCode(); code >= 0 {
		return code
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return StartFailureCode
}
