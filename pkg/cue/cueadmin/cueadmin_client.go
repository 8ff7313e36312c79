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

// Package cueadmin implements cue.Client by running an admin command line
// tool that speaks to the dispatch server.
//
// The tool is invoked as
//
//	<command> launch              spec document on stdin
//	<command> get-job <id>
//	<command> find-job <name>
//	<command> kill <id> --reason <text>
//	<command> resume <id>
//
// and prints jobs as YAML documents, one per job.
package cueadmin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"opencue-outline/pkg/cue"
	"opencue-outline/pkg/logging"
	"opencue-outline/pkg/shell"

	"gopkg.in/yaml.v2"
)

// Exit statuses of the admin tool, from sysexits.h plus timeout(1).
const (
	exitUsage       = 64
	exitDataErr     = 65
	exitNoInput     = 66
	exitUnavailable = 69
	exitTempFail    = 75
	exitTimeout     = 124
)

// Runner runs one admin command with input on stdin.
type Runner func(ctx context.Context, input, name string, args ...string) shell.CommandResult

func runShell(ctx context.Context, input, name string, args ...string) shell.CommandResult {
	cmd := shell.NewCommand(name, args...)
	cmd.SetInput(input)
	return cmd.Run(ctx)
}

// Client runs the admin tool for every call.
type Client struct {
	command []string
	run     Runner
}

// Option configures a Client.
type Option func(*Client)

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(c *Client) { c.run = r }
}

// New returns a client for command, which may carry leading arguments such
// as "cueadmin-spec --server cuebot01".
func New(command string, opts ...Option) (*Client, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("no cue command configured")
	}
	c := &Client{command: fields, run: runShell}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ cue.Client = (*Client)(nil)

func (c *Client) exec(ctx context.Context, op, input string, args ...string) (string, error) {
	argv := append(append([]string(nil), c.command[1:]...), args...)
	logging.Debug("executing: %s %s", c.command[0], strings.Join(argv, " "))
	res := c.run(ctx, input, c.command[0], argv...)
	if ctx.Err() != nil {
		return "", &cue.Error{Code: cue.CodeOf(ctx.Err()), Op: op, Message: ctx.Err().Error()}
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" && res.Err != nil {
			msg = res.Err.Error()
		}
		return "", &cue.Error{Code: codeForExit(res.ExitCode), Op: op, Message: msg}
	}
	return res.Stdout, nil
}

func codeForExit(code int) cue.Code {
	switch code {
	case exitUnavailable, exitTempFail:
		return cue.Unavailable
	case exitTimeout:
		return cue.DeadlineExceeded
	case exitNoInput:
		return cue.NotFound
	case exitUsage, exitDataErr:
		return cue.InvalidArgument
	}
	return cue.Internal
}

// Submit launches the jobs of spec.
func (c *Client) Submit(ctx context.Context, spec []byte) ([]cue.Job, error) {
	out, err := c.exec(ctx, "launch", string(spec), "launch")
	if err != nil {
		return nil, err
	}
	jobs, err := decodeJobs([]byte(out))
	if err != nil {
		return nil, &cue.Error{Code: cue.Internal, Op: "launch", Message: err.Error()}
	}
	if len(jobs) == 0 {
		return nil, &cue.Error{Code: cue.Internal, Op: "launch", Message: "server returned no jobs"}
	}
	for _, j := range jobs {
		logging.Info("launched job %s (%s)", j.Name, j.ID)
	}
	return jobs, nil
}

// GetJob returns the job with id.
func (c *Client) GetJob(ctx context.Context, id string) (cue.Job, error) {
	return c.oneJob(ctx, "get job", "get-job", id)
}

// FindJob returns the job called name.
func (c *Client) FindJob(ctx context.Context, name string) (cue.Job, error) {
	return c.oneJob(ctx, "find job", "find-job", name)
}

func (c *Client) oneJob(ctx context.Context, op string, args ...string) (cue.Job, error) {
	out, err := c.exec(ctx, op, "", args...)
	if err != nil {
		return cue.Job{}, err
	}
	jobs, err := decodeJobs([]byte(out))
	if err != nil {
		return cue.Job{}, &cue.Error{Code: cue.Internal, Op: op, Message: err.Error()}
	}
	if len(jobs) != 1 {
		return cue.Job{}, &cue.Error{Code: cue.NotFound, Op: op, Message: fmt.Sprintf("expected one job, got %d", len(jobs))}
	}
	return jobs[0], nil
}

// Kill stops the job with id.
func (c *Client) Kill(ctx context.Context, id, reason string) error {
	_, err := c.exec(ctx, "kill", "", "kill", id, "--reason", reason)
	return err
}

// Resume unpauses the job with id.
func (c *Client) Resume(ctx context.Context, id string) error {
	_, err := c.exec(ctx, "resume", "", "resume", id)
	return err
}

// decodeJobs reads a stream of YAML job documents. Empty documents are
// skipped.
func decodeJobs(b []byte) ([]cue.Job, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(b))
	var jobs []cue.Job
	for {
		var job cue.Job
		if err := decoder.Decode(&job); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode job document: %w", err)
		}
		if job.ID == "" && job.Name == "" {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
