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

// Package cue defines the client side of the dispatch server API: submitting
// job specs and following the jobs they create.
package cue

import (
	"context"
	"errors"
	"fmt"
)

// JobState is the server side state of a job.
type JobState string

const (
	Pending  JobState = "PENDING"
	Finished JobState = "FINISHED"
)

// Stats counts the frames of a job by state.
type Stats struct {
	Total     int `yaml:"total"`
	Succeeded int `yaml:"succeeded"`
	Running   int `yaml:"running"`
	Waiting   int `yaml:"waiting"`
	Dead      int `yaml:"dead"`
	Eaten     int `yaml:"eaten"`
}

// Job is a handle on a launched job.
type Job struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	State  JobState `yaml:"state"`
	Paused bool     `yaml:"paused"`
	Stats  Stats    `yaml:"stats"`
}

// IsPending reports whether the job has not finished yet.
func (j Job) IsPending() bool { return j.State != Finished }

// Client talks to the dispatch server. Calls are synchronous.
type Client interface {
	// Submit launches every job of a spec document.
	Submit(ctx context.Context, spec []byte) ([]Job, error)
	// GetJob returns the current state of a job.
	GetJob(ctx context.Context, id string) (Job, error)
	// FindJob looks a job up by name.
	FindJob(ctx context.Context, name string) (Job, error)
	// Kill stops a job. It is best effort.
	Kill(ctx context.Context, id, reason string) error
	// Resume unpauses a job.
	Resume(ctx context.Context, id string) error
}

// Code classifies server and transport failures.
type Code int

const (
	Internal Code = iota
	Unavailable
	DeadlineExceeded
	NotFound
	InvalidArgument
)

func (c Code) String() string {
	switch c {
	case Unavailable:
		return "unavailable"
	case DeadlineExceeded:
		return "deadline exceeded"
	case NotFound:
		return "not found"
	case InvalidArgument:
		return "invalid argument"
	}
	return "internal"
}

// Error is a failed server call.
type Error struct {
	Code    Code
	Op      string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cue %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("cue %s: %s: %s", e.Op, e.Code, e.Message)
}

// CodeOf returns the code of err, Internal for errors not raised by a
// Client.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return DeadlineExceeded
	}
	return Internal
}

// IsTransient reports whether retrying the call may succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case Unavailable, DeadlineExceeded:
		return true
	}
	return false
}
