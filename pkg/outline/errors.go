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
	"errors"
	"fmt"
)

var (
	// ErrDuplicateLayer is returned when a layer name is already taken.
	ErrDuplicateLayer = errors.New("duplicate layer name")
	// ErrLayerNotFound is returned by name lookups that miss.
	ErrLayerNotFound = errors.New("layer not found")
	// ErrNoSchedulableLayers means no registered top level layer intersects
	// the outline frame range.
	ErrNoSchedulableLayers = errors.New("no schedulable layers")
	// ErrFailImmediately is returned by event handlers and plugins that must
	// abort the whole operation instead of being logged and skipped.
	ErrFailImmediately = errors.New("fail immediately")
	// ErrMode is returned by operations that are not allowed in the current
	// outline mode.
	ErrMode = errors.New("operation not allowed in this outline mode")
	// ErrNoSession is returned by session backed operations before setup.
	ErrNoSession = errors.New("outline has no session")
)

// FailImmediately returns an error that escapes handler error swallowing.
func FailImmediately(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrFailImmediately, fmt.Sprintf(format, args...))
}

// LayerError describes a layer level failure such as a missing input.
type LayerError struct {
	Layer  string
	Reason string
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("layer %s: %s", e.Layer, e.Reason)
}

func layerErrorf(l *Layer, format string, args ...interface{}) error {
	return &LayerError{Layer: l.Name(), Reason: fmt.Sprintf(format, args...)}
}

// ShellCommandFailure is returned when a layer command exits non-zero.
type ShellCommandFailure struct {
	Command    string
	ExitStatus int
}

func (e *ShellCommandFailure) Error() string {
	return fmt.Sprintf("shell out to '%s' failed, exit status %d", e.Command, e.ExitStatus)
}

// SessionError wraps a failed session operation.
type SessionError struct {
	Op   string
	Path string
	Err  error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }
