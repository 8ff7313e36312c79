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

package fileseq

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFrameRange is matched by every frame range parse failure.
	ErrInvalidFrameRange = errors.New("invalid frame range")
	// ErrInvalidFileSpec is matched by every file spec parse failure.
	ErrInvalidFileSpec = errors.New("invalid file spec")
	// ErrIndexOutOfRange is returned by Index lookups past either end.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// RangeErrorKind classifies a frame range parse failure.
type RangeErrorKind int

const (
	// InvalidSyntax means a token is not a number or the form is unknown.
	InvalidSyntax RangeErrorKind = iota
	// InvalidRange means the bounds oppose the step, or nothing is selected.
	InvalidRange
	// InvalidStep means a zero step or interleave.
	InvalidStep
)

func (k RangeErrorKind) String() string {
	switch k {
	case InvalidRange:
		return "InvalidRange"
	case InvalidStep:
		return "InvalidStep"
	default:
		return "InvalidSyntax"
	}
}

// FrameRangeError reports why a frame range expression was rejected.
type FrameRangeError struct {
	Spec   string
	Kind   RangeErrorKind
	Reason string
}

func (e *FrameRangeError) Error() string {
	return fmt.Sprintf("%s %q: %s (%s)", ErrInvalidFrameRange, e.Spec, e.Reason, e.Kind)
}

func (e *FrameRangeError) Unwrap() error {
	return ErrInvalidFrameRange
}

func rangeError(spec string, kind RangeErrorKind, format string, args ...interface{}) error {
	return &FrameRangeError{Spec: spec, Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// FileSpecError reports why a sequence path was rejected. Cause is set when
// the frame range part itself failed to parse.
type FileSpecError struct {
	Path   string
	Reason string
	Cause  error
}

func (e *FileSpecError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %q: %s: %v", ErrInvalidFileSpec, e.Path, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s %q: %s", ErrInvalidFileSpec, e.Path, e.Reason)
}

func (e *FileSpecError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrInvalidFileSpec, e.Cause}
	}
	return []error{ErrInvalidFileSpec}
}
