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

// Package fileseq parses and expands frame range expressions and image
// sequence paths.
//
// A frame range is one of:
//
//	N        single frame
//	A-B      inclusive range, stepping -1 when A > B
//	A-BxS    every S-th frame
//	A-ByS    the frames of A-B that A-BxS skips
//	A-B:I    interleaved: A-BxI, then the gaps at I/2, I/4, ... 1
//
// A frame set is a comma separated list of frame ranges.
package fileseq

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type rangeKind int

const (
	singleFrame rangeKind = iota
	plainRange
	steppedRange
	invertedRange
	interleavedRange
)

var frameRangeRE = regexp.MustCompile(`^(-?\d+)(?:-(-?\d+)(?:([xy])(-?\d+)|:(\d+))?)?$`)

// FrameRange is a parsed frame range expression. The zero value is not
// usable; build one with ParseFrameRange.
type FrameRange struct {
	start, end int
	step       int
	interleave int
	kind       rangeKind
	// pad is the zero-padding width implied by the literals; zpad is the
	// width of the first zero-padded literal, or 0.
	pad    int
	zpad   int
	frames []int
}

// ParseFrameRange parses a single frame range expression.
func ParseFrameRange(s string) (*FrameRange, error) {
	m := frameRangeRE.FindStringSubmatch(s)
	if m == nil {
		return nil, rangeError(s, InvalidSyntax, "unrecognized frame range form")
	}

	r := &FrameRange{step: 1}
	var err error
	if r.start, err = parseFrame(m[1]); err != nil {
		return nil, rangeError(s, InvalidSyntax, "bad frame %q", m[1])
	}
	if zeroPadded(m[1]) && zeroPadded(m[2]) && len(m[1]) != len(m[2]) {
		return nil, rangeError(s, InvalidSyntax, "mismatched padding %q and %q", m[1], m[2])
	}
	r.pad = literalPad(m[1], m[2])
	for _, lit := range []string{m[1], m[2]} {
		if zeroPadded(lit) {
			r.zpad = len(lit)
			break
		}
	}

	if m[2] == "" {
		r.kind = singleFrame
		r.end = r.start
		r.frames = []int{r.start}
		return r, nil
	}
	if r.end, err = parseFrame(m[2]); err != nil {
		return nil, rangeError(s, InvalidSyntax, "bad frame %q", m[2])
	}

	switch {
	case m[3] != "":
		if r.step, err = parseFrame(m[4]); err != nil {
			return nil, rangeError(s, InvalidSyntax, "bad step %q", m[4])
		}
		r.kind = steppedRange
		if m[3] == "y" {
			r.kind = invertedRange
			// y0 inverts nothing.
			if r.step == 0 {
				r.kind = plainRange
				r.step = direction(r.start, r.end)
			}
		}
		if err := r.validateStep(s); err != nil {
			return nil, err
		}
	case m[5] != "":
		if r.interleave, err = parseFrame(m[5]); err != nil {
			return nil, rangeError(s, InvalidSyntax, "bad interleave %q", m[5])
		}
		if r.interleave == 0 {
			return nil, rangeError(s, InvalidStep, "interleave must not be zero")
		}
		r.kind = interleavedRange
		r.step = direction(r.start, r.end)
		if r.interleave == 1 {
			r.kind = plainRange
			r.interleave = 0
		}
	default:
		r.kind = plainRange
		r.step = direction(r.start, r.end)
	}

	r.frames = r.expand()
	if len(r.frames) == 0 {
		return nil, rangeError(s, InvalidRange, "range selects no frames")
	}
	return r, nil
}

// MustFrameRange is like ParseFrameRange but panics on error. It is meant for
// constants in tests and package initialization.
func MustFrameRange(s string) *FrameRange {
	r, err := ParseFrameRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// IsFrameRange reports whether s parses as a single frame range.
func IsFrameRange(s string) bool {
	_, err := ParseFrameRange(s)
	return err == nil
}

func (r *FrameRange) validateStep(s string) error {
	if r.step == 0 {
		return rangeError(s, InvalidStep, "step must not be zero")
	}
	if r.end > r.start && r.step < 0 {
		return rangeError(s, InvalidRange, "negative step %d on ascending range", r.step)
	}
	if r.end < r.start && r.step > 0 {
		return rangeError(s, InvalidRange, "positive step %d on descending range", r.step)
	}
	return nil
}

// newRange builds an ascending or descending range directly from bounds.
func newRange(start, end, step int) *FrameRange {
	r := &FrameRange{start: start, end: end, step: step, pad: len(strconv.Itoa(start))}
	switch {
	case start == end:
		r.kind = singleFrame
		r.step = 1
	case step == direction(start, end):
		r.kind = plainRange
	default:
		r.kind = steppedRange
	}
	r.frames = r.expand()
	return r
}

func (r *FrameRange) expand() []int {
	switch r.kind {
	case singleFrame:
		return []int{r.start}
	case plainRange, steppedRange:
		return span(r.start, r.end, r.step)
	case invertedRange:
		skip := make(map[int]bool)
		for _, f := range span(r.start, r.end, r.step) {
			skip[f] = true
		}
		var out []int
		for _, f := range span(r.start, r.end, direction(r.start, r.end)) {
			if !skip[f] {
				out = append(out, f)
			}
		}
		return out
	case interleavedRange:
		sign := direction(r.start, r.end)
		seen := make(map[int]bool)
		var out []int
		start := r.start
		for step := r.interleave; step > 0; step /= 2 {
			for _, f := range span(start, r.end, sign*step) {
				if !seen[f] {
					seen[f] = true
					out = append(out, f)
				}
			}
			start += sign
		}
		return out
	}
	return nil
}

// Start returns the first bound as written.
func (r *FrameRange) Start() int { return r.start }

// End returns the second bound as written.
func (r *FrameRange) End() int { return r.end }

// Step returns the signed step. Plain ranges report +1 or -1.
func (r *FrameRange) Step() int { return r.step }

// Frames returns a copy of the expanded frames in iteration order.
func (r *FrameRange) Frames() []int {
	return append([]int(nil), r.frames...)
}

// Len returns the number of frames.
func (r *FrameRange) Len() int { return len(r.frames) }

// Index returns the frame at position i. Negative positions count from the end.
func (r *FrameRange) Index(i int) (int, error) {
	return indexOf(r.frames, i)
}

// Contains reports whether f is one of the frames.
func (r *FrameRange) Contains(f int) bool {
	return r.IndexOf(f) >= 0
}

// IndexOf returns the position of f, or -1.
func (r *FrameRange) IndexOf(f int) int {
	for i, v := range r.frames {
		if v == f {
			return i
		}
	}
	return -1
}

// Nearest returns the closest frames below and above f, or nil on either side
// when no such frame exists.
func (r *FrameRange) Nearest(f int) (prev, next *int) {
	return nearest(r.frames, f)
}

// PadSize is the zero-padding width implied by how the bounds were written.
func (r *FrameRange) PadSize() int { return r.pad }

func (r *FrameRange) String() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(r.start))
	if r.kind == singleFrame || (r.kind == plainRange && r.start == r.end) {
		return b.String()
	}
	fmt.Fprintf(&b, "-%d", r.end)
	switch r.kind {
	case steppedRange:
		if r.step != 1 {
			fmt.Fprintf(&b, "x%d", r.step)
		}
	case invertedRange:
		fmt.Fprintf(&b, "y%d", r.step)
	case interleavedRange:
		fmt.Fprintf(&b, ":%d", r.interleave)
	}
	return b.String()
}

// literalPad infers the padding width from the bound literals: the width of
// the first zero-padded literal, else the width of the first literal.
func literalPad(start, end string) int {
	for _, lit := range []string{start, end} {
		if zeroPadded(lit) {
			return len(lit)
		}
	}
	return len(start)
}

// parseFrame parses a frame number, which must fit in 32 bits.
func parseFrame(lit string) (int, error) {
	n, err := strconv.ParseInt(lit, 10, 32)
	return int(n), err
}

func zeroPadded(lit string) bool {
	digits := strings.TrimPrefix(lit, "-")
	return len(digits) > 1 && digits[0] == '0'
}

func direction(start, end int) int {
	if end < start {
		return -1
	}
	return 1
}

func span(start, end, step int) []int {
	var out []int
	if step > 0 {
		for f := start; f <= end; f += step {
			out = append(out, f)
		}
	} else if step < 0 {
		for f := start; f >= end; f += step {
			out = append(out, f)
		}
	}
	return out
}

func indexOf(frames []int, i int) (int, error) {
	if i < 0 {
		i += len(frames)
	}
	if i < 0 || i >= len(frames) {
		return 0, fmt.Errorf("%w: %d of %d frames", ErrIndexOutOfRange, i, len(frames))
	}
	return frames[i], nil
}

func nearest(frames []int, f int) (prev, next *int) {
	for _, v := range frames {
		v := v
		if v < f && (prev == nil || v > *prev) {
			prev = &v
		}
		if v > f && (next == nil || v < *next) {
			next = &v
		}
	}
	return prev, next
}
