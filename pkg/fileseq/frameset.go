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
	"sort"
	"strings"
)

// FrameSet is an ordered concatenation of frame ranges. A FrameSet is never
// modified after construction; operations return new sets.
type FrameSet struct {
	ranges []*FrameRange
	frames []int
}

// ParseFrameSet parses a comma separated list of frame ranges. Empty items are
// skipped, so the empty string yields an empty set.
func ParseFrameSet(s string) (*FrameSet, error) {
	fs := &FrameSet{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		r, err := ParseFrameRange(item)
		if err != nil {
			return nil, err
		}
		fs.ranges = append(fs.ranges, r)
		fs.frames = append(fs.frames, r.frames...)
	}
	return fs, nil
}

// MustFrameSet is like ParseFrameSet but panics on error.
func MustFrameSet(s string) *FrameSet {
	fs, err := ParseFrameSet(s)
	if err != nil {
		panic(err)
	}
	return fs
}

// IsFrameSet reports whether s parses as a frame set.
func IsFrameSet(s string) bool {
	_, err := ParseFrameSet(s)
	return err == nil
}

// NewFrameSet builds a set holding exactly frames, in the given order. When the
// frames are strictly ascending the set is stored in compact normalized form.
func NewFrameSet(frames []int) *FrameSet {
	if sort.IntsAreSorted(frames) && unique(frames) {
		return &FrameSet{ranges: compact(frames), frames: append([]int(nil), frames...)}
	}
	fs := &FrameSet{frames: append([]int(nil), frames...)}
	for _, f := range frames {
		fs.ranges = append(fs.ranges, newRange(f, f, 1))
	}
	return fs
}

// Frames returns a copy of the expanded frames in iteration order.
func (fs *FrameSet) Frames() []int {
	return append([]int(nil), fs.frames...)
}

// Ranges returns the component ranges.
func (fs *FrameSet) Ranges() []*FrameRange {
	return append([]*FrameRange(nil), fs.ranges...)
}

// Len returns the number of expanded frames, duplicates included.
func (fs *FrameSet) Len() int { return len(fs.frames) }

// Index returns the frame at position i. Negative positions count from the end.
func (fs *FrameSet) Index(i int) (int, error) {
	return indexOf(fs.frames, i)
}

// IndexOf returns the first position of f, or -1.
func (fs *FrameSet) IndexOf(f int) int {
	for i, v := range fs.frames {
		if v == f {
			return i
		}
	}
	return -1
}

// Contains reports whether f is in the set.
func (fs *FrameSet) Contains(f int) bool {
	return fs.IndexOf(f) >= 0
}

// Nearest returns the closest frames below and above f, or nil on either side
// when the set has no such frame.
func (fs *FrameSet) Nearest(f int) (prev, next *int) {
	return nearest(fs.frames, f)
}

// PadSize is the padding width implied by the first range, or 0 when empty.
func (fs *FrameSet) PadSize() int {
	if len(fs.ranges) == 0 {
		return 0
	}
	return fs.ranges[0].PadSize()
}

// Normalize returns the set sorted and deduplicated, with its string form
// coalesced into the fewest ranges.
func (fs *FrameSet) Normalize() *FrameSet {
	frames := fs.Frames()
	sort.Ints(frames)
	frames = dedupe(frames)
	return &FrameSet{ranges: compact(frames), frames: frames}
}

// Unique returns the set without repeated frames, keeping first occurrences.
func (fs *FrameSet) Unique() *FrameSet {
	return NewFrameSet(dedupe(fs.Frames()))
}

// Intersect returns the frames of fs that are also in other, in the order of
// fs and without repeats.
func (fs *FrameSet) Intersect(other *FrameSet) *FrameSet {
	in := make(map[int]bool, len(other.frames))
	for _, f := range other.frames {
		in[f] = true
	}
	var out []int
	for _, f := range dedupe(fs.Frames()) {
		if in[f] {
			out = append(out, f)
		}
	}
	return NewFrameSet(out)
}

// Merge returns the normalized union of both sets.
func (fs *FrameSet) Merge(other *FrameSet) *FrameSet {
	all := &FrameSet{frames: append(fs.Frames(), other.frames...)}
	return all.Normalize()
}

func (fs *FrameSet) String() string {
	parts := make([]string, len(fs.ranges))
	for i, r := range fs.ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

func dedupe(frames []int) []int {
	seen := make(map[int]bool, len(frames))
	out := frames[:0]
	for _, f := range frames {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func unique(frames []int) bool {
	for i := 1; i < len(frames); i++ {
		if frames[i] == frames[i-1] {
			return false
		}
	}
	return true
}
