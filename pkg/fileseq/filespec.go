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
	"fmt"
	"os"
	"regexp"
	"strings"

	"opencue-outline/pkg/logging"

	"github.com/spf13/afero"
)

// tailRE matches what follows the basename: frame set, pad tokens, extension.
var tailRE = regexp.MustCompile(`^([0-9xy:,-]+)?([#@]+)?(\.[^/]*)?$`)

var allDigits = regexp.MustCompile(`^[0-9]+$`)

// FileSpec is an image sequence path such as /shots/a/foo.1-100#.exr.
type FileSpec struct {
	path      string
	dirname   string
	basename  string
	frameSet  *FrameSet
	padTokens string
	suffix    string
	pad       int
}

// ParseFileSpec parses a sequence path. The path must carry a frame set, pad
// tokens, or both. Ranges must run forward unless their step is explicitly
// negative.
func ParseFileSpec(path string) (*FileSpec, error) {
	fsp := &FileSpec{path: path}

	rest := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		fsp.dirname = path[:i+1]
		rest = path[i+1:]
	}

	// The basename is the longest run before a dot whose remainder parses,
	// provided the remainder is not just digits (foo.0001.1000).
	var m []string
	for i := len(rest) - 1; i > 0; i-- {
		if rest[i] != '.' {
			continue
		}
		tail := rest[i+1:]
		if allDigits.MatchString(tail) {
			continue
		}
		if m = tailRE.FindStringSubmatch(tail); m != nil {
			fsp.basename = rest[:i]
			break
		}
	}
	if m == nil {
		if m = tailRE.FindStringSubmatch(rest); m == nil {
			return nil, &FileSpecError{Path: path, Reason: "not a sequence path"}
		}
	}

	frameToken, padTokens := m[1], m[2]
	fsp.padTokens = padTokens
	fsp.suffix = m[3]
	if frameToken == "" && padTokens == "" {
		return nil, &FileSpecError{Path: path, Reason: "no frame range or padding"}
	}

	fs, err := ParseFrameSet(frameToken)
	if err != nil {
		return nil, &FileSpecError{Path: path, Reason: "bad frame range", Cause: err}
	}
	fsp.frameSet = fs

	zpad := 0
	for _, r := range fs.ranges {
		if r.end < r.start && r.kind != steppedRange && r.kind != invertedRange {
			return nil, &FileSpecError{Path: path, Reason: fmt.Sprintf("range %s runs backwards without a negative step", r)}
		}
		if r.zpad == 0 {
			continue
		}
		if zpad != 0 && r.zpad != zpad {
			return nil, &FileSpecError{Path: path, Reason: "mismatched frame padding"}
		}
		zpad = r.zpad
	}

	fsp.pad = fs.PadSize()
	if fsp.pad == 0 {
		fsp.pad = 1
	}
	if n := tokenPad(padTokens); n > 1 {
		fsp.pad = n
	}
	return fsp, nil
}

func tokenPad(tokens string) int {
	n := 0
	for _, c := range tokens {
		switch c {
		case '#':
			n += 4
		case '@':
			n++
		}
	}
	return n
}

// Path returns the path as given.
func (f *FileSpec) Path() string { return f.path }

// Prefix is everything before the frame set, including the trailing dot.
func (f *FileSpec) Prefix() string {
	if f.basename == "" {
		return f.dirname
	}
	return f.dirname + f.basename + "."
}

// Dirname returns the directory without its trailing slash.
func (f *FileSpec) Dirname() string {
	return strings.TrimSuffix(f.dirname, "/")
}

// Basename is the file name without frame set and extension.
func (f *FileSpec) Basename() string { return f.basename }

// Ext returns the extension, including its leading dot.
func (f *FileSpec) Ext() string { return f.suffix }

// Suffix is an alias of Ext.
func (f *FileSpec) Suffix() string { return f.suffix }

// PadSize returns the frame number width.
func (f *FileSpec) PadSize() int { return f.pad }

// FrameSet returns the frames named by the path. It is empty for paths that
// only carry pad tokens.
func (f *FileSpec) FrameSet() *FrameSet { return f.frameSet }

// FramePath returns the path of frame n. A sequence with frames rejects n
// outside of them.
func (f *FileSpec) FramePath(n int) (string, error) {
	if f.frameSet.Len() > 0 && !f.frameSet.Contains(n) {
		return "", fmt.Errorf("frame %d is not in file sequence %s", n, f.frameSet)
	}
	return f.framePath(n), nil
}

func (f *FileSpec) framePath(n int) string {
	return fmt.Sprintf("%s%0*d%s", f.Prefix(), f.pad, n, f.suffix)
}

// Paths returns the expanded path of every frame.
func (f *FileSpec) Paths() []string {
	out := make([]string, 0, f.frameSet.Len())
	for _, n := range f.frameSet.frames {
		out = append(out, f.framePath(n))
	}
	return out
}

// FileSpecWithoutRange returns the path with its frame set replaced by "#".
func (f *FileSpec) FileSpecWithoutRange() string {
	return f.Prefix() + "#" + f.suffix
}

// WithFrameSet returns the path with its frame set replaced by fs.
func (f *FileSpec) WithFrameSet(fs *FrameSet) string {
	return f.Prefix() + fs.String() + f.padTokens + f.suffix
}

// Equal reports whether both specs name the same files.
func (f *FileSpec) Equal(other *FileSpec) bool {
	if f.Prefix() != other.Prefix() || f.suffix != other.suffix || f.pad != other.pad {
		return false
	}
	a, b := f.frameSet.frames, other.frameSet.frames
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (f *FileSpec) String() string {
	return f.WithFrameSet(f.frameSet)
}

func (f *FileSpec) selected(frames *FrameSet) []int {
	if frames != nil && frames.Len() > 0 {
		return frames.frames
	}
	return f.frameSet.frames
}

// Exists reports whether every selected frame exists on fsys with a non-zero
// size. frames defaults to the spec's own frame set. A missing frame is also
// satisfied by a file with the same stem and one of checkExt as extension.
func (f *FileSpec) Exists(fsys afero.Fs, frames *FrameSet, checkExt []string) bool {
	for _, n := range f.selected(frames) {
		path := f.framePath(n)
		if nonEmpty(fsys, path) {
			continue
		}
		found := false
		stem := strings.TrimSuffix(path, f.suffix)
		for _, ext := range checkExt {
			if nonEmpty(fsys, stem+ext) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func nonEmpty(fsys afero.Fs, path string) bool {
	logging.Debug("checking for existence of path: %s", path)
	fi, err := fsys.Stat(path)
	return err == nil && fi.Size() > 0
}

// Size sums the sizes of the selected frames. Missing frames count as zero
// and are logged.
func (f *FileSpec) Size(fsys afero.Fs, frames *FrameSet) int64 {
	var total int64
	for _, n := range f.selected(frames) {
		path := f.framePath(n)
		fi, err := fsys.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				logging.Warn("failed to find the size of %s: file does not exist", path)
			} else {
				logging.Warn("failed to find the size of %s: %v", path, err)
			}
			continue
		}
		total += fi.Size()
	}
	return total
}
