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

// Package executor runs one frame of one layer of a launched outline on a
// render node.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"opencue-outline/pkg/logging"
	"opencue-outline/pkg/outline"
	"opencue-outline/pkg/shell"

	"github.com/agext/levenshtein"
	"github.com/spf13/afero"
)

// SetupFailureStatus is the exit status of a frame that failed before its
// command could run.
const SetupFailureStatus = shell.StartFailureCode

// maxSuggestDistance bounds the edit distance of "did you mean" layer names.
const maxSuggestDistance = 3

// Request names the frame to execute.
type Request struct {
	OutlinePath string
	Frame       int
	Layer       string
}

// ParseSelector splits a frame selector such as "7-render" on its first
// dash into a frame number and a layer name.
func ParseSelector(s string) (int, string, error) {
	f, layer, ok := strings.Cut(s, "-")
	if !ok || layer == "" {
		return 0, "", fmt.Errorf("invalid frame selector %q, want <frame>-<layer>", s)
	}
	frame, err := strconv.Atoi(f)
	if err != nil {
		return 0, "", fmt.Errorf("invalid frame selector %q: bad frame number: %w", s, err)
	}
	return frame, layer, nil
}

// LayerNotFoundError is returned when the requested layer is not part of the
// outline.
type LayerNotFoundError struct {
	Layer       string
	Suggestions []string
}

func (e *LayerNotFoundError) Error() string {
	msg := fmt.Sprintf("layer %s not found", e.Layer)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(", did you mean %s?", strings.Join(e.Suggestions, " or "))
	}
	return msg
}

func (e *LayerNotFoundError) Unwrap() error { return outline.ErrLayerNotFound }

// Executor runs frames. The zero value runs commands through the shell on
// the OS filesystem with the process environment.
type Executor struct {
	Fs     afero.Fs
	Runner outline.Runner
	// Stdout and Stderr receive the command output next to the frame log.
	Stdout io.Writer
	Stderr io.Writer
	// Env is the base command environment. nil means the process
	// environment.
	Env     map[string]string
	Plugins []outline.Plugin
}

// Run loads the outline at req.OutlinePath and executes req.Layer at
// req.Frame. Output of the frame goes to a per-frame log file in the layer
// session directory, which is always closed on return.
func (e *Executor) Run(ctx context.Context, req Request) error {
	fs := e.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	ol, err := outline.Load(req.OutlinePath, outline.WithFs(fs), outline.WithPlugins(e.Plugins...))
	if err != nil {
		return err
	}
	layer, err := ol.Layer(req.Layer)
	if err != nil {
		if errors.Is(err, outline.ErrLayerNotFound) {
			return &LayerNotFoundError{Layer: req.Layer, Suggestions: suggest(req.Layer, ol.LayerNames())}
		}
		return err
	}

	stdout, stderr := writerOr(e.Stdout, os.Stdout), writerOr(e.Stderr, os.Stderr)
	logFile, err := e.openLog(fs, layer, req.Frame)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer func() {
			if cerr := logFile.Close(); cerr != nil {
				logging.Warn("failed to close frame log %s: %v", logFile.Name(), cerr)
			}
		}()
		prev := logging.Output()
		logging.SetOutput(io.MultiWriter(prev, logFile))
		defer logging.SetOutput(prev)
		stdout = io.MultiWriter(stdout, logFile)
		stderr = io.MultiWriter(stderr, logFile)
	}

	runner := e.Runner
	if runner == nil {
		runner = &ShellRunner{Stdout: stdout, Stderr: stderr}
	}
	env := e.Env
	if env == nil {
		env = environ()
	}

	logging.Info("executing frame %d of layer %s from %s", req.Frame, layer.Name(), req.OutlinePath)
	return layer.Execute(ctx, outline.Runtime{Fs: fs, Runner: runner, Env: env}, req.Frame)
}

// openLog creates <layer session>/logs/<layer>.<frame>.log. Layers without
// a session only log to the process output.
func (e *Executor) openLog(fs afero.Fs, layer *outline.Layer, frame int) (afero.File, error) {
	dir, err := layer.Path()
	if err != nil {
		logging.Warn("layer %s has no session, not writing a frame log", layer.Name())
		return nil, nil
	}
	dir = filepath.Join(dir, "logs")
	if err := fs.MkdirAll(dir, 0o777); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.%04d.log", layer.Name(), frame))
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o666)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame log %s: %w", path, err)
	}
	return f, nil
}

// ExitStatus converts the result of Run into the process exit status
// reported for the frame.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	var failure *outline.ShellCommandFailure
	if errors.As(err, &failure) {
		return failure.ExitStatus
	}
	return SetupFailureStatus
}

func suggest(name string, candidates []string) []string {
	type match struct {
		name string
		dist int
	}
	var matches []match
	for _, c := range candidates {
		if d := levenshtein.Distance(name, c, nil); d <= maxSuggestDistance {
			matches = append(matches, match{c, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].dist < matches[j].dist })
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.name)
	}
	return out
}

func writerOr(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
