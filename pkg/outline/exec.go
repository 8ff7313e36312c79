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
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"opencue-outline/pkg/logging"

	"github.com/spf13/afero"
)

// Session data keys read at execute time.
const (
	ArgsOverrideKey = "args_override"
	OutputsKey      = "ol:outputs"
)

// Runner starts one layer command and waits for it. A command that could not
// be started reports a non-zero code along with the error.
type Runner interface {
	Run(ctx context.Context, argv, env []string) (int, error)
}

// Runtime is what a layer needs to execute a frame on a render node.
type Runtime struct {
	Fs     afero.Fs
	Runner Runner
	// Env is the base process environment of the command.
	Env map[string]string
}

// Execute runs the local frame set starting at frame. A non-zero command exit
// is returned as *ShellCommandFailure.
func (l *Layer) Execute(ctx context.Context, rt Runtime, frame int) error {
	l.frame = frame
	if rt.Fs == nil {
		rt.Fs = afero.NewOsFs()
	}

	l.applyArgsOverride()

	frames, err := l.LocalFrameSet(frame)
	if err != nil {
		return err
	}

	env := make(map[string]string, len(rt.Env)+8)
	for k, v := range rt.Env {
		env[k] = v
	}
	if l.outline != nil {
		env[EnvBaseSessionPath] = l.outline.path
	}
	if p, err := l.Path(); err == nil {
		env[EnvLayerSessionPath] = p
	}
	env[EnvLayerRange] = frames.String()

	if err := l.loadOutputs(); err != nil {
		return err
	}

	if err := emit(l, BeforeExecute, l.handlers.beforeExecute, BeforeExecuteEvent{Layer: l, Frame: frame, Frames: frames}); err != nil {
		return err
	}

	err = l.outputs.each(func(_ string, p *IOPath) error {
		if !p.Mkdir {
			return nil
		}
		return p.MakeDir(rt.Fs)
	})
	if err != nil {
		return err
	}
	if err := l.CheckRequiredArgs(); err != nil {
		return err
	}
	if err := l.CheckInput(rt.Fs, frames); err != nil {
		return err
	}

	if l.outline != nil {
		for _, e := range l.outline.Env() {
			if e.Pre {
				continue
			}
			logging.Info("setting post-set shot environment var: %s %s", e.Key, e.Value)
			env[e.Key] = e.Value
		}
	}
	for _, k := range l.EnvKeys() {
		logging.Info("setting post-set shot environment var: %s %s", k, l.env[k])
		env[k] = l.env[k]
	}

	logging.Info("layer %s executing local frame set %s", l.Name(), frames)
	runErr := l.run(ctx, rt, frame, env)
	if runErr == nil {
		for _, child := range l.children {
			if runErr = child.Execute(ctx, rt, frame); runErr != nil {
				break
			}
		}
	}

	if err := emit(l, AfterExecute, l.handlers.afterExecute, AfterExecuteEvent{Layer: l, Frame: frame, Err: runErr}); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if err := l.CheckOutput(rt.Fs, frames); err != nil {
		return err
	}
	if l.kind == KindPreProcess {
		return l.saveOutputs()
	}
	return nil
}

func (l *Layer) run(ctx context.Context, rt Runtime, frame int, env map[string]string) error {
	if l.args.Command.IsZero() {
		logging.Debug("layer %s has no command", l.Name())
		return nil
	}
	if rt.Runner == nil {
		return layerErrorf(l, "no command runner")
	}
	argv, err := PrepareCommand(l.args.Command, &frame, env)
	if err != nil {
		return layerErrorf(l, "%v", err)
	}
	if len(argv) == 0 {
		return layerErrorf(l, "empty command")
	}

	line := strings.Join(argv, " ")
	logging.Info("about to run: %s", line)
	code, err := rt.Runner.Run(ctx, argv, flattenEnv(env))
	if code == 0 && err == nil {
		return nil
	}
	if code <= 0 {
		code = 1
	}
	if err != nil {
		logging.Error("shell out to '%s' failed: %v", line, err)
	}
	return &ShellCommandFailure{Command: line, ExitStatus: code}
}

func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// applyArgsOverride sets the arguments stored under args_override in the
// layer session directory, on the layer and on its creator. A missing or
// unreadable override is not an error.
func (l *Layer) applyArgsOverride() {
	var override map[string]interface{}
	if err := l.GetData(ArgsOverrideKey, &override); err != nil {
		if isNotFound(err) || errors.Is(err, ErrNoSession) {
			logging.Debug("args_override not found in session")
		} else {
			logging.Debug("not loading args_override from session: %v", err)
		}
		return
	}
	logging.Warn("loaded args_override from session to replace args")
	keys := make([]string, 0, len(override))
	for k := range override {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := override[k]
		if err := l.SetArg(k, v); err != nil {
			logging.Warn("failed to override arg %s: %v", k, err)
			continue
		}
		if l.creator != nil {
			if err := l.creator.SetArg(k, v); err != nil {
				logging.Warn("failed to override arg %s on %s: %v", k, l.creator, err)
			}
		}
		logging.Warn("replaced arg %s with %v", k, v)
	}
}

// loadOutputs adds the outputs a pre-process saved for this layer.
func (l *Layer) loadOutputs() error {
	var docs []pathDoc
	if err := l.GetData(OutputsKey, &docs); err != nil {
		if isNotFound(err) || errors.Is(err, ErrNoSession) {
			return nil
		}
		return err
	}
	for _, d := range docs {
		if _, ok := l.outputs.get(d.Name); ok {
			continue
		}
		p, err := d.ioPath()
		if err != nil {
			return fmt.Errorf("failed to load output %s: %w", d.Name, err)
		}
		if _, err := l.AddOutput(d.Name, p); err != nil {
			return err
		}
	}
	return nil
}

// saveOutputs hands a pre-process's outputs to its creator.
func (l *Layer) saveOutputs() error {
	if l.creator == nil || len(l.outputs.names) == 0 {
		return nil
	}
	logging.Info("saving %d outputs to %s", len(l.outputs.names), OutputsKey)
	return l.creator.PutData(OutputsKey, l.outputs.docs(), true)
}
