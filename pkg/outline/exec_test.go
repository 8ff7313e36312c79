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
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

type recordingRunner struct {
	argv [][]string
	env  []map[string]string
	code int
}

func (r *recordingRunner) Run(_ context.Context, argv, env []string) (int, error) {
	r.argv = append(r.argv, argv)
	m := make(map[string]string)
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		m[k] = v
	}
	r.env = append(r.env, m)
	return r.code, nil
}

func TestExecute(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := NewLayer("render", LayerArgs{
		Command: Tokens("render", "-f", "%{ZFRAME}", "-r", "%{RANGE}"),
		Chunk:   Ptr(5),
	})
	l.SetEnv("cue_layer_01", "layer-env-a")
	o := New("exec", WithFrameRange("1-10"), WithFs(fs))
	o.SetEnv("cue_test_01", "foo", false)
	o.SetEnv("cue_pre", "bar", true)
	if err := o.AddLayer(l); err != nil {
		t.Fatal(err)
	}
	if err := o.Setup("/sessions"); err != nil {
		t.Fatal(err)
	}

	runner := &recordingRunner{}
	rt := Runtime{Fs: fs, Runner: runner, Env: map[string]string{"PATH": "/bin"}}
	if err := l.Execute(context.Background(), rt, 6); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if diff := cmp.Diff([][]string{{"render", "-f", "0006", "-r", "6-10"}}, runner.argv); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
	layerPath, _ := l.Path()
	env := runner.env[0]
	for k, want := range map[string]string{
		"PATH":              "/bin",
		EnvLayerRange:       "6-10",
		EnvBaseSessionPath:  o.Path(),
		EnvLayerSessionPath: layerPath,
		"cue_test_01":       "foo",
		"cue_layer_01":      "layer-env-a",
	} {
		if env[k] != want {
			t.Errorf("env %s = %q, want %q", k, env[k], want)
		}
	}
	if _, ok := env["cue_pre"]; ok {
		t.Error("pre environment must not be set by the executor")
	}
	if l.Frame() != 6 {
		t.Errorf("Frame() = %d, want 6", l.Frame())
	}
}

func TestExecuteFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := NewLayer("render", LayerArgs{Command: Line("false")})
	setupOutline(t, fs, l)

	var afterErr error
	l.OnAfterExecute(func(ev AfterExecuteEvent) error {
		afterErr = ev.Err
		return nil
	})
	err := l.Execute(context.Background(), Runtime{Fs: fs, Runner: &recordingRunner{code: 3}}, 1)
	var failure *ShellCommandFailure
	if !errors.As(err, &failure) || failure.ExitStatus != 3 {
		t.Fatalf("Execute() error = %v, want exit status 3", err)
	}
	if failure.Error() != "shell out to 'false' failed, exit status 3" {
		t.Errorf("Error() = %q", failure.Error())
	}
	if afterErr != err {
		t.Errorf("AfterExecute saw %v, want %v", afterErr, err)
	}
}

func TestExecuteChecksPaths(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := NewLayer("render", LayerArgs{Command: Line("render")})
	in := NewPath("/in/scene.nk")
	in.Checked = true
	if _, err := l.AddInput("scene", in); err != nil {
		t.Fatal(err)
	}
	out, err := NewFileSpec("/out/beauty/render.#.exr")
	if err != nil {
		t.Fatal(err)
	}
	out.Mkdir = true
	out.Checked = true
	if _, err := l.AddOutput("beauty", out); err != nil {
		t.Fatal(err)
	}
	setupOutline(t, fs, l)

	runner := &recordingRunner{}
	rt := Runtime{Fs: fs, Runner: runner}
	var layerErr *LayerError
	if err := l.Execute(context.Background(), rt, 1); !errors.As(err, &layerErr) {
		t.Fatalf("Execute() without input error = %v, want *LayerError", err)
	}
	if len(runner.argv) != 0 {
		t.Error("command ran without its input")
	}
	if ok, _ := afero.DirExists(fs, "/out/beauty"); !ok {
		t.Error("output directory was not created")
	}

	if err := afero.WriteFile(fs, "/in/scene.nk", []byte("scene"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := l.Execute(context.Background(), rt, 1); !errors.As(err, &layerErr) {
		t.Fatalf("Execute() without output error = %v, want *LayerError", err)
	}
	if len(runner.argv) != 1 {
		t.Errorf("command ran %d times, want 1", len(runner.argv))
	}

	if err := afero.WriteFile(fs, "/out/beauty/render.0001.exr", []byte("px"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := l.Execute(context.Background(), rt, 1); err != nil {
		t.Errorf("Execute() error = %v", err)
	}
}

func TestExecuteOutputPassing(t *testing.T) {
	fs := afero.NewMemMapFs()
	render := NewLayer("test1", LayerArgs{})
	pre := NewPreProcess(render, LayerArgs{})
	pre.OnBeforeExecute(func(ev BeforeExecuteEvent) error {
		_, err := ev.Layer.AddOutput("test", NewPath("/tmp/foo.#.exr"))
		return err
	})
	setupOutline(t, fs, render, pre)

	rt := Runtime{Fs: fs, Runner: &recordingRunner{}}
	if err := pre.Execute(context.Background(), rt, 1); err != nil {
		t.Fatal(err)
	}
	renderPath, _ := render.Path()
	if ok, _ := afero.Exists(fs, renderPath+"/"+OutputsKey); !ok {
		t.Fatalf("%s was not written", OutputsKey)
	}
	if err := render.Execute(context.Background(), rt, 1); err != nil {
		t.Fatal(err)
	}
	outs := render.Outputs()
	if len(outs) != 1 || outs[0].Name != "test" || outs[0].Path.Path() != "/tmp/foo.#.exr" {
		t.Errorf("Outputs() = %v", outs)
	}
}

func TestExecuteArgsOverride(t *testing.T) {
	fs := afero.NewMemMapFs()
	render := NewLayer("render", LayerArgs{Command: Line("render %{FRAME}")})
	pre := NewPreProcess(render, LayerArgs{})
	setupOutline(t, fs, render, pre)

	override := map[string]interface{}{"katana_node": "blah.blah", "command": "render -n %{FRAME}"}
	if err := pre.PutData(ArgsOverrideKey, override, false); err != nil {
		t.Fatal(err)
	}
	runner := &recordingRunner{}
	if err := pre.Execute(context.Background(), Runtime{Fs: fs, Runner: runner}, 1); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]string{{"render", "-n", "1"}}, runner.argv); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
	for _, l := range []*Layer{pre, render} {
		if v, ok := l.Args().Extras["katana_node"].Str(); !ok || v != "blah.blah" {
			t.Errorf("%s katana_node = %q, %v", l, v, ok)
		}
	}
}

func TestExecuteArgsOverrideBadChunk(t *testing.T) {
	fs := afero.NewMemMapFs()
	render := NewLayer("render", LayerArgs{Command: Line("render %{FRAME}"), Chunk: Ptr(2)})
	pre := NewPreProcess(render, LayerArgs{})
	setupOutline(t, fs, render, pre)

	if err := pre.PutData(ArgsOverrideKey, map[string]interface{}{"chunk": -1}, false); err != nil {
		t.Fatal(err)
	}
	if err := pre.Execute(context.Background(), Runtime{Fs: fs, Runner: &recordingRunner{}}, 1); err != nil {
		t.Fatal(err)
	}
	if got := render.Chunk(); got != 2 {
		t.Errorf("render Chunk() = %d after a negative override, want 2", got)
	}
	if _, err := render.LocalFrameSet(1); err != nil {
		t.Errorf("LocalFrameSet(1) error = %v", err)
	}
}

func TestExecuteEvents(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := NewLayer("render", LayerArgs{Command: Line("render")})
	setupOutline(t, fs, l)

	var frames []string
	l.OnBeforeExecute(func(ev BeforeExecuteEvent) error {
		frames = append(frames, ev.Frames.String())
		return errors.New("plugin bug")
	})
	runner := &recordingRunner{}
	rt := Runtime{Fs: fs, Runner: runner}
	if err := l.Execute(context.Background(), rt, 4); err != nil {
		t.Fatalf("Execute() error = %v, want handler errors swallowed", err)
	}
	if diff := cmp.Diff([]string{"4"}, frames); diff != "" {
		t.Errorf("BeforeExecute frames mismatch (-want +got):\n%s", diff)
	}

	l.OnBeforeExecute(func(BeforeExecuteEvent) error {
		return FailImmediately("stop")
	})
	if err := l.Execute(context.Background(), rt, 4); !errors.Is(err, ErrFailImmediately) {
		t.Errorf("Execute() error = %v, want ErrFailImmediately", err)
	}
	if len(runner.argv) != 1 {
		t.Errorf("command ran %d times, want 1", len(runner.argv))
	}
}

func TestLaunchEvents(t *testing.T) {
	a := NewLayer("a", LayerArgs{})
	b := NewLayer("b", LayerArgs{})
	o := newOutline(t, "1-10", a, b)

	var got []string
	for _, l := range []*Layer{a, b} {
		l.OnBeforeLaunch(func(ev BeforeLaunchEvent) error {
			got = append(got, "before "+ev.Layer.Name())
			return nil
		})
		l.OnAfterLaunch(func(ev AfterLaunchEvent) error {
			got = append(got, "after "+ev.Layer.Name()+" "+ev.JobIDs[0])
			return nil
		})
	}
	if err := o.EmitBeforeLaunch(); err != nil {
		t.Fatal(err)
	}
	if err := o.EmitAfterLaunch([]string{"job-1"}); err != nil {
		t.Fatal(err)
	}
	want := []string{"before a", "before b", "after a job-1", "after b job-1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	var inits []string
	c := NewLayer("c", LayerArgs{})
	c.OnAfterInit(func(ev AfterInitEvent) error {
		inits = append(inits, ev.Outline.Name())
		return nil
	})
	if err := o.AddLayer(c); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"test"}, inits); diff != "" {
		t.Errorf("AfterInit mismatch (-want +got):\n%s", diff)
	}
}
