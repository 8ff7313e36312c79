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

package launcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"opencue-outline/pkg/config"
	"opencue-outline/pkg/cue"
	"opencue-outline/pkg/outline"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

// stepClock fires every timer at once and records how long each one was
// asked to wait.
type stepClock struct {
	*clock.Mock
	sleeps []time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{Mock: clock.NewMock()}
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.sleeps = append(c.sleeps, d)
	c.Mock.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.Mock.Now()
	return ch
}

type fakeClient struct {
	submitErrs []error
	submits    int
	spec       []byte
	states     []cue.Job
	getErrs    []error
	gets       int
	resumed    []string
	killed     []string
	noJobs     bool
}

func (f *fakeClient) Submit(_ context.Context, spec []byte) ([]cue.Job, error) {
	f.submits++
	f.spec = spec
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.noJobs {
		return nil, nil
	}
	return []cue.Job{{ID: "j1", Name: "testing-shot01-tester_comp", State: cue.Pending}}, nil
}

func (f *fakeClient) GetJob(_ context.Context, id string) (cue.Job, error) {
	i := f.gets
	f.gets++
	if i < len(f.getErrs) && f.getErrs[i] != nil {
		return cue.Job{}, f.getErrs[i]
	}
	if i >= len(f.states) {
		i = len(f.states) - 1
	}
	return f.states[i], nil
}

func (f *fakeClient) FindJob(_ context.Context, name string) (cue.Job, error) {
	return cue.Job{}, &cue.Error{Code: cue.NotFound, Op: "find job"}
}

func (f *fakeClient) Kill(_ context.Context, id, _ string) error {
	f.killed = append(f.killed, id)
	return nil
}

func (f *fakeClient) Resume(_ context.Context, id string) error {
	f.resumed = append(f.resumed, id)
	return nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.SessionDir = "/sessions"
	cfg.SubmitAttempts = 3
	cfg.SubmitBackoff = 2 * time.Second
	cfg.PollInterval = 5 * time.Second
	return cfg
}

func testEnv(env map[string]string) func(string) string {
	return func(k string) string { return env[k] }
}

func newTestOutline(t *testing.T, name string, layers ...*outline.Layer) *outline.Outline {
	t.Helper()
	o := outline.New(name, outline.WithFrameRange("1-10"), outline.WithFs(afero.NewMemMapFs()),
		outline.WithShowShotUser("testing", "shot01", "tester"))
	if len(layers) == 0 {
		layers = []*outline.Layer{outline.NewLayer("render", outline.LayerArgs{Command: outline.Tokens("echo", "hi")})}
	}
	for _, l := range layers {
		if err := o.AddLayer(l); err != nil {
			t.Fatal(err)
		}
	}
	return o
}

func newTestLauncher(t *testing.T, client cue.Client, opts Options, options ...Option) (*Launcher, *stepClock) {
	t.Helper()
	clk := newStepClock()
	options = append([]Option{WithClock(clk), WithGetenv(testEnv(nil)), WithUID(1000)}, options...)
	return New(newTestOutline(t, "comp"), client, testConfig(), opts, options...), clk
}

func TestSetup(t *testing.T) {
	o := outline.New("comp_2024_01_02_03_04", outline.WithFs(afero.NewMemMapFs()))
	if err := o.AddLayer(outline.NewLayer("render", outline.LayerArgs{Command: outline.Tokens("true")})); err != nil {
		t.Fatal(err)
	}
	env := testEnv(map[string]string{"SHOW": "envshow", "SHOT": "envshot", "USER": "envuser"})
	l := New(o, nil, testConfig(), Options{
		Range: "1-5",
		Env:   []string{"A=1", "B=x=y"},
		Shot:  "shot02",
	}, WithGetenv(env))

	if err := l.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if o.Name() != "comp" {
		t.Errorf("name = %q, want the date suffix stripped", o.Name())
	}
	if o.FrameRange() != "1-5" {
		t.Errorf("frame range = %q, want 1-5", o.FrameRange())
	}
	got := []string{o.Show(), o.Shot(), o.User()}
	if diff := cmp.Diff([]string{"envshow", "shot02", "envuser"}, got); diff != "" {
		t.Errorf("show/shot/user mismatch (-want +got):\n%s", diff)
	}
	if v, ok := o.GetEnv("B"); !ok || v.Value != "x=y" || v.Pre {
		t.Errorf("env B = %+v, %t", v, ok)
	}
	if o.Mode() != outline.ModeReady {
		t.Errorf("mode = %s, want ready", o.Mode())
	}
	if !strings.HasPrefix(o.Path(), "/sessions/envshow-shot02-envuser_comp/") {
		t.Errorf("outline path = %q", o.Path())
	}
}

func TestSetupStagesDirectories(t *testing.T) {
	src := filepath.Join(t.TempDir(), "support")
	for name, content := range map[string]string{
		"tool.py":       "print()",
		"cache/big.bin": "big",
		"notes.tmp":     "tmp",
		".stageignore":  "cache\n*.tmp\n",
	} {
		p := filepath.Join(src, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name       string
		ignoreFile string
		want       []string
	}{
		{name: "configured ignore file", ignoreFile: ".stageignore", want: []string{"tool.py"}},
		{name: "no ignore file", want: []string{".stageignore", "cache/big.bin", "notes.tmp", "tool.py"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := outline.New("comp", outline.WithFrameRange("1-10"), outline.WithFs(afero.NewOsFs()),
				outline.WithShowShotUser("testing", "shot01", "tester"))
			if err := o.AddLayer(outline.NewLayer("render", outline.LayerArgs{Command: outline.Tokens("true")})); err != nil {
				t.Fatal(err)
			}
			cfg := testConfig()
			cfg.SessionDir = t.TempDir()
			cfg.IgnoreFile = tc.ignoreFile

			l := New(o, nil, cfg, Options{Stage: []string{src}}, WithGetenv(testEnv(nil)))
			if err := l.Setup(); err != nil {
				t.Fatalf("Setup() error = %v", err)
			}
			dst := filepath.Join(o.Session().Path(), "support")
			var got []string
			err := filepath.Walk(dst, func(p string, info os.FileInfo, err error) error {
				if err != nil || info.IsDir() {
					return err
				}
				rel, _ := filepath.Rel(dst, p)
				got = append(got, filepath.ToSlash(rel))
				return nil
			})
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("staged files mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSetupStageFailure(t *testing.T) {
	l, _ := newTestLauncher(t, &fakeClient{}, Options{Stage: []string{"/support"}})
	if err := l.Setup(); err == nil || !strings.Contains(err.Error(), "failed to stage /support") {
		t.Errorf("Setup() error = %v, want a staging error on a memory filesystem", err)
	}
}

func TestSetupBasename(t *testing.T) {
	l, _ := newTestLauncher(t, nil, Options{Basename: "lighting"})
	if err := l.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if got := l.Outline().Name(); got != "lighting" {
		t.Errorf("name = %q, want lighting", got)
	}
}

func TestSetupBadEnv(t *testing.T) {
	l, _ := newTestLauncher(t, nil, Options{Env: []string{"NOVALUE"}})
	if err := l.Setup(); err == nil || !strings.Contains(err.Error(), "NOVALUE") {
		t.Errorf("Setup() error = %v, want invalid env pair", err)
	}
}

func TestSetupDefaultRange(t *testing.T) {
	tests := []struct {
		name      string
		layerRngs []string
		want      string
	}{
		{name: "fully baked", layerRngs: []string{"1-3", "4-6"}, want: "1-10"},
		{name: "partly baked", layerRngs: []string{"1-3", ""}, want: "20-30"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var layers []*outline.Layer
			for i, rng := range tc.layerRngs {
				args := outline.LayerArgs{Command: outline.Tokens("true")}
				if rng != "" {
					args.Range = outline.Ptr(rng)
				}
				layers = append(layers, outline.NewLayer(string(rune('a'+i)), args))
			}
			o := newTestOutline(t, "comp", layers...)
			l := New(o, nil, testConfig(), Options{Range: "20-30", RangeDefault: true}, WithGetenv(testEnv(nil)))
			if err := l.applyRange(); err != nil {
				t.Fatalf("applyRange() error = %v", err)
			}
			if o.FrameRange() != tc.want {
				t.Errorf("frame range = %q, want %q", o.FrameRange(), tc.want)
			}
		})
	}
}

func TestFacility(t *testing.T) {
	tests := []struct {
		name     string
		outline  string
		option   string
		env      map[string]string
		expected string
	}{
		{name: "outline wins", outline: "lax", option: "ny", expected: "lax"},
		{name: "option", option: "ny", env: map[string]string{"RENDER_TO": "van"}, expected: "ny"},
		{name: "render to", env: map[string]string{"RENDER_TO": "van", "FACILITY": "lon"}, expected: "van"},
		{name: "facility", env: map[string]string{"FACILITY": "lon"}, expected: "lon"},
		{name: "config", expected: "local"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := newTestOutline(t, "comp")
			o.SetFacility(tc.outline)
			l := New(o, nil, testConfig(), Options{Facility: tc.option}, WithGetenv(testEnv(tc.env)))
			if got := l.Facility(); got != tc.expected {
				t.Errorf("Facility() = %q, want %q", got, tc.expected)
			}
		})
	}
}

func TestLaunchRetriesTransientErrors(t *testing.T) {
	client := &fakeClient{submitErrs: []error{
		&cue.Error{Code: cue.Unavailable, Op: "launch"},
		&cue.Error{Code: cue.DeadlineExceeded, Op: "launch"},
		nil,
	}}
	l, clk := newTestLauncher(t, client, Options{})

	jobs, err := l.Launch(context.Background())
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "j1" {
		t.Errorf("Launch() = %+v", jobs)
	}
	if client.submits != 3 {
		t.Errorf("submits = %d, want 3", client.submits)
	}
	if diff := cmp.Diff([]time.Duration{2 * time.Second, 4 * time.Second}, clk.sleeps); diff != "" {
		t.Errorf("backoff mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(string(client.spec), `<job name="comp">`) {
		t.Errorf("submitted spec = %s", client.spec)
	}
}

func TestLaunchSubmissionFailed(t *testing.T) {
	unavailable := &cue.Error{Code: cue.Unavailable, Op: "launch", Message: "connection refused"}
	tests := []struct {
		name         string
		errs         []error
		wantAttempts int
	}{
		{name: "rejected", errs: []error{&cue.Error{Code: cue.InvalidArgument, Op: "launch"}}, wantAttempts: 1},
		{name: "unreachable", errs: []error{unavailable, unavailable, unavailable}, wantAttempts: 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeClient{submitErrs: tc.errs}
			l, _ := newTestLauncher(t, client, Options{})
			_, err := l.Launch(context.Background())
			var failed *SubmissionFailed
			if !errors.As(err, &failed) {
				t.Fatalf("Launch() error = %v, want *SubmissionFailed", err)
			}
			if failed.Attempts != tc.wantAttempts || client.submits != tc.wantAttempts {
				t.Errorf("attempts = %d, submits = %d, want %d", failed.Attempts, client.submits, tc.wantAttempts)
			}
			var ce *cue.Error
			if !errors.As(err, &ce) {
				t.Errorf("SubmissionFailed does not wrap the cue error: %v", err)
			}
		})
	}
}

func TestLaunchWait(t *testing.T) {
	client := &fakeClient{states: []cue.Job{
		{ID: "j1", State: cue.Pending},
		{ID: "j1", State: cue.Pending, Stats: cue.Stats{Total: 10, Succeeded: 4}},
		{ID: "j1", State: cue.Finished, Stats: cue.Stats{Total: 10, Succeeded: 10}},
	}}
	l, clk := newTestLauncher(t, client, Options{Wait: true})

	jobs, err := l.Launch(context.Background())
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if jobs[0].State != cue.Finished {
		t.Errorf("job state = %s, want FINISHED", jobs[0].State)
	}
	if diff := cmp.Diff([]time.Duration{5 * time.Second, 5 * time.Second}, clk.sleeps); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
	if client.gets != 3 {
		t.Errorf("polls = %d, want 3", client.gets)
	}
}

func TestLaunchNoJobs(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "plain"},
		{name: "wait", opts: Options{Wait: true}},
		{name: "test", opts: Options{Test: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeClient{noJobs: true, states: []cue.Job{{ID: "j1", State: cue.Finished}}}
			l, _ := newTestLauncher(t, client, tc.opts)
			jobs, err := l.Launch(context.Background())
			if !errors.Is(err, ErrNoJobs) {
				t.Errorf("Launch() error = %v, want ErrNoJobs", err)
			}
			if len(jobs) != 0 || client.gets != 0 {
				t.Errorf("Launch() = %v after %d polls, want no jobs and no polls", jobs, client.gets)
			}
		})
	}
}

func TestWaitContinuesOnErrors(t *testing.T) {
	client := &fakeClient{
		getErrs: []error{&cue.Error{Code: cue.Unavailable, Op: "get job"}},
		states:  []cue.Job{{}, {ID: "j1", State: cue.Finished}},
	}
	l, clk := newTestLauncher(t, client, Options{})
	job, err := l.Wait(context.Background(), cue.Job{ID: "j1", Name: "comp"})
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if job.State != cue.Finished || len(clk.sleeps) != 1 {
		t.Errorf("Wait() = %+v after %d sleeps", job, len(clk.sleeps))
	}
}

func TestWaitCancelled(t *testing.T) {
	client := &fakeClient{states: []cue.Job{{ID: "j1", State: cue.Pending}}}
	o := newTestOutline(t, "comp")
	l := New(o, client, testConfig(), Options{}, WithClock(clock.NewMock()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Wait(ctx, cue.Job{ID: "j1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestLaunchTest(t *testing.T) {
	tests := []struct {
		name    string
		states  []cue.Job
		wantErr error
	}{
		{
			name:   "passes",
			states: []cue.Job{{ID: "j1", State: cue.Pending}, {ID: "j1", State: cue.Finished}},
		},
		{
			name:    "dead frames",
			states:  []cue.Job{{ID: "j1", State: cue.Pending, Stats: cue.Stats{Dead: 1}}},
			wantErr: ErrJobFailed,
		},
		{
			name:    "eaten frames",
			states:  []cue.Job{{ID: "j1", State: cue.Pending}, {ID: "j1", State: cue.Pending, Stats: cue.Stats{Eaten: 2}}},
			wantErr: ErrJobFailed,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeClient{states: tc.states}
			l, _ := newTestLauncher(t, client, Options{Test: true, Paused: true})
			_, err := l.Launch(context.Background())
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Launch() error = %v, want %v", err, tc.wantErr)
			}
			if diff := cmp.Diff([]string{"j1"}, client.resumed); diff != "" {
				t.Errorf("resumed mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"j1"}, client.killed); diff != "" {
				t.Errorf("killed mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLaunchOutputSpec(t *testing.T) {
	l, _ := newTestLauncher(t, nil, Options{OutputSpec: "/out/job.xml", NoPycuerun: true})
	jobs, err := l.Launch(context.Background())
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if jobs != nil {
		t.Errorf("Launch() = %+v, want no jobs", jobs)
	}
	b, err := afero.ReadFile(l.Outline().Fs(), "/out/job.xml")
	if err != nil {
		t.Fatalf("spec not written: %v", err)
	}
	if !strings.Contains(string(b), "<cmd>echo hi</cmd>") {
		t.Errorf("spec = %s", b)
	}
}

func TestLaunchEvents(t *testing.T) {
	layer := outline.NewLayer("render", outline.LayerArgs{Command: outline.Tokens("true")})
	var events []string
	layer.OnBeforeLaunch(func(ev outline.BeforeLaunchEvent) error {
		events = append(events, "before")
		return nil
	})
	layer.OnAfterLaunch(func(ev outline.AfterLaunchEvent) error {
		events = append(events, "after:"+strings.Join(ev.JobIDs, ","))
		return nil
	})
	o := newTestOutline(t, "comp", layer)
	l := New(o, &fakeClient{}, testConfig(), Options{}, WithClock(newStepClock()), WithGetenv(testEnv(nil)))

	if _, err := l.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if diff := cmp.Diff([]string{"before", "after:j1"}, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestSpecOptions(t *testing.T) {
	l, _ := newTestLauncher(t, nil, Options{MaxRetries: outline.Ptr(5), Dev: true, DevUser: "bob"})
	opts := l.SpecOptions()
	if opts.MaxRetries != 5 || !opts.UsePycuerun || opts.UID != 1000 {
		t.Errorf("SpecOptions() = %+v", opts)
	}
	if !opts.Command.Dev || opts.Command.DevUser != "bob" || opts.Command.WrapperDir != testConfig().WrapperDir {
		t.Errorf("command options = %+v", opts.Command)
	}
}

func TestResolveRange(t *testing.T) {
	tests := []struct {
		name        string
		flag        string
		fr          string
		want        string
		wantDefault bool
	}{
		{name: "flag", flag: "1-5", fr: "1-100", want: "1-5"},
		{name: "env", fr: "1-100", want: "1-100", wantDefault: true},
		{name: "bad env", fr: "all"},
		{name: "none"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, isDefault := ResolveRange(tc.flag, testEnv(map[string]string{"FR": tc.fr}))
			if got != tc.want || isDefault != tc.wantDefault {
				t.Errorf("ResolveRange() = %q, %t, want %q, %t", got, isDefault, tc.want, tc.wantDefault)
			}
		})
	}
}
