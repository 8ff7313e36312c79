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

// Package launcher sets an outline up, turns it into a job spec and submits
// it to the cue, optionally following the launched job until it is done.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"opencue-outline/pkg/config"
	"opencue-outline/pkg/cue"
	"opencue-outline/pkg/fileseq"
	"opencue-outline/pkg/logging"
	"opencue-outline/pkg/outline"
	"opencue-outline/pkg/spec"

	"github.com/benbjohnson/clock"
	"github.com/spf13/afero"
)

// Options are the per launch settings, usually taken from the command line.
type Options struct {
	Facility   string
	Show       string
	Shot       string
	User       string
	NoMail     bool
	Paused     bool
	Priority   *int
	MaxRetries *int
	AutoEat    bool
	OS         string
	Wait       bool
	Test       bool
	// Range overrides the outline frame range. RangeDefault marks it as
	// coming from the environment, in which case outlines whose layers all
	// carry their own range keep them.
	Range        string
	RangeDefault bool
	Basename     string
	// Env holds KEY=VALUE pairs added to the outline environment.
	Env     []string
	Dev     bool
	DevUser string
	// Version and Repos are passed on to pycuerun.
	Version string
	Repos   string
	// NoPycuerun submits the raw layer commands instead of pycuerun ones.
	NoPycuerun bool
	// OutputSpec writes the spec to this path instead of submitting it.
	OutputSpec string
	// Stage lists directories copied into the job session at setup. Paths
	// matched by the configured ignore file are left out.
	Stage []string
}

// SubmissionFailed is returned when the cue rejected a spec or stayed
// unreachable after every attempt.
type SubmissionFailed struct {
	Job      string
	Attempts int
	Err      error
}

func (e *SubmissionFailed) Error() string {
	return fmt.Sprintf("failed to submit job %s after %d attempt(s): %v", e.Job, e.Attempts, e.Err)
}

func (e *SubmissionFailed) Unwrap() error { return e.Err }

// ErrJobFailed is returned in test mode when a frame died or was eaten.
var ErrJobFailed = errors.New("job test failed")

// ErrNoJobs is returned when the cue accepted a spec but reported no job.
var ErrNoJobs = errors.New("cue launched no jobs")

// Launcher launches one outline.
type Launcher struct {
	ol     *outline.Outline
	client cue.Client
	cfg    config.Config
	opts   Options
	clock  clock.Clock
	getenv func(string) string
	uid    int
	fs     afero.Fs
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithClock replaces the clock used for retries and polling.
func WithClock(c clock.Clock) Option {
	return func(l *Launcher) { l.clock = c }
}

// WithGetenv replaces the environment lookup.
func WithGetenv(fn func(string) string) Option {
	return func(l *Launcher) { l.getenv = fn }
}

// WithUID sets the uid written to the spec.
func WithUID(uid int) Option {
	return func(l *Launcher) { l.uid = uid }
}

// New returns a launcher for ol. client may be nil when the spec is only
// written out.
func New(ol *outline.Outline, client cue.Client, cfg config.Config, opts Options, options ...Option) *Launcher {
	l := &Launcher{
		ol:     ol,
		client: client,
		cfg:    cfg,
		opts:   opts,
		clock:  clock.New(),
		getenv: os.Getenv,
		uid:    os.Getuid(),
		fs:     ol.Fs(),
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Outline returns the outline being launched.
func (l *Launcher) Outline() *outline.Outline { return l.ol }

// Facility resolves the launch facility: the outline's, the option, then
// RENDER_TO, FACILITY and finally the configured default.
func (l *Launcher) Facility() string {
	for _, f := range []string{l.ol.Facility(), l.opts.Facility, l.getenv("RENDER_TO"), l.getenv("FACILITY")} {
		if f != "" {
			return f
		}
	}
	return l.cfg.Facility
}

var dateSuffix = regexp.MustCompile(`_[0-9]{2,4}_[0-9]{2}_[0-9]{2}_[0-9]{2}_[0-9]{2}`)

// Setup applies the launch options to the outline and sets it up for
// launch.
func (l *Launcher) Setup() error {
	if err := l.applyRange(); err != nil {
		return err
	}

	for _, kv := range l.opts.Env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid env pair %q, want KEY=VALUE", kv)
		}
		l.ol.SetEnv(k, v, false)
	}

	name := dateSuffix.ReplaceAllString(l.ol.Name(), "")
	if l.opts.Basename != "" {
		name = l.opts.Basename
	}
	if err := l.ol.SetName(name); err != nil {
		return err
	}

	l.ol.SetShow(firstOf(l.opts.Show, l.ol.Show(), l.getenv("SHOW")))
	l.ol.SetShot(firstOf(l.opts.Shot, l.ol.Shot(), l.getenv("SHOT")))
	l.ol.SetUser(firstOf(l.opts.User, l.ol.User(), l.getenv("USER")))

	if err := l.ol.Setup(l.cfg.SessionDir); err != nil {
		return err
	}
	return l.stage()
}

func (l *Launcher) stage() error {
	for _, dir := range l.opts.Stage {
		dst, err := l.ol.PutDir(dir, "", l.cfg.IgnoreFile)
		if err != nil {
			return fmt.Errorf("failed to stage %s: %w", dir, err)
		}
		logging.Info("staged %s into %s", dir, dst)
	}
	return nil
}

// ResolveRange returns the launch frame range. Without an explicit range
// the FR environment variable is used when it holds a frame set, and the
// result is flagged as a default range.
func ResolveRange(frameRange string, getenv func(string) string) (string, bool) {
	if frameRange != "" {
		return frameRange, false
	}
	if fr := getenv("FR"); fr != "" && fileseq.IsFrameSet(fr) {
		return fr, true
	}
	return "", false
}

func (l *Launcher) applyRange() error {
	if l.opts.Range == "" {
		return nil
	}
	if l.opts.RangeDefault && l.fullyBaked() {
		logging.Info("every layer of %s has its own range, ignoring the default range %s", l.ol.Name(), l.opts.Range)
		return nil
	}
	if err := l.ol.SetFrameRange(l.opts.Range); err != nil {
		return fmt.Errorf("failed to set frame range: %w", err)
	}
	return nil
}

// fullyBaked reports whether every ranged layer sets its own range.
func (l *Launcher) fullyBaked() bool {
	for _, layer := range l.ol.Layers() {
		if layer.Kind() != outline.KindLayer {
			continue
		}
		if layer.Args().Range == nil {
			return false
		}
	}
	return true
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (l *Launcher) setupIfNeeded() error {
	if l.ol.Mode() < outline.ModeSetup {
		return l.Setup()
	}
	return nil
}

// SpecOptions returns the serializer settings of this launch.
func (l *Launcher) SpecOptions() spec.Options {
	maxRetries := l.cfg.MaxRetries
	if l.opts.MaxRetries != nil {
		maxRetries = *l.opts.MaxRetries
	}
	return spec.Options{
		Facility:    l.Facility(),
		Show:        l.ol.Show(),
		Shot:        l.ol.Shot(),
		User:        l.ol.User(),
		NoMail:      l.opts.NoMail,
		Domain:      l.cfg.Domain,
		UID:         l.uid,
		Paused:      l.opts.Paused,
		Priority:    l.opts.Priority,
		MaxRetries:  maxRetries,
		AutoEat:     l.opts.AutoEat,
		OS:          l.opts.OS,
		Version:     l.cfg.SpecVersion,
		UsePycuerun: !l.opts.NoPycuerun,
		Command: spec.CommandOptions{
			WrapperDir: l.cfg.WrapperDir,
			UserDir:    l.cfg.UserDir,
			BinDir:     l.cfg.BinDir,
			Version:    l.opts.Version,
			Repos:      l.opts.Repos,
			Dev:        l.opts.Dev,
			DevUser:    l.opts.DevUser,
		},
		Getenv: l.getenv,
	}
}

// Serialize sets the outline up if needed and returns its spec.
func (l *Launcher) Serialize() ([]byte, error) {
	if err := l.setupIfNeeded(); err != nil {
		return nil, err
	}
	return spec.Serialize(l.ol, l.SpecOptions())
}

// Launch submits the outline. In wait or test mode it returns once the
// first job is done. With OutputSpec set the spec is written out and no
// job is launched.
func (l *Launcher) Launch(ctx context.Context) ([]cue.Job, error) {
	if err := l.setupIfNeeded(); err != nil {
		return nil, err
	}
	if err := l.ol.EmitBeforeLaunch(); err != nil {
		return nil, err
	}
	b, err := spec.Serialize(l.ol, l.SpecOptions())
	if err != nil {
		return nil, err
	}

	if l.opts.OutputSpec != "" {
		logging.Info("saving job spec to %s", l.opts.OutputSpec)
		if err := afero.WriteFile(l.fs, l.opts.OutputSpec, b, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write job spec to file %s: %w", l.opts.OutputSpec, err)
		}
		return nil, nil
	}
	if l.client == nil {
		return nil, fmt.Errorf("no cue client configured")
	}

	jobs, err := l.submit(ctx, b)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoJobs, l.ol.Name())
	}
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	if err := l.ol.EmitAfterLaunch(ids); err != nil {
		return jobs, err
	}

	switch {
	case l.opts.Wait:
		done, err := l.Wait(ctx, jobs[0])
		if err != nil {
			return jobs, err
		}
		jobs[0] = done
	case l.opts.Test:
		done, err := l.Test(ctx, jobs[0])
		if err != nil {
			return jobs, err
		}
		jobs[0] = done
	}
	return jobs, nil
}

// submit retries transient failures with a linear backoff.
func (l *Launcher) submit(ctx context.Context, b []byte) ([]cue.Job, error) {
	attempts := l.cfg.SubmitAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		log := logging.WithFields(logging.Fields{"job": l.ol.Name(), "attempt": attempt})
		log.Info("submitting job")
		var jobs []cue.Job
		jobs, err = l.client.Submit(ctx, b)
		if err == nil {
			return jobs, nil
		}
		if !cue.IsTransient(err) || attempt == attempts {
			return nil, &SubmissionFailed{Job: l.ol.Name(), Attempts: attempt, Err: err}
		}
		backoff := time.Duration(attempt) * l.cfg.SubmitBackoff
		log.Warnf("submission failed, retrying in %s: %v", backoff, err)
		if err := l.sleep(ctx, backoff); err != nil {
			return nil, &SubmissionFailed{Job: l.ol.Name(), Attempts: attempt, Err: err}
		}
	}
	return nil, &SubmissionFailed{Job: l.ol.Name(), Attempts: attempts, Err: err}
}

func (l *Launcher) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.clock.After(d):
		return nil
	}
}

func (l *Launcher) pollInterval() time.Duration {
	if l.cfg.PollInterval > 0 {
		return l.cfg.PollInterval
	}
	return 5 * time.Second
}

// Wait polls job until it is no longer pending. Errors from the cue are
// logged and polling goes on; only ctx ends it early.
func (l *Launcher) Wait(ctx context.Context, job cue.Job) (cue.Job, error) {
	for {
		cur, err := l.client.GetJob(ctx, job.ID)
		if err != nil {
			logging.Warn("opencue error waiting on job: %s, %v. Will continue to wait.", job.Name, err)
		} else {
			if !cur.IsPending() {
				return cur, nil
			}
			job = cur
			logging.Debug("waiting on %s job to complete: %d/%d", job.Name, job.Stats.Succeeded, job.Stats.Total)
		}
		if err := l.sleep(ctx, l.pollInterval()); err != nil {
			return job, err
		}
	}
}

// Test unpauses job and polls it until it finishes. Any dead or eaten frame
// fails the test. The job is killed on return in every case.
func (l *Launcher) Test(ctx context.Context, job cue.Job) (cue.Job, error) {
	logging.Info("entering test mode for job: %s", job.Name)
	if err := l.client.Resume(ctx, job.ID); err != nil {
		return job, fmt.Errorf("failed to unpause job %s: %w", job.Name, err)
	}
	defer func() {
		if kerr := l.client.Kill(context.Background(), job.ID, "outline test finished"); kerr != nil {
			logging.Warn("failed to kill job %s: %v", job.Name, kerr)
		}
	}()

	for {
		cur, err := l.client.GetJob(ctx, job.ID)
		if err != nil {
			return job, fmt.Errorf("test for job %s failed: %w", job.Name, err)
		}
		job = cur
		if job.Stats.Dead+job.Stats.Eaten > 0 {
			return job, fmt.Errorf("%w, dead or eaten frames on: %s", ErrJobFailed, job.Name)
		}
		if !job.IsPending() {
			return job, nil
		}
		logging.Debug("waiting on %s job to complete: %d/%d", job.Name, job.Stats.Succeeded, job.Stats.Total)
		if err := l.sleep(ctx, l.pollInterval()); err != nil {
			return job, err
		}
	}
}
