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


// Package outline models a render job: an Outline of named Layers with
// frame ranges, dependencies, environment and session storage. An outline
// is built and set up on the submitting host, serialized into its session,
// and loaded again on every render node that runs one of its frames.
package outline

import (
	"fmt"
	"path/filepath"
	"strings"

	"opencue-outline/pkg/fileseq"
	"opencue-outline/pkg/logging"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Mode is the outline life cycle stage. It only moves forward.
type Mode int

const (
	ModeInit Mode = iota
	ModeSetup
	ModeReady
)

func (m Mode) String() string {
	switch m {
	case ModeInit:
		return "init"
	case ModeSetup:
		return "setup"
	case ModeReady:
		return "ready"
	}
	return "unknown"
}

// EnvVar is an outline environment value. Pre values are applied before
// setshot and are sent to the cue; the others are applied on the render
// node just before the layer runs.
type EnvVar struct {
	Value string
	Pre   bool
}

// EnvEntry is an EnvVar with its key.
type EnvEntry struct {
	Key string
	EnvVar
}

// Outline is a job: an ordered set of layers plus job wide settings.
type Outline struct {
	name       string
	frameRange string
	layers     []*Layer
	env        map[string]EnvVar
	envKeys    []string
	maxCores   int
	maxGPUs    int
	show       string
	shot       string
	user       string
	facility   string
	localbook  string
	path       string
	session    *Session
	mode       Mode
	plugins    []Plugin
	fs         afero.Fs
}

// Option configures a new Outline.
type Option func(*Outline)

// WithFrameRange sets the job frame range.
func WithFrameRange(rng string) Option {
	return func(o *Outline) { o.frameRange = rng }
}

// WithFs sets the filesystem used for the session. It defaults to the OS.
func WithFs(fs afero.Fs) Option {
	return func(o *Outline) { o.fs = fs }
}

// WithPlugins sets the plugins run on every layer that joins the outline.
func WithPlugins(plugins ...Plugin) Option {
	return func(o *Outline) { o.plugins = append(o.plugins, plugins...) }
}

// WithUniqueName appends a random suffix to the name.
func WithUniqueName() Option {
	return func(o *Outline) { o.name = fmt.Sprintf("%s_%s", o.name, uuid.NewString()) }
}

// WithShowShotUser sets show, shot and user.
func WithShowShotUser(show, shot, user string) Option {
	return func(o *Outline) {
		o.show, o.shot, o.user = show, shot, user
	}
}

// New returns an empty outline. An empty name becomes "outline".
func New(name string, opts ...Option) *Outline {
	if name == "" {
		name = "outline"
	}
	o := &Outline{
		name: name,
		env:  make(map[string]EnvVar),
		fs:   afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NameFromPath derives an outline name from a script or document path.
func NameFromPath(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Name returns the outline name.
func (o *Outline) Name() string { return o.name }

// SetName renames the outline. Not allowed once set up.
func (o *Outline) SetName(name string) error {
	if o.mode > ModeInit {
		return fmt.Errorf("%w: cannot rename outline after setup", ErrMode)
	}
	o.name = name
	return nil
}

// FullName returns <show>-<shot>-<user>_<name>.
func (o *Outline) FullName() string {
	return fmt.Sprintf("%s-%s-%s_%s", o.show, o.shot, o.user, o.name)
}

// FrameRange returns the job frame range, possibly "".
func (o *Outline) FrameRange() string { return o.frameRange }

// SetFrameRange validates and sets the job frame range.
func (o *Outline) SetFrameRange(rng string) error {
	if rng != "" {
		if _, err := fileseq.ParseFrameSet(rng); err != nil {
			return err
		}
	}
	o.frameRange = rng
	return nil
}

// Show returns the show the job runs under.
func (o *Outline) Show() string { return o.show }

// SetShow sets the show.
func (o *Outline) SetShow(show string) { o.show = show }

// Shot returns the shot the job runs under.
func (o *Outline) Shot() string { return o.shot }

// SetShot sets the shot.
func (o *Outline) SetShot(shot string) { o.shot = shot }

// User returns the submitting user.
func (o *Outline) User() string { return o.user }

// SetUser sets the submitting user.
func (o *Outline) SetUser(user string) { o.user = user }

// Facility returns the render facility, possibly "".
func (o *Outline) Facility() string { return o.facility }

// SetFacility sets the render facility.
func (o *Outline) SetFacility(f string) { o.facility = f }

// Localbook returns the localbook argument, possibly "".
func (o *Outline) Localbook() string { return o.localbook }

// SetLocalbook sets the localbook argument.
func (o *Outline) SetLocalbook(s string) { o.localbook = s }

// MaxCores returns the job core cap, 0 when unset.
func (o *Outline) MaxCores() int { return o.maxCores }

// SetMaxCores sets the job core cap.
func (o *Outline) SetMaxCores(n int) { o.maxCores = n }

// MaxGPUs returns the job GPU cap, 0 when unset.
func (o *Outline) MaxGPUs() int { return o.maxGPUs }

// SetMaxGPUs sets the job GPU cap.
func (o *Outline) SetMaxGPUs(n int) { o.maxGPUs = n }

// Path returns the path of the outline document, set by Setup or Load.
func (o *Outline) Path() string { return o.path }

// SetPath sets the outline document path.
func (o *Outline) SetPath(p string) { o.path = p }

// Session returns the session, or nil before setup.
func (o *Outline) Session() *Session { return o.session }

// Fs returns the filesystem the session lives on.
func (o *Outline) Fs() afero.Fs { return o.fs }

// Mode returns the life cycle stage.
func (o *Outline) Mode() Mode { return o.mode }

// SetMode advances the life cycle stage.
func (o *Outline) SetMode(m Mode) error {
	if m < o.mode {
		return fmt.Errorf("%w: cannot go from %s back to %s", ErrMode, o.mode, m)
	}
	o.mode = m
	return nil
}

// SetEnv sets a job environment variable. pre marks it for the cue.
func (o *Outline) SetEnv(key, value string, pre bool) {
	if old, ok := o.env[key]; ok {
		logging.Warn("overwriting outline env var: %s, from %s to %s", key, old.Value, value)
	} else {
		o.envKeys = append(o.envKeys, key)
	}
	o.env[key] = EnvVar{Value: value, Pre: pre}
}

// GetEnv returns one job environment variable.
func (o *Outline) GetEnv(key string) (EnvVar, bool) {
	v, ok := o.env[key]
	return v, ok
}

// Env returns a copy of the job environment in insertion order.
func (o *Outline) Env() []EnvEntry {
	out := make([]EnvEntry, 0, len(o.envKeys))
	for _, k := range o.envKeys {
		out = append(out, EnvEntry{Key: k, EnvVar: o.env[k]})
	}
	return out
}

// AddLayer appends l; adding a layer twice is a no-op. Unregistered layers
// are kept so they load on render nodes, but are never submitted. Plugins
// and AfterInit handlers run for l and its children.
func (o *Outline) AddLayer(l *Layer) error {
	for _, cur := range o.layers {
		if cur == l {
			logging.Info("the layer %s was already added to this outline", l.Name())
			return nil
		}
	}
	if o.IsLayer(l.Name()) {
		return fmt.Errorf("%w: %s", ErrDuplicateLayer, l.Name())
	}

	l.outline = o
	o.layers = append(o.layers, l)
	if err := o.initLayer(l); err != nil {
		return err
	}
	if o.mode == ModeSetup {
		logging.Info("running setup for layer %s added during setup", l.Name())
		return l.Setup()
	}
	return nil
}

func (o *Outline) initLayer(l *Layer) error {
	for _, p := range o.plugins {
		if err := p.Init(l); err != nil {
			if isFailImmediately(err) {
				return err
			}
			logging.Error("plugin failed to initialize layer %s: %v", l.Name(), err)
		}
	}
	if err := emit(l, AfterInit, l.handlers.afterInit, AfterInitEvent{Layer: l, Outline: o}); err != nil {
		return err
	}
	for _, child := range l.children {
		child.outline = o
		if err := o.initLayer(child); err != nil {
			return err
		}
	}
	return nil
}

// RemoveLayer removes l. Only allowed before setup.
func (o *Outline) RemoveLayer(l *Layer) error {
	if o.mode > ModeInit {
		return fmt.Errorf("%w: cannot remove layers after setup", ErrMode)
	}
	for i, cur := range o.layers {
		if cur == l {
			o.layers = append(o.layers[:i], o.layers[i+1:]...)
			l.outline = nil
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrLayerNotFound, l.Name())
}

// Layer returns the layer called name, searching children too.
func (o *Outline) Layer(name string) (*Layer, error) {
	for _, l := range o.layers {
		if found := findLayer(l, name); found != nil {
			return found, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, name)
}

func findLayer(l *Layer, name string) *Layer {
	if l.Name() == name {
		return l
	}
	for _, c := range l.children {
		if found := findLayer(c, name); found != nil {
			return found
		}
	}
	return nil
}

// IsLayer reports whether a layer called name exists.
func (o *Outline) IsLayer(name string) bool {
	_, err := o.Layer(name)
	return err == nil
}

// Layers returns the top level layers in insertion order.
func (o *Outline) Layers() []*Layer {
	return append([]*Layer(nil), o.layers...)
}

// LayerNames returns every layer name, children included.
func (o *Outline) LayerNames() []string {
	var names []string
	var walk func(l *Layer)
	walk = func(l *Layer) {
		names = append(names, l.Name())
		for _, c := range l.children {
			walk(c)
		}
	}
	for _, l := range o.layers {
		walk(l)
	}
	return names
}

// SchedulableLayers returns the layers that are submitted: registered, top
// level, and with a range intersecting the job range. Elided layers stay in
// the outline.
func (o *Outline) SchedulableLayers() ([]*Layer, error) {
	var out []*Layer
	for _, l := range o.layers {
		if !l.args.Registered() || l.parent != nil {
			continue
		}
		if l.FrameRange() == "" {
			logging.Info("skipping layer %s, its range (%s) does not intersect with ol range %s",
				l.Name(), valueOr(l.args.Range, ""), o.frameRange)
			continue
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no layer intersects the job frame range %q", ErrNoSchedulableLayers, o.frameRange)
	}
	return out, nil
}

// SetupDepends turns every layer's require argument into dependencies.
// Unknown layers are logged and skipped.
func (o *Outline) SetupDepends() {
	logging.Info("setting up dependencies")
	for _, l := range o.layers {
		for _, req := range l.args.Require {
			name, typ := ParseRequire(req)
			if err := l.DependOnName(name, typ); err != nil {
				logging.Warn("invalid layer in depend %s, skipping", name)
			}
		}
	}
}

// Setup prepares the outline for launch: it resolves require arguments,
// creates the session under root, sets up every layer with a frame range,
// writes the outline document into the session and moves to ModeReady.
func (o *Outline) Setup(root string) error {
	if o.mode >= ModeSetup {
		return fmt.Errorf("%w: this outline is already setup", ErrMode)
	}
	o.SetupDepends()
	if err := o.CheckDependencies(); err != nil {
		return err
	}

	o.mode = ModeSetup
	s, err := NewSession(o.fs, root, o)
	if err != nil {
		return err
	}
	o.session = s

	for _, l := range o.layers {
		if l.FrameRange() == "" {
			continue
		}
		if err := l.Setup(); err != nil {
			return fmt.Errorf("failed to setup layer %s: %w", l.Name(), err)
		}
	}

	o.path = filepath.Join(s.Path(), outlineFile)
	logging.Info("setting new outline path: %s", o.path)
	o.mode = ModeReady
	doc, err := o.Encode()
	if err != nil {
		return err
	}
	logging.Info("serializing outline script to session path.")
	if err := afero.WriteFile(o.fs, o.path, doc, 0o666); err != nil {
		return &SessionError{Op: "write outline", Path: o.path, Err: err}
	}
	return s.Save()
}

// PutData stores job wide data in the session.
func (o *Outline) PutData(key string, value interface{}, force bool) error {
	if o.session == nil {
		return ErrNoSession
	}
	return o.session.PutData(key, value, "", force)
}

// GetData reads job wide data from the session.
func (o *Outline) GetData(key string, out interface{}) error {
	if o.session == nil {
		return ErrNoSession
	}
	return o.session.GetData(key, "", out)
}

// PutFile copies src into the job session directory.
func (o *Outline) PutFile(src, rename string) (string, error) {
	if o.session == nil {
		return "", ErrNoSession
	}
	return o.session.PutFile(src, "", rename)
}

// PutDir copies the directory src into the job session directory, leaving
// out whatever the patterns in src/<ignoreFile> match.
func (o *Outline) PutDir(src, rename, ignoreFile string) (string, error) {
	if o.session == nil {
		return "", ErrNoSession
	}
	return o.session.PutDir(src, "", rename, ignoreFile)
}

// GetFile returns the path of a job session file, see Session.GetFile.
func (o *Outline) GetFile(name string, check, isNew bool) (string, error) {
	if o.session == nil {
		return "", ErrNoSession
	}
	return o.session.GetFile(name, "", check, isNew)
}
