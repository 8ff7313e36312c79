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
	"errors"
	"fmt"
	"sort"

	"opencue-outline/pkg/fileseq"
	"opencue-outline/pkg/logging"

	"github.com/spf13/afero"
)

// DefaultFrameRange is used by layers when neither they nor their outline
// have a frame range.
const DefaultFrameRange = "1000-1000"

// LayerType is the cue layer type.
type LayerType string

const (
	Render LayerType = "Render"
	Post   LayerType = "Post"
	Util   LayerType = "Util"
)

// ParseLayerType validates a layer type name.
func ParseLayerType(s string) (LayerType, error) {
	switch t := LayerType(s); t {
	case Render, Post, Util:
		return t, nil
	}
	return "", fmt.Errorf("%q is not a valid layer type, must be one of Render, Post or Util", s)
}

// Kind selects how a layer resolves its frame range and what it does
// around execution.
type Kind string

const (
	// KindLayer is an ordinary layer running over its frame range.
	KindLayer Kind = "Layer"
	// KindFrame runs a single frame, the first of the outline range.
	KindFrame Kind = "Frame"
	// KindPreProcess runs once before its creator is unlocked.
	KindPreProcess Kind = "PreProcess"
	// KindPostProcess runs once after its creator.
	KindPostProcess Kind = "PostProcess"
	// KindPostCommand runs after the whole job, even a failed one.
	KindPostCommand Kind = "PostCommand"
)

func parseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindLayer, KindFrame, KindPreProcess, KindPostProcess, KindPostCommand:
		return k, nil
	case "":
		return KindLayer, nil
	}
	return "", fmt.Errorf("unknown layer kind %q", s)
}

// Layer is a named unit of work in an outline.
type Layer struct {
	name       string
	typ        LayerType
	kind       Kind
	args       LayerArgs
	env        map[string]string
	inputs     namedPaths
	outputs    namedPaths
	required   []string
	parent     *Layer
	children   []*Layer
	depends    []*Depend
	creator    *Layer
	preprocess []*Layer
	outline    *Outline
	handlers   handlers
	frame      int
}

func newLayer(name string, kind Kind, args LayerArgs) *Layer {
	return &Layer{
		name: name,
		typ:  Render,
		kind: kind,
		args: args,
		env:  make(map[string]string),
	}
}

// NewLayer returns a layer running over its frame range.
func NewLayer(name string, args LayerArgs) *Layer {
	return newLayer(name, KindLayer, args)
}

// NewFrame returns a layer that runs the first frame of the outline range.
func NewFrame(name string, args LayerArgs) *Layer {
	return newLayer(name, KindFrame, args)
}

// NewPreProcess returns a <creator>_preprocess layer. The creator waits on
// it for all frames.
func NewPreProcess(creator *Layer, args LayerArgs) *Layer {
	pre := newLayer(creator.Name()+"_preprocess", KindPreProcess, args)
	pre.creator = creator
	pre.typ = Util
	pre.args.Service = Ptr("preprocess")
	creator.DependOn(pre, LayerOnLayer)
	creator.preprocess = append(creator.preprocess, pre)
	return pre
}

// NewPostProcess returns a <creator>_postprocess layer waiting on all of
// its creator's frames.
func NewPostProcess(creator *Layer, propagate bool, args LayerArgs) *Layer {
	post := newLayer(creator.Name()+"_postprocess", KindPostProcess, args)
	post.creator = creator
	post.typ = Util
	var opts []DependOption
	if propagate {
		opts = append(opts, WithPropagate())
	}
	post.DependOn(creator, LayerOnLayer, opts...)
	return post
}

// NewPostCommand returns a layer that runs once the outline is complete.
func NewPostCommand(name string, args LayerArgs) *Layer {
	l := newLayer(name, KindPostCommand, args)
	l.typ = Post
	l.args.Service = Ptr("postprocess")
	return l
}

// Name returns the layer name. Children are named parent.child.
func (l *Layer) Name() string {
	if l.parent != nil {
		return l.parent.Name() + "." + l.name
	}
	return l.name
}

func (l *Layer) String() string { return l.Name() }

// SetName renames the layer. Names are frozen once the outline is set up.
func (l *Layer) SetName(name string) error {
	if l.outline != nil && l.outline.mode > ModeInit {
		return fmt.Errorf("%w: cannot rename layer %s after setup", ErrMode, l.Name())
	}
	if l.outline != nil && l.outline.IsLayer(name) {
		return fmt.Errorf("%w: %s", ErrDuplicateLayer, name)
	}
	l.name = name
	return nil
}

// Type returns the layer type.
func (l *Layer) Type() LayerType { return l.typ }

// SetType changes the layer type.
func (l *Layer) SetType(t LayerType) error {
	if _, err := ParseLayerType(string(t)); err != nil {
		return err
	}
	l.typ = t
	return nil
}

// Kind returns the layer kind.
func (l *Layer) Kind() Kind { return l.kind }

// Creator returns the layer a pre or post process was created for.
func (l *Layer) Creator() *Layer { return l.creator }

// PreProcessLayers returns the pre-process layers created for l.
func (l *Layer) PreProcessLayers() []*Layer {
	return append([]*Layer(nil), l.preprocess...)
}

// Args returns the layer arguments for reading and editing.
func (l *Layer) Args() *LayerArgs { return &l.args }

// SetArg sets an argument by name, see LayerArgs.Set.
func (l *Layer) SetArg(key string, value interface{}) error {
	return l.args.Set(key, value)
}

// Service returns the service name.
func (l *Layer) Service() string { return l.args.ServiceName() }

// SetService sets the service name.
func (l *Layer) SetService(s string) { l.args.Service = &s }

// Limits returns the names of the limits the layer is subject to.
func (l *Layer) Limits() []string { return append([]string(nil), l.args.Limits...) }

// SetEnv sets a layer environment variable, applied after the outline's.
func (l *Layer) SetEnv(key, value string) {
	l.env[key] = value
}

// Env returns one layer environment variable.
func (l *Layer) Env(key string) (string, bool) {
	v, ok := l.env[key]
	return v, ok
}

// Envs returns a copy of the layer environment.
func (l *Layer) Envs() map[string]string {
	out := make(map[string]string, len(l.env))
	for k, v := range l.env {
		out[k] = v
	}
	return out
}

// EnvKeys returns the layer environment keys, sorted.
func (l *Layer) EnvKeys() []string {
	keys := make([]string, 0, len(l.env))
	for k := range l.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Outline returns the outline the layer belongs to, or nil.
func (l *Layer) Outline() *Outline { return l.outline }

// Parent returns the parent of a child layer, or nil.
func (l *Layer) Parent() *Layer { return l.parent }

// Children returns the child layers.
func (l *Layer) Children() []*Layer { return append([]*Layer(nil), l.children...) }

// AddChild parents child to l. Children are loaded with the outline but are
// never submitted on their own.
func (l *Layer) AddChild(child *Layer) error {
	if child == l || child.parent != nil {
		return layerErrorf(child, "cannot be parented to %s", l.Name())
	}
	child.outline = l.outline
	child.parent = l
	l.children = append(l.children, child)
	return emit(child, AfterParented, child.handlers.afterParented, AfterParentedEvent{Layer: child, Parent: l})
}

// FrameRange returns the effective frame range. A layer range is
// intersected with the outline range and an empty intersection yields "".
func (l *Layer) FrameRange() string {
	switch l.kind {
	case KindFrame, KindPostProcess, KindPostCommand:
		if l.outline == nil || l.outline.frameRange == "" {
			return DefaultFrameRange
		}
		return firstFrame(l.outline.frameRange)
	case KindPreProcess:
		if l.creator == nil {
			return DefaultFrameRange
		}
		rng := l.creator.FrameRange()
		if rng == "" {
			return ""
		}
		return firstFrame(rng)
	}

	var rng string
	if l.args.Range != nil {
		rng = *l.args.Range
	} else if l.parent != nil {
		rng = l.parent.FrameRange()
	}

	if l.outline == nil {
		if rng != "" {
			return rng
		}
		return DefaultFrameRange
	}

	olRange := l.outline.frameRange
	switch {
	case rng != "" && olRange != "":
		inter, err := intersectRange(rng, olRange)
		if err != nil {
			logging.Error("layer %s: %v", l.Name(), err)
			return ""
		}
		return inter
	case rng != "":
		return rng
	case olRange != "":
		return olRange
	}
	return DefaultFrameRange
}

// intersectRange returns the frames of layer also in outline, in layer
// order. The normalized form is used when it keeps that order.
func intersectRange(layer, outline string) (string, error) {
	ly, err := fileseq.ParseFrameSet(layer)
	if err != nil {
		return "", err
	}
	ol, err := fileseq.ParseFrameSet(outline)
	if err != nil {
		return "", err
	}
	inter := ly.Intersect(ol)
	if inter.Len() == 0 {
		return "", nil
	}
	norm := inter.Normalize()
	if equalFrames(inter.Frames(), norm.Frames()) {
		return norm.String(), nil
	}
	return inter.String(), nil
}

func equalFrames(a, b []int) bool {
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

func firstFrame(rng string) string {
	fs, err := fileseq.ParseFrameSet(rng)
	if err != nil || fs.Len() == 0 {
		return DefaultFrameRange
	}
	f, _ := fs.Index(0)
	return fmt.Sprint(f)
}

// SetFrameRange sets the layer range. Frame kinds ignore it.
func (l *Layer) SetFrameRange(rng string) error {
	if l.kind != KindLayer {
		return nil
	}
	if _, err := fileseq.ParseFrameSet(rng); err != nil {
		return err
	}
	logging.Debug("layer %s changing range from %s to %s", l.Name(), valueOr(l.args.Range, ""), rng)
	l.args.Range = &rng
	return nil
}

// Chunk returns the number of frames per task.
func (l *Layer) Chunk() int { return l.args.ChunkSize() }

// SetChunk sets the number of frames per task.
func (l *Layer) SetChunk(n int) error {
	if n < 1 {
		return layerErrorf(l, "chunk size must be at least 1, got %d", n)
	}
	l.args.Chunk = &n
	return nil
}

// LocalFrameSet returns the frames one task starting at start must run:
// start and the next chunk-1 distinct frames of the layer range.
func (l *Layer) LocalFrameSet(start int) (*fileseq.FrameSet, error) {
	chunk := l.Chunk()
	if chunk < 1 {
		return nil, layerErrorf(l, "chunk size must be at least 1, got %d", chunk)
	}
	if chunk == 1 {
		return fileseq.NewFrameSet([]int{start}), nil
	}
	fs, err := fileseq.ParseFrameSet(l.FrameRange())
	if err != nil {
		return nil, err
	}
	frames := fs.Unique().Frames()
	idx := -1
	for i, f := range frames {
		if f == start {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, layerErrorf(l, "frame %d is outside of the frame range", start)
	}
	end := idx + chunk
	if end > len(frames) {
		end = len(frames)
	}
	return fileseq.NewFrameSet(frames[idx:end]), nil
}

// DependOn makes l wait on target. Duplicate targets and self dependencies
// are skipped. Any-frame edges become frame by frame edges, except on
// pre-processes which wait on the whole target layer.
func (l *Layer) DependOn(target *Layer, typ DependType, opts ...DependOption) {
	for _, d := range l.depends {
		if d.target == target {
			logging.Info("skipping duplicated depend %s on %s", l, target)
			return
		}
	}
	if target == l || (target.outline == l.outline && target.Name() == l.Name()) {
		logging.Info("skipping setting up dependency on self %s", l)
		return
	}

	logging.Info("adding depend %s on %s", l, target)
	d := &Depend{dependent: l, target: target, typ: typ}
	for _, opt := range opts {
		opt(d)
	}
	if d.settle() && l.kind != KindPreProcess {
		for _, pre := range l.preprocess {
			pre.DependOn(target, LayerOnLayer, WithAnyFrame())
		}
	}
	l.depends = append(l.depends, d)

	for _, mine := range l.preprocess {
		for _, theirs := range target.preprocess {
			mine.DependOn(theirs, LayerOnLayer)
		}
	}

	// If the target itself waits on something with propagation, every layer
	// l waits on must wait on that too.
	for _, td := range target.depends {
		if !td.propagate || td.target == nil {
			continue
		}
		for _, mine := range l.depends {
			if mine.target == nil {
				continue
			}
			logging.Info("propagating dependency %s -> %s", mine.target, td.target)
			mine.target.DependAll(td.target)
		}
	}
}

// DependOnName resolves name in the outline and depends on it. A missing
// layer is logged and reported.
func (l *Layer) DependOnName(name string, typ DependType, opts ...DependOption) error {
	if l.outline == nil {
		return fmt.Errorf("%w: %s, layer %s has no outline", ErrLayerNotFound, name, l.Name())
	}
	target, err := l.outline.Layer(name)
	if err != nil {
		logging.Warn("%s layer does not exist, depend failed", name)
		return err
	}
	l.DependOn(target, typ, opts...)
	return nil
}

// DependAll waits on every frame of target.
func (l *Layer) DependAll(target *Layer, opts ...DependOption) {
	l.DependOn(target, LayerOnLayer, opts...)
}

// DependPrevious waits on the previous frame of target.
func (l *Layer) DependPrevious(target *Layer) {
	l.DependOn(target, PreviousFrame)
}

// addDepend appends a plain edge. It reports false for a duplicate.
func (l *Layer) addDepend(target *Layer, typ DependType, opts ...DependOption) bool {
	for _, d := range l.depends {
		if d.target == target {
			return false
		}
	}
	d := &Depend{dependent: l, target: target, typ: typ}
	for _, opt := range opts {
		opt(d)
	}
	l.depends = append(l.depends, d)
	return true
}

// Undepend removes d. Removing an unknown edge only logs a warning.
func (l *Layer) Undepend(d *Depend) {
	for i, cur := range l.depends {
		if cur == d {
			l.depends = append(l.depends[:i], l.depends[i+1:]...)
			return
		}
	}
	logging.Warn("failed to remove dependency %s, it does not exist", d)
}

// Depends returns the edges l waits on.
func (l *Layer) Depends() []*Depend { return append([]*Depend(nil), l.depends...) }

// Dependents returns the edges of other layers waiting on l.
func (l *Layer) Dependents() []*Depend {
	if l.outline == nil {
		return nil
	}
	var out []*Depend
	for _, other := range l.outline.layers {
		for _, d := range other.depends {
			if d.target == l {
				out = append(out, d)
			}
		}
	}
	return out
}

// NamedPath pairs an input or output with its name.
type NamedPath struct {
	Name string
	Path *IOPath
}

// AddInput registers an input. An empty name becomes input<N>.
func (l *Layer) AddInput(name string, p *IOPath) (string, error) {
	name, err := l.inputs.add("input", name, p)
	if err != nil {
		return "", layerErrorf(l, "%v", err)
	}
	return name, nil
}

// AddOutput registers an output. An empty name becomes output<N>.
func (l *Layer) AddOutput(name string, p *IOPath) (string, error) {
	name, err := l.outputs.add("output", name, p)
	if err != nil {
		return "", layerErrorf(l, "%v", err)
	}
	return name, nil
}

// Input returns the named input.
func (l *Layer) Input(name string) (*IOPath, error) {
	if p, ok := l.inputs.get(name); ok {
		return p, nil
	}
	return nil, layerErrorf(l, "an input by the name %s does not exist", name)
}

// Output returns the named output.
func (l *Layer) Output(name string) (*IOPath, error) {
	if p, ok := l.outputs.get(name); ok {
		return p, nil
	}
	return nil, layerErrorf(l, "an output by the name %s does not exist", name)
}

// Inputs returns the inputs in registration order.
func (l *Layer) Inputs() []NamedPath { return l.inputs.list() }

// Outputs returns the outputs in registration order.
func (l *Layer) Outputs() []NamedPath { return l.outputs.list() }

// SetInputAttribute sets attr on every input.
func (l *Layer) SetInputAttribute(attr string, value interface{}) error {
	logging.Debug("setting input attribute: %s = %v", attr, value)
	return l.inputs.each(func(_ string, p *IOPath) error { return p.SetAttribute(attr, value) })
}

// SetOutputAttribute sets attr on every output.
func (l *Layer) SetOutputAttribute(attr string, value interface{}) error {
	logging.Debug("setting output attribute: %s = %v", attr, value)
	return l.outputs.each(func(_ string, p *IOPath) error { return p.SetAttribute(attr, value) })
}

// CheckInput fails if a checked input is missing.
func (l *Layer) CheckInput(fsys afero.Fs, frames *fileseq.FrameSet) error {
	return l.inputs.each(func(name string, p *IOPath) error {
		if p.Checked && !p.Exists(fsys, frames) {
			return layerErrorf(l, "check input failed (%s), the path %s does not exist", name, p.Path())
		}
		return nil
	})
}

// CheckOutput fails if a checked output is missing, unless nocheck is set.
func (l *Layer) CheckOutput(fsys afero.Fs, frames *fileseq.FrameSet) error {
	if valueOr(l.args.NoCheck, false) {
		return nil
	}
	return l.outputs.each(func(name string, p *IOPath) error {
		if p.Checked && !p.Exists(fsys, frames) {
			return layerErrorf(l, "check output failed (%s), the path %s does not exist", name, p.Path())
		}
		return nil
	})
}

// RequireArg makes key mandatory at setup and execute time.
func (l *Layer) RequireArg(key string) {
	l.required = append(l.required, key)
}

// CheckRequiredArgs fails if a required argument is unset.
func (l *Layer) CheckRequiredArgs() error {
	for _, key := range l.required {
		if !l.args.IsSet(key) {
			return layerErrorf(l, "the %s layer requires the %s property to be set", l.Name(), key)
		}
	}
	return nil
}

// Setup runs once before launch: it checks required arguments and the frame
// range, sets up the children and fires Setup.
func (l *Layer) Setup() error {
	if err := l.CheckRequiredArgs(); err != nil {
		return err
	}
	if l.args.Range != nil {
		if _, err := fileseq.ParseFrameSet(*l.args.Range); err != nil {
			return layerErrorf(l, "%v", err)
		}
	}
	for _, child := range l.children {
		if err := child.Setup(); err != nil {
			return err
		}
	}
	return emit(l, Setup, l.handlers.setup, SetupEvent{Layer: l})
}

func (l *Layer) session() (*Session, error) {
	if l.outline == nil || l.outline.session == nil {
		return nil, fmt.Errorf("%w: layer %s", ErrNoSession, l.Name())
	}
	return l.outline.session, nil
}

// Path returns the layer directory in the session.
func (l *Layer) Path() (string, error) {
	s, err := l.session()
	if err != nil {
		return "", err
	}
	return s.LayerPath(l.Name())
}

// PutData stores value under key in the layer session directory.
func (l *Layer) PutData(key string, value interface{}, force bool) error {
	s, err := l.session()
	if err != nil {
		return err
	}
	return s.PutData(key, value, l.Name(), force)
}

// GetData decodes the value stored under key into out.
func (l *Layer) GetData(key string, out interface{}) error {
	s, err := l.session()
	if err != nil {
		return err
	}
	return s.GetData(key, l.Name(), out)
}

// PutFile copies src into the layer session directory.
func (l *Layer) PutFile(src, rename string) (string, error) {
	s, err := l.session()
	if err != nil {
		return "", err
	}
	return s.PutFile(src, l.Name(), rename)
}

// SymFile links src into the layer session directory.
func (l *Layer) SymFile(src, rename string) (string, error) {
	s, err := l.session()
	if err != nil {
		return "", err
	}
	return s.SymFile(src, l.Name(), rename)
}

// GetFile returns the session path of a layer file, see Session.GetFile.
func (l *Layer) GetFile(name string, check, isNew bool) (string, error) {
	s, err := l.session()
	if err != nil {
		return "", err
	}
	return s.GetFile(name, l.Name(), check, isNew)
}

// Frame returns the frame being executed.
func (l *Layer) Frame() int { return l.frame }

func isNotFound(err error) bool {
	return errors.Is(err, ErrDataNotFound)
}
