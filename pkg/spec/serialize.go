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

package spec

import (
	"fmt"
	"math"
	"os"
	"path"
	"strings"
	"unicode"

	"opencue-outline/pkg/fileseq"
	"opencue-outline/pkg/logging"
	"opencue-outline/pkg/outline"
)

// Environment overrides read while serializing.
const (
	EnvOS          = "OL_OS"
	EnvTagOverride = "OL_TAG_OVERRIDE"
)

// Options are the launcher settings written into the spec.
type Options struct {
	Facility   string
	Show       string
	Shot       string
	User       string
	NoMail     bool
	Domain     string
	UID        int
	Paused     bool
	Priority   *int
	MaxRetries int
	AutoEat    bool
	OS         string
	// Version is the declared spec version, DefaultVersion when empty.
	Version     string
	UsePycuerun bool
	Command     CommandOptions
	// Getenv looks up environment overrides. nil means os.Getenv.
	Getenv func(string) string
}

func (o Options) getenv(key string) string {
	if o.Getenv == nil {
		return os.Getenv(key)
	}
	return o.Getenv(key)
}

// CommandOptions configure the pycuerun command line of each layer.
type CommandOptions struct {
	WrapperDir string
	UserDir    string
	BinDir     string
	Version    string
	Repos      string
	Dev        bool
	DevUser    string
}

// Serialize builds the spec document of ol and encodes it.
func Serialize(ol *outline.Outline, opts Options) ([]byte, error) {
	doc, err := Build(ol, opts)
	if err != nil {
		return nil, err
	}
	b, err := doc.Encode()
	if err != nil {
		return nil, err
	}
	logging.Debug("job spec: %s", b)
	return b, nil
}

// Build converts ol into a spec document. Features newer than the declared
// version are dropped with a warning.
func Build(ol *outline.Outline, opts Options) (*Document, error) {
	ver := opts.Version
	if ver == "" {
		ver = DefaultVersion
	}
	v, err := ParseVersion(ver)
	if err != nil {
		return nil, err
	}

	layers, err := ol.SchedulableLayers()
	if err != nil {
		return nil, fmt.Errorf("failed to launch job %s: %w", ol.Name(), err)
	}

	user := opts.User
	if user == "" {
		user = opts.getenv("USER")
	}
	doc := &Document{
		Version:  v,
		Facility: opts.Facility,
		Show:     opts.Show,
		Shot:     opts.Shot,
		User:     user,
		UID:      opts.UID,
	}
	if !opts.NoMail {
		doc.Email = fmt.Sprintf("%s@%s", user, opts.Domain)
	}

	job := &doc.Job
	job.Name = ol.Name()
	job.Paused = Bool(opts.Paused)
	job.MaxRetries = opts.MaxRetries
	job.AutoEat = Bool(opts.AutoEat)
	job.Localbook = ol.Localbook()
	job.OS = opts.OS
	if env := opts.getenv(EnvOS); env != "" {
		job.OS = env
	}
	if opts.Priority != nil && allowed(FeaturePriority, v, "job "+ol.Name()) {
		job.Priority = opts.Priority
	}
	if ol.MaxCores() > 0 || ol.MaxGPUs() > 0 {
		if allowed(FeatureMaxCores, v, "job "+ol.Name()) {
			if n := ol.MaxCores(); n > 0 {
				job.MaxCores = &n
			}
			if n := ol.MaxGPUs(); n > 0 {
				job.MaxGPUs = &n
			}
		}
	}
	for _, e := range ol.Env() {
		if e.Pre {
			job.Env.Keys = append(job.Env.Keys, EnvKey{Name: e.Key, Value: e.Value})
		}
	}

	for _, l := range layers {
		sl, err := buildLayer(ol, l, v, opts)
		if err != nil {
			return nil, err
		}
		job.Layers.Layers = append(job.Layers.Layers, sl)

		deps, err := buildDepends(ol, l)
		if err != nil {
			return nil, err
		}
		doc.Depends.Depends = append(doc.Depends.Depends, deps...)
	}
	return doc, nil
}

func allowed(f Feature, v Version, where string) bool {
	g := Gate(f, v)
	if !g.Supported {
		logging.Warn("%s: %s, skipping for spec version %s", where, g, v)
	}
	return g.Supported
}

func buildLayer(ol *outline.Outline, l *outline.Layer, v Version, opts Options) (Layer, error) {
	args := l.Args()
	where := "layer " + l.Name()
	sl := Layer{
		Name:  l.Name(),
		Type:  string(l.Type()),
		Range: l.FrameRange(),
		Chunk: l.Chunk(),
	}

	if opts.UsePycuerun {
		argv, err := BuildCommand(l, ol.Path(), opts.Command)
		if err != nil {
			return Layer{}, err
		}
		sl.Cmd = strings.Join(argv, " ")
	} else {
		sl.Cmd = args.Command.String()
	}

	if cores, ok := args.EffectiveCores(l.Name()); ok {
		c := Cores(math.Round(cores*100) / 100)
		sl.Cores = &c
	}
	if args.Threadable != nil {
		b := Bool(*args.Threadable)
		sl.Threadable = &b
	}
	if args.Memory != nil {
		sl.Memory = *args.Memory
	}

	gpus := valueOr(args.GPUs, 0)
	gpuMemory := valueOr(args.GPUMemory, "")
	if gpus > 0 || gpuMemory != "" {
		if allowed(FeatureGPUs, v, where) {
			sl.SetGPUs(gpus, gpuMemory)
		}
	}
	if args.Timeout != nil && allowed(FeatureTimeout, v, where) {
		sl.Timeout = args.Timeout
	}
	if args.TimeoutLLU != nil && allowed(FeatureTimeout, v, where) {
		sl.TimeoutLLU = args.TimeoutLLU
	}

	if override := opts.getenv(EnvTagOverride); override != "" {
		sl.Tags = ScrubTags(override)
	} else if len(args.Tags) > 0 {
		sl.Tags = ScrubTags(strings.Join(args.Tags, "|"))
	}

	if limits := l.Limits(); len(limits) > 0 {
		sl.Limits = &Limits{Limits: limits}
	}

	for _, k := range l.EnvKeys() {
		val, _ := l.Env(k)
		sl.Env.Keys = append(sl.Env.Keys, EnvKey{Name: k, Value: val})
	}

	sl.Services.Service = serviceName(l.Service())

	if outputs := l.Outputs(); len(outputs) > 0 && allowed(FeatureOutputs, v, where) {
		sl.Outputs = &Outputs{}
		for _, o := range outputs {
			sl.Outputs.Outputs = append(sl.Outputs.Outputs, Output{Name: o.Name, Path: o.Path.Path()})
		}
	}
	return sl, nil
}

func serviceName(service string) string {
	first, _, _ := strings.Cut(service, ",")
	if first = strings.TrimSpace(first); first != "" {
		return first
	}
	return "default"
}

func buildDepends(ol *outline.Outline, l *outline.Layer) ([]Depend, error) {
	var out []Depend
	for _, d := range l.Depends() {
		onJob := d.OnJob()
		if onJob == "" {
			onJob = ol.Name()
		}
		dep := Depend{
			Type:     string(d.Type()),
			AnyFrame: Bool(d.AnyFrame()),
			DepJob:   ol.Name(),
			DepLayer: l.Name(),
			OnJob:    onJob,
		}
		if d.Type() == outline.LayerOnSimFrame {
			target := d.Target()
			if target == nil {
				return nil, fmt.Errorf("layer %s: %s depend on %s needs the target layer loaded", l.Name(), d.Type(), d.OnLayer())
			}
			fs, err := fileseq.ParseFrameSet(target.FrameRange())
			if err != nil {
				return nil, fmt.Errorf("layer %s: bad frame range on depend target %s: %w", l.Name(), target.Name(), err)
			}
			first, err := fs.Index(0)
			if err != nil {
				return nil, fmt.Errorf("layer %s: depend target %s has no frames", l.Name(), target.Name())
			}
			dep.OnFrame = fmt.Sprintf("%04d-%s", first, target.Name())
		} else {
			dep.OnLayer = d.OnLayer()
		}
		out = append(out, dep)
	}
	return out, nil
}

// BuildCommand returns the pycuerun command line that runs layer l of the
// outline document at olPath on a render node.
func BuildCommand(l *outline.Layer, olPath string, opts CommandOptions) ([]string, error) {
	args := l.Args()
	var argv []string

	if valueOr(args.Strace, false) {
		layerPath, err := l.Path()
		if err != nil {
			return nil, fmt.Errorf("failed to build strace command for layer %s: %w", l.Name(), err)
		}
		argv = append(argv, "strace", "-ttt", "-T", "-e", "open,stat", "-f", "-o",
			path.Join(layerPath, "strace.log"))
	}

	switch {
	case valueOr(args.Wrapper, "") != "":
		argv = append(argv, *args.Wrapper)
	case args.UseSetshot():
		argv = append(argv, opts.WrapperDir+"/opencue_wrap_frame")
	default:
		argv = append(argv, opts.WrapperDir+"/opencue_wrap_frame_no_ss")
	}

	version := opts.Version
	if version == "" {
		version = "latest"
	}
	argv = append(argv,
		opts.UserDir,
		opts.BinDir+"/pycuerun",
		fmt.Sprintf("%s -e #IFRAME#-%s", olPath, l.Name()),
		"--version "+version,
	)
	if opts.Repos != "" {
		argv = append(argv, "--repos "+opts.Repos)
	}
	argv = append(argv, "--debug")
	if opts.Dev {
		argv = append(argv, "--dev")
	}
	if opts.DevUser != "" {
		argv = append(argv, "--dev-user "+opts.DevUser)
	}
	return argv, nil
}

// ScrubTags keeps the alphanumeric tokens of a "|" separated tag string and
// joins them with " | ".
func ScrubTags(tags string) string {
	var out []string
	for _, t := range strings.Split(tags, "|") {
		t = strings.TrimSpace(t)
		if isAlnum(t) {
			out = append(out, t)
		}
	}
	return strings.Join(out, " | ")
}

func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
