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
	"fmt"

	"opencue-outline/pkg/logging"

	"github.com/spf13/afero"
	yamlv3 "gopkg.in/yaml.v3"
	"sigs.k8s.io/yaml"
)

// The outline document. It is YAML; JSON documents decode too.
type outlineDoc struct {
	Name      string     `json:"name"`
	Range     string     `json:"range,omitempty"`
	Show      string     `json:"show,omitempty"`
	Shot      string     `json:"shot,omitempty"`
	User      string     `json:"user,omitempty"`
	Facility  string     `json:"facility,omitempty"`
	MaxCores  int        `json:"maxcores,omitempty"`
	MaxGPUs   int        `json:"maxgpus,omitempty"`
	Localbook string     `json:"localbook,omitempty"`
	Env       []envDoc   `json:"env,omitempty"`
	Layers    []layerDoc `json:"layers"`
}

type envDoc struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Pre   bool   `json:"pre,omitempty"`
}

type layerDoc struct {
	Name     string            `json:"name"`
	Kind     string            `json:"kind,omitempty"`
	Type     string            `json:"type,omitempty"`
	Creator  string            `json:"creator,omitempty"`
	Args     LayerArgs         `json:"args"`
	Env      map[string]string `json:"env,omitempty"`
	Inputs   []pathDoc         `json:"inputs,omitempty"`
	Outputs  []pathDoc         `json:"outputs,omitempty"`
	Required []string          `json:"required,omitempty"`
	Depends  []dependDoc       `json:"depends,omitempty"`
	Children []layerDoc        `json:"children,omitempty"`
}

type dependDoc struct {
	Layer     string     `json:"layer"`
	Job       string     `json:"job,omitempty"`
	Type      DependType `json:"type"`
	AnyFrame  bool       `json:"anyframe,omitempty"`
	Propagate bool       `json:"propagate,omitempty"`
}

// Encode renders the outline document.
func (o *Outline) Encode() ([]byte, error) {
	doc := outlineDoc{
		Name:      o.name,
		Range:     o.frameRange,
		Show:      o.show,
		Shot:      o.shot,
		User:      o.user,
		Facility:  o.facility,
		MaxCores:  o.maxCores,
		MaxGPUs:   o.maxGPUs,
		Localbook: o.localbook,
		Layers:    make([]layerDoc, 0, len(o.layers)),
	}
	for _, e := range o.Env() {
		doc.Env = append(doc.Env, envDoc{Key: e.Key, Value: e.Value, Pre: e.Pre})
	}
	for _, l := range o.layers {
		doc.Layers = append(doc.Layers, encodeLayer(l))
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode outline %s: %w", o.name, err)
	}
	return b, nil
}

func encodeLayer(l *Layer) layerDoc {
	doc := layerDoc{
		Name:     l.name,
		Kind:     string(l.kind),
		Type:     string(l.typ),
		Args:     l.args,
		Inputs:   l.inputs.docs(),
		Outputs:  l.outputs.docs(),
		Required: l.required,
	}
	if len(l.env) > 0 {
		doc.Env = l.Envs()
	}
	if l.creator != nil {
		doc.Creator = l.creator.Name()
	}
	for _, d := range l.depends {
		doc.Depends = append(doc.Depends, dependDoc{
			Layer:     d.OnLayer(),
			Job:       d.OnJob(),
			Type:      d.typ,
			AnyFrame:  d.anyFrame,
			Propagate: d.propagate,
		})
	}
	for _, c := range l.children {
		doc.Children = append(doc.Children, encodeLayer(c))
	}
	return doc
}

// Decode builds an outline from a YAML or JSON document. The outline is in
// ModeInit; use Load to reopen a set up outline from its session.
func Decode(b []byte, opts ...Option) (*Outline, error) {
	b, err := pinStrings(b)
	if err != nil {
		return nil, fmt.Errorf("failed to decode outline document: %w", err)
	}
	var doc outlineDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode outline document: %w", err)
	}

	o := New(doc.Name, opts...)
	if err := o.SetFrameRange(doc.Range); err != nil {
		return nil, fmt.Errorf("outline %s: %w", o.name, err)
	}
	o.show, o.shot, o.user = doc.Show, doc.Shot, doc.User
	o.facility = doc.Facility
	o.maxCores, o.maxGPUs = doc.MaxCores, doc.MaxGPUs
	o.localbook = doc.Localbook
	for _, e := range doc.Env {
		o.SetEnv(e.Key, e.Value, e.Pre)
	}

	docs := make(map[*Layer]layerDoc)
	var build func(ld layerDoc) (*Layer, error)
	build = func(ld layerDoc) (*Layer, error) {
		kind, err := parseKind(ld.Kind)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", ld.Name, err)
		}
		if err := ld.Args.Validate(); err != nil {
			return nil, fmt.Errorf("layer %s: %w", ld.Name, err)
		}
		l := newLayer(ld.Name, kind, ld.Args)
		if ld.Type != "" {
			if l.typ, err = ParseLayerType(ld.Type); err != nil {
				return nil, fmt.Errorf("layer %s: %w", ld.Name, err)
			}
		}
		for k, v := range ld.Env {
			l.env[k] = v
		}
		l.required = ld.Required
		for _, pd := range ld.Inputs {
			p, err := pd.ioPath()
			if err != nil {
				return nil, fmt.Errorf("layer %s input %s: %w", ld.Name, pd.Name, err)
			}
			if _, err := l.AddInput(pd.Name, p); err != nil {
				return nil, err
			}
		}
		for _, pd := range ld.Outputs {
			p, err := pd.ioPath()
			if err != nil {
				return nil, fmt.Errorf("layer %s output %s: %w", ld.Name, pd.Name, err)
			}
			if _, err := l.AddOutput(pd.Name, p); err != nil {
				return nil, err
			}
		}
		for _, cd := range ld.Children {
			child, err := build(cd)
			if err != nil {
				return nil, err
			}
			child.parent = l
			l.children = append(l.children, child)
		}
		docs[l] = ld
		return l, nil
	}

	for _, ld := range doc.Layers {
		l, err := build(ld)
		if err != nil {
			return nil, err
		}
		l.outline = o
		o.layers = append(o.layers, l)
	}

	// Links by name need every layer in place first.
	for l, ld := range docs {
		l.outline = o
		if ld.Creator != "" {
			creator, err := o.Layer(ld.Creator)
			if err != nil {
				return nil, fmt.Errorf("layer %s: creator: %w", l.Name(), err)
			}
			l.creator = creator
			if l.kind == KindPreProcess {
				creator.preprocess = append(creator.preprocess, l)
			}
		}
	}
	for _, l := range o.LayersDeep() {
		for _, dd := range docs[l].Depends {
			if err := decodeDepend(o, l, dd); err != nil {
				return nil, err
			}
		}
	}

	for _, l := range o.layers {
		if err := o.initLayer(l); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// decodeDepend adds one document edge to l. Edges inside the outline go
// through DependOn like authored ones.
func decodeDepend(o *Outline, l *Layer, dd dependDoc) error {
	typ, err := ParseDependType(string(dd.Type))
	if err != nil {
		return fmt.Errorf("layer %s depend on %s: %w", l.Name(), dd.Layer, err)
	}
	if dd.Layer == "" {
		return fmt.Errorf("layer %s: %s depend has no target layer", l.Name(), typ)
	}
	var opts []DependOption
	if dd.AnyFrame {
		opts = append(opts, WithAnyFrame())
	}
	if dd.Propagate {
		opts = append(opts, WithPropagate())
	}

	if dd.Job == "" || dd.Job == o.name {
		target, err := o.Layer(dd.Layer)
		if err != nil {
			return fmt.Errorf("layer %s depends on unknown layer: %w", l.Name(), err)
		}
		l.DependOn(target, typ, opts...)
		return nil
	}

	d := &Depend{dependent: l, onJob: dd.Job, onLayer: dd.Layer, typ: typ}
	for _, opt := range opts {
		opt(d)
	}
	d.settle()
	l.depends = append(l.depends, d)
	return nil
}

// yaml11Bools are the plain scalars YAML 1.1 reads as booleans and YAML 1.2
// reads as strings.
var yaml11Bools = map[string]bool{
	"y": true, "Y": true, "yes": true, "Yes": true, "YES": true,
	"n": true, "N": true, "no": true, "No": true, "NO": true,
	"on": true, "On": true, "ON": true,
	"off": true, "Off": true, "OFF": true,
}

// pinStrings quotes the plain scalars in b that YAML 1.2 reads as strings
// but YAML 1.1 reads as booleans, so "command: y" and a key named "on" stay
// strings through the YAML 1.1 decoder.
func pinStrings(b []byte) ([]byte, error) {
	var root yamlv3.Node
	if err := yamlv3.Unmarshal(b, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 {
		return b, nil
	}
	pinned := false
	var walk func(n *yamlv3.Node)
	walk = func(n *yamlv3.Node) {
		if n.Kind == yamlv3.ScalarNode && n.Style == 0 && n.ShortTag() == "!!str" && yaml11Bools[n.Value] {
			n.Style = yamlv3.DoubleQuotedStyle
			pinned = true
		}
		for _, c := range n.Content {
			walk(c)
		}
	}
	walk(&root)
	if !pinned {
		return b, nil
	}
	return yamlv3.Marshal(&root)
}

// LayersDeep returns every layer, children after their parent.
func (o *Outline) LayersDeep() []*Layer {
	var out []*Layer
	var walk func(l *Layer)
	walk = func(l *Layer) {
		out = append(out, l)
		for _, c := range l.children {
			walk(c)
		}
	}
	for _, l := range o.layers {
		walk(l)
	}
	return out
}

// Load reads an outline document. A document inside a session directory
// reopens that session and the outline comes back in ModeReady.
func Load(path string, opts ...Option) (*Outline, error) {
	fs := New("", opts...).fs
	logging.Info("loading outline: %s", path)
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read outline %s: %w", path, err)
	}
	o, err := Decode(b, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load outline %s: %w", path, err)
	}
	if o.name == "outline" {
		o.name = NameFromPath(path)
	}
	o.path = path
	if IsSessionPath(fs, path) {
		s, err := OpenSession(fs, path)
		if err != nil {
			return nil, err
		}
		o.session = s
		o.mode = ModeReady
	}
	return o, nil
}
