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
	"os"
	"path/filepath"

	"opencue-outline/pkg/fileseq"

	"github.com/spf13/afero"
)

// IOPath is a layer input or output: a plain path or an image sequence.
type IOPath struct {
	path     string
	spec     *fileseq.FileSpec
	Checked  bool
	Mkdir    bool
	CheckExt []string
}

// NewPath returns a plain path.
func NewPath(path string) *IOPath {
	return &IOPath{path: path}
}

// NewFileSpec returns a sequence path. It fails if path is not a valid
// sequence.
func NewFileSpec(path string) (*IOPath, error) {
	spec, err := fileseq.ParseFileSpec(path)
	if err != nil {
		return nil, err
	}
	return &IOPath{path: path, spec: spec}, nil
}

// Path returns the path as given.
func (p *IOPath) Path() string { return p.path }

// FileSpec returns the parsed sequence, or nil for plain paths.
func (p *IOPath) FileSpec() *fileseq.FileSpec { return p.spec }

func (p *IOPath) String() string { return p.path }

// SetAttribute sets one of the named attributes checked, mkdir or checkExt.
func (p *IOPath) SetAttribute(name string, value interface{}) error {
	switch name {
	case "checked", "mkdir":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("attribute %s must be a bool, got %T", name, value)
		}
		if name == "checked" {
			p.Checked = b
		} else {
			p.Mkdir = b
		}
	case "checkExt":
		l, ok := value.([]string)
		if !ok {
			return fmt.Errorf("attribute checkExt must be a list of strings, got %T", value)
		}
		p.CheckExt = append([]string(nil), l...)
	default:
		return fmt.Errorf("unknown path attribute %q", name)
	}
	return nil
}

// Exists reports whether the path exists. Sequences check every frame in
// frames, or their own frames when frames is nil.
func (p *IOPath) Exists(fsys afero.Fs, frames *fileseq.FrameSet) bool {
	if p.spec != nil {
		return p.spec.Exists(fsys, frames, p.CheckExt)
	}
	_, err := fsys.Stat(p.path)
	return err == nil
}

// MakeDir creates the directory holding a sequence, or the path itself.
func (p *IOPath) MakeDir(fsys afero.Fs) error {
	dir := p.path
	if p.spec != nil {
		dir = p.spec.Dirname()
	}
	if dir == "" {
		return nil
	}
	if err := fsys.MkdirAll(filepath.Clean(dir), 0o755); err != nil && !os.IsExist(err) {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return nil
}

// pathDoc is the document form of an IOPath.
type pathDoc struct {
	Name     string   `json:"name" yaml:"name"`
	Path     string   `json:"path" yaml:"path"`
	Sequence bool     `json:"sequence,omitempty" yaml:"sequence,omitempty"`
	Checked  bool     `json:"checked,omitempty" yaml:"checked,omitempty"`
	Mkdir    bool     `json:"mkdir,omitempty" yaml:"mkdir,omitempty"`
	CheckExt []string `json:"checkExt,omitempty" yaml:"checkExt,omitempty"`
}

func (p *IOPath) doc(name string) pathDoc {
	return pathDoc{
		Name:     name,
		Path:     p.path,
		Sequence: p.spec != nil,
		Checked:  p.Checked,
		Mkdir:    p.Mkdir,
		CheckExt: p.CheckExt,
	}
}

func (d pathDoc) ioPath() (*IOPath, error) {
	p := NewPath(d.Path)
	if d.Sequence {
		var err error
		if p, err = NewFileSpec(d.Path); err != nil {
			return nil, err
		}
	}
	p.Checked = d.Checked
	p.Mkdir = d.Mkdir
	p.CheckExt = d.CheckExt
	return p, nil
}

// namedPaths keeps inputs or outputs in insertion order.
type namedPaths struct {
	names []string
	paths map[string]*IOPath
}

func (n *namedPaths) add(kind, name string, p *IOPath) (string, error) {
	if name == "" {
		name = fmt.Sprintf("%s%d", kind, len(n.names))
	}
	if _, ok := n.paths[name]; ok {
		return "", fmt.Errorf("an %s with the name %s has already been created", kind, name)
	}
	if n.paths == nil {
		n.paths = make(map[string]*IOPath)
	}
	n.names = append(n.names, name)
	n.paths[name] = p
	return name, nil
}

func (n *namedPaths) get(name string) (*IOPath, bool) {
	p, ok := n.paths[name]
	return p, ok
}

func (n *namedPaths) each(fn func(name string, p *IOPath) error) error {
	for _, name := range n.names {
		if err := fn(name, n.paths[name]); err != nil {
			return err
		}
	}
	return nil
}

func (n *namedPaths) list() []NamedPath {
	out := make([]NamedPath, 0, len(n.names))
	for _, name := range n.names {
		out = append(out, NamedPath{Name: name, Path: n.paths[name]})
	}
	return out
}

func (n *namedPaths) docs() []pathDoc {
	out := make([]pathDoc, 0, len(n.names))
	for _, name := range n.names {
		out = append(out, n.paths[name].doc(name))
	}
	return out
}
