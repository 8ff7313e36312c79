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
	"strings"

	"opencue-outline/pkg/logging"
)

// DependType is the kind of a dependency edge, as named on the wire.
type DependType string

const (
	JobOnJob        DependType = "JobOnJob"
	JobOnLayer      DependType = "JobOnLayer"
	JobOnFrame      DependType = "JobOnFrame"
	LayerOnJob      DependType = "LayerOnJob"
	LayerOnLayer    DependType = "LayerOnLayer"
	LayerOnFrame    DependType = "LayerOnFrame"
	LayerOnSimFrame DependType = "LayerOnSimFrame"
	LayerOnAny      DependType = "LayerOnAny"
	FrameOnJob      DependType = "FrameOnJob"
	FrameOnLayer    DependType = "FrameOnLayer"
	FrameOnFrame    DependType = "FrameOnFrame"
	FrameByFrame    DependType = "FrameByFrame"
	PreviousFrame   DependType = "PreviousFrame"
)

var dependTypes = map[DependType]bool{
	JobOnJob: true, JobOnLayer: true, JobOnFrame: true,
	LayerOnJob: true, LayerOnLayer: true, LayerOnFrame: true, LayerOnSimFrame: true, LayerOnAny: true,
	FrameOnJob: true, FrameOnLayer: true, FrameOnFrame: true, FrameByFrame: true,
	PreviousFrame: true,
}

// ParseDependType validates a depend type name. LayerOnAny is accepted and
// settled into a wire type when the edge is added.
func ParseDependType(s string) (DependType, error) {
	t := DependType(s)
	if !dependTypes[t] {
		return "", fmt.Errorf("unknown depend type %q", s)
	}
	return t, nil
}

// Depend is an edge from a dependent layer to the layer it waits on. The
// target may live in another outline; it is nil when the edge was loaded
// from a document and points outside of it.
type Depend struct {
	dependent *Layer
	target    *Layer
	onJob     string
	onLayer   string
	typ       DependType
	anyFrame  bool
	propagate bool
}

// Dependent returns the waiting layer.
func (d *Depend) Dependent() *Layer { return d.dependent }

// Target returns the layer depended on, or nil if it is not loaded.
func (d *Depend) Target() *Layer { return d.target }

// Type returns the edge kind.
func (d *Depend) Type() DependType { return d.typ }

// AnyFrame reports whether any frame of the target satisfies the edge.
func (d *Depend) AnyFrame() bool { return d.anyFrame }

// Propagate reports whether the edge is passed on to layers that depend on
// the dependent.
func (d *Depend) Propagate() bool { return d.propagate }

// OnLayer returns the name of the target layer.
func (d *Depend) OnLayer() string {
	if d.target != nil {
		return d.target.Name()
	}
	return d.onLayer
}

// OnJob returns the outline name of the target, or "" when the target is in
// the dependent's own outline.
func (d *Depend) OnJob() string {
	if d.target != nil && d.target.outline != nil && d.target.outline != d.dependent.outline {
		return d.target.outline.Name()
	}
	return d.onJob
}

func (d *Depend) String() string {
	return fmt.Sprintf("%s %s on %s", d.dependent.Name(), d.typ, d.OnLayer())
}

// settle turns an any-frame edge into a type the cue understands:
// LayerOnLayer for pre-processes, FrameByFrame otherwise. It reports whether
// the edge was an any-frame edge.
func (d *Depend) settle() bool {
	if !d.anyFrame && d.typ != LayerOnAny {
		return false
	}
	if d.dependent.kind == KindPreProcess {
		d.typ = LayerOnLayer
		return true
	}
	d.typ = FrameByFrame
	d.anyFrame = false
	return true
}

// DependOption adjusts a new dependency.
type DependOption func(*Depend)

// WithAnyFrame marks the edge as satisfied by any target frame.
func WithAnyFrame() DependOption {
	return func(d *Depend) { d.anyFrame = true }
}

// WithPropagate passes the edge on to layers depending on the dependent.
func WithPropagate() DependOption {
	return func(d *Depend) { d.propagate = true }
}

// ParseRequire parses a require argument: "name" is a FrameByFrame edge,
// "name:all" a LayerOnLayer edge and "name:any" a LayerOnAny edge.
func ParseRequire(s string) (string, DependType) {
	name, kind, found := strings.Cut(s, ":")
	if !found {
		return s, FrameByFrame
	}
	switch kind {
	case "all":
		return name, LayerOnLayer
	case "any":
		return name, LayerOnAny
	}
	logging.Warn("unknown require kind %q in %q, using a frame by frame depend", kind, s)
	return name, FrameByFrame
}

// HardDepend makes every layer of a wait on the layer of b with the same
// type, frame by frame. It returns the number of edges added.
func HardDepend(a, b *Outline) int {
	n := 0
	for _, la := range a.layers {
		for _, lb := range b.layers {
			if la.typ != lb.typ {
				continue
			}
			if la.addDepend(lb, FrameByFrame) {
				n++
			}
		}
	}
	return n
}
