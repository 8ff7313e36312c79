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

	"opencue-outline/pkg/fileseq"
	"opencue-outline/pkg/logging"
)

// EventType names one of the layer lifecycle events.
type EventType int

const (
	AfterInit EventType = iota
	AfterParented
	Setup
	BeforeExecute
	AfterExecute
	BeforeLaunch
	AfterLaunch
)

func (t EventType) String() string {
	switch t {
	case AfterInit:
		return "after_init"
	case AfterParented:
		return "after_parented"
	case Setup:
		return "setup"
	case BeforeExecute:
		return "before_execute"
	case AfterExecute:
		return "after_execute"
	case BeforeLaunch:
		return "before_launch"
	case AfterLaunch:
		return "after_launch"
	}
	return "unknown"
}

// AfterInitEvent fires once a layer has joined an outline.
type AfterInitEvent struct {
	Layer   *Layer
	Outline *Outline
}

// AfterParentedEvent fires once a layer became the child of Parent.
type AfterParentedEvent struct {
	Layer  *Layer
	Parent *Layer
}

// SetupEvent fires after a layer's setup during outline setup.
type SetupEvent struct {
	Layer *Layer
}

// BeforeExecuteEvent fires on the render node before any execute checks.
type BeforeExecuteEvent struct {
	Layer  *Layer
	Frame  int
	Frames *fileseq.FrameSet
}

// AfterExecuteEvent fires after the layer command ran. Err is the command
// failure, if any.
type AfterExecuteEvent struct {
	Layer *Layer
	Frame int
	Err   error
}

// BeforeLaunchEvent fires before the outline is serialized for submission.
type BeforeLaunchEvent struct {
	Layer   *Layer
	Outline *Outline
}

// AfterLaunchEvent fires after a successful submission.
type AfterLaunchEvent struct {
	Layer   *Layer
	Outline *Outline
	JobIDs  []string
}

type handlers struct {
	afterInit     []func(AfterInitEvent) error
	afterParented []func(AfterParentedEvent) error
	setup         []func(SetupEvent) error
	beforeExecute []func(BeforeExecuteEvent) error
	afterExecute  []func(AfterExecuteEvent) error
	beforeLaunch  []func(BeforeLaunchEvent) error
	afterLaunch   []func(AfterLaunchEvent) error
}

// OnAfterInit registers fn for AfterInit.
func (l *Layer) OnAfterInit(fn func(AfterInitEvent) error) {
	l.handlers.afterInit = append(l.handlers.afterInit, fn)
}

// OnAfterParented registers fn for AfterParented.
func (l *Layer) OnAfterParented(fn func(AfterParentedEvent) error) {
	l.handlers.afterParented = append(l.handlers.afterParented, fn)
}

// OnSetup registers fn for Setup.
func (l *Layer) OnSetup(fn func(SetupEvent) error) {
	l.handlers.setup = append(l.handlers.setup, fn)
}

// OnBeforeExecute registers fn for BeforeExecute.
func (l *Layer) OnBeforeExecute(fn func(BeforeExecuteEvent) error) {
	l.handlers.beforeExecute = append(l.handlers.beforeExecute, fn)
}

// OnAfterExecute registers fn for AfterExecute.
func (l *Layer) OnAfterExecute(fn func(AfterExecuteEvent) error) {
	l.handlers.afterExecute = append(l.handlers.afterExecute, fn)
}

// OnBeforeLaunch registers fn for BeforeLaunch.
func (l *Layer) OnBeforeLaunch(fn func(BeforeLaunchEvent) error) {
	l.handlers.beforeLaunch = append(l.handlers.beforeLaunch, fn)
}

// OnAfterLaunch registers fn for AfterLaunch.
func (l *Layer) OnAfterLaunch(fn func(AfterLaunchEvent) error) {
	l.handlers.afterLaunch = append(l.handlers.afterLaunch, fn)
}

// emit runs every handler in registration order. Handler failures are logged
// and dropped, except ErrFailImmediately which is returned at once.
func emit[E any](l *Layer, t EventType, fns []func(E) error, ev E) error {
	for _, fn := range fns {
		err := fn(ev)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrFailImmediately) {
			return err
		}
		logging.Error("%s handler on layer %s failed: %v", t, l.Name(), err)
	}
	return nil
}

// EmitBeforeLaunch runs the BeforeLaunch handlers of every layer.
func (o *Outline) EmitBeforeLaunch() error {
	for _, l := range o.layers {
		if err := emit(l, BeforeLaunch, l.handlers.beforeLaunch, BeforeLaunchEvent{Layer: l, Outline: o}); err != nil {
			return err
		}
	}
	return nil
}

// EmitAfterLaunch runs the AfterLaunch handlers of every layer.
func (o *Outline) EmitAfterLaunch(jobIDs []string) error {
	for _, l := range o.layers {
		ev := AfterLaunchEvent{Layer: l, Outline: o, JobIDs: append([]string(nil), jobIDs...)}
		if err := emit(l, AfterLaunch, l.handlers.afterLaunch, ev); err != nil {
			return err
		}
	}
	return nil
}
