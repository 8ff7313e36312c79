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

import "errors"

// Plugin is run on every layer as it joins an outline, on the submitting
// host and again when the outline is loaded on a render node. Plugins
// usually register event handlers.
type Plugin interface {
	Init(l *Layer) error
}

// PluginFunc adapts a function to Plugin.
type PluginFunc func(l *Layer) error

// Init calls f(l).
func (f PluginFunc) Init(l *Layer) error { return f(l) }

func isFailImmediately(err error) bool {
	return errors.Is(err, ErrFailImmediately)
}
