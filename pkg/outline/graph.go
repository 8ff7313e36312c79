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
	"strings"
)

// ErrDependencyCycle is returned when layers of one outline wait on each
// other.
var ErrDependencyCycle = errors.New("dependency cycle")

// CheckDependencies fails if the dependencies between the outline's own
// layers form a cycle. Edges to other outlines are ignored.
func (o *Outline) CheckDependencies() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*Layer]int)
	var stack []string

	var visit func(l *Layer) error
	visit = func(l *Layer) error {
		switch state[l] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s -> %s", ErrDependencyCycle, strings.Join(stack, " -> "), l.Name())
		}
		state[l] = visiting
		stack = append(stack, l.Name())
		for _, d := range l.depends {
			if d.target == nil || d.target.outline != o {
				continue
			}
			if err := visit(d.target); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[l] = done
		return nil
	}

	for _, l := range o.layers {
		if state[l] == unvisited {
			if err := visit(l); err != nil {
				return err
			}
		}
	}
	return nil
}
