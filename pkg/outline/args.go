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
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"opencue-outline/pkg/logging"

	"github.com/google/shlex"
)

// Layer argument defaults.
const (
	DefaultChunk   = 1
	DefaultService = "shell"
)

// LayerArgs are the well known layer arguments. A nil field is unset and
// reads as its default. Anything else lives in Extras.
type LayerArgs struct {
	Command    CommandLine         `json:"command,omitempty"`
	Range      *string             `json:"range,omitempty"`
	Chunk      *int                `json:"chunk,omitempty"`
	Cores      *float64            `json:"cores,omitempty"`
	Threads    *float64            `json:"threads,omitempty"`
	Memory     *string             `json:"memory,omitempty"`
	GPUs       *int                `json:"gpus,omitempty"`
	GPUMemory  *string             `json:"gpu_memory,omitempty"`
	Threadable *bool               `json:"threadable,omitempty"`
	Timeout    *int                `json:"timeout,omitempty"`
	TimeoutLLU *int                `json:"timeout_llu,omitempty"`
	Tags       StringList          `json:"tags,omitempty"`
	Limits     StringList          `json:"limits,omitempty"`
	Service    *string             `json:"service,omitempty"`
	Register   *bool               `json:"register,omitempty"`
	Wrapper    *string             `json:"wrapper,omitempty"`
	Strace     *bool               `json:"strace,omitempty"`
	Setshot    *bool               `json:"setshot,omitempty"`
	Require    StringList          `json:"require,omitempty"`
	NoCheck    *bool               `json:"nocheck,omitempty"`
	Extras     map[string]ArgValue `json:"extras,omitempty"`
}

// Ptr returns a pointer to v, for filling LayerArgs literals.
func Ptr[T any](v T) *T {
	return &v
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// ChunkSize returns the chunk size, DefaultChunk when unset.
func (a *LayerArgs) ChunkSize() int { return valueOr(a.Chunk, DefaultChunk) }

// Validate checks the values a task cannot run with.
func (a *LayerArgs) Validate() error {
	if a.Chunk != nil && *a.Chunk < 1 {
		return fmt.Errorf("chunk size must be at least 1, got %d", *a.Chunk)
	}
	return nil
}

// Registered reports whether the layer is submitted to the cue.
func (a *LayerArgs) Registered() bool { return valueOr(a.Register, true) }

// ServiceName returns the service, DefaultService when unset.
func (a *LayerArgs) ServiceName() string { return valueOr(a.Service, DefaultService) }

// UseSetshot reports whether the setshot wrapper is used. It defaults to true.
func (a *LayerArgs) UseSetshot() bool { return valueOr(a.Setshot, true) }

// EffectiveCores resolves cores and the deprecated threads alias. cores wins
// when both are set.
func (a *LayerArgs) EffectiveCores(layer string) (float64, bool) {
	if a.Threads != nil {
		if a.Cores != nil {
			logging.Warn("layer %s sets both cores and the deprecated threads argument, using cores", layer)
		} else {
			logging.Warn("layer %s uses the deprecated threads argument, use cores instead", layer)
			return *a.Threads, true
		}
	}
	if a.Cores != nil {
		return *a.Cores, true
	}
	return 0, false
}

var knownArgs = func() map[string]bool {
	known := make(map[string]bool)
	t := reflect.TypeOf(LayerArgs{})
	for i := 0; i < t.NumField(); i++ {
		name := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]
		if name != "" && name != "extras" {
			known[name] = true
		}
	}
	return known
}()

// IsKnownArg reports whether key names a LayerArgs field.
func IsKnownArg(key string) bool { return knownArgs[key] }

func (a *LayerArgs) asMap() (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	m := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for k, v := range m {
		if string(v) == "null" {
			delete(m, k)
		}
	}
	return m, nil
}

// IsSet reports whether key has a value, either as a field or an extra.
func (a *LayerArgs) IsSet(key string) bool {
	if !knownArgs[key] {
		_, ok := a.Extras[key]
		return ok
	}
	m, err := a.asMap()
	if err != nil {
		return false
	}
	_, ok := m[key]
	return ok
}

// Set assigns value to key. Known keys are decoded into their typed field,
// which fails when the value has the wrong type. Other keys become extras.
func (a *LayerArgs) Set(key string, value interface{}) error {
	if !knownArgs[key] {
		v, err := NewArgValue(value)
		if err != nil {
			return fmt.Errorf("failed to set arg %s: %w", key, err)
		}
		if a.Extras == nil {
			a.Extras = make(map[string]ArgValue)
		}
		a.Extras[key] = v
		return nil
	}

	m, err := a.asMap()
	if err != nil {
		return fmt.Errorf("failed to set arg %s: %w", key, err)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to set arg %s: %w", key, err)
	}
	m[key] = raw
	merged, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to set arg %s: %w", key, err)
	}
	var next LayerArgs
	if err := json.Unmarshal(merged, &next); err != nil {
		return fmt.Errorf("failed to set arg %s to %v: %w", key, value, err)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("failed to set arg %s: %w", key, err)
	}
	*a = next
	return nil
}

// Keys returns the names of every set argument, sorted.
func (a *LayerArgs) Keys() []string {
	m, err := a.asMap()
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(m)+len(a.Extras))
	for k := range m {
		if k != "extras" {
			keys = append(keys, k)
		}
	}
	for k := range a.Extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ArgValue is an extra argument value: a string, int, float64, bool or a list
// of strings.
type ArgValue struct {
	v interface{}
}

// NewArgValue wraps v, converting the numeric and list types decoders produce.
func NewArgValue(v interface{}) (ArgValue, error) {
	switch t := v.(type) {
	case string, bool, float64:
		return ArgValue{v: t}, nil
	case int:
		return ArgValue{v: t}, nil
	case int64:
		return ArgValue{v: int(t)}, nil
	case float32:
		return ArgValue{v: float64(t)}, nil
	case []string:
		return ArgValue{v: append([]string(nil), t...)}, nil
	case []interface{}:
		list := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return ArgValue{}, fmt.Errorf("list values must be strings, got %T", e)
			}
			list = append(list, s)
		}
		return ArgValue{v: list}, nil
	}
	return ArgValue{}, fmt.Errorf("unsupported argument type %T", v)
}

// Interface returns the wrapped value.
func (a ArgValue) Interface() interface{} { return a.v }

// Str returns the value when it is a string.
func (a ArgValue) Str() (string, bool) {
	s, ok := a.v.(string)
	return s, ok
}

// Int returns the value when it is an integer.
func (a ArgValue) Int() (int, bool) {
	i, ok := a.v.(int)
	return i, ok
}

// Float returns the value as a float when it is numeric.
func (a ArgValue) Float() (float64, bool) {
	switch t := a.v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}

// Bool returns the value when it is a bool.
func (a ArgValue) Bool() (bool, bool) {
	b, ok := a.v.(bool)
	return b, ok
}

// Strings returns the value when it is a list.
func (a ArgValue) Strings() ([]string, bool) {
	l, ok := a.v.([]string)
	return l, ok
}

func (a ArgValue) String() string {
	if l, ok := a.v.([]string); ok {
		return strings.Join(l, ",")
	}
	return fmt.Sprint(a.v)
}

func (a ArgValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.v)
}

func (a *ArgValue) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if n, ok := raw.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			raw = int(i)
		} else if f, err := n.Float64(); err == nil {
			raw = f
		} else {
			return err
		}
	}
	v, err := NewArgValue(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// StringList is a list of strings that also decodes from a single string.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*l = StringList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("expected a string or a list of strings: %w", err)
	}
	*l = list
	return nil
}

// CommandLine is a layer command, either as tokens or as one shell quoted
// string.
type CommandLine struct {
	Tokens []string
	Line   string
}

// Tokens builds a CommandLine from argv tokens.
func Tokens(argv ...string) CommandLine {
	return CommandLine{Tokens: argv}
}

// Line builds a CommandLine from a shell quoted string.
func Line(s string) CommandLine {
	return CommandLine{Line: s}
}

// IsZero reports whether no command is set.
func (c CommandLine) IsZero() bool {
	return len(c.Tokens) == 0 && c.Line == ""
}

// Split returns the command tokens, splitting a string command with POSIX
// shell quoting rules.
func (c CommandLine) Split() ([]string, error) {
	if c.Line == "" {
		return append([]string(nil), c.Tokens...), nil
	}
	argv, err := shlex.Split(c.Line)
	if err != nil {
		return nil, fmt.Errorf("failed to split command %q: %w", c.Line, err)
	}
	return argv, nil
}

func (c CommandLine) String() string {
	if c.Line != "" {
		return c.Line
	}
	return strings.Join(c.Tokens, " ")
}

func (c CommandLine) MarshalJSON() ([]byte, error) {
	if c.Line != "" {
		return json.Marshal(c.Line)
	}
	if c.Tokens == nil {
		return []byte("null"), nil
	}
	return json.Marshal(c.Tokens)
}

func (c *CommandLine) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = CommandLine{Line: s}
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("command must be a string or a list: %w", err)
	}
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		tokens = append(tokens, fmt.Sprint(t))
	}
	*c = CommandLine{Tokens: tokens}
	return nil
}
