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

// Package filter builds the typed actions of cue job filters.
package filter

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidActionPayload is returned when an action value does not fit the
// action type.
var ErrInvalidActionPayload = errors.New("invalid action payload")

// ActionType is what an action does to a matching job.
type ActionType int

const (
	PauseJob ActionType = iota
	MoveJobToGroup
	SetJobPriority
	SetJobMinCores
	SetJobMaxCores
	SetAllRenderLayerMemory
	SetAllRenderLayerCores
	SetAllRenderLayerTags
	StopProcessing
)

var actionTypeNames = map[ActionType]string{
	PauseJob:                "PAUSE_JOB",
	MoveJobToGroup:          "MOVE_JOB_TO_GROUP",
	SetJobPriority:          "SET_JOB_PRIORITY",
	SetJobMinCores:          "SET_JOB_MIN_CORES",
	SetJobMaxCores:          "SET_JOB_MAX_CORES",
	SetAllRenderLayerMemory: "SET_ALL_RENDER_LAYER_MEMORY",
	SetAllRenderLayerCores:  "SET_ALL_RENDER_LAYER_CORES",
	SetAllRenderLayerTags:   "SET_ALL_RENDER_LAYER_TAGS",
	StopProcessing:          "STOP_PROCESSING",
}

func (t ActionType) String() string {
	if s, ok := actionTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ActionType(%d)", int(t))
}

// ParseActionType accepts the upper case name of an action type.
func ParseActionType(s string) (ActionType, error) {
	for t, name := range actionTypeNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("invalid action type: %s", s)
}

// ValueType is the type of an action payload.
type ValueType int

const (
	NoneType ValueType = iota
	BooleanType
	IntegerType
	FloatType
	StringType
	GroupType
)

func (v ValueType) String() string {
	switch v {
	case NoneType:
		return "NONE_TYPE"
	case BooleanType:
		return "BOOLEAN_TYPE"
	case IntegerType:
		return "INTEGER_TYPE"
	case FloatType:
		return "FLOAT_TYPE"
	case StringType:
		return "STRING_TYPE"
	case GroupType:
		return "GROUP_TYPE"
	}
	return fmt.Sprintf("ValueType(%d)", int(v))
}

// GroupID identifies a job group.
type GroupID string

// valueTypes is the payload type each action carries.
var valueTypes = map[ActionType]ValueType{
	PauseJob:                BooleanType,
	MoveJobToGroup:          GroupType,
	SetJobPriority:          IntegerType,
	SetAllRenderLayerMemory: IntegerType,
	SetJobMinCores:          FloatType,
	SetJobMaxCores:          FloatType,
	SetAllRenderLayerCores:  FloatType,
	SetAllRenderLayerTags:   StringType,
	StopProcessing:          NoneType,
}

// Action is a filter action with a payload matching its type.
type Action struct {
	typ       ActionType
	valueType ValueType
	value     interface{}
}

// NewAction returns an action of type t. Integer actions take any integer,
// a whole float or a numeric string; core actions take any number or
// numeric string. StopProcessing ignores value.
func NewAction(t ActionType, value interface{}) (*Action, error) {
	vt, ok := valueTypes[t]
	if !ok {
		return nil, fmt.Errorf("invalid action type: %s", t)
	}
	a := &Action{typ: t, valueType: vt}
	var err error
	switch vt {
	case NoneType:
	case BooleanType:
		b, ok := value.(bool)
		if !ok {
			err = payloadError(t, value, "a bool")
		}
		a.value = b
	case GroupType:
		g, ok := value.(GroupID)
		if !ok || g == "" {
			err = payloadError(t, value, "a group id")
		}
		a.value = g
	case StringType:
		s, ok := value.(string)
		if !ok {
			err = payloadError(t, value, "a string")
		}
		a.value = s
	case IntegerType:
		a.value, err = toInt(t, value)
	case FloatType:
		a.value, err = toFloat(t, value)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func payloadError(t ActionType, value interface{}, want string) error {
	return fmt.Errorf("%w: %s needs %s, got %T %v", ErrInvalidActionPayload, t, want, value, value)
}

func toInt(t ActionType, value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, payloadError(t, value, "a whole number")
		}
		return int64(v), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, payloadError(t, value, "an integer")
		}
		return i, nil
	}
	return 0, payloadError(t, value, "an integer")
}

func toFloat(t ActionType, value interface{}) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, payloadError(t, value, "a finite number")
		}
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, payloadError(t, value, "a number")
		}
		return f, nil
	}
	return 0, payloadError(t, value, "a number")
}

// Type returns the action type.
func (a *Action) Type() ActionType { return a.typ }

// ValueType returns the payload type.
func (a *Action) ValueType() ValueType { return a.valueType }

// Value returns the payload: a bool, int64, float64, string, GroupID or nil.
func (a *Action) Value() interface{} { return a.value }

// Name is the action type followed by its value, if any.
func (a *Action) Name() string {
	if a.value == nil {
		return a.typ.String()
	}
	return fmt.Sprintf("%s %v", a.typ, a.value)
}
