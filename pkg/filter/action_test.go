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

package filter

import (
	"errors"
	"testing"
)

func TestNewAction(t *testing.T) {
	tests := []struct {
		typ      ActionType
		value    interface{}
		want     interface{}
		wantType ValueType
		wantName string
	}{
		{PauseJob, true, true, BooleanType, "PAUSE_JOB true"},
		{MoveJobToGroup, GroupID("g-1"), GroupID("g-1"), GroupType, "MOVE_JOB_TO_GROUP g-1"},
		{SetJobPriority, 200, int64(200), IntegerType, "SET_JOB_PRIORITY 200"},
		{SetJobPriority, 50.0, int64(50), IntegerType, "SET_JOB_PRIORITY 50"},
		{SetJobPriority, " 7", int64(7), IntegerType, "SET_JOB_PRIORITY 7"},
		{SetAllRenderLayerMemory, int64(4194304), int64(4194304), IntegerType, "SET_ALL_RENDER_LAYER_MEMORY 4194304"},
		{SetJobMinCores, 2, 2.0, FloatType, "SET_JOB_MIN_CORES 2"},
		{SetJobMaxCores, 1.5, 1.5, FloatType, "SET_JOB_MAX_CORES 1.5"},
		{SetAllRenderLayerCores, "0.5", 0.5, FloatType, "SET_ALL_RENDER_LAYER_CORES 0.5"},
		{SetAllRenderLayerTags, "general | desktop", "general | desktop", StringType, "SET_ALL_RENDER_LAYER_TAGS general | desktop"},
		{StopProcessing, nil, nil, NoneType, "STOP_PROCESSING"},
		{StopProcessing, 12, nil, NoneType, "STOP_PROCESSING"},
	}
	for _, tc := range tests {
		t.Run(tc.wantName, func(t *testing.T) {
			a, err := NewAction(tc.typ, tc.value)
			if err != nil {
				t.Fatalf("NewAction(%s, %v) error = %v", tc.typ, tc.value, err)
			}
			if a.Value() != tc.want {
				t.Errorf("Value() = %#v, want %#v", a.Value(), tc.want)
			}
			if a.ValueType() != tc.wantType || a.Type() != tc.typ {
				t.Errorf("types = %s/%s, want %s/%s", a.Type(), a.ValueType(), tc.typ, tc.wantType)
			}
			if a.Name() != tc.wantName {
				t.Errorf("Name() = %q, want %q", a.Name(), tc.wantName)
			}
		})
	}
}

func TestNewActionInvalidPayload(t *testing.T) {
	tests := []struct {
		typ   ActionType
		value interface{}
	}{
		{PauseJob, "yes"},
		{PauseJob, nil},
		{MoveJobToGroup, "g-1"},
		{MoveJobToGroup, GroupID("")},
		{SetJobPriority, 1.5},
		{SetJobPriority, "high"},
		{SetJobPriority, true},
		{SetJobMaxCores, "many"},
		{SetJobMinCores, nil},
		{SetAllRenderLayerTags, 3},
	}
	for _, tc := range tests {
		a, err := NewAction(tc.typ, tc.value)
		if !errors.Is(err, ErrInvalidActionPayload) {
			t.Errorf("NewAction(%s, %#v) = %v, %v, want ErrInvalidActionPayload", tc.typ, tc.value, a, err)
		}
	}
}

func TestActionTypeNames(t *testing.T) {
	for typ := PauseJob; typ <= StopProcessing; typ++ {
		got, err := ParseActionType(typ.String())
		if err != nil || got != typ {
			t.Errorf("ParseActionType(%q) = %s, %v", typ.String(), got, err)
		}
	}
	if _, err := ParseActionType("SET_MEMORY_OPTIMIZER"); err == nil {
		t.Error("ParseActionType accepted an unknown type")
	}
	if _, err := NewAction(ActionType(42), nil); err == nil || errors.Is(err, ErrInvalidActionPayload) {
		t.Errorf("NewAction with an unknown type error = %v", err)
	}
}
