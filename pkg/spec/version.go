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

// Package spec writes and reads the job specification document submitted
// to the cue.
package spec

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

// DefaultVersion is the spec version written when none is configured.
const DefaultVersion = "1.14"

// Version is a major.minor spec version. Versions compare numerically, so
// 1.10 is newer than 1.9.
type Version struct {
	v *version.Version
}

// ParseVersion parses a major.minor version string.
func ParseVersion(s string) (Version, error) {
	if strings.Count(s, ".") != 1 {
		return Version{}, fmt.Errorf("invalid spec version %q: want major.minor", s)
	}
	v, err := version.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("invalid spec version %q: %w", s, err)
	}
	if v.Prerelease() != "" || v.Metadata() != "" {
		return Version{}, fmt.Errorf("invalid spec version %q: want major.minor", s)
	}
	return Version{v: v}, nil
}

// MustVersion is ParseVersion for constants. It panics on error.
func MustVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// AtLeast reports whether v is o or newer.
func (v Version) AtLeast(o Version) bool {
	return v.v.GreaterThanOrEqual(o.v)
}

// IsZero reports whether v was never set.
func (v Version) IsZero() bool { return v.v == nil }

func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.Original()
}

// Feature is an optional part of the document introduced by a spec version.
type Feature string

const (
	FeatureTimeout  Feature = "timeout"
	FeaturePriority Feature = "priority"
	FeatureGPUs     Feature = "gpus"
	FeatureMaxCores Feature = "maxcores"
	FeatureOutputs  Feature = "outputs"
)

var minVersions = map[Feature]Version{
	FeatureTimeout:  MustVersion("1.10"),
	FeaturePriority: MustVersion("1.11"),
	FeatureGPUs:     MustVersion("1.12"),
	FeatureMaxCores: MustVersion("1.13"),
	FeatureOutputs:  MustVersion("1.14"),
}

// GateResult tells whether a feature may be written under a spec version.
type GateResult struct {
	Feature    Feature
	MinVersion Version
	Supported  bool
}

// Gate checks feature against v.
func Gate(feature Feature, v Version) GateResult {
	minVer, ok := minVersions[feature]
	if !ok {
		return GateResult{Feature: feature, Supported: true}
	}
	return GateResult{Feature: feature, MinVersion: minVer, Supported: v.AtLeast(minVer)}
}

func (g GateResult) String() string {
	if g.Supported {
		return fmt.Sprintf("%s supported", g.Feature)
	}
	return fmt.Sprintf("%s requires spec version %s", g.Feature, g.MinVersion)
}
