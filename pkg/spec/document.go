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

package spec

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const header = `<?xml version="1.0"?>` +
	`<!DOCTYPE spec PUBLIC "SPI Cue  Specification Language" "http://localhost:8080/spcue/dtd/cjsl-%s.dtd">`

var headerVersionRE = regexp.MustCompile(`cjsl-([0-9]+\.[0-9]+)\.dtd`)

// Document is the job specification. Field order is element order.
type Document struct {
	XMLName  xml.Name `xml:"spec"`
	Version  Version  `xml:"-"`
	Facility string   `xml:"facility"`
	Show     string   `xml:"show"`
	Shot     string   `xml:"shot"`
	User     string   `xml:"user"`
	Email    string   `xml:"email,omitempty"`
	UID      int      `xml:"uid"`
	Job      Job      `xml:"job"`
	Depends  Depends  `xml:"depends"`
}

// Job is the single job of a spec.
type Job struct {
	Name       string `xml:"name,attr"`
	Paused     Bool   `xml:"paused"`
	Priority   *int   `xml:"priority,omitempty"`
	MaxRetries int    `xml:"maxretries"`
	MaxCores   *int   `xml:"maxcores,omitempty"`
	MaxGPUs    *int   `xml:"maxgpus,omitempty"`
	AutoEat    Bool   `xml:"autoeat"`
	Localbook  string `xml:"localbook,omitempty"`
	OS         string `xml:"os,omitempty"`
	Env        Env    `xml:"env"`
	Layers     Layers `xml:"layers"`
}

// Layers holds the job layers.
type Layers struct {
	Layers []Layer `xml:"layer"`
}

// Layer is one dispatched layer.
type Layer struct {
	Name       string   `xml:"name,attr"`
	Type       string   `xml:"type,attr"`
	Cmd        string   `xml:"cmd"`
	Range      string   `xml:"range"`
	Chunk      int      `xml:"chunk"`
	Cores      *Cores   `xml:"cores,omitempty"`
	Threadable *Bool    `xml:"threadable,omitempty"`
	Memory     string   `xml:"memory,omitempty"`
	GPUs       *int     `xml:"gpus,omitempty"`
	GPUMemory  string   `xml:"gpu_memory,omitempty"`
	Timeout    *int     `xml:"timeout,omitempty"`
	TimeoutLLU *int     `xml:"timeout_llu,omitempty"`
	Tags       string   `xml:"tags,omitempty"`
	Limits     *Limits  `xml:"limits,omitempty"`
	Env        Env      `xml:"env"`
	Services   Services `xml:"services"`
	Outputs    *Outputs `xml:"outputs,omitempty"`
}

// SetGPUs writes the gpus and gpu_memory pair. A zero count becomes 1 and
// an empty memory 1g, since the cue rejects one without the other.
func (l *Layer) SetGPUs(gpus int, memory string) {
	if gpus <= 0 {
		gpus = 1
	}
	if memory == "" {
		memory = defaultGPUMemory
	}
	l.GPUs = &gpus
	l.GPUMemory = memory
}

const defaultGPUMemory = "1g"

// Env is a list of environment keys.
type Env struct {
	Keys []EnvKey `xml:"key"`
}

// EnvKey is one environment variable.
type EnvKey struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// Limits names the limits a layer is subject to.
type Limits struct {
	Limits []string `xml:"limit"`
}

// Services holds exactly one service.
type Services struct {
	Service string `xml:"service"`
}

// Outputs lists the registered layer outputs.
type Outputs struct {
	Outputs []Output `xml:"output"`
}

// Output is one named layer output.
type Output struct {
	Name string `xml:"name,attr"`
	Path string `xml:",chardata"`
}

// Depends holds every dependency of the job. It is written even when
// empty.
type Depends struct {
	Depends []Depend `xml:"depend"`
}

// Depend is one dependency edge. OnFrame replaces OnLayer for frame level
// targets.
type Depend struct {
	Type     string `xml:"type,attr"`
	AnyFrame Bool   `xml:"anyframe,attr"`
	DepJob   string `xml:"depjob"`
	DepLayer string `xml:"deplayer"`
	OnJob    string `xml:"onjob"`
	OnLayer  string `xml:"onlayer,omitempty"`
	OnFrame  string `xml:"onframe,omitempty"`
}

// Bool is written as True or False.
type Bool bool

func (b Bool) MarshalText() ([]byte, error) {
	if b {
		return []byte("True"), nil
	}
	return []byte("False"), nil
}

func (b *Bool) UnmarshalText(text []byte) error {
	switch string(text) {
	case "True":
		*b = true
	case "False":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %q, want True or False", text)
	}
	return nil
}

// Cores is a core reservation, written with at least one decimal.
type Cores float64

func (c Cores) MarshalText() ([]byte, error) {
	s := strconv.FormatFloat(float64(c), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return []byte(s), nil
}

func (c *Cores) UnmarshalText(text []byte) error {
	f, err := strconv.ParseFloat(string(text), 64)
	if err != nil {
		return fmt.Errorf("invalid cores %q: %w", text, err)
	}
	*c = Cores(f)
	return nil
}

// Encode renders the document with its versioned header.
func (d *Document) Encode() ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	body, err := xml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode spec: %w", err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, header, d.Version)
	buf.Write(plainText(body))
	return buf.Bytes(), nil
}

var textUnescaper = strings.NewReplacer(`&#34;`, `"`, `&#39;`, `'`, `&#x9;`, "\t", `&#xA;`, "\n")

// plainText writes quotes, tabs and newlines in text nodes as themselves
// instead of the character references encoding/xml uses. Attribute values
// keep their references.
func plainText(body []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(body))
	for len(body) > 0 {
		i := bytes.IndexByte(body, '<')
		if i < 0 {
			i = len(body)
		}
		out.WriteString(textUnescaper.Replace(string(body[:i])))
		body = body[i:]
		j := bytes.IndexByte(body, '>')
		if j < 0 {
			out.Write(body)
			break
		}
		out.Write(body[:j+1])
		body = body[j+1:]
	}
	return out.Bytes()
}

// Parse reads a document written by Encode, taking the spec version from
// the header.
func Parse(b []byte) (*Document, error) {
	m := headerVersionRE.FindSubmatch(b)
	if m == nil {
		return nil, fmt.Errorf("spec has no version header")
	}
	v, err := ParseVersion(string(m[1]))
	if err != nil {
		return nil, err
	}
	d := &Document{Version: v}
	if err := xml.Unmarshal(b, d); err != nil {
		return nil, fmt.Errorf("failed to parse spec: %w", err)
	}
	return d, nil
}

// Validate checks the document structure and that every element it holds
// is allowed under its spec version.
func (d *Document) Validate() error {
	if d.Version.IsZero() {
		return fmt.Errorf("invalid spec: no spec version")
	}
	var errs []string
	gate := func(f Feature, where string) {
		if g := Gate(f, d.Version); !g.Supported {
			errs = append(errs, fmt.Sprintf("%s: %s, document is %s", where, g, d.Version))
		}
	}

	if d.Job.Name == "" {
		errs = append(errs, "job has no name")
	}
	if d.Job.Priority != nil {
		gate(FeaturePriority, "job")
	}
	if d.Job.MaxCores != nil || d.Job.MaxGPUs != nil {
		gate(FeatureMaxCores, "job")
	}
	if len(d.Job.Layers.Layers) == 0 {
		errs = append(errs, "job has no layers")
	}
	seen := make(map[string]bool)
	for _, l := range d.Job.Layers.Layers {
		where := "layer " + l.Name
		if seen[l.Name] {
			errs = append(errs, where+": duplicate name")
		}
		seen[l.Name] = true
		if strings.TrimSpace(l.Cmd) == "" {
			errs = append(errs, where+": empty cmd")
		}
		if l.Chunk < 1 {
			errs = append(errs, where+": chunk must be at least 1")
		}
		if l.Services.Service == "" {
			errs = append(errs, where+": no service")
		}
		if (l.GPUs == nil) != (l.GPUMemory == "") {
			errs = append(errs, where+": gpus and gpu_memory must be set together")
		}
		if l.GPUs != nil {
			gate(FeatureGPUs, where)
		}
		if l.Timeout != nil || l.TimeoutLLU != nil {
			gate(FeatureTimeout, where)
		}
		if l.Outputs != nil {
			gate(FeatureOutputs, where)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid spec: %s", strings.Join(errs, "; "))
	}
	return nil
}
