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

// Package config loads the outline configuration file.
//
// The file is HCL with a single outline block:
//
//	outline {
//	  wrapper_dir  = "/shots/spi/home/lib/wrappers"
//	  bin_dir      = "/shots/spi/home/bin"
//	  session_dir  = "/tmp/outline/sessions"
//	  spec_version = "1.14"
//	}
//
// Attributes that are not set keep their defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "OL_CONFIG"

// Config holds the outline settings shared by the launcher and the executor.
type Config struct {
	WrapperDir     string
	UserDir        string
	BinDir         string
	SessionDir     string
	SpecVersion    string
	Facility       string
	Domain         string
	MaxRetries     int
	SubmitAttempts int
	SubmitBackoff  time.Duration
	PollInterval   time.Duration
	CueCommand     string
	IgnoreFile     string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		WrapperDir:     "/opt/opencue/wrappers",
		UserDir:        "",
		BinDir:         "/opt/opencue/bin",
		SessionDir:     os.TempDir() + "/outline/sessions",
		SpecVersion:    "1.14",
		Facility:       "local",
		Domain:         "example.com",
		MaxRetries:     2,
		SubmitAttempts: 3,
		SubmitBackoff:  2 * time.Second,
		PollInterval:   5 * time.Second,
		CueCommand:     "cueadmin-spec",
		IgnoreFile:     ".olignore",
	}
}

type hclFile struct {
	Outline *hclOutline `hcl:"outline,block"`
	Remain  hcl.Body    `hcl:",remain"`
}

type hclOutline struct {
	WrapperDir     *string `hcl:"wrapper_dir,optional"`
	UserDir        *string `hcl:"user_dir,optional"`
	BinDir         *string `hcl:"bin_dir,optional"`
	SessionDir     *string `hcl:"session_dir,optional"`
	SpecVersion    *string `hcl:"spec_version,optional"`
	Facility       *string `hcl:"facility,optional"`
	Domain         *string `hcl:"domain,optional"`
	MaxRetries     *int    `hcl:"maxretries,optional"`
	SubmitAttempts *int    `hcl:"submit_attempts,optional"`
	SubmitBackoff  *int    `hcl:"submit_backoff_seconds,optional"`
	PollInterval   *int    `hcl:"poll_interval_seconds,optional"`
	CueCommand     *string `hcl:"cue_command,optional"`
	IgnoreFile     *string `hcl:"ignore_file,optional"`
}

// Load resolves the config path (explicit path, then OL_CONFIG) and decodes
// it over the defaults. With no path at all the defaults are returned.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return Default(), nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(src, path)
}

// Parse decodes HCL source over the defaults. filename is only used in
// diagnostics.
func Parse(src []byte, filename string) (Config, error) {
	cfg := Default()

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", filename, diags)
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to decode config file %s: %w", filename, diags)
	}
	if parsed.Outline == nil {
		return cfg, nil
	}

	o := parsed.Outline
	setString(&cfg.WrapperDir, o.WrapperDir)
	setString(&cfg.UserDir, o.UserDir)
	setString(&cfg.BinDir, o.BinDir)
	setString(&cfg.SessionDir, o.SessionDir)
	setString(&cfg.SpecVersion, o.SpecVersion)
	setString(&cfg.Facility, o.Facility)
	setString(&cfg.Domain, o.Domain)
	setString(&cfg.CueCommand, o.CueCommand)
	setString(&cfg.IgnoreFile, o.IgnoreFile)
	if o.MaxRetries != nil {
		cfg.MaxRetries = *o.MaxRetries
	}
	if o.SubmitAttempts != nil {
		if *o.SubmitAttempts < 1 {
			return Config{}, fmt.Errorf("%s: submit_attempts must be at least 1, got %d", filename, *o.SubmitAttempts)
		}
		cfg.SubmitAttempts = *o.SubmitAttempts
	}
	if o.SubmitBackoff != nil {
		cfg.SubmitBackoff = time.Duration(*o.SubmitBackoff) * time.Second
	}
	if o.PollInterval != nil {
		if *o.PollInterval < 1 {
			return Config{}, fmt.Errorf("%s: poll_interval_seconds must be positive, got %d", filename, *o.PollInterval)
		}
		cfg.PollInterval = time.Duration(*o.PollInterval) * time.Second
	}
	return cfg, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
