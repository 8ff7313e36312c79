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

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"opencue-outline/pkg/cue"
	"opencue-outline/pkg/cue/cueadmin"
	"opencue-outline/pkg/launcher"
	"opencue-outline/pkg/logging"
	"opencue-outline/pkg/outline"

	"github.com/spf13/cobra"
)

var (
	facility   string
	launchDev  devOptions
	envPairs   []string
	pause      bool
	wait       bool
	test       bool
	frameRange string
	shot       string
	noMail     bool
	maxRetries int
	priority   int
	targetOS   string
	baseName   string
	autoEat    bool
	noPycuerun bool
	outputSpec string
	stageDirs  []string
)

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&facility, "facility", "F", "", "Set the job facility.")

	addDevFlags(f, &launchDev, true)
	f.StringArrayVar(&envPairs, "env", nil, "Add environment key/value pairs with --env k=v.")

	// Job options
	f.BoolVarP(&pause, "pause", "p", false, "Launch the outline in paused state.")
	f.BoolVarP(&wait, "wait", "w", false, "Block until the launched job is completed.")
	f.BoolVarP(&test, "test", "t", false, "Block until the job is completed or failed, then kill it.")
	f.StringVarP(&frameRange, "range", "f", "", "Specify the frame range. Defaults to $FR.")
	f.StringVar(&shot, "shot", "", "Switch the job to the specified shot.")
	f.BoolVar(&noMail, "no-mail", false, "Disable email notifications.")
	f.IntVar(&maxRetries, "max-retries", 0, "Set the max number of retries per frame. Defaults to the config.")
	f.IntVar(&priority, "priority", 0, "Set the job priority.")
	f.StringVarP(&targetOS, "os", "o", os.Getenv("OL_OS"), "Set the target operating system for the job.")
	f.StringVar(&baseName, "base-name", "", "Set the base name for the job.")
	f.BoolVar(&autoEat, "autoeat", false, "Automatically eat dead frames with no retry.")
	f.BoolVar(&noPycuerun, "no-pycuerun", false, "Run layer commands directly instead of through the frame executor.")
	f.StringVar(&outputSpec, "output-spec", "", "Path to write the job spec to instead of launching it.")
	f.StringArrayVar(&stageDirs, "stage", nil, "Copy a directory into the job session, may be repeated.")

	rootCmd.MarkFlagsMutuallyExclusive("wait", "test")
	rootCmd.MarkFlagsMutuallyExclusive("wait", "output-spec")
	rootCmd.MarkFlagsMutuallyExclusive("test", "output-spec")
}

func runLaunchCmd(cmd *cobra.Command, args []string) {
	ol, err := outline.Load(args[0])
	if err != nil {
		logging.Fatal("Failed to load outline: %v", err)
	}

	rng, rangeDefault := launcher.ResolveRange(frameRange, os.Getenv)
	opts := launcher.Options{
		Facility:     facility,
		Shot:         shot,
		NoMail:       noMail,
		Paused:       pause,
		AutoEat:      autoEat,
		OS:           targetOS,
		Wait:         wait,
		Test:         test,
		Range:        rng,
		RangeDefault: rangeDefault,
		Basename:     baseName,
		Env:          envPairs,
		Dev:          launchDev.dev,
		DevUser:      launchDev.devUser,
		Version:      launchDev.version,
		Repos:        launchDev.repos,
		NoPycuerun:   noPycuerun,
		OutputSpec:   outputSpec,
		Stage:        stageDirs,
	}
	if cmd.Flags().Changed("max-retries") {
		opts.MaxRetries = &maxRetries
	}
	if cmd.Flags().Changed("priority") {
		opts.Priority = &priority
	}

	var client cue.Client
	if outputSpec == "" {
		c, err := cueadmin.New(cfg.CueCommand)
		if err != nil {
			logging.Fatal("Failed to create cue client: %v", err)
		}
		client = c
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	jobs, err := launcher.New(ol, client, cfg, opts).Launch(ctx)
	stop()
	if err != nil {
		logging.Fatal("cuerun failed: %v", err)
	}
	for _, j := range jobs {
		logging.Info("Launched job %s (%s), state %s.", j.Name, j.ID, j.State)
	}
}
