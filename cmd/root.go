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

// Package cmd holds the cuerun command line.
package cmd

import (
	"os"
	"path/filepath"

	"opencue-outline/pkg/config"
	"opencue-outline/pkg/logging"

	"github.com/spf13/cobra"
)

// executorName is the binary name generated layer commands invoke. A
// cuerun binary installed under this name runs exec.
const executorName = "pycuerun"

var (
	debug      bool
	configPath string

	cfg config.Config
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "D", false, "Enable debug logging.")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the outline config file. Defaults to $"+config.EnvConfigPath+".")
}

var rootCmd = &cobra.Command{
	Use:   "cuerun [flags] <outline-file>",
	Short: "Launches outline scripts to the cue.",
	Long: `cuerun sets an outline script up in a new session, turns it into a job
spec and submits it to the cue. With --wait or --test it follows the job until
it is done.

The exec subcommand runs a single frame of a launched outline on a render node.`,
	Args:              cobra.ExactArgs(1),
	PersistentPreRun:  loadConfig,
	Run:               runLaunchCmd,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
}

func loadConfig(cmd *cobra.Command, args []string) {
	logging.SetDebug(debug)
	c, err := config.Load(configPath)
	if err != nil {
		logging.Fatal("Failed to load config: %v", err)
	}
	cfg = c
}

// Execute runs the command named by the process arguments.
func Execute() error {
	if filepath.Base(os.Args[0]) == executorName {
		rootCmd.SetArgs(append([]string{execCmd.Name()}, os.Args[1:]...))
	}
	return rootCmd.Execute()
}
