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

	"opencue-outline/pkg/executor"
	"opencue-outline/pkg/logging"

	"github.com/spf13/cobra"
)

var (
	frameSelector string
	execDev       devOptions
)

func init() {
	rootCmd.AddCommand(execCmd)

	f := execCmd.Flags()
	f.StringVarP(&frameSelector, "execute", "e", "", "Frame and layer to run, as <frame>-<layer>. Required.")
	addDevFlags(f, &execDev, false)

	_ = execCmd.MarkFlagRequired("execute")
}

var execCmd = &cobra.Command{
	Use:   "exec <outline-path>",
	Short: "Runs one frame of a launched outline.",
	Long: `The 'exec' command loads a launched outline from its session and runs a
single frame of one layer, logging to <layer session>/logs/<layer>.<frame>.log.
The process exits with the status of the layer command.`,
	Args:         cobra.ExactArgs(1),
	Run:          runExecCmd,
	SilenceUsage: true,
}

func runExecCmd(cmd *cobra.Command, args []string) {
	frame, layer, err := executor.ParseSelector(frameSelector)
	if err != nil {
		logging.Fatal("%v", err)
	}

	for k, v := range execDev.env() {
		if err := os.Setenv(k, v); err != nil {
			logging.Fatal("Failed to set %s: %v", k, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	e := &executor.Executor{}
	err = e.Run(ctx, executor.Request{OutlinePath: args[0], Frame: frame, Layer: layer})
	stop()
	if err != nil {
		logging.Error("Frame %d of layer %s failed: %v", frame, layer, err)
		os.Exit(executor.ExitStatus(err))
	}
}
