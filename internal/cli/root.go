// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cli holds the wpsflow command-line's shared root command,
// global flags, and error/exit-code rendering.
package cli

import (
	"github.com/spf13/cobra"

	wferrors "github.com/wpsflow/engine/pkg/errors"
)

var (
	appVersion = "dev"
	appCommit  = "unknown"

	// Verbose and Quiet are the root command's global output flags; no
	// subcommand reads them. JSON is read by the run and describe
	// subcommands.
	Verbose bool
	Quiet   bool
	JSON    bool
	ConfigPath string
)

// SetVersion records the build-time version and commit for the
// version command and --version flag.
func SetVersion(version, commit string) {
	appVersion = version
	appCommit = commit
}

// NewRootCommand builds the wpsflow root Cobra command with its global
// persistent flags.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wpsflow",
		Short: "Compile and run WPS task-graph workflows",
		Long: `wpsflow compiles a declarative workflow document into a task graph
of remote WPS process calls and drives it to completion, fanning out
parallel groups across goroutine replicas and reassembling their
results in Map order.`,
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "v", false, "show per-task progress and the full run log on failure")
	cmd.PersistentFlags().BoolVarP(&Quiet, "quiet", "q", false, "suppress non-error output")
	cmd.PersistentFlags().BoolVar(&JSON, "json", false, "print machine-readable JSON instead of styled text")
	cmd.PersistentFlags().StringVar(&ConfigPath, "config", "", "path to an engine config file (default: built-in defaults)")

	return cmd
}

// ExitCode maps an error to a process exit code: 2 for user-visible
// validation-shaped errors, 1 for everything else.
func ExitCode(err error) int {
	var classifier wferrors.ErrorClassifier
	if wferrors.As(err, &classifier) && classifier.ErrorType() == "workflow_invalid" {
		return 2
	}
	return 1
}
