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

package main

import (
	"fmt"
	"os"

	"github.com/wpsflow/engine/internal/cli"
	"github.com/wpsflow/engine/internal/cli/describe"
	"github.com/wpsflow/engine/internal/cli/run"
	"github.com/wpsflow/engine/internal/cli/validate"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cli.SetVersion(version, commit)

	rootCmd := cli.NewRootCommand()
	rootCmd.AddCommand(run.NewCommand())
	rootCmd.AddCommand(validate.NewCommand())
	rootCmd.AddCommand(describe.NewCommand())
	rootCmd.AddCommand(cli.NewHelpCommand(rootCmd))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cli.RenderError(err.Error()))
		if suggestion := cli.ErrorSuggestion(err); suggestion != "" {
			fmt.Fprintln(os.Stderr, "  "+suggestion)
		}
		os.Exit(cli.ExitCode(err))
	}
}
