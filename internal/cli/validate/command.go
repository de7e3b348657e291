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

// Package validate implements "wpsflow validate".
package validate

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wpsflow/engine/internal/cli"
	"github.com/wpsflow/engine/pkg/workflow"
)

// NewCommand builds the "validate" subcommand: it parses and
// schema-checks a workflow document without building a graph or
// contacting any remote node, so it never needs network access.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Check a workflow document against the schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading workflow: %w", err)
			}

			def, err := workflow.Parse(data)
			if err != nil {
				return err
			}

			fmt.Println(cli.RenderOK(fmt.Sprintf("%s is valid: %d task(s), %d parallel group(s)", def.Name, len(def.Tasks), len(def.ParallelGroups))))
			return nil
		},
	}

	return cmd
}
