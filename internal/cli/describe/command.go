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

// Package describe implements "wpsflow describe", a standalone
// describeprocess probe independent of any workflow document.
package describe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wpsflow/engine/internal/cli"
	"github.com/wpsflow/engine/internal/wpsclient"
)

// NewCommand builds the "describe" subcommand.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe <url> <identifier>",
		Short: "Fetch and print a remote process's describeprocess document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := wpsclient.New()
			desc, err := client.Describe(context.Background(), args[0], args[1])
			if err != nil {
				return err
			}

			if cli.JSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(desc)
			}

			fmt.Printf("%s (%s)\n", desc.Title, desc.Identifier)
			fmt.Println(cli.RenderOK("inputs:"))
			for name, in := range desc.Inputs {
				fmt.Printf("  %s: %s\n", name, in.DataType)
			}
			fmt.Println(cli.RenderOK("outputs:"))
			for name, out := range desc.Outputs {
				fmt.Printf("  %s: %s\n", name, out.DataType)
			}
			return nil
		},
	}

	return cmd
}
