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

package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// FlagMetadata describes one flag for the machine-readable help output.
type FlagMetadata struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
}

// CommandMetadata describes one command for the machine-readable help
// output produced by `wpsflow help --json`.
type CommandMetadata struct {
	Name        string         `json:"name"`
	Short       string         `json:"short"`
	Use         string         `json:"use"`
	Flags       []FlagMetadata `json:"flags,omitempty"`
	Subcommands []string       `json:"subcommands,omitempty"`
}

func flagsMetadata(flags *pflag.FlagSet) []FlagMetadata {
	var out []FlagMetadata
	flags.VisitAll(func(flag *pflag.Flag) {
		out = append(out, FlagMetadata{
			Name:      flag.Name,
			Shorthand: flag.Shorthand,
			Usage:     flag.Usage,
			Default:   flag.DefValue,
		})
	})
	return out
}

func commandMetadata(cmd *cobra.Command) CommandMetadata {
	meta := CommandMetadata{
		Name:  cmd.Name(),
		Short: cmd.Short,
		Use:   cmd.Use,
		Flags: flagsMetadata(cmd.Flags()),
	}
	for _, sub := range cmd.Commands() {
		meta.Subcommands = append(meta.Subcommands, sub.Name())
	}
	return meta
}

// NewHelpCommand builds a `help` command that, with --json, prints
// structured command and flag metadata instead of cobra's usual text
// help, so scripts and agents can enumerate the CLI's surface.
func NewHelpCommand(rootCmd *cobra.Command) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !jsonOutput {
				if len(args) == 0 {
					return rootCmd.Help()
				}
				target, _, err := rootCmd.Find(args)
				if err != nil {
					return err
				}
				return target.Help()
			}

			if len(args) == 0 {
				metas := make([]CommandMetadata, 0, len(rootCmd.Commands()))
				for _, sub := range rootCmd.Commands() {
					metas = append(metas, commandMetadata(sub))
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(metas)
			}

			target, _, err := rootCmd.Find(args)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(commandMetadata(target))
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print machine-readable command metadata")
	return cmd
}

// GlobalFlagsMetadata reports the root command's persistent flags for
// use by commands that embed global-flag metadata in their own JSON
// output.
func GlobalFlagsMetadata(rootCmd *cobra.Command) []FlagMetadata {
	return flagsMetadata(rootCmd.PersistentFlags())
}
