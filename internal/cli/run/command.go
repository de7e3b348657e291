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

// Package run implements "wpsflow run".
package run

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wpsflow/engine/internal/cli"
	"github.com/wpsflow/engine/internal/config"
	"github.com/wpsflow/engine/internal/tracing"
	"github.com/wpsflow/engine/pkg/workflow"
)

// NewCommand builds the "run" subcommand.
func NewCommand() *cobra.Command {
	var (
		configPath    string
		accessToken   string
		userProxy     string
		noInteractive bool
		trace         bool
	)

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Compile and run a workflow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if trace {
				shutdown, err := tracing.Enable(cmd.ErrOrStderr())
				if err != nil {
					return fmt.Errorf("enabling tracing: %w", err)
				}
				defer shutdown(context.Background())
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading workflow: %w", err)
			}

			def, err := workflow.Parse(data)
			if err != nil {
				return err
			}

			if accessToken == "" && userProxy == "" && !noInteractive && !cli.JSON {
				accessToken, userProxy = promptForAuth()
			}

			headers := map[string]string{}
			if accessToken != "" {
				headers["Access-Token"] = accessToken
			}
			if userProxy != "" {
				headers["X-X509-User-Proxy"] = userProxy
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			monitor := workflow.NewMonitor(uuid.NewString(), def.Name)
			summary, err := workflow.Run(context.Background(), def, monitor, cfg, headers)
			if err != nil {
				return err
			}

			return printSummary(summary, monitor.ProgressSnapshot())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to an engine config file")
	cmd.Flags().StringVar(&accessToken, "access-token", "", "Access-Token header forwarded to every remote node")
	cmd.Flags().StringVar(&userProxy, "user-proxy", "", "X-X509-User-Proxy header forwarded to every remote node")
	cmd.Flags().BoolVar(&noInteractive, "no-interactive", false, "never prompt for missing auth headers")
	cmd.Flags().BoolVar(&trace, "trace", false, "print one span per remote task execute")

	return cmd
}

// promptForAuth interactively collects auth headers when neither was
// supplied on the command line and the caller hasn't asked for JSON
// or disabled prompting.
func promptForAuth() (accessToken, userProxy string) {
	questions := []*survey.Question{
		{
			Name:   "accessToken",
			Prompt: &survey.Input{Message: "Access-Token (blank to skip):"},
		},
		{
			Name:   "userProxy",
			Prompt: &survey.Input{Message: "X-X509-User-Proxy (blank to skip):"},
		},
	}
	answers := struct {
		AccessToken string
		UserProxy   string
	}{}
	if err := survey.Ask(questions, &answers); err != nil {
		return "", ""
	}
	return answers.AccessToken, answers.UserProxy
}

func printSummary(summary workflow.Summary, progress map[string]int) error {
	if cli.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Println(cli.RenderOK(fmt.Sprintf("%s completed", summary.Name)))
	for task, recs := range summary.Tasks {
		fmt.Println(cli.RenderTaskLine(task, progress[task]))
		for _, rec := range recs {
			label := rec.Status
			if rec.DataID != nil {
				label = fmt.Sprintf("%s (data_id=%d, process_id=%d)", label, *rec.DataID, *rec.ProcessID)
			}
			fmt.Println(cli.RenderDetail("status", label))
			for _, out := range rec.Outputs {
				value := out.Reference
				if value == "" {
					value = out.Data
				}
				fmt.Println(cli.RenderDetail(out.Identifier, value))
			}
		}
	}
	return nil
}
