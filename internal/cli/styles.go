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
	"strconv"

	"github.com/charmbracelet/lipgloss"

	wferrors "github.com/wpsflow/engine/pkg/errors"
)

var (
	statusOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	muted       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	bold        = lipgloss.NewStyle().Bold(true)
)

// RenderOK renders a success line with a green checkmark.
func RenderOK(msg string) string {
	return statusOK.Render("✓") + " " + msg
}

// RenderWarn renders a warning line with an orange symbol.
func RenderWarn(msg string) string {
	return statusWarn.Render("⚠") + " " + msg
}

// RenderError renders a top-level error line; pair it with
// ErrorSuggestion to print the error's actionable follow-up, if any.
func RenderError(msg string) string {
	return statusError.Render("✗") + " " + bold.Render(msg)
}

// RenderTaskLine renders one task's progress as "task: NN%".
func RenderTaskLine(task string, pct int) string {
	return muted.Render(task+":") + " " + bold.Render(strconv.Itoa(pct)+"%")
}

// RenderDetail renders one indented "    label: value" line, used to
// print extra detail under a task's summary line.
func RenderDetail(label, value string) string {
	return muted.Render("    "+label+":") + " " + value
}

// ErrorSuggestion returns err's Suggestion() if it implements
// UserVisibleError, or "" otherwise.
func ErrorSuggestion(err error) string {
	var uv wferrors.UserVisibleError
	if wferrors.As(err, &uv) && uv.IsUserVisible() {
		return uv.Suggestion()
	}
	return ""
}
