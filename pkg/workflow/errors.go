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

package workflow

import (
	"fmt"
	"runtime"
	"strings"

	wferrors "github.com/wpsflow/engine/pkg/errors"
	"github.com/wpsflow/engine/internal/wpsclient"
)

// WorkflowInvalidError covers schema violations, unresolved linked
// inputs, unknown input/output names, missing required runtime inputs,
// non-array Map payloads, missing Reduce indices, and parallel tasks
// declaring more than one linked input.
type WorkflowInvalidError struct {
	Task    string
	Message string
}

func (e *WorkflowInvalidError) Error() string {
	if e.Task == "" {
		return fmt.Sprintf("workflow invalid: %s", e.Message)
	}
	return fmt.Sprintf("workflow invalid (task %q): %s", e.Task, e.Message)
}

func (e *WorkflowInvalidError) IsUserVisible() bool { return true }
func (e *WorkflowInvalidError) UserMessage() string { return e.Error() }
func (e *WorkflowInvalidError) Suggestion() string {
	return "check the workflow document against the schema and fix the reported field"
}
func (e *WorkflowInvalidError) ErrorType() string { return "workflow_invalid" }
func (e *WorkflowInvalidError) IsRetryable() bool { return false }

// DatatypeIncompatibleError reports that the Data Adapter could not
// reconcile an upstream output with a downstream input.
type DatatypeIncompatibleError struct {
	Task   string
	Input  wpsclient.InputDescriptor
	Output wpsclient.OutputValue
}

func (e *DatatypeIncompatibleError) Error() string {
	return fmt.Sprintf(
		"datatype incompatible for task %q: input %q wants %s (mimetypes %v), output %q is %s (mimetype %q)",
		e.Task, e.Input.Identifier, e.Input.DataType, e.Input.SupportedMimetypes,
		e.Output.Identifier, e.Output.DataType, e.Output.MimeType,
	)
}

func (e *DatatypeIncompatibleError) IsUserVisible() bool { return true }
func (e *DatatypeIncompatibleError) UserMessage() string { return e.Error() }
func (e *DatatypeIncompatibleError) Suggestion() string {
	return "add an as_reference flag or adjust the upstream output's mimetype to match what the input accepts"
}
func (e *DatatypeIncompatibleError) ErrorType() string { return "datatype_incompatible" }
func (e *DatatypeIncompatibleError) IsRetryable() bool { return false }

// RemoteUnavailableError reports a transport failure reaching a WPS node.
type RemoteUnavailableError struct {
	URL   string
	Cause error
}

func (e *RemoteUnavailableError) Error() string {
	return fmt.Sprintf("remote unavailable at %s: %v", e.URL, e.Cause)
}

func (e *RemoteUnavailableError) Unwrap() error { return e.Cause }

func (e *RemoteUnavailableError) IsUserVisible() bool { return true }
func (e *RemoteUnavailableError) UserMessage() string { return e.Error() }
func (e *RemoteUnavailableError) Suggestion() string {
	return "confirm the remote WPS node is reachable and its URL is correct"
}
func (e *RemoteUnavailableError) ErrorType() string { return "remote_unavailable" }
func (e *RemoteUnavailableError) IsRetryable() bool { return true }

// StatusReadFailedError reports that a status document was unreadable
// after the poll loop's retry budget was exhausted.
type StatusReadFailedError struct {
	StatusLocation string
	Attempts       int
	Cause          error
}

func (e *StatusReadFailedError) Error() string {
	return fmt.Sprintf("status read failed at %s after %d attempts: %v", e.StatusLocation, e.Attempts, e.Cause)
}

func (e *StatusReadFailedError) Unwrap() error { return e.Cause }

func (e *StatusReadFailedError) IsUserVisible() bool { return true }
func (e *StatusReadFailedError) UserMessage() string { return e.Error() }
func (e *StatusReadFailedError) Suggestion() string {
	return "the remote node may be overloaded or its status endpoint unreachable; retry the run later"
}
func (e *StatusReadFailedError) ErrorType() string { return "status_read_failed" }
func (e *StatusReadFailedError) IsRetryable() bool { return true }

// RemoteFailedError reports that a remote process terminated with
// Failed; Errors carries the concatenated remote error texts.
type RemoteFailedError struct {
	Task   string
	Errors []string
}

func (e *RemoteFailedError) Error() string {
	return fmt.Sprintf("remote process failed for task %q: %s", e.Task, strings.Join(e.Errors, "; "))
}

func (e *RemoteFailedError) IsUserVisible() bool { return true }
func (e *RemoteFailedError) UserMessage() string { return e.Error() }
func (e *RemoteFailedError) Suggestion() string {
	return "inspect the remote process's own logs at its status location for the root cause"
}
func (e *RemoteFailedError) ErrorType() string { return "remote_failed" }
func (e *RemoteFailedError) IsRetryable() bool { return false }

// taskError pairs a wrapped worker error with the stack captured at the
// moment it crossed the worker boundary, and the task that produced it.
type taskError struct {
	Task  string
	Err   error
	Stack string
}

func wrapTaskError(task string, err error) *taskError {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &taskError{Task: task, Err: err, Stack: string(buf[:n])}
}

func (e *taskError) Error() string {
	return fmt.Sprintf("task %q: %v", e.Task, e.Err)
}

func (e *taskError) Unwrap() error { return e.Err }

// WorkflowFailedError is the aggregate surfaced at workflow termination
// when one or more worker goroutines reported an exception. Its message
// begins with a one-line count, then each traceback, then the full
// timestamped run log.
type WorkflowFailedError struct {
	Exceptions []*taskError
	Log        []LogEntry
}

func (e *WorkflowFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "workflow failed: %d exception(s) collected\n", len(e.Exceptions))
	for _, te := range e.Exceptions {
		fmt.Fprintf(&b, "--- %s ---\n%v\n%s\n", te.Task, te.Err, te.Stack)
	}
	b.WriteString("--- log ---\n")
	for _, entry := range e.Log {
		fmt.Fprintf(&b, "%s [%s] %s\n", entry.Time.Format("2006-01-02T15:04:05.000Z07:00"), entry.Level, entry.Message)
	}
	return b.String()
}

func (e *WorkflowFailedError) IsUserVisible() bool { return true }
func (e *WorkflowFailedError) UserMessage() string {
	return fmt.Sprintf("workflow failed: %d exception(s) collected", len(e.Exceptions))
}
func (e *WorkflowFailedError) Suggestion() string {
	return "read the tracebacks and run log printed above, or inspect the failing task's remote node directly"
}
func (e *WorkflowFailedError) ErrorType() string { return "workflow_failed" }
func (e *WorkflowFailedError) IsRetryable() bool { return false }

var (
	_ wferrors.UserVisibleError = (*WorkflowInvalidError)(nil)
	_ wferrors.UserVisibleError = (*DatatypeIncompatibleError)(nil)
	_ wferrors.UserVisibleError = (*RemoteUnavailableError)(nil)
	_ wferrors.UserVisibleError = (*StatusReadFailedError)(nil)
	_ wferrors.UserVisibleError = (*RemoteFailedError)(nil)
	_ wferrors.UserVisibleError = (*WorkflowFailedError)(nil)
	_ wferrors.ErrorClassifier  = (*WorkflowInvalidError)(nil)
	_ wferrors.ErrorClassifier  = (*DatatypeIncompatibleError)(nil)
	_ wferrors.ErrorClassifier  = (*RemoteUnavailableError)(nil)
	_ wferrors.ErrorClassifier  = (*StatusReadFailedError)(nil)
	_ wferrors.ErrorClassifier  = (*RemoteFailedError)(nil)
	_ wferrors.ErrorClassifier  = (*WorkflowFailedError)(nil)
)
