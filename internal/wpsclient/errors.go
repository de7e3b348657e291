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

package wpsclient

import "fmt"

// TransportError wraps a network or decode failure reaching a remote WPS
// node. Callers (pkg/workflow) re-classify this into the domain error
// taxonomy (RemoteUnavailable, StatusReadFailed).
type TransportError struct {
	URL   string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("wpsclient: transport error contacting %s: %v", e.URL, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// PollBudgetExceededError reports that the consecutive-failure budget of
// the status-poll loop was exhausted.
type PollBudgetExceededError struct {
	StatusLocation string
	Attempts       int
	Cause          error
}

func (e *PollBudgetExceededError) Error() string {
	return fmt.Sprintf("wpsclient: status read at %s failed %d consecutive times: %v", e.StatusLocation, e.Attempts, e.Cause)
}

func (e *PollBudgetExceededError) Unwrap() error {
	return e.Cause
}
