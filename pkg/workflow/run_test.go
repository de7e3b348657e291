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
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wpsflow/engine/internal/config"
)

func fastTestConfig() *config.Config {
	cfg := config.Default()
	cfg.WPSClient.PollSuccessDelay = time.Millisecond
	cfg.WPSClient.PollFailureDelay = time.Millisecond
	cfg.WPSClient.RequestsPerSecond = 1000
	cfg.WPSClient.RateBurst = 1000
	cfg.Scheduler.EdgeBufferSize = 4
	return cfg
}

func TestRun_TwoTaskChainSucceeds(t *testing.T) {
	// b's input x must accept a's JSON complex output, so this server
	// declares x as JSON ComplexData instead of echoDescribeDoc's literal.
	echo := newEchoServer(`"hello"`)
	defer echo.Close()
	complexInputDoc := strings.Replace(echoDescribeDoc, "<LiteralData/>",
		`<ComplexData><Default><Format mimeType="application/json"/></Default><Supported><Format mimeType="application/json"/></Supported></ComplexData>`, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.RawQuery, "DescribeProcess") {
			w.Write([]byte(complexInputDoc))
			return
		}
		echo.Config.Handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	def := &Definition{
		Name: "chain",
		Tasks: []TaskSpec{
			{Name: "a", URL: srv.URL, Identifier: "echo"},
			{Name: "b", URL: srv.URL, Identifier: "echo", LinkedInputs: map[string]LinkedInputValue{
				"x": {Refs: []InputRef{{Task: "a", Output: "y"}}},
			}},
		},
	}

	monitor := NewMonitor("run-1", def.Name)
	summary, err := Run(context.Background(), def, monitor, fastTestConfig(), nil)
	require.NoError(t, err)
	require.Equal(t, "chain", summary.Name)

	progress := monitor.ProgressSnapshot()
	require.Equal(t, 100, progress["a"])
	require.Equal(t, 100, progress["b"])

	require.Len(t, summary.Tasks["a"], 1)
	recA := summary.Tasks["a"][0]
	require.Equal(t, "Succeeded", recA.Status)
	require.NotEmpty(t, recA.StatusLocation)
	require.Nil(t, recA.DataID)
	require.Len(t, recA.Outputs, 1)
	require.Equal(t, "y", recA.Outputs[0].Identifier)

	require.Len(t, summary.Tasks["b"], 1)
	require.Equal(t, "Succeeded", summary.Tasks["b"][0].Status)
}

func TestRun_ForwardsAuthHeadersToExecute(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.RawQuery, "DescribeProcess") {
			w.Write([]byte(echoDescribeDoc))
			return
		}
		if tok := r.Header.Get("Access-Token"); tok != "" {
			gotToken = tok
		}
		w.Write([]byte(`<ExecuteResponse statusLocation="` + r.Host + `/status"><Status><ProcessSucceeded>done</ProcessSucceeded></Status></ExecuteResponse>`))
	}))
	defer srv.Close()

	def := &Definition{
		Name: "auth",
		Tasks: []TaskSpec{
			{Name: "a", URL: srv.URL, Identifier: "echo"},
		},
	}

	monitor := NewMonitor("run-1", def.Name)
	_, err := Run(context.Background(), def, monitor, fastTestConfig(), map[string]string{"Access-Token": "secret"})
	require.NoError(t, err)
	require.Equal(t, "secret", gotToken)
}

func TestRun_RemoteFailureSurfacesWorkflowFailedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.RawQuery, "DescribeProcess") {
			w.Write([]byte(echoDescribeDoc))
			return
		}
		w.Write([]byte(`<ExecuteResponse statusLocation="` + r.Host + `/status"><Status><ProcessFailed><ExceptionReport><Exception><ExceptionText>boom</ExceptionText></Exception></ExceptionReport></ProcessFailed></Status></ExecuteResponse>`))
	}))
	defer srv.Close()

	def := &Definition{
		Name: "failing",
		Tasks: []TaskSpec{
			{Name: "a", URL: srv.URL, Identifier: "echo"},
		},
	}

	monitor := NewMonitor("run-1", def.Name)
	_, err := Run(context.Background(), def, monitor, fastTestConfig(), nil)
	require.Error(t, err)
	var failed *WorkflowFailedError
	require.ErrorAs(t, err, &failed)
	require.Len(t, failed.Exceptions, 1)
}

func TestRun_ParallelGroupReducesInMapOrder(t *testing.T) {
	srv := newEchoServer(`"r"`)
	defer srv.Close()

	def := &Definition{
		Name: "grouped",
		ParallelGroups: []ParallelGroup{
			{
				Name:         "g",
				MaxProcesses: 3,
				Map:          MapSpec{Literal: []string{"1", "2", "3"}},
				Reduce:       InputRef{Task: "inner"},
				Tasks: []TaskSpec{
					{Name: "inner", URL: srv.URL, Identifier: "echo", LinkedInputs: map[string]LinkedInputValue{
						"x": {Refs: []InputRef{{Task: "g"}}},
					}},
				},
			},
		},
	}

	monitor := NewMonitor("run-1", def.Name)
	summary, err := Run(context.Background(), def, monitor, fastTestConfig(), nil)
	require.NoError(t, err)
	require.Equal(t, "grouped", summary.Name)

	require.Equal(t, 100, monitor.ProgressSnapshot()["inner"])

	recs := summary.Tasks["inner"]
	require.Len(t, recs, 3)
	for rank, rec := range recs {
		require.Equal(t, "Succeeded", rec.Status)
		require.NotNil(t, rec.DataID)
		require.Equal(t, rank, *rec.DataID)
		require.NotNil(t, rec.ProcessID)
	}
}
