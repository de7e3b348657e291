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

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const describeDoc = `<?xml version="1.0"?>
<ProcessDescriptions>
  <ProcessDescription>
    <Identifier>p</Identifier>
    <Title>Process P</Title>
    <DataInputs>
      <Input minOccurs="1" maxOccurs="1">
        <Identifier>x</Identifier>
        <Title>X</Title>
        <LiteralData/>
      </Input>
    </DataInputs>
    <ProcessOutputs>
      <Output>
        <Identifier>y</Identifier>
        <Title>Y</Title>
        <ComplexOutput>
          <Default><Format mimeType="application/json"/></Default>
          <Supported><Format mimeType="application/json"/></Supported>
        </ComplexOutput>
      </Output>
    </ProcessOutputs>
  </ProcessDescription>
</ProcessDescriptions>`

func TestClient_DescribeCaches(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(describeDoc))
	}))
	defer srv.Close()

	c := New(WithRateLimit(1000, 1000))
	ctx := context.Background()

	d1, err := c.Describe(ctx, srv.URL, "p")
	require.NoError(t, err)
	require.Equal(t, "p", d1.Identifier)
	require.True(t, d1.HasInput("x"))
	require.True(t, d1.HasOutput("y"))

	d2, err := c.Describe(ctx, srv.URL, "p")
	require.NoError(t, err)
	require.Same(t, d1, d2)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClient_PollUntilTerminal_RecoversAfterFailures(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n <= 3 {
			w.Write([]byte("not xml"))
			return
		}
		w.Write([]byte(`<ExecuteResponse statusLocation="` + r.URL.String() + `"><Status><ProcessSucceeded>done</ProcessSucceeded></Status></ExecuteResponse>`))
	}))
	defer srv.Close()

	c := New(WithPollDelays(10*time.Millisecond, 10*time.Millisecond, 5))
	handle := &ExecutionHandle{StatusLocation: srv.URL}

	var updates int
	err := c.PollUntilTerminal(context.Background(), handle, func(h *ExecutionHandle) {
		updates++
	})
	require.NoError(t, err)
	require.True(t, handle.Terminal())
	require.Equal(t, StatusSucceeded, handle.Status)
	require.Equal(t, 1, updates)
}

func TestClient_PollUntilTerminal_FatalAfterSixFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("garbage"))
	}))
	defer srv.Close()

	c := New(WithPollDelays(1*time.Millisecond, 1*time.Millisecond, 5))
	handle := &ExecutionHandle{StatusLocation: srv.URL}

	err := c.PollUntilTerminal(context.Background(), handle, nil)
	require.Error(t, err)
	var budgetErr *PollBudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	require.Equal(t, 6, budgetErr.Attempts)
}

func TestClient_Execute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<ExecuteResponse statusLocation="http://example.org/status/1"><Status><ProcessStarted percentCompleted="10">running</ProcessStarted></Status></ExecuteResponse>`))
	}))
	defer srv.Close()

	c := New(WithRateLimit(1000, 1000))
	handle, err := c.Execute(context.Background(), srv.URL, "p",
		[]InputValue{{Identifier: "x", Literal: "1"}},
		[]OutputRequest{{Identifier: "y"}},
		map[string]string{"Access-Token": "secret"},
	)
	require.NoError(t, err)
	require.Equal(t, "http://example.org/status/1", handle.StatusLocation)
	require.Equal(t, StatusStarted, handle.Status)
	require.Equal(t, 10, handle.PercentCompleted)
}

func TestRandomMachineID(t *testing.T) {
	id, err := randomMachineID()
	require.NoError(t, err)
	require.Len(t, id, 16)
	for _, r := range id {
		require.True(t, (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	}
}
