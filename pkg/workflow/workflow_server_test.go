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
	"net/http"
	"net/http/httptest"
	"strings"
)

// echoDescribeDoc describes a one-input, one-output process: a literal
// input "x" and a JSON complex output "y". Every test server in this
// package answers describeprocess with this document unless noted.
const echoDescribeDoc = `<?xml version="1.0"?>
<ProcessDescriptions>
  <ProcessDescription>
    <Identifier>echo</Identifier>
    <Title>Echo</Title>
    <DataInputs>
      <Input minOccurs="0" maxOccurs="1">
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

// newEchoServer starts an httptest server that answers describeprocess
// with echoDescribeDoc and execute by immediately succeeding with
// output "y" set to literalOutput (as inline JSON data).
func newEchoServer(literalOutput string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.RawQuery, "DescribeProcess") {
			w.Write([]byte(echoDescribeDoc))
			return
		}
		resp := fmt.Sprintf(`<ExecuteResponse statusLocation="%s/status"><Status><ProcessSucceeded>done</ProcessSucceeded></Status>`+
			`<ProcessOutputs><Output><Identifier>y</Identifier><Data><ComplexData mimeType="application/json">%s</ComplexData></Data></Output></ProcessOutputs></ExecuteResponse>`,
			r.Host, literalOutput)
		w.Write([]byte(resp))
	}))
}
