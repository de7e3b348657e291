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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wpsflow/engine/internal/wpsclient"
)

func TestAdapter_CompatibleComplexPassesThrough(t *testing.T) {
	a := NewAdapter(wpsclient.New(wpsclient.WithRateLimit(1000, 1000)))
	out := wpsclient.OutputValue{Identifier: "y", DataType: wpsclient.DataTypeComplex, MimeType: "application/json", Data: []string{`{"k":1}`}}
	in := wpsclient.InputDescriptor{Identifier: "x", DataType: wpsclient.DataTypeComplex, SupportedMimetypes: []string{"application/json"}}

	vals, err := a.Adapt(context.Background(), "t", out, in, false)
	require.NoError(t, err)
	require.Len(t, vals, 1)
	require.Equal(t, VariantComplexInline, vals[0].Kind)
	require.JSONEq(t, `{"k":1}`, string(vals[0].ComplexBytes))
}

func TestAdapter_IncompatibleMimeTypeFails(t *testing.T) {
	a := NewAdapter(wpsclient.New(wpsclient.WithRateLimit(1000, 1000)))
	out := wpsclient.OutputValue{Identifier: "y", DataType: wpsclient.DataTypeComplex, MimeType: "text/plain", Data: []string{"hello"}}
	in := wpsclient.InputDescriptor{Identifier: "x", DataType: wpsclient.DataTypeComplex, SupportedMimetypes: []string{"application/json"}}

	_, err := a.Adapt(context.Background(), "t", out, in, false)
	require.Error(t, err)
	var incompatible *DatatypeIncompatibleError
	require.ErrorAs(t, err, &incompatible)
}

func TestAdapter_ExpandsJSONArrayWhenInputAcceptsMultiple(t *testing.T) {
	a := NewAdapter(wpsclient.New(wpsclient.WithRateLimit(1000, 1000)))
	out := wpsclient.OutputValue{Identifier: "y", DataType: wpsclient.DataTypeComplex, MimeType: "application/json", Data: []string{`["a","b","c"]`}}
	in := wpsclient.InputDescriptor{Identifier: "x", DataType: wpsclient.DataTypeString, MaxOccurs: 3, SupportedMimetypes: nil}

	vals, err := a.Adapt(context.Background(), "t", out, in, false)
	require.NoError(t, err)
	require.Len(t, vals, 3)
	require.Equal(t, "a", vals[0].Literal)
	require.Equal(t, "b", vals[1].Literal)
	require.Equal(t, "c", vals[2].Literal)
}

func TestAdapter_ReferenceRequestedKeepsURL(t *testing.T) {
	a := NewAdapter(wpsclient.New(wpsclient.WithRateLimit(1000, 1000)))
	out := wpsclient.OutputValue{Identifier: "y", DataType: wpsclient.DataTypeComplex, MimeType: "application/json", Reference: "http://example.org/out.json"}
	in := wpsclient.InputDescriptor{Identifier: "x", DataType: wpsclient.DataTypeComplex, SupportedMimetypes: []string{"application/json"}}

	vals, err := a.Adapt(context.Background(), "t", out, in, true)
	require.NoError(t, err)
	require.Equal(t, VariantComplexRef, vals[0].Kind)
	require.Equal(t, "http://example.org/out.json", vals[0].RefURL)
}

func TestAdapter_FetchesReferenceWhenInlineRequested(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"fetched":true}`))
	}))
	defer srv.Close()

	a := NewAdapter(wpsclient.New(wpsclient.WithRateLimit(1000, 1000)))
	out := wpsclient.OutputValue{Identifier: "y", DataType: wpsclient.DataTypeComplex, MimeType: "application/json", Reference: srv.URL}
	in := wpsclient.InputDescriptor{Identifier: "x", DataType: wpsclient.DataTypeComplex, SupportedMimetypes: []string{"application/json"}}

	vals, err := a.Adapt(context.Background(), "t", out, in, false)
	require.NoError(t, err)
	require.Equal(t, VariantComplexInline, vals[0].Kind)
	require.JSONEq(t, `{"fetched":true}`, string(vals[0].ComplexBytes))
}
