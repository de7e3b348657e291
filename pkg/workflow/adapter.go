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
	"encoding/json"

	"github.com/itchyny/gojq"

	"github.com/wpsflow/engine/internal/wpsclient"
)

const jsonMimeType = "application/json"

// arrayExpandQuery is compiled once; the array-expansion fallback only
// ever needs to enumerate a JSON array's top-level elements.
var arrayExpandQuery = gojq.MustParse(".[]")

// Adapter reconciles an upstream output with a downstream input
// descriptor, fetching reference content when the downstream needs
// inline data the upstream only offers by URL.
type Adapter struct {
	client *wpsclient.Client
}

// NewAdapter creates an Adapter that uses client for reference fetches.
func NewAdapter(client *wpsclient.Client) *Adapter {
	return &Adapter{client: client}
}

// Adapt implements the decision order: reference-or-data selection,
// datatype/mimetype compatibility, and the JSON-array expansion
// fallback. It returns one or more adapted Variants, or
// *DatatypeIncompatibleError.
func (a *Adapter) Adapt(ctx context.Context, task string, out wpsclient.OutputValue, in wpsclient.InputDescriptor, expectsReference bool) ([]Variant, error) {
	effectiveTypes, body, mimeType, variant, err := a.resolveValue(ctx, out, expectsReference)
	if err != nil {
		return nil, err
	}

	if compatible(in, effectiveTypes, mimeType) {
		return []Variant{variant}, nil
	}

	if in.MaxOccurs > 1 && out.DataType == wpsclient.DataTypeComplex && mimeType == jsonMimeType && body != nil {
		if expanded, ok := a.expandArray(body, in); ok {
			return expanded, nil
		}
	}

	return nil, &DatatypeIncompatibleError{Task: task, Input: in, Output: out}
}

// resolveValue implements decision-order steps 1-2: reference selection
// (substituting for a string when a reference is requested) or taking
// the first data element, fetching reference content otherwise.
func (a *Adapter) resolveValue(ctx context.Context, out wpsclient.OutputValue, expectsReference bool) (effectiveTypes []wpsclient.DataType, body []byte, mimeType string, variant Variant, err error) {
	if out.Reference != "" {
		if expectsReference {
			return []wpsclient.DataType{out.DataType, wpsclient.DataTypeString}, nil, out.MimeType,
				ComplexRefVariant(out.Reference, out.MimeType), nil
		}

		fetched, ferr := a.client.FetchReference(ctx, out.Reference)
		if ferr != nil {
			// Transport failure fetching a reference is treated as
			// missing data downstream, not a fatal workflow error.
			return []wpsclient.DataType{out.DataType}, nil, out.MimeType, ComplexInlineVariant(nil, out.MimeType), nil
		}
		return []wpsclient.DataType{out.DataType}, fetched, out.MimeType, ComplexInlineVariant(fetched, out.MimeType), nil
	}

	if len(out.Data) > 0 {
		first := out.Data[0]
		if out.DataType == wpsclient.DataTypeComplex {
			return []wpsclient.DataType{out.DataType}, []byte(first), out.MimeType, ComplexInlineVariant([]byte(first), out.MimeType), nil
		}
		return []wpsclient.DataType{out.DataType}, []byte(first), out.MimeType, LiteralVariant(first), nil
	}

	return nil, nil, "", Variant{}, &DatatypeIncompatibleError{Output: out}
}

// compatible implements decision-order step 4.
func compatible(in wpsclient.InputDescriptor, effectiveTypes []wpsclient.DataType, mimeType string) bool {
	match := false
	for _, t := range effectiveTypes {
		if t == in.DataType {
			match = true
			break
		}
	}
	if !match {
		return false
	}

	if in.DataType != wpsclient.DataTypeComplex {
		return true
	}

	for _, m := range in.SupportedMimetypes {
		if m == mimeType {
			return true
		}
	}
	return false
}

// expandArray implements decision-order step 5: parse body as JSON, and
// if it is an array, emit each element as its own adapted Variant.
func (a *Adapter) expandArray(body []byte, in wpsclient.InputDescriptor) ([]Variant, bool) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, false
	}
	if _, isArray := doc.([]interface{}); !isArray {
		return nil, false
	}

	mimeType := ""
	if len(in.SupportedMimetypes) > 0 {
		mimeType = in.SupportedMimetypes[0]
	}

	var out []Variant
	iter := arrayExpandQuery.Run(doc)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if _, isErr := v.(error); isErr {
			return nil, false
		}

		elemBytes, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}

		if in.DataType == wpsclient.DataTypeComplex {
			out = append(out, ComplexInlineVariant(elemBytes, mimeType))
		} else {
			var s string
			if str, ok := v.(string); ok {
				s = str
			} else {
				s = string(elemBytes)
			}
			out = append(out, LiteralVariant(s))
		}
	}

	return out, len(out) > 0
}
