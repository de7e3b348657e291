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

// Package workflow compiles a workflow description into a task graph and
// runs it across worker goroutines, driving remote WPS process calls and
// reporting progress.
package workflow

import "github.com/wpsflow/engine/internal/wpsclient"

// Header keys carried on every message envelope.
const (
	HeaderTask     = "task"
	HeaderMapIndex = "map_index"
	HeaderTraceID  = "trace_id"
)

// DummyInput is the sentinel input name meaning "no real input needed,"
// used to give a zero-input task a triggering edge.
const DummyInput = "None"

// VariantKind tags the concrete shape carried by a Variant.
type VariantKind int

const (
	VariantLiteral VariantKind = iota
	VariantComplexInline
	VariantComplexRef
	VariantBoundingBox
	VariantOutputObject
)

// Variant is the tagged sum type carried by every message payload: a
// literal scalar, inline complex bytes, a complex reference URL, a
// bounding box, or a raw WPS task output object awaiting adaptation.
type Variant struct {
	Kind VariantKind

	Literal string

	ComplexBytes []byte
	ComplexMime  string

	RefURL  string
	RefMime string

	BBoxCRS    string
	BBoxCoords []float64

	Output *wpsclient.OutputValue
}

// LiteralVariant wraps a plain scalar value.
func LiteralVariant(v string) Variant {
	return Variant{Kind: VariantLiteral, Literal: v}
}

// ComplexInlineVariant wraps inline complex bytes with a mimetype.
func ComplexInlineVariant(data []byte, mime string) Variant {
	return Variant{Kind: VariantComplexInline, ComplexBytes: data, ComplexMime: mime}
}

// ComplexRefVariant wraps a reference URL with a mimetype.
func ComplexRefVariant(url, mime string) Variant {
	return Variant{Kind: VariantComplexRef, RefURL: url, RefMime: mime}
}

// OutputObjectVariant wraps a raw upstream task output awaiting
// adaptation by the downstream's Data Adapter.
func OutputObjectVariant(out *wpsclient.OutputValue) Variant {
	return Variant{Kind: VariantOutputObject, Output: out}
}

// Message is the envelope carried on every graph edge.
type Message struct {
	Payload Variant
	Headers map[string]string
}

// NewMessage builds a message, copying headers so callers may safely
// mutate their own copy afterward.
func NewMessage(payload Variant, headers map[string]string) Message {
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	return Message{Payload: payload, Headers: h}
}

// WithHeader returns a copy of m with key=value set in its headers.
func (m Message) WithHeader(key, value string) Message {
	h := make(map[string]string, len(m.Headers)+1)
	for k, v := range m.Headers {
		h[k] = v
	}
	h[key] = value
	return Message{Payload: m.Payload, Headers: h}
}
