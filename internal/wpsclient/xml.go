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
	"encoding/xml"
	"strconv"
	"strings"
)

type xmlFormat struct {
	MimeType string `xml:"mimeType,attr"`
	Schema   string `xml:"schema,attr"`
	Encoding string `xml:"encoding,attr"`
}

type xmlComplexData struct {
	Default   struct {
		Format xmlFormat `xml:"Format"`
	} `xml:"Default"`
	Supported struct {
		Format []xmlFormat `xml:"Format"`
	} `xml:"Supported"`
}

type xmlBoundingBoxData struct {
	Default struct {
		CRS string `xml:"CRS"`
	} `xml:"Default"`
	Supported struct {
		CRS []string `xml:"CRS"`
	} `xml:"Supported"`
}

type xmlInput struct {
	Identifier      string              `xml:"Identifier"`
	Title           string              `xml:"Title"`
	MinOccurs       int                 `xml:"minOccurs,attr"`
	MaxOccurs       int                 `xml:"maxOccurs,attr"`
	LiteralData     *struct{}           `xml:"LiteralData"`
	ComplexData     *xmlComplexData     `xml:"ComplexData"`
	BoundingBoxData *xmlBoundingBoxData `xml:"BoundingBoxData"`
}

type xmlOutput struct {
	Identifier        string              `xml:"Identifier"`
	Title             string              `xml:"Title"`
	LiteralOutput     *struct{}           `xml:"LiteralOutput"`
	ComplexOutput     *xmlComplexData     `xml:"ComplexOutput"`
	BoundingBoxOutput *xmlBoundingBoxData `xml:"BoundingBoxOutput"`
}

type xmlDescribeProcessResponse struct {
	XMLName            xml.Name `xml:"ProcessDescriptions"`
	ProcessDescription struct {
		Identifier string `xml:"Identifier"`
		Title      string `xml:"Title"`
		DataInputs struct {
			Input []xmlInput `xml:"Input"`
		} `xml:"DataInputs"`
		ProcessOutputs struct {
			Output []xmlOutput `xml:"Output"`
		} `xml:"ProcessOutputs"`
	} `xml:"ProcessDescription"`
}

func classifyInput(in xmlInput) (DataType, xmlComplexData, xmlBoundingBoxData) {
	switch {
	case in.ComplexData != nil:
		return DataTypeComplex, *in.ComplexData, xmlBoundingBoxData{}
	case in.BoundingBoxData != nil:
		return DataTypeBBox, xmlComplexData{}, *in.BoundingBoxData
	default:
		return DataTypeString, xmlComplexData{}, xmlBoundingBoxData{}
	}
}

func classifyOutput(out xmlOutput) (DataType, xmlComplexData, xmlBoundingBoxData) {
	switch {
	case out.ComplexOutput != nil:
		return DataTypeComplex, *out.ComplexOutput, xmlBoundingBoxData{}
	case out.BoundingBoxOutput != nil:
		return DataTypeBBox, xmlComplexData{}, *out.BoundingBoxOutput
	default:
		return DataTypeString, xmlComplexData{}, xmlBoundingBoxData{}
	}
}

func mimetypesOf(c xmlComplexData) []string {
	mimes := make([]string, 0, len(c.Supported.Format))
	for _, f := range c.Supported.Format {
		mimes = append(mimes, f.MimeType)
	}
	return mimes
}

func parseDescribeProcess(url string, doc xmlDescribeProcessResponse) *ProcessDescription {
	pd := &ProcessDescription{
		URL:        url,
		Identifier: doc.ProcessDescription.Identifier,
		Title:      doc.ProcessDescription.Title,
		Inputs:     make(map[string]*InputDescriptor),
		Outputs:    make(map[string]*OutputDescriptor),
	}

	for _, in := range doc.ProcessDescription.DataInputs.Input {
		dt, complex, bbox := classifyInput(in)
		minOccurs := in.MinOccurs
		maxOccurs := in.MaxOccurs
		if maxOccurs == 0 {
			maxOccurs = 1
		}
		pd.Inputs[in.Identifier] = &InputDescriptor{
			Identifier:         in.Identifier,
			Title:              in.Title,
			DataType:           dt,
			DefaultMimeType:    complex.Default.Format.MimeType,
			DefaultSchema:      complex.Default.Format.Schema,
			DefaultEncoding:    complex.Default.Format.Encoding,
			SupportedMimetypes: mimetypesOf(complex),
			SupportedCRS:       bbox.Supported.CRS,
			MinOccurs:          minOccurs,
			MaxOccurs:          maxOccurs,
		}
	}

	for _, out := range doc.ProcessDescription.ProcessOutputs.Output {
		dt, complex, bbox := classifyOutput(out)
		pd.Outputs[out.Identifier] = &OutputDescriptor{
			Identifier:         out.Identifier,
			Title:              out.Title,
			DataType:           dt,
			DefaultMimeType:    complex.Default.Format.MimeType,
			SupportedMimetypes: mimetypesOf(complex),
			SupportedCRS:       bbox.Supported.CRS,
		}
	}

	return pd
}

type xmlExecuteResponse struct {
	XMLName        xml.Name `xml:"ExecuteResponse"`
	StatusLocation string   `xml:"statusLocation,attr"`
	Status         struct {
		ProcessAccepted  *string `xml:"ProcessAccepted"`
		ProcessStarted   *struct {
			Text             string `xml:",chardata"`
			PercentCompleted int    `xml:"percentCompleted,attr"`
		} `xml:"ProcessStarted"`
		ProcessSucceeded *string `xml:"ProcessSucceeded"`
		ProcessFailed    *struct {
			ExceptionReport struct {
				Exception []struct {
					ExceptionText []string `xml:"ExceptionText"`
				} `xml:"Exception"`
			} `xml:"ExceptionReport"`
		} `xml:"ProcessFailed"`
	} `xml:"Status"`
	ProcessOutputs struct {
		Output []struct {
			Identifier string `xml:"Identifier"`
			Title      string `xml:"Title"`
			Reference  *struct {
				Href     string `xml:"href,attr"`
				MimeType string `xml:"mimeType,attr"`
			} `xml:"Reference"`
			Data *struct {
				ComplexData *struct {
					MimeType string `xml:",attr"`
					Value    string `xml:",chardata"`
				} `xml:"ComplexData"`
				LiteralData *string `xml:"LiteralData"`
			} `xml:"Data"`
		} `xml:"Output"`
	} `xml:"ProcessOutputs"`
}

func parseExecuteResponse(doc xmlExecuteResponse) *ExecutionHandle {
	h := &ExecutionHandle{StatusLocation: doc.StatusLocation}

	switch {
	case doc.Status.ProcessSucceeded != nil:
		h.Status = StatusSucceeded
		h.StatusMessage = *doc.Status.ProcessSucceeded
		h.PercentCompleted = 100
	case doc.Status.ProcessFailed != nil:
		h.Status = StatusFailed
		for _, exc := range doc.Status.ProcessFailed.ExceptionReport.Exception {
			h.Errors = append(h.Errors, strings.Join(exc.ExceptionText, "; "))
		}
	case doc.Status.ProcessStarted != nil:
		h.Status = StatusStarted
		h.StatusMessage = strings.TrimSpace(doc.Status.ProcessStarted.Text)
		h.PercentCompleted = doc.Status.ProcessStarted.PercentCompleted
	default:
		h.Status = StatusAccepted
		if doc.Status.ProcessAccepted != nil {
			h.StatusMessage = *doc.Status.ProcessAccepted
		}
	}

	for _, out := range doc.ProcessOutputs.Output {
		ov := OutputValue{Identifier: out.Identifier, Title: out.Title}
		switch {
		case out.Reference != nil:
			ov.Reference = out.Reference.Href
			ov.MimeType = out.Reference.MimeType
			ov.DataType = DataTypeComplex
		case out.Data != nil && out.Data.ComplexData != nil:
			ov.Data = []string{out.Data.ComplexData.Value}
			ov.MimeType = out.Data.ComplexData.MimeType
			ov.DataType = DataTypeComplex
		case out.Data != nil && out.Data.LiteralData != nil:
			ov.Data = []string{*out.Data.LiteralData}
			ov.DataType = DataTypeString
		}
		h.ProcessOutputs = append(h.ProcessOutputs, ov)
	}

	return h
}

// buildExecuteRequest renders the WPS 1.0.0 Execute POST body.
func buildExecuteRequest(identifier string, inputs []InputValue, outputs []OutputRequest, machineID string) ([]byte, error) {
	type reqInput struct {
		Identifier string `xml:"Identifier"`
		Literal    string `xml:"Data>LiteralData,omitempty"`
		Reference  string `xml:"Reference,omitempty"`
	}
	type reqOutput struct {
		Identifier  string `xml:"Identifier"`
		AsReference bool   `xml:"asReference,attr"`
	}
	type request struct {
		XMLName    xml.Name `xml:"Execute"`
		Identifier string   `xml:"Identifier"`
		MachineID  string   `xml:"machineid,attr"`
		DataInputs struct {
			Input []reqInput `xml:"Input"`
		} `xml:"DataInputs"`
		ResponseForm struct {
			Output []reqOutput `xml:"Output"`
		} `xml:"ResponseForm"`
	}

	req := request{Identifier: identifier, MachineID: machineID}
	for _, in := range inputs {
		req.DataInputs.Input = append(req.DataInputs.Input, reqInput{
			Identifier: in.Identifier,
			Literal:    in.Literal,
			Reference:  in.Reference,
		})
	}
	for _, out := range outputs {
		req.ResponseForm.Output = append(req.ResponseForm.Output, reqOutput{
			Identifier:  out.Identifier,
			AsReference: out.AsReference,
		})
	}

	return xml.Marshal(req)
}

// parsePercent parses a percent value given as element text, returning
// 0 for empty or non-numeric input. The status parser above reads
// percentCompleted from its attribute and does not call it.
func parsePercent(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
