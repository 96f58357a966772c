// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package marshal implements the Output Marshaller: it turns a goja
// expression value into one of the typed output records the RPC surface
// returns to clients (text, JSON, HTML, image, or widget descriptor).
package marshal

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/dop251/goja"

	"github.com/aleutian-labs/cellrt/internal/widget"
)

// Kind is the output record's discriminant.
type Kind string

const (
	KindStdout           Kind = "STDOUT"
	KindStderr           Kind = "STDERR"
	KindExpressionResult Kind = "EXPRESSION_RESULT"
	KindError            Kind = "ERROR"
	KindHTML             Kind = "HTML"
	KindPlot             Kind = "PLOT"
	KindWidget           Kind = "WIDGET"
	KindWarning          Kind = "WARNING"
)

// DataType describes the shape of Output.Content/Data.
type DataType string

const (
	DataText   DataType = "TEXT_DATA"
	DataHTML   DataType = "HTML_DATA"
	DataJSON   DataType = "JSON_DATA"
	DataImage  DataType = "IMAGE_DATA"
	DataWidget DataType = "WIDGET_DATA"
)

// Output is a single typed result produced by a cell execution.
type Output struct {
	Kind     Kind              `json:"kind"`
	Content  string            `json:"content,omitempty"`
	Data     []byte            `json:"data,omitempty"`
	MimeType string            `json:"mimeType,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	DataType DataType          `json:"dataType"`
}

// Marshaller converts goja values into Output records, registering any
// widgets it encounters in reg.
type Marshaller struct {
	reg                   *widget.Registry
	summaryThresholdBytes int
}

// New returns a Marshaller backed by reg. summaryThresholdBytes caps how
// much numeric-array element content (§4.3 step 7) is emitted in full
// before it is summarised; 0 or negative disables summarisation.
func New(reg *widget.Registry, summaryThresholdBytes int) *Marshaller {
	return &Marshaller{reg: reg, summaryThresholdBytes: summaryThresholdBytes}
}

// Marshal implements the decision ladder: nil, widget, rich-HTML,
// tabular, plot figure, numeric array, JSON-able collection, reflective
// text fallback. The numeric-array check runs before JSON encoding
// because a shape/dtype object is itself a plain object. seen tracks object identity across a single cell's
// marshal calls so the same widget value is never rendered twice.
func (m *Marshaller) Marshal(value goja.Value, seen map[*goja.Object]bool) (Output, error) {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return Output{Kind: KindExpressionResult, Content: "None", DataType: DataText}, nil
	}

	if obj, ok := value.(*goja.Object); ok {
		if out, handled, err := m.marshalWidget(obj, seen); handled {
			return out, err
		}
		if out, handled, err := m.marshalHTML(obj); handled {
			return out, err
		}
		if out, handled, err := m.marshalTabular(obj); handled {
			return out, err
		}
		if out, handled, err := m.marshalFigure(obj, seen); handled {
			return out, err
		}
		if out, handled := m.marshalNumericArray(obj); handled {
			return out, nil
		}
	}

	if out, handled := m.marshalJSONable(value); handled {
		return out, nil
	}

	return Output{Kind: KindExpressionResult, Content: value.String(), DataType: DataText}, nil
}

func (m *Marshaller) marshalWidget(obj *goja.Object, seen map[*goja.Object]bool) (Output, bool, error) {
	wType := obj.Get("__widgetType")
	if wType == nil || goja.IsUndefined(wType) {
		return Output{}, false, nil
	}
	if seen[obj] {
		return Output{Kind: KindExpressionResult, Content: "<widget already displayed this cell>", DataType: DataText}, true, nil
	}
	seen[obj] = true

	properties, _ := obj.Get("__widgetProps").Export().(map[string]any)
	value := obj.Get("__widgetValue").Export()

	w, err := m.reg.Register(wType.String(), properties, value)
	if err != nil {
		return Output{}, true, err
	}
	descriptor, err := json.Marshal(w)
	if err != nil {
		return Output{}, true, err
	}
	return Output{Kind: KindWidget, Content: string(descriptor), MimeType: "application/json", DataType: DataWidget}, true, nil
}

func (m *Marshaller) marshalHTML(obj *goja.Object) (Output, bool, error) {
	fn, ok := goja.AssertFunction(obj.Get("toHTML"))
	if !ok {
		return Output{}, false, nil
	}
	result, err := fn(obj)
	if err != nil {
		return Output{}, true, err
	}
	return Output{Kind: KindExpressionResult, Content: result.String(), MimeType: "text/html", DataType: DataHTML}, true, nil
}

func (m *Marshaller) marshalTabular(obj *goja.Object) (Output, bool, error) {
	shape := obj.Get("shape")
	textFn, hasText := goja.AssertFunction(obj.Get("toText"))
	if shape == nil || goja.IsUndefined(shape) || !hasText {
		return Output{}, false, nil
	}
	if htmlFn, ok := goja.AssertFunction(obj.Get("toHTML")); ok {
		if result, err := htmlFn(obj); err == nil {
			return Output{Kind: KindExpressionResult, Content: result.String(), MimeType: "text/html", DataType: DataHTML}, true, nil
		}
	}
	result, err := textFn(obj)
	if err != nil {
		return Output{}, true, err
	}
	return Output{Kind: KindExpressionResult, Content: result.String(), MimeType: "text/plain", DataType: DataText}, true, nil
}

func (m *Marshaller) marshalFigure(obj *goja.Object, seen map[*goja.Object]bool) (Output, bool, error) {
	fn, ok := goja.AssertFunction(obj.Get("toPNGBase64"))
	if !ok {
		return Output{}, false, nil
	}
	seen[obj] = true
	result, err := fn(obj)
	if err != nil {
		return Output{}, true, err
	}
	b64 := result.String()
	return Output{
		Kind:     KindPlot,
		Content:  "data:image/png;base64," + b64,
		MimeType: "image/png",
		DataType: DataImage,
	}, true, nil
}

func (m *Marshaller) marshalNumericArray(obj *goja.Object) (Output, bool) {
	shape := obj.Get("shape")
	dtype := obj.Get("dtype")
	if shape == nil || goja.IsUndefined(shape) || dtype == nil || goja.IsUndefined(dtype) {
		return Output{}, false
	}
	data := obj.Get("data")
	header := fmt.Sprintf("shape=%s, dtype=%s", shape.String(), dtype.String())
	content := header
	if data != nil && !goja.IsUndefined(data) {
		content = header + "\n" + m.summarizeElements(data.String())
	}
	return Output{Kind: KindExpressionResult, Content: content, MimeType: "text/plain", DataType: DataText}, true
}

// summarizeElements returns body unchanged when it fits within the
// configured threshold, otherwise truncates it and notes how much was
// dropped — the "full or summarised element content depending on size"
// branch of the numeric-array decision step.
func (m *Marshaller) summarizeElements(body string) string {
	if m.summaryThresholdBytes <= 0 || len(body) <= m.summaryThresholdBytes {
		return body
	}
	return fmt.Sprintf("%s ... (%d more bytes, %d total)", body[:m.summaryThresholdBytes], len(body)-m.summaryThresholdBytes, len(body))
}

func (m *Marshaller) marshalJSONable(value goja.Value) (Output, bool) {
	exported := value.Export()
	if exported == nil {
		return Output{}, false
	}
	kind := reflect.ValueOf(exported).Kind()
	if kind != reflect.Slice && kind != reflect.Map {
		return Output{}, false
	}
	encoded, err := json.MarshalIndent(exported, "", "  ")
	if err != nil {
		return Output{Kind: KindExpressionResult, Content: fmt.Sprint(exported), DataType: DataText}, true
	}
	return Output{Kind: KindExpressionResult, Content: string(encoded), MimeType: "application/json", DataType: DataJSON}, true
}

// Base64Encode returns the standard base64 encoding of raw. It does not
// add the "data:image/png;base64," prefix that marshalFigure puts in
// front of a figure's encoding.
func Base64Encode(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}
