// Package io provides input/output utilities for transaction batches.
package io

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/hed1ad/fraudshield/pkg/features"
	"github.com/hed1ad/fraudshield/pkg/pipeline"
)

// Reader is the interface for reading a transaction batch.
type Reader interface {
	// Read returns the complete table.
	Read() (features.Table, error)
}

// Writer is the interface for writing scored batches.
type Writer interface {
	// Write outputs a scored batch.
	Write(res *pipeline.Result) error
}

// Report is the JSON form of a scored batch.
type Report struct {
	Summary     pipeline.Summary  `json:"summary"`
	Predictions []pipeline.Record `json:"predictions"`
}

// NewReport builds the JSON form of res.
func NewReport(res *pipeline.Result) Report {
	return Report{Summary: res.Summary, Predictions: res.Records()}
}

// JSONWriter writes scored batches as a Report.
type JSONWriter struct {
	w      io.Writer
	indent bool
}

// NewJSONWriter creates a JSONWriter. Indented output is meant for terminals.
func NewJSONWriter(w io.Writer, indent bool) *JSONWriter {
	return &JSONWriter{w: w, indent: indent}
}

// Write outputs res as a single JSON document.
func (j *JSONWriter) Write(res *pipeline.Result) error {
	enc := json.NewEncoder(j.w)
	if j.indent {
		enc.SetIndent("", "  ")
	}
	return errors.Wrap(enc.Encode(NewReport(res)), "error encoding report")
}

var _ Writer = (*JSONWriter)(nil)
