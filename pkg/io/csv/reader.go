// Package csv reads transaction tables from and writes scored batches to CSV.
package csv

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/hed1ad/fraudshield/pkg/features"
	fsio "github.com/hed1ad/fraudshield/pkg/io"
	"github.com/hed1ad/fraudshield/pkg/pipeline"
)

var (
	_ fsio.Reader = (*Reader)(nil)
	_ fsio.Writer = (*Writer)(nil)
)

const bom = "\ufeff"

// Reader reads a header row followed by data rows.
type Reader struct {
	file   *os.File
	reader *csv.Reader
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithComma sets the field delimiter.
func WithComma(r rune) Option {
	return func(rd *Reader) {
		rd.reader.Comma = r
	}
}

// NewReader creates a reader over src.
func NewReader(src io.Reader, opts ...Option) *Reader {
	r := &Reader{reader: csv.NewReader(src)}
	// short rows surface as missing values during intake
	r.reader.FieldsPerRecord = -1

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open creates a reader over the named file.
func Open(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %s", filename)
	}

	r := NewReader(file, opts...)
	r.file = file
	return r, nil
}

// Read returns the whole table. Input without a header yields an empty
// table. Cells are kept as text.
func (r *Reader) Read() (features.Table, error) {
	header, err := r.reader.Read()
	if err == io.EOF {
		return features.Table{}, nil
	}
	if err != nil {
		return features.Table{}, errors.Wrap(err, "error reading header")
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], bom)
	}

	t := features.Table{Columns: header}
	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return features.Table{}, errors.Wrap(err, "error reading row")
		}
		if len(record) > len(header) {
			line, _ := r.reader.FieldPos(0)
			return features.Table{}, errors.Errorf("line %d: %d fields, header has %d", line, len(record), len(header))
		}
		t.Rows = append(t.Rows, record)
	}
	return t, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Writer writes scored batches: original columns first, then the score columns.
type Writer struct {
	w *csv.Writer
}

// NewWriter creates a writer over dst.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{w: csv.NewWriter(dst)}
}

// Write outputs res with a header row.
func (w *Writer) Write(res *pipeline.Result) error {
	if err := w.w.Write(res.Header()); err != nil {
		return errors.Wrap(err, "error writing header")
	}
	for _, row := range res.Rows {
		if err := w.w.Write(row.Strings()); err != nil {
			return errors.Wrap(err, "error writing row")
		}
	}
	w.w.Flush()
	return errors.Wrap(w.w.Error(), "error flushing csv")
}
