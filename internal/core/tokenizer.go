package core

// tokenizer.go splits raw CSV bodies into rows of fields.
//
// Rows are produced lazily, one Read at a time, so an importer never holds
// more than the current row plus its own output. Tokenizing is restartable by
// building a new RowReader over the same text; no state is shared between
// readers.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// RowReader yields the data rows of a CSV body.
type RowReader struct {
	csv        *csv.Reader
	skipHeader bool
	line       int
}

// NewRowReader creates a reader over r. When hasHeader is true the first row
// is discarded without being validated.
func NewRowReader(r io.Reader, hasHeader bool) *RowReader {
	cr := csv.NewReader(wrapInput(r))
	cr.FieldsPerRecord = -1 // field counts are checked by the importers
	cr.LazyQuotes = false   // an unterminated quote must fail
	return &RowReader{
		csv:        cr,
		skipHeader: hasHeader,
	}
}

// TokenizeString is a convenience wrapper for in-memory text.
func TokenizeString(text string, hasHeader bool) *RowReader {
	return NewRowReader(strings.NewReader(text), hasHeader)
}

// Read returns the next data row, or io.EOF when the input is exhausted.
// Parse failures are wrapped in ErrMalformedInput.
func (r *RowReader) Read() ([]string, error) {
	if r.skipHeader {
		r.skipHeader = false
		if _, err := r.next(); err != nil {
			return nil, err
		}
	}
	return r.next()
}

// ReadAll drains the reader.
func (r *RowReader) ReadAll() ([][]string, error) {
	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

// Line returns the 1-indexed input line of the last row read.
func (r *RowReader) Line() int {
	return r.line
}

func (r *RowReader) next() ([]string, error) {
	row, err := r.csv.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	r.line, _ = r.csv.FieldPos(0)
	return row, nil
}
