package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedInput is returned when the text cannot be tokenized as CSV.
	// It aborts the whole import.
	ErrMalformedInput = errors.New("malformed csv input")

	// ErrFieldCount marks a row whose field count does not match the format.
	ErrFieldCount = errors.New("row field count mismatch")

	// ErrAllocatorUnavailable is returned when the shared table counter
	// cannot be loaded or saved.
	ErrAllocatorUnavailable = errors.New("slot allocator unavailable")

	// ErrInvalidRequest marks a single-record request that failed validation.
	ErrInvalidRequest = errors.New("invalid request")
)

// RowError describes a single row rejected for its field count.
type RowError struct {
	Row   []string
	Line  int // input line the row started on
	Want  int
	Exact bool // Want is an exact count rather than a minimum
}

func (e *RowError) Error() string {
	qualifier := "at least "
	if e.Exact {
		qualifier = ""
	}
	return fmt.Sprintf("expected %s%d columns, got %d: %s", qualifier, e.Want, len(e.Row), joinRow(e.Row))
}

func (e *RowError) Unwrap() error {
	return ErrFieldCount
}

// BatchRejectedError is returned by importers that refuse the whole batch
// when any row is bad. First is the first rejected row, verbatim; Rows holds
// the detail for every rejected row in input order.
type BatchRejectedError struct {
	First    string
	Rejected []string
	Rows     []*RowError
}

func (e *BatchRejectedError) Error() string {
	return "unable to parse CSV, first error on line: " + e.First
}

func (e *BatchRejectedError) Unwrap() error {
	return ErrFieldCount
}

// joinRow rebuilds the raw text of a row for diagnostics.
func joinRow(row []string) string {
	return strings.Join(row, ",")
}
