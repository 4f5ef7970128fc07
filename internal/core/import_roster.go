package core

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
)

const rosterColumns = 3

// NewJudge creates an active judge with a fresh login code.
// Fields are trimmed of surrounding whitespace.
func NewJudge(name, email, role string) Judge {
	return Judge{
		Code:   newLoginCode(),
		Name:   strings.TrimSpace(name),
		Email:  strings.TrimSpace(email),
		Role:   strings.TrimSpace(role),
		Active: true,
	}
}

// newLoginCode returns a 6-digit code between 100000 and 999999.
func newLoginCode() string {
	return fmt.Sprintf("%d", rand.Intn(900000)+100000)
}

// ImportRoster parses a name,email,role roster. Every row is checked; if any
// row does not have exactly three fields the whole batch is refused with a
// *BatchRejectedError naming the first bad row, and no judges are returned.
func ImportRoster(r io.Reader, hasHeader bool) (*ImportReport[Judge], error) {
	rows := NewRowReader(r, hasHeader)
	report := &ImportReport[Judge]{}

	for {
		row, err := rows.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if len(row) != rosterColumns {
			report.Rejected = append(report.Rejected, joinRow(row))
			report.Errors = append(report.Errors, &RowError{
				Row:   row,
				Line:  rows.Line(),
				Want:  rosterColumns,
				Exact: true,
			})
			continue
		}
		report.Accepted = append(report.Accepted, NewJudge(row[0], row[1], row[2]))
	}

	if report.HasRejected() {
		return nil, &BatchRejectedError{
			First:    report.Rejected[0],
			Rejected: report.Rejected,
			Rows:     report.Errors,
		}
	}
	return report, nil
}
