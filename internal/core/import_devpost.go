package core

// import_devpost.go maps a Devpost submissions export onto projects.
//
// Export columns (0-indexed):
//
//	0      Project Title            -> Name
//	1-5    URL, status, judging     (ignored)
//	6      About The Project        -> Description
//	7      "Try it out" Links       -> TryLink (optional)
//	8      Video Demo Link          -> VideoLink (optional)
//	9      Opt-In Prizes            -> ChallengeList (comma separated)
//	10-13  Built With, notes, ...   (ignored)
//	14+    custom questions         (ignored)
//
// Rows shorter than devpostMinColumns are skipped and reported; they never
// consume a table number.

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

const devpostMinColumns = 13

const (
	devpostColTitle       = 0
	devpostColDescription = 6
	devpostColTryLink     = 7
	devpostColVideoLink   = 8
	devpostColChallenges  = 9
)

// ParseDevpost maps every data row of an export to a draft. Short rows are
// collected in Rejected and skipped. The header row is always discarded.
func ParseDevpost(rows *RowReader) (*ImportReport[ProjectDraft], error) {
	report := &ImportReport[ProjectDraft]{}
	for {
		row, err := rows.Read()
		if errors.Is(err, io.EOF) {
			return report, nil
		}
		if err != nil {
			return nil, err
		}

		draft, rowErr := devpostDraft(row)
		if rowErr != nil {
			rowErr.Line = rows.Line()
			report.Rejected = append(report.Rejected, joinRow(row))
			report.Errors = append(report.Errors, rowErr)
			continue
		}
		report.Accepted = append(report.Accepted, draft)
	}
}

func devpostDraft(row []string) (ProjectDraft, *RowError) {
	if len(row) < devpostMinColumns {
		return ProjectDraft{}, &RowError{Row: row, Want: devpostMinColumns}
	}
	return ProjectDraft{
		Name:          row[devpostColTitle],
		Description:   row[devpostColDescription],
		TryLink:       ToPgText(row[devpostColTryLink]),
		VideoLink:     ToPgText(row[devpostColVideoLink]),
		ChallengeList: strings.Split(row[devpostColChallenges], ","),
	}, nil
}

// PlaceProjects assigns consecutive table numbers to drafts in order, using a
// single lease on alloc. When save is false the lease is released and the
// persisted counter does not move (used for previews).
func PlaceProjects(ctx context.Context, alloc SlotAllocator, drafts []ProjectDraft, now time.Time, save bool) ([]Project, error) {
	lease, err := alloc.AcquireSlots(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	projects := make([]Project, 0, len(drafts))
	for _, d := range drafts {
		projects = append(projects, d.Build(lease.Next(), now))
	}

	if save {
		if err := lease.Save(ctx); err != nil {
			return nil, err
		}
	}
	return projects, nil
}

// ImportDevpost parses a Devpost export and places every accepted project.
// The allocator is saved exactly once. Rejected rows are returned in the
// report and do not fail the import.
func ImportDevpost(ctx context.Context, r io.Reader, alloc SlotAllocator, now time.Time) (*ImportReport[Project], error) {
	parsed, err := ParseDevpost(NewRowReader(r, true))
	if err != nil {
		return nil, err
	}

	projects, err := PlaceProjects(ctx, alloc, parsed.Accepted, now, true)
	if err != nil {
		return nil, err
	}

	return &ImportReport[Project]{
		Accepted: projects,
		Rejected: parsed.Rejected,
		Errors:   parsed.Errors,
	}, nil
}
