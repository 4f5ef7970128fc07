package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Initial scoring values for a freshly imported project.
const (
	DefaultMu      = 0.0
	DefaultSigmaSq = 1.0
)

// Project is a single submission to be judged.
type Project struct {
	ID            uuid.NullUUID `json:"id"`
	Name          string        `json:"name"`
	Location      int64         `json:"location"` // Table number, assigned by the slot allocator
	Description   string        `json:"description"`
	TryLink       pgtype.Text   `json:"try_link"`
	VideoLink     pgtype.Text   `json:"video_link"`
	ChallengeList []string      `json:"challenge_list"`
	Seen          int64         `json:"seen"`
	Votes         int64         `json:"votes"`
	Mu            float64       `json:"mu"`
	SigmaSq       float64       `json:"sigma_sq"`
	Active        bool          `json:"active"`
	Prioritized   bool          `json:"prioritized"`
	LastActivity  time.Time     `json:"last_activity"`
}

// ProjectDraft holds the mapped columns of a project before a table number
// has been allocated to it.
type ProjectDraft struct {
	Name          string
	Description   string
	TryLink       pgtype.Text
	VideoLink     pgtype.Text
	ChallengeList []string
}

// Build turns the draft into a project placed at location.
func (d ProjectDraft) Build(location int64, now time.Time) Project {
	return Project{
		Name:          d.Name,
		Location:      location,
		Description:   d.Description,
		TryLink:       d.TryLink,
		VideoLink:     d.VideoLink,
		ChallengeList: d.ChallengeList,
		Seen:          0,
		Votes:         0,
		Mu:            DefaultMu,
		SigmaSq:       DefaultSigmaSq,
		Active:        true,
		Prioritized:   false,
		LastActivity:  now,
	}
}

// Judge is a person invited to score projects.
type Judge struct {
	ID           uuid.NullUUID `json:"id"`
	Code         string        `json:"code"` // 6-digit login code
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	Role         string        `json:"role"`
	Active       bool          `json:"active"`
	ReadWelcome  bool          `json:"read_welcome"`
	Votes        int64         `json:"votes"`
	LastActivity time.Time     `json:"last_activity"`
}

// Options is the singleton settings record shared by every import.
type Options struct {
	NextSlot  int64     `json:"next_slot"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ImportReport is the accepted/rejected partition produced by one import.
// Rejected rows are the original field text joined with commas; Errors
// carries the matching RowError for each.
type ImportReport[T any] struct {
	Accepted []T
	Rejected []string
	Errors   []*RowError
}

// HasRejected reports whether any row was skipped.
func (r *ImportReport[T]) HasRejected() bool {
	return len(r.Rejected) > 0
}

// Summary returns a human-readable listing of the skipped rows.
func (r *ImportReport[T]) Summary() string {
	if !r.HasRejected() {
		return fmt.Sprintf("%d rows accepted", len(r.Accepted))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d rows accepted, %d rows skipped:", len(r.Accepted), len(r.Rejected))
	for _, row := range r.Rejected {
		b.WriteString("\n  - ")
		b.WriteString(row)
	}
	return b.String()
}

// Store is the persistence collaborator of the import pipeline.
// Each method is atomic at the single-call level. Insert methods fill in
// the ID of every record they store.
type Store interface {
	SlotAllocator
	InsertProjects(ctx context.Context, projects []Project) error
	InsertJudges(ctx context.Context, judges []Judge) error
	ListProjects(ctx context.Context) ([]Project, error)
	ListJudges(ctx context.Context) ([]Judge, error)
	Options(ctx context.Context) (Options, error)
	// Reset deletes all projects and judges and restarts the counter.
	Reset(ctx context.Context, startSlot int64) error
}

// ImportKind labels an import for logging and metrics.
type ImportKind string

const (
	KindDevpost ImportKind = "devpost"
	KindRoster  ImportKind = "roster"
	KindProject ImportKind = "project"
	KindJudge   ImportKind = "judge"
)
