package core

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

const devpostHeader = `Project Title,Submission Url,Project Status,Judging Status,Highest Step Completed,Project Created At,About The Project,"""Try it out"" Links",Video Demo Link,Opt-In Prizes,Built With,Notes,Team Colleges/Universities` + "\n"

// devpostRow builds a 13-column export row with the mapped columns filled in.
func devpostRow(title, about, try, video, prizes string) string {
	cols := []string{title, "https://devpost.com/x", "Submitted", "Pending", "Submit", "2024-01-01", about, try, video, prizes, "go", "", ""}
	for i, c := range cols {
		if strings.ContainsAny(c, ",\"\n") {
			cols[i] = `"` + strings.ReplaceAll(c, `"`, `""`) + `"`
		}
	}
	return strings.Join(cols, ",") + "\n"
}

var testNow = time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

// failingAllocator never hands out a lease.
type failingAllocator struct{ calls int }

func (f *failingAllocator) AcquireSlots(ctx context.Context) (SlotLease, error) {
	f.calls++
	return nil, ErrAllocatorUnavailable
}

// saveFailingAllocator hands out leases that cannot be saved.
type saveFailingAllocator struct{ released bool }

func (f *saveFailingAllocator) AcquireSlots(ctx context.Context) (SlotLease, error) {
	return &saveFailingLease{parent: f}, nil
}

type saveFailingLease struct {
	parent *saveFailingAllocator
	next   int64
}

func (l *saveFailingLease) Next() int64 { l.next++; return l.next - 1 }
func (l *saveFailingLease) Save(ctx context.Context) error {
	return errors.Join(ErrAllocatorUnavailable, errors.New("write failed"))
}
func (l *saveFailingLease) Release() { l.parent.released = true }

func TestImportDevpost_ContiguousSlots(t *testing.T) {
	alloc := NewMemoryAllocator(5)
	text := devpostHeader +
		devpostRow("Alpha", "first", "", "", "") +
		devpostRow("Beta", "second", "", "", "") +
		devpostRow("Gamma", "third", "", "", "")

	report, err := ImportDevpost(context.Background(), strings.NewReader(text), alloc, testNow)
	if err != nil {
		t.Fatalf("ImportDevpost: %v", err)
	}

	if len(report.Accepted) != 3 {
		t.Fatalf("accepted %d projects, want 3", len(report.Accepted))
	}
	for i, p := range report.Accepted {
		if want := int64(5 + i); p.Location != want {
			t.Errorf("project %d Location = %d, want %d", i, p.Location, want)
		}
	}
	if got := alloc.State().NextSlot; got != 8 {
		t.Errorf("NextSlot = %d, want 8", got)
	}
	if report.HasRejected() {
		t.Errorf("Rejected = %q, want none", report.Rejected)
	}
}

func TestImportDevpost_ShortRowSkipped(t *testing.T) {
	alloc := NewMemoryAllocator(1)
	text := devpostHeader +
		devpostRow("Alpha", "first", "", "", "") +
		"Broken,only,three\n" +
		devpostRow("Gamma", "third", "", "", "")

	report, err := ImportDevpost(context.Background(), strings.NewReader(text), alloc, testNow)
	if err != nil {
		t.Fatalf("ImportDevpost: %v", err)
	}

	if !reflect.DeepEqual(report.Rejected, []string{"Broken,only,three"}) {
		t.Errorf("Rejected = %q, want [Broken,only,three]", report.Rejected)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("Errors = %v, want one", report.Errors)
	}
	if rowErr := report.Errors[0]; rowErr.Line != 3 || rowErr.Want != devpostMinColumns || rowErr.Exact {
		t.Errorf("Errors[0] = %+v, want line 3, at least %d columns", rowErr, devpostMinColumns)
	}
	if got := report.Errors[0].Error(); !strings.HasPrefix(got, "expected at least 13 columns, got 3") {
		t.Errorf("Errors[0].Error() = %q", got)
	}

	var names []string
	var slots []int64
	for _, p := range report.Accepted {
		names = append(names, p.Name)
		slots = append(slots, p.Location)
	}
	if !reflect.DeepEqual(names, []string{"Alpha", "Gamma"}) {
		t.Errorf("names = %q, want [Alpha Gamma]", names)
	}
	if !reflect.DeepEqual(slots, []int64{1, 2}) {
		t.Errorf("slots = %v, want [1 2]", slots)
	}
	if got := alloc.State().NextSlot; got != 3 {
		t.Errorf("NextSlot = %d, want 3", got)
	}
}

func TestImportDevpost_FieldMapping(t *testing.T) {
	text := devpostHeader + devpostRow("Smart Bin", "Sorts recycling", "https://try.example", "https://video.example", "Best Hardware,Best Use of AI")

	report, err := ImportDevpost(context.Background(), strings.NewReader(text), NewMemoryAllocator(0), testNow)
	if err != nil {
		t.Fatalf("ImportDevpost: %v", err)
	}
	p := report.Accepted[0]

	if p.Name != "Smart Bin" || p.Description != "Sorts recycling" {
		t.Errorf("Name, Description = %q, %q", p.Name, p.Description)
	}
	if !p.TryLink.Valid || p.TryLink.String != "https://try.example" {
		t.Errorf("TryLink = %+v, want https://try.example", p.TryLink)
	}
	if !p.VideoLink.Valid || p.VideoLink.String != "https://video.example" {
		t.Errorf("VideoLink = %+v, want https://video.example", p.VideoLink)
	}
	if !reflect.DeepEqual(p.ChallengeList, []string{"Best Hardware", "Best Use of AI"}) {
		t.Errorf("ChallengeList = %q", p.ChallengeList)
	}
	if p.Seen != 0 || p.Votes != 0 || p.Mu != DefaultMu || p.SigmaSq != DefaultSigmaSq {
		t.Errorf("scoring defaults = seen %d votes %d mu %v sigma %v", p.Seen, p.Votes, p.Mu, p.SigmaSq)
	}
	if !p.Active || p.Prioritized {
		t.Errorf("Active, Prioritized = %v, %v, want true, false", p.Active, p.Prioritized)
	}
	if !p.LastActivity.Equal(testNow) {
		t.Errorf("LastActivity = %v, want %v", p.LastActivity, testNow)
	}
	if p.ID.Valid {
		t.Error("ID should be absent before the project is stored")
	}
}

func TestImportDevpost_ChallengeSplit(t *testing.T) {
	tests := []struct {
		name   string
		prizes string
		want   []string
	}{
		{"three", "A,B,C", []string{"A", "B", "C"}},
		{"empty", "", []string{""}},
		{"kept verbatim", " A, A ,", []string{" A", " A ", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := devpostHeader + devpostRow("P", "d", "", "", tt.prizes)
			report, err := ImportDevpost(context.Background(), strings.NewReader(text), NewMemoryAllocator(0), testNow)
			if err != nil {
				t.Fatalf("ImportDevpost: %v", err)
			}
			if got := report.Accepted[0].ChallengeList; !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ChallengeList = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestImportDevpost_OptionalLinks(t *testing.T) {
	tests := []struct {
		name      string
		try       string
		wantValid bool
	}{
		{"empty is absent", "", false},
		{"whitespace kept", "  ", true},
		{"value kept exactly", "http://x ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := devpostHeader + devpostRow("P", "d", tt.try, tt.try, "")
			report, err := ImportDevpost(context.Background(), strings.NewReader(text), NewMemoryAllocator(0), testNow)
			if err != nil {
				t.Fatalf("ImportDevpost: %v", err)
			}
			p := report.Accepted[0]
			for _, link := range []struct {
				field string
				valid bool
				value string
			}{
				{"TryLink", p.TryLink.Valid, p.TryLink.String},
				{"VideoLink", p.VideoLink.Valid, p.VideoLink.String},
			} {
				if link.valid != tt.wantValid {
					t.Errorf("%s.Valid = %v, want %v", link.field, link.valid, tt.wantValid)
				}
				if link.valid && link.value != tt.try {
					t.Errorf("%s = %q, want %q", link.field, link.value, tt.try)
				}
			}
		})
	}
}

func TestImportDevpost_ExtraColumnsIgnored(t *testing.T) {
	row := strings.TrimSuffix(devpostRow("Wide", "d", "", "", "X"), "\n") + ",Q1 answer,Q2 answer\n"
	report, err := ImportDevpost(context.Background(), strings.NewReader(devpostHeader+row), NewMemoryAllocator(0), testNow)
	if err != nil {
		t.Fatalf("ImportDevpost: %v", err)
	}
	if len(report.Accepted) != 1 || report.Accepted[0].Name != "Wide" {
		t.Errorf("Accepted = %+v, want one project named Wide", report.Accepted)
	}
}

func TestImportDevpost_MalformedNeverTouchesAllocator(t *testing.T) {
	alloc := &failingAllocator{}
	text := devpostHeader + devpostRow("A", "d", "", "", "") + "\"unterminated,row\n"

	_, err := ImportDevpost(context.Background(), strings.NewReader(text), alloc, testNow)
	if !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("error = %v, want ErrMalformedInput", err)
	}
	if alloc.calls != 0 {
		t.Errorf("allocator called %d times, want 0", alloc.calls)
	}
}

func TestImportDevpost_AllocatorUnavailable(t *testing.T) {
	text := devpostHeader + devpostRow("A", "d", "", "", "")

	_, err := ImportDevpost(context.Background(), strings.NewReader(text), &failingAllocator{}, testNow)
	if !errors.Is(err, ErrAllocatorUnavailable) {
		t.Errorf("error = %v, want ErrAllocatorUnavailable", err)
	}

	saveFails := &saveFailingAllocator{}
	report, err := ImportDevpost(context.Background(), strings.NewReader(text), saveFails, testNow)
	if !errors.Is(err, ErrAllocatorUnavailable) {
		t.Errorf("error = %v, want ErrAllocatorUnavailable", err)
	}
	if report != nil {
		t.Errorf("report = %+v, want nil when save fails", report)
	}
	if !saveFails.released {
		t.Error("lease was not released after a failed save")
	}
}

func TestImportDevpost_CancelledBeforeSave(t *testing.T) {
	alloc := NewMemoryAllocator(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ImportDevpost(ctx, strings.NewReader(devpostHeader+devpostRow("A", "d", "", "", "")), alloc, testNow)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if got := alloc.State().NextSlot; got != 10 {
		t.Errorf("NextSlot = %d, want 10 (unchanged)", got)
	}
}

func TestPlaceProjects_NoSaveLeavesCounter(t *testing.T) {
	alloc := NewMemoryAllocator(20)
	drafts := []ProjectDraft{{Name: "A"}, {Name: "B"}}

	projects, err := PlaceProjects(context.Background(), alloc, drafts, testNow, false)
	if err != nil {
		t.Fatalf("PlaceProjects: %v", err)
	}
	if projects[0].Location != 20 || projects[1].Location != 21 {
		t.Errorf("locations = %d, %d, want 20, 21", projects[0].Location, projects[1].Location)
	}
	if got := alloc.State().NextSlot; got != 20 {
		t.Errorf("NextSlot = %d, want 20", got)
	}

	// The lease was released, so the next batch can proceed.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := PlaceProjects(ctx, alloc, drafts, testNow, true); err != nil {
		t.Fatalf("PlaceProjects after preview: %v", err)
	}
	if got := alloc.State().NextSlot; got != 22 {
		t.Errorf("NextSlot = %d, want 22", got)
	}
}

func TestImportDevpost_EmptyExport(t *testing.T) {
	alloc := NewMemoryAllocator(3)
	report, err := ImportDevpost(context.Background(), strings.NewReader(devpostHeader), alloc, testNow)
	if err != nil {
		t.Fatalf("ImportDevpost: %v", err)
	}
	if len(report.Accepted) != 0 || report.HasRejected() {
		t.Errorf("report = %+v, want empty", report)
	}
	if got := alloc.State().NextSlot; got != 3 {
		t.Errorf("NextSlot = %d, want 3", got)
	}
}
