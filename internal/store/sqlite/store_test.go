package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/jury/internal/core"
	"github.com/jackc/pgx/v5/pgtype"
)

func openTestStore(t *testing.T, start int64) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "jury.db"), start)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_LeaseSaveAndRelease(t *testing.T) {
	s := openTestStore(t, 1)
	ctx := context.Background()

	lease, err := s.AcquireSlots(ctx)
	if err != nil {
		t.Fatalf("AcquireSlots: %v", err)
	}
	lease.Next()
	lease.Next()
	lease.Release()

	opts, err := s.Options(ctx)
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.NextSlot != 1 {
		t.Errorf("NextSlot after Release = %d, want 1", opts.NextSlot)
	}

	lease, err = s.AcquireSlots(ctx)
	if err != nil {
		t.Fatalf("AcquireSlots: %v", err)
	}
	if got := lease.Next(); got != 1 {
		t.Errorf("Next = %d, want 1", got)
	}
	if err := lease.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	opts, _ = s.Options(ctx)
	if opts.NextSlot != 2 {
		t.Errorf("NextSlot after Save = %d, want 2", opts.NextSlot)
	}
}

func TestStore_LeaseIsExclusive(t *testing.T) {
	s := openTestStore(t, 0)

	held, err := s.AcquireSlots(context.Background())
	if err != nil {
		t.Fatalf("AcquireSlots: %v", err)
	}
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := s.AcquireSlots(ctx); !errors.Is(err, core.ErrAllocatorUnavailable) {
		t.Errorf("second AcquireSlots = %v, want ErrAllocatorUnavailable", err)
	}
}

func TestStore_ConcurrentImports(t *testing.T) {
	s := openTestStore(t, 10)
	sizes := []int{7, 4, 9}

	var wg sync.WaitGroup
	for b, n := range sizes {
		drafts := make([]core.ProjectDraft, n)
		for i := range drafts {
			drafts[i] = core.ProjectDraft{Name: strings.Repeat("x", b+1), Description: "d"}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			projects, err := core.PlaceProjects(context.Background(), s, drafts, time.Now(), true)
			if err != nil {
				t.Errorf("PlaceProjects: %v", err)
				return
			}
			if err := s.InsertProjects(context.Background(), projects); err != nil {
				t.Errorf("InsertProjects: %v", err)
			}
		}()
	}
	wg.Wait()

	stored, err := s.ListProjects(context.Background())
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	var locations []int64
	for _, p := range stored {
		locations = append(locations, p.Location)
	}
	want := make([]int64, 0, 20)
	for i := int64(10); i < 30; i++ {
		want = append(want, i)
	}
	if !slices.Equal(locations, want) {
		t.Errorf("locations = %v, want %v", locations, want)
	}

	opts, _ := s.Options(context.Background())
	if opts.NextSlot != 30 {
		t.Errorf("NextSlot = %d, want 30", opts.NextSlot)
	}
}

func TestStore_ProjectRoundTrip(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	in := []core.Project{
		core.ProjectDraft{
			Name:          "Smart Bin",
			Description:   "Sorts recycling",
			TryLink:       pgtype.Text{String: "https://try", Valid: true},
			ChallengeList: []string{"Best Hardware", ""},
		}.Build(3, now),
	}
	if err := s.InsertProjects(ctx, in); err != nil {
		t.Fatalf("InsertProjects: %v", err)
	}
	if !in[0].ID.Valid {
		t.Error("ID not filled in by InsertProjects")
	}

	out, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("ListProjects returned %d projects, want 1", len(out))
	}
	p := out[0]
	if p.ID != in[0].ID || p.Name != "Smart Bin" || p.Location != 3 {
		t.Errorf("project = %+v", p)
	}
	if p.TryLink != (pgtype.Text{String: "https://try", Valid: true}) {
		t.Errorf("TryLink = %+v", p.TryLink)
	}
	if p.VideoLink.Valid {
		t.Errorf("VideoLink = %+v, want absent", p.VideoLink)
	}
	if !slices.Equal(p.ChallengeList, []string{"Best Hardware", ""}) {
		t.Errorf("ChallengeList = %q", p.ChallengeList)
	}
	if !p.Active || p.SigmaSq != core.DefaultSigmaSq {
		t.Errorf("Active = %v, SigmaSq = %v", p.Active, p.SigmaSq)
	}
	if !p.LastActivity.Equal(now) {
		t.Errorf("LastActivity = %v, want %v", p.LastActivity, now)
	}
}

func TestStore_DuplicateLocation(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()

	if err := s.InsertProjects(ctx, []core.Project{{Name: "A", Location: 1}}); err != nil {
		t.Fatalf("InsertProjects: %v", err)
	}
	err := s.InsertProjects(ctx, []core.Project{{Name: "B", Location: 2}, {Name: "C", Location: 1}})
	if err == nil {
		t.Fatal("expected unique constraint error")
	}
	if code := core.MapError(err).Code; code != "DB001" {
		t.Errorf("MapError code = %s, want DB001 (err: %v)", code, err)
	}

	stored, _ := s.ListProjects(ctx)
	if len(stored) != 1 {
		t.Errorf("stored %d projects, want 1", len(stored))
	}
}

func TestStore_Judges(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()

	judges := []core.Judge{
		core.NewJudge("Ada", "a@x.com", "judge"),
		core.NewJudge("Bob", "b@x.com", "mentor"),
	}
	if err := s.InsertJudges(ctx, judges); err != nil {
		t.Fatalf("InsertJudges: %v", err)
	}

	out, err := s.ListJudges(ctx)
	if err != nil {
		t.Fatalf("ListJudges: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("ListJudges returned %d, want 2", len(out))
	}
	if out[0].Name != "Ada" || out[0].Code != judges[0].Code || out[0].ID != judges[0].ID {
		t.Errorf("first judge = %+v, want %+v", out[0], judges[0])
	}
	if !out[1].Active || !out[1].LastActivity.IsZero() {
		t.Errorf("second judge = %+v", out[1])
	}
}

func TestStore_Reset(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()

	_ = s.InsertProjects(ctx, []core.Project{{Name: "A", Location: 0}})
	_ = s.InsertJudges(ctx, []core.Judge{core.NewJudge("Ada", "a@x.com", "judge")})

	if err := s.Reset(ctx, 100); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	projects, _ := s.ListProjects(ctx)
	judges, _ := s.ListJudges(ctx)
	if len(projects) != 0 || len(judges) != 0 {
		t.Errorf("after Reset: %d projects, %d judges", len(projects), len(judges))
	}
	opts, _ := s.Options(ctx)
	if opts.NextSlot != 100 {
		t.Errorf("NextSlot = %d, want 100", opts.NextSlot)
	}
}

func TestOpen_KeepsExistingCounter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jury.db")
	ctx := context.Background()

	s, err := Open(ctx, path, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	lease, _ := s.AcquireSlots(ctx)
	lease.Next()
	if err := lease.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_ = s.Close()

	s, err = Open(ctx, path, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	opts, _ := s.Options(ctx)
	if opts.NextSlot != 2 {
		t.Errorf("NextSlot after reopen = %d, want 2", opts.NextSlot)
	}
}
