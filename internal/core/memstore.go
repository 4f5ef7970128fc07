package core

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryStore keeps every record in process memory. It is selected with
// STORE_DRIVER=memory and is lost on restart.
type MemoryStore struct {
	*MemoryAllocator

	mu        sync.RWMutex
	projects  []Project
	judges    []Judge
	locations map[int64]struct{}
}

// NewMemoryStore creates an empty store whose first table number is startSlot.
func NewMemoryStore(startSlot int64) *MemoryStore {
	return &MemoryStore{
		MemoryAllocator: NewMemoryAllocator(startSlot),
		locations:       make(map[int64]struct{}),
	}
}

// InsertProjects stores projects atomically and fills in missing IDs.
// A table number already in use fails the whole call.
func (s *MemoryStore) InsertProjects(ctx context.Context, projects []Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]struct{}, len(projects))
	for _, p := range projects {
		if _, dup := s.locations[p.Location]; dup {
			return fmt.Errorf("insert projects: duplicate key value for location %d", p.Location)
		}
		if _, dup := seen[p.Location]; dup {
			return fmt.Errorf("insert projects: duplicate key value for location %d", p.Location)
		}
		seen[p.Location] = struct{}{}
	}

	for i := range projects {
		if !projects[i].ID.Valid {
			projects[i].ID = NewID()
		}
		p := projects[i]
		p.ChallengeList = slices.Clone(p.ChallengeList)
		s.projects = append(s.projects, p)
		s.locations[p.Location] = struct{}{}
	}
	return nil
}

// InsertJudges stores judges atomically and fills in missing IDs.
func (s *MemoryStore) InsertJudges(ctx context.Context, judges []Judge) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range judges {
		if !judges[i].ID.Valid {
			judges[i].ID = NewID()
		}
		s.judges = append(s.judges, judges[i])
	}
	return nil
}

// ListProjects returns all projects ordered by table number.
func (s *MemoryStore) ListProjects(ctx context.Context) ([]Project, error) {
	s.mu.RLock()
	out := slices.Clone(s.projects)
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Project) int {
		return cmp.Compare(a.Location, b.Location)
	})
	return out, nil
}

// ListJudges returns all judges in insertion order.
func (s *MemoryStore) ListJudges(ctx context.Context) ([]Judge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.judges), nil
}

// Options returns the allocator state.
func (s *MemoryStore) Options(ctx context.Context) (Options, error) {
	return s.State(), nil
}

// Reset clears every record and sets the counter to startSlot.
func (s *MemoryStore) Reset(ctx context.Context, startSlot int64) error {
	return s.reset(ctx, startSlot, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.projects = nil
		s.judges = nil
		s.locations = make(map[int64]struct{})
	})
}
