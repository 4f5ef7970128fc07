package core

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestMemoryAllocator_LeaseLifecycle(t *testing.T) {
	alloc := NewMemoryAllocator(7)
	ctx := context.Background()

	lease, err := alloc.AcquireSlots(ctx)
	if err != nil {
		t.Fatalf("AcquireSlots: %v", err)
	}
	if got := lease.Next(); got != 7 {
		t.Errorf("first Next = %d, want 7", got)
	}
	if got := lease.Next(); got != 8 {
		t.Errorf("second Next = %d, want 8", got)
	}
	if got := alloc.State().NextSlot; got != 7 {
		t.Errorf("NextSlot before Save = %d, want 7", got)
	}

	if err := lease.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	lease.Release() // no-op after Save

	state := alloc.State()
	if state.NextSlot != 9 {
		t.Errorf("NextSlot after Save = %d, want 9", state.NextSlot)
	}
	if state.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set by Save")
	}

	if err := lease.Save(ctx); !errors.Is(err, ErrAllocatorUnavailable) {
		t.Errorf("second Save = %v, want ErrAllocatorUnavailable", err)
	}
}

func TestMemoryAllocator_ReleaseDiscards(t *testing.T) {
	alloc := NewMemoryAllocator(0)

	lease, err := alloc.AcquireSlots(context.Background())
	if err != nil {
		t.Fatalf("AcquireSlots: %v", err)
	}
	lease.Next()
	lease.Next()
	lease.Release()

	if got := alloc.State().NextSlot; got != 0 {
		t.Errorf("NextSlot = %d, want 0", got)
	}

	next, err := alloc.AcquireSlots(context.Background())
	if err != nil {
		t.Fatalf("AcquireSlots after Release: %v", err)
	}
	defer next.Release()
	if got := next.Next(); got != 0 {
		t.Errorf("Next = %d, want 0", got)
	}
}

func TestMemoryAllocator_Exclusive(t *testing.T) {
	alloc := NewMemoryAllocator(0)

	held, err := alloc.AcquireSlots(context.Background())
	if err != nil {
		t.Fatalf("AcquireSlots: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = alloc.AcquireSlots(ctx)
	if !errors.Is(err, ErrAllocatorUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("AcquireSlots while held = %v, want ErrAllocatorUnavailable wrapping DeadlineExceeded", err)
	}

	held.Release()
}

func TestMemoryAllocator_ConcurrentBatches(t *testing.T) {
	const start = 100
	alloc := NewMemoryAllocator(start)
	sizes := []int{5, 3, 8, 1, 13, 2}

	drafts := func(n int) []ProjectDraft {
		out := make([]ProjectDraft, n)
		for i := range out {
			out[i] = ProjectDraft{Name: strings.Repeat("p", i+1)}
		}
		return out
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		batches [][]int64
	)
	for _, n := range sizes {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			projects, err := PlaceProjects(context.Background(), alloc, drafts(n), testNow, true)
			if err != nil {
				t.Errorf("PlaceProjects: %v", err)
				return
			}
			var slots []int64
			for _, p := range projects {
				slots = append(slots, p.Location)
			}
			mu.Lock()
			batches = append(batches, slots)
			mu.Unlock()
		}(n)
	}
	wg.Wait()

	total := 0
	var all []int64
	for _, slots := range batches {
		for i := 1; i < len(slots); i++ {
			if slots[i] != slots[i-1]+1 {
				t.Errorf("batch slots not contiguous: %v", slots)
				break
			}
		}
		all = append(all, slots...)
	}
	for _, n := range sizes {
		total += n
	}

	slices.Sort(all)
	if len(all) != total {
		t.Fatalf("allocated %d slots, want %d", len(all), total)
	}
	for i, s := range all {
		if s != int64(start+i) {
			t.Fatalf("slots = %v, want %d..%d with no gaps or repeats", all, start, start+total-1)
		}
	}
	if got := alloc.State().NextSlot; got != int64(start+total) {
		t.Errorf("NextSlot = %d, want %d", got, start+total)
	}
}
