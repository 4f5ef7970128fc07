package core

// allocator.go defines the table-number allocator shared by all imports.
//
// A batch takes a lease on the counter, draws numbers from it in row order
// and saves it once at the end. While a lease is held no other batch can
// load the counter, so two concurrent imports never hand out the same number.
//
//	lease, err := alloc.AcquireSlots(ctx)
//	if err != nil { ... }
//	defer lease.Release()
//	for ... { p.Location = lease.Next() }
//	if err := lease.Save(ctx); err != nil { ... }
//
// Release without a successful Save discards every number drawn, leaving the
// persisted counter untouched.

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SlotAllocator hands out exclusive leases on the shared counter.
type SlotAllocator interface {
	AcquireSlots(ctx context.Context) (SlotLease, error)
}

// SlotLease is one batch's exclusive view of the counter.
// A lease is used by a single goroutine.
type SlotLease interface {
	// Next returns the current value and advances the counter by one.
	Next() int64
	// Save persists the advanced counter and ends the lease.
	Save(ctx context.Context) error
	// Release ends the lease without persisting. No-op after Save.
	Release()
}

// MemoryAllocator keeps the counter in process memory.
// It backs the memory store and tests.
type MemoryAllocator struct {
	sem chan struct{}

	mu      sync.Mutex
	next    int64
	updated time.Time
}

// NewMemoryAllocator creates an allocator whose first table number is start.
func NewMemoryAllocator(start int64) *MemoryAllocator {
	return &MemoryAllocator{
		sem:  make(chan struct{}, 1),
		next: start,
	}
}

// AcquireSlots waits for exclusive ownership of the counter.
func (a *MemoryAllocator) AcquireSlots(ctx context.Context) (SlotLease, error) {
	select {
	case a.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrAllocatorUnavailable, ctx.Err())
	}

	a.mu.Lock()
	start := a.next
	a.mu.Unlock()

	return &memoryLease{alloc: a, next: start}, nil
}

// State returns the persisted allocator state.
func (a *MemoryAllocator) State() Options {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Options{NextSlot: a.next, UpdatedAt: a.updated}
}

// reset sets the counter to start once no lease is held. wipe runs while
// the counter is still owned.
func (a *MemoryAllocator) reset(ctx context.Context, start int64, wipe func()) error {
	lease, err := a.AcquireSlots(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	wipe()
	lease.(*memoryLease).next = start
	return lease.Save(ctx)
}

type memoryLease struct {
	alloc *MemoryAllocator
	next  int64
	done  bool
}

func (l *memoryLease) Next() int64 {
	n := l.next
	l.next++
	return n
}

func (l *memoryLease) Save(ctx context.Context) error {
	if l.done {
		return fmt.Errorf("%w: lease already closed", ErrAllocatorUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAllocatorUnavailable, err)
	}

	l.alloc.mu.Lock()
	l.alloc.next = l.next
	l.alloc.updated = time.Now()
	l.alloc.mu.Unlock()

	l.done = true
	<-l.alloc.sem
	return nil
}

func (l *memoryLease) Release() {
	if l.done {
		return
	}
	l.done = true
	<-l.alloc.sem
}
