// Copyright (c) 2024 The lfca developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pool provides fixed-capacity object pools backed by a single
// contiguous arena.  Allocation is a bump of an atomic index, so handing
// out a fresh object is one fetch-add and no locks.  Objects returned to
// the pool are kept on a lock-free free list and handed out again before
// the bump index moves.
//
// Pools never grow.  Running a pool dry is a sizing bug in the embedding
// program and is reported by panicking; callers are expected to size
// pools for their worst-case allocation rate between reclamation cycles.
package pool

import (
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
)

// Pool hands out pointers into a preallocated arena of T.  Get and Put
// are safe for concurrent use.  Objects obtained from the free list are
// returned as-is; the caller is responsible for reinitializing every
// field it cares about.
type Pool[T any] struct {
	name  string
	items []T

	// next is the bump index into items for never-used slots.
	next atomic.Int64

	// head packs the free list into a single word: the low 32 bits hold
	// the index of the first free slot plus one (zero meaning empty) and
	// the high 32 bits hold a tag bumped on every pop to sidestep ABA.
	head atomic.Uint64

	// links[i] holds the next free index plus one for a slot i that is
	// currently on the free list.
	links []atomic.Uint32

	// freed counts slots currently sitting on the free list.
	freed atomic.Int64
}

// New returns a pool with capacity slots of T.
func New[T any](name string, capacity int) *Pool[T] {
	if capacity <= 0 {
		panic(errors.Errorf("pool %q: capacity must be positive, got %d",
			name, capacity))
	}
	return &Pool[T]{
		name:  name,
		items: make([]T, capacity),
		links: make([]atomic.Uint32, capacity),
	}
}

// Get returns a slot from the free list when one is available and bumps
// the arena otherwise.  It panics when the pool is exhausted.
func (p *Pool[T]) Get() *T {
	for {
		head := p.head.Load()
		ix := uint32(head)
		if ix == 0 {
			break
		}
		tag := head >> 32
		next := p.links[ix-1].Load()
		if p.head.CompareAndSwap(head, (tag+1)<<32|uint64(next)) {
			p.freed.Add(-1)
			return &p.items[ix-1]
		}
	}

	n := p.next.Add(1) - 1
	if n >= int64(len(p.items)) {
		panic(errors.Errorf("pool %q exhausted (capacity %d)",
			p.name, len(p.items)))
	}
	return &p.items[n]
}

// Put returns x to the free list.  The caller must guarantee that no
// other reference to x remains live.
func (p *Pool[T]) Put(x *T) {
	ix := p.indexOf(x)
	for {
		head := p.head.Load()
		p.links[ix].Store(uint32(head))
		tag := head >> 32
		if p.head.CompareAndSwap(head, tag<<32|uint64(ix+1)) {
			p.freed.Add(1)
			return
		}
	}
}

// InUse reports how many slots are currently handed out.
func (p *Pool[T]) InUse() int {
	return int(p.next.Load() - p.freed.Load())
}

// Cap reports the pool capacity.
func (p *Pool[T]) Cap() int {
	return len(p.items)
}

// indexOf maps a pointer back to its arena slot.
func (p *Pool[T]) indexOf(x *T) uint64 {
	base := uintptr(unsafe.Pointer(&p.items[0]))
	size := unsafe.Sizeof(p.items[0])
	off := uintptr(unsafe.Pointer(x)) - base
	ix := off / size
	if ix >= uintptr(len(p.items)) || off%size != 0 {
		panic(errors.Errorf("pool %q: pointer %p is not from this arena",
			p.name, x))
	}
	return uint64(ix)
}
