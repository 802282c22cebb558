// Copyright (c) 2024 The lfca developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package lfca

import "github.com/lfcatree/lfca/internal/epoch"

// Range returns every key k in the set with lo <= k <= hi, in ascending
// order, as of a single linearization point.  The returned slice is
// owned by the caller.
func (t *Tree) Range(lo, hi int) []int {
	var snapshot []int
	epoch.With(func() {
		snapshot = t.allInRange(lo, hi, nil)
	})

	// When the query piggybacked on a wider in-flight snapshot the
	// shared vector can hold keys outside [lo, hi]; either way the
	// caller gets its own filtered copy.
	out := make([]int, 0, len(snapshot))
	for _, k := range snapshot {
		if k >= lo && k <= hi {
			out = append(out, k)
		}
	}
	return out
}

// allInRange drives a range query over [lo, hi] to publication and
// returns the shared result vector.  With help == nil it starts a new
// query; otherwise it helps the query owning that store, returning the
// published vector as soon as one appears.
//
// The query proceeds in two phases.  First the base covering lo is
// pinned by substituting a range-variant copy carrying a fresh result
// store.  Then the sweep walks the leaves left to right via the
// recorded route stack, pinning each with the same store, until it
// reaches hi.  Every pinned base has an immutable treap, so once the
// sweep owns them all, concatenating their contents and publishing the
// vector with one CAS yields a consistent snapshot.
func (t *Tree) allInRange(lo, hi int, help *resultStore) []int {
	var (
		s, backup nodeStack
		visited   []*node
		b         *node
		storage   *resultStore
	)

findFirst:
	for {
		b = findBaseWithStack(t.root.Load(), lo, &s)

		if help != nil {
			if b.kind != kindRange || b.storage != help {
				// The query has moved on from this leaf, which can
				// only happen after its result was published.
				return *help.result.Load()
			}
			storage = help
			break
		}

		if replaceable(b) {
			storage = newResultStore()
			rb := newRangeBase(b, lo, hi, storage)
			if !t.tryReplace(b, rb) {
				putNode(rb)
				putResultStore(storage)
				continue findFirst
			}
			retireNode(b)
			s.replaceTop(rb)
			b = rb
			break
		}

		if b.kind == kindRange && b.lo <= lo && b.hi >= hi {
			// An in-flight query already covers this interval; adopt
			// its snapshot instead of competing for the same leaves.
			return t.allInRange(b.lo, b.hi, b.storage)
		}

		t.helpIfNeeded(b)
	}

sweep:
	for {
		visited = append(visited, b)
		backup.copyFrom(&s)

		// The sweep is finished once a nonempty base's max key reaches hi.
		// An empty base says nothing about the keys to its right, so
		// the walk continues through it.
		if b.data.Size() > 0 {
			if maxKey, err := b.data.MaxKey(); err == nil && maxKey >= hi {
				break sweep
			}
		}

		for {
			b = findNextBaseWithStack(&s)
			if b == nil {
				break sweep
			}
			if r := storage.result.Load(); r != resultNotSet {
				return *r
			}
			if b.kind == kindRange && b.storage == storage {
				// Already pinned by this query (another helper got
				// here first); move on to the leaf after it.
				continue sweep
			}
			if replaceable(b) {
				rb := newRangeBase(b, lo, hi, storage)
				if t.tryReplace(b, rb) {
					retireNode(b)
					s.replaceTop(rb)
					b = rb
					continue sweep
				}
				putNode(rb)
				s.copyFrom(&backup)
				continue
			}
			t.helpIfNeeded(b)
			s.copyFrom(&backup)
		}
	}

	result := make([]int, 0, len(visited)*8)
	for _, v := range visited {
		result = v.data.AppendRange(result, lo, hi)
	}

	if storage.result.CompareAndSwap(resultNotSet, &result) {
		if len(visited) > 1 {
			storage.moreThanOneBase.Store(true)
		}
		log.Tracef("Range query [%d, %d] published %d keys from %d bases",
			lo, hi, len(result), len(visited))
		return result
	}

	// Another helper published first; our local vector is garbage and
	// the shared one is the snapshot.
	return *storage.result.Load()
}

// findNextBaseWithStack pops the current base off s and walks up the
// recorded routes to locate the next leaf to the right, descending
// leftmost into the first right subtree that is still valid and
// strictly beyond the subtree just finished.  It returns nil when the
// sweep has run off the right edge of the tree.
func findNextBaseWithStack(s *nodeStack) *node {
	base := s.pop()
	if s.empty() {
		return nil
	}

	rt := s.top()
	if rt.left.Load() == base {
		return leftmostWithStack(rt.right.Load(), s)
	}

	beGreaterThan := rt.key
	for {
		if rt.valid.Load() && rt.key > beGreaterThan {
			return leftmostWithStack(rt.right.Load(), s)
		}
		s.pop()
		if s.empty() {
			return nil
		}
		rt = s.top()
	}
}
