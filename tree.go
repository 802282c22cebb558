// Copyright (c) 2024 The lfca developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package lfca

import (
	"sync/atomic"

	"github.com/lfcatree/lfca/internal/epoch"
	"github.com/lfcatree/lfca/internal/treap"
)

// Tree is a concurrent ordered set of integers.  All methods are safe
// to call from any number of goroutines; none of them ever blocks on
// another operation.
type Tree struct {
	root atomic.Pointer[node]
}

// New returns an empty set.
func New() *Tree {
	t := &Tree{}
	t.root.Store(newBaseNode(nil, treap.New(), 0))
	return t
}

// Insert adds k to the set and reports whether it was newly added.
func (t *Tree) Insert(k int) bool {
	var added bool
	epoch.With(func() {
		added = t.doUpdate(k, true)
	})
	return added
}

// Remove deletes k from the set and reports whether it was present.
func (t *Tree) Remove(k int) bool {
	var removed bool
	epoch.With(func() {
		removed = t.doUpdate(k, false)
	})
	return removed
}

// Contains reports whether k is in the set.  It never waits, never
// helps, and never restructures the tree.
func (t *Tree) Contains(k int) bool {
	var found bool
	epoch.With(func() {
		b := findBase(t.root.Load(), k)
		found = b.data.Contains(k)
	})
	return found
}

// findBase descends from n to the base-like node covering k.  Route
// descents are left-inclusive: keys equal to the split key live in the
// left subtree.
func findBase(n *node, k int) *node {
	for n.kind == kindRoute {
		if k <= n.key {
			n = n.left.Load()
		} else {
			n = n.right.Load()
		}
	}
	return n
}

// findBaseWithStack is findBase recording every visited route (and the
// terminal base) on s for a later upward walk.
func findBaseWithStack(n *node, k int, s *nodeStack) *node {
	s.reset()
	for n.kind == kindRoute {
		s.push(n)
		if k <= n.key {
			n = n.left.Load()
		} else {
			n = n.right.Load()
		}
	}
	s.push(n)
	return n
}

// leftmost returns the leftmost base-like node under n.
func leftmost(n *node) *node {
	for n.kind == kindRoute {
		n = n.left.Load()
	}
	return n
}

// rightmost returns the rightmost base-like node under n.
func rightmost(n *node) *node {
	for n.kind == kindRoute {
		n = n.right.Load()
	}
	return n
}

// leftmostWithStack is leftmost recording the descent (and the terminal
// base) on s.
func leftmostWithStack(n *node, s *nodeStack) *node {
	for n.kind == kindRoute {
		s.push(n)
		n = n.left.Load()
	}
	s.push(n)
	return n
}

// replaceable reports whether n may be swapped out by a plain CAS on
// its parent slot.  Join and range variants only become replaceable
// once the protocol that owns them has finished or aborted.
func replaceable(n *node) bool {
	switch n.kind {
	case kindBase:
		return true
	case kindJoinMain:
		return n.neigh2.Load() == sentinelAborted
	case kindJoinNeighbor:
		n2 := n.mainNode.neigh2.Load()
		return n2 == sentinelAborted || n2 == sentinelDone
	case kindRange:
		return n.storage.result.Load() != resultNotSet
	}
	return false
}

// tryReplace swaps newB in for b with a single CAS on whichever slot
// currently points at b.  The slot is found by comparing pointers, not
// keys, so a stale parent reference simply makes every comparison fail
// and the CAS is never attempted against an unrelated slot.
func (t *Tree) tryReplace(b, newB *node) bool {
	if b.parent == nil {
		return t.root.CompareAndSwap(b, newB)
	}
	if b.parent.left.Load() == b {
		return b.parent.left.CompareAndSwap(b, newB)
	}
	if b.parent.right.Load() == b {
		return b.parent.right.CompareAndSwap(b, newB)
	}
	return false
}

// helpIfNeeded pushes along whatever protocol currently owns n so the
// caller's retry can find it replaceable.  A join still preparing is
// conservatively aborted; a join with its merged base installed is
// completed; an unpublished range query is re-driven to publication.
func (t *Tree) helpIfNeeded(n *node) {
	if n.kind == kindJoinNeighbor {
		n = n.mainNode
	}

	switch {
	case n.kind == kindJoinMain && n.neigh2.Load() == sentinelPreparing:
		n.neigh2.CompareAndSwap(sentinelPreparing, sentinelAborted)
	case n.kind == kindJoinMain && joinInstalled(n.neigh2.Load()):
		t.completeJoin(n)
	case n.kind == kindRange && n.storage.result.Load() == resultNotSet:
		t.allInRange(n.lo, n.hi, n.storage)
	}
}

// doUpdate runs one insert or remove to completion, retrying from the
// root after every lost race and helping whatever stands in its way.
func (t *Tree) doUpdate(k int, insert bool) bool {
	info := uncontended
	for {
		b := findBase(t.root.Load(), k)

		// A full treap cannot take another key; split it first and
		// retry.  The split is only attempted on nodes a CAS may
		// legitimately take from their owner, so a base pinned by an
		// unpublished range query is helped below instead, keeping its
		// snapshot intact.
		if insert && b.data.Size() == treap.Capacity &&
			(b.kind == kindBase || replaceable(b)) {

			t.highContentionSplit(b)
			continue
		}

		if replaceable(b) {
			var (
				data    *treap.Treap
				changed bool
				err     error
			)
			if insert {
				data, changed, err = b.data.Insert(k)
				if err != nil {
					// b became replaceable only after the full-treap
					// check above; split it now and retry.
					t.highContentionSplit(b)
					continue
				}
			} else {
				data, changed = b.data.Remove(k)
			}

			newB := newBaseNode(b.parent, data, newStat(b, info))
			if t.tryReplace(b, newB) {
				retireNodeAndData(b)
				t.adaptIfNeeded(newB)
				return changed
			}
			treap.Recycle(data)
			putNode(newB)
		}

		info = contended
		t.helpIfNeeded(b)
	}
}
