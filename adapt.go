// Copyright (c) 2024 The lfca developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package lfca

import "github.com/lfcatree/lfca/internal/treap"

// adaptIfNeeded restructures around b when its contention statistic has
// crossed a threshold.  It is called right after a successful update
// publish, so b is usually still in place; when it is not, the CAS
// inside the adaptation simply fails and nothing happens.
func (t *Tree) adaptIfNeeded(b *node) {
	if !replaceable(b) {
		return
	}
	if newStat(b, noInfo) > highContentionLimit {
		t.highContentionSplit(b)
	} else if newStat(b, noInfo) < lowContentionLimit {
		t.lowContentionJoin(b)
	}
}

// highContentionSplit replaces b with a route node over two fresh bases
// holding the halves of b's treap.  A failed publish is ignored; the
// operation that beat us has its own view of the contention.
func (t *Tree) highContentionSplit(b *node) {
	if b.data.Size() < 2 {
		return
	}

	splitKey, leftTreap, rightTreap, err := b.data.Split()
	if err != nil {
		return
	}

	r := newNode()
	r.kind = kindRoute
	r.key = splitKey
	r.left.Store(newBaseNode(r, leftTreap, 0))
	r.right.Store(newBaseNode(r, rightTreap, 0))

	if t.tryReplace(b, r) {
		log.Tracef("Split base of %d keys at %d", b.data.Size(), splitKey)
		retireNodeAndData(b)
		return
	}

	putNode(r.left.Load())
	putNode(r.right.Load())
	putNode(r)
	treap.Recycle(leftTreap)
	treap.Recycle(rightTreap)
}

// lowContentionJoin merges b with its nearest neighbor base when both
// are cold enough.  The direction follows which child of its parent b
// is; either way the heavy lifting is secureJoin plus the helper-driven
// completeJoin.
func (t *Tree) lowContentionJoin(b *node) {
	p := b.parent
	if p == nil {
		return
	}

	if p.left.Load() == b {
		if m := t.secureJoin(b, true); m != nil {
			t.completeJoin(m)
		}
	} else if p.right.Load() == b {
		if m := t.secureJoin(b, false); m != nil {
			t.completeJoin(m)
		}
	}
}

// secureJoin claims everything a join needs before it becomes visible:
// b's slot (as the join-main m), the neighbor's slot (as a
// join-neighbor), and the join identifiers of the parent and
// grandparent routes.  Only after all claims succeed is the merged base
// installed in m.neigh2, which is the point of no return; any earlier
// failure backs out by marking m aborted.  Helpers that find m in the
// preparing state may also abort it, so a nil return here is routine.
func (t *Tree) secureJoin(b *node, leftChild bool) *node {
	var n0 *node
	if leftChild {
		n0 = leftmost(b.parent.right.Load())
	} else {
		n0 = rightmost(b.parent.left.Load())
	}
	if !replaceable(n0) {
		return nil
	}
	if b.data.Size()+n0.data.Size() > treap.Capacity {
		return nil
	}

	m := cloneNode(b)
	m.kind = kindJoinMain
	m.neigh2.Store(sentinelPreparing)

	if leftChild {
		if !b.parent.left.CompareAndSwap(b, m) {
			putNode(m)
			return nil
		}
	} else {
		if !b.parent.right.CompareAndSwap(b, m) {
			putNode(m)
			return nil
		}
	}
	retireNode(b)

	n1 := cloneNode(n0)
	n1.kind = kindJoinNeighbor
	n1.mainNode = m
	if !t.tryReplace(n0, n1) {
		m.neigh2.Store(sentinelAborted)
		putNode(n1)
		return nil
	}
	retireNode(n0)

	if !m.parent.joinID.CompareAndSwap(nil, m) {
		m.neigh2.Store(sentinelAborted)
		return nil
	}

	gparent := t.parentOf(m.parent)
	if gparent == sentinelNotFound ||
		(gparent != nil && !gparent.joinID.CompareAndSwap(nil, m)) {

		m.parent.joinID.Store(nil)
		m.neigh2.Store(sentinelAborted)
		return nil
	}

	m.gparent = gparent
	if leftChild {
		m.otherb = m.parent.right.Load()
	} else {
		m.otherb = m.parent.left.Load()
	}
	m.neigh1 = n1

	joinedp := n1.parent
	if m.otherb == n1 {
		joinedp = gparent
	}

	n2 := cloneNode(n1)
	n2.kind = kindJoinNeighbor
	n2.parent = joinedp
	n2.mainNode = m

	var (
		merged *treap.Treap
		err    error
	)
	if leftChild {
		merged, err = treap.Merge(m.data, n1.data)
	} else {
		merged, err = treap.Merge(n1.data, m.data)
	}
	if err != nil {
		// Operand sizes were checked against capacity above.
		panic(err)
	}
	n2.data = merged

	if m.neigh2.CompareAndSwap(sentinelPreparing, n2) {
		log.Tracef("Joined neighbor bases of %d and %d keys",
			m.data.Size(), n1.data.Size())
		return m
	}

	// A helper aborted the preparation while the merged base was being
	// built; undo the identifier claims and discard the merge.
	if gparent != nil {
		gparent.joinID.Store(nil)
	}
	m.parent.joinID.Store(nil)
	m.neigh2.Store(sentinelAborted)
	treap.Recycle(merged)
	putNode(n2)
	return nil
}

// completeJoin finishes a join whose merged base is installed.  It is
// idempotent and raced by every helper that observes the join, so each
// pointer swing is a CAS from the expected old value and each winner
// retires what its CAS unlinked: the neighbor on its replacement by the
// merged base, the join-main and the parent route on the final
// transition to done.
//
// Invalidating the parent route is the join's linearization point:
// range sweeps that climbed through it are forced to rebuild their
// path, after which they can only find the merged base.
func (t *Tree) completeJoin(m *node) {
	n2 := m.neigh2.Load()
	if n2 == sentinelDone {
		return
	}

	if t.tryReplace(m.neigh1, n2) {
		retireNodeAndData(m.neigh1)
	}

	m.parent.valid.Store(false)

	repl := m.otherb
	if m.otherb == m.neigh1 {
		repl = n2
	}
	if m.gparent == nil {
		t.root.CompareAndSwap(m.parent, repl)
	} else if m.gparent.left.Load() == m.parent {
		m.gparent.left.CompareAndSwap(m.parent, repl)
		m.gparent.joinID.CompareAndSwap(m, nil)
	} else if m.gparent.right.Load() == m.parent {
		m.gparent.right.CompareAndSwap(m.parent, repl)
		m.gparent.joinID.CompareAndSwap(m, nil)
	}

	if m.neigh2.CompareAndSwap(n2, sentinelDone) {
		parent := m.parent
		retireNodeAndData(m)
		retireNode(parent)
	}
}

// parentOf re-descends from the root to find the current parent of the
// route n.  It returns nil when n is the root itself and
// sentinelNotFound when n is no longer reachable along its key path,
// which tells a join in progress that the tree moved underneath it.
func (t *Tree) parentOf(n *node) *node {
	var prev *node
	cur := t.root.Load()
	for cur != n && cur.kind == kindRoute {
		prev = cur
		if n.key <= cur.key {
			cur = cur.left.Load()
		} else {
			cur = cur.right.Load()
		}
	}
	if cur.kind != kindRoute {
		return sentinelNotFound
	}
	return prev
}
