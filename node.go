// Copyright (c) 2024 The lfca developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package lfca

import (
	"sync/atomic"

	"github.com/lfcatree/lfca/internal/treap"
)

// nodeKind discriminates the five variants that share the node record.
type nodeKind int32

const (
	// kindRoute is an internal node holding a split key and two children.
	kindRoute nodeKind = iota

	// kindBase is a leaf holding a treap of keys.
	kindBase

	// kindJoinMain marks the base that initiated a join and owns its
	// progress through the neigh2 field.
	kindJoinMain

	// kindJoinNeighbor marks the neighbor base claimed by a join, and
	// also the merged base a completed join publishes.
	kindJoinNeighbor

	// kindRange marks a base pinned by an in-flight range query.
	kindRange
)

// node is the single tagged record behind every tree vertex.  Only the
// fields of the active variant are meaningful; the rest are ignored.
// Trading the memory of a few unused fields for monomorphic branches on
// kind beats dynamic dispatch on this hot path.
//
// Atomic fields are the only ones that may change after the node is
// linked into the tree.  parent, mainNode, and gparent are non-owning
// back references that are only trusted after re-checking the atomic
// parent slot they imply (see tryReplace).
type node struct {
	kind nodeKind

	// Route fields.
	key    int
	left   atomic.Pointer[node]
	right  atomic.Pointer[node]
	valid  atomic.Bool
	joinID atomic.Pointer[node]

	// Base fields (also carried by the join and range variants).
	data   *treap.Treap
	stat   int
	parent *node

	// Join-main fields.
	neigh1  *node
	neigh2  atomic.Pointer[node]
	gparent *node
	otherb  *node

	// Join-neighbor field.
	mainNode *node

	// Range fields.
	lo, hi  int
	storage *resultStore
}

// resultStore is the record shared by every range base of one range
// query.  Once result holds anything but resultNotSet it never changes.
type resultStore struct {
	result          atomic.Pointer[[]int]
	moreThanOneBase atomic.Bool
}

// Reserved pointer values.  They are ordinary allocations compared by
// identity, never dereferenced as live nodes.
var (
	// sentinelPreparing, sentinelDone, and sentinelAborted are the
	// states of a join-main's neigh2 field that do not carry a merged
	// base.
	sentinelPreparing = &node{}
	sentinelDone      = &node{}
	sentinelAborted   = &node{}

	// sentinelNotFound is returned by parentOf when the route is no
	// longer reachable along its key path.
	sentinelNotFound = &node{}

	// resultNotSet is the initial value of resultStore.result.
	resultNotSet = &[]int{}
)

// joinInstalled reports whether a neigh2 value carries a real merged
// base rather than one of the join state sentinels.
func joinInstalled(n *node) bool {
	return n != sentinelPreparing && n != sentinelDone && n != sentinelAborted
}

// newNode returns a pooled node with every field at its defaults: a
// valid route header, no links, and a join state of preparing.  The
// reset matters because pooled nodes come back with their previous
// life's fields intact.
func newNode() *node {
	n := nodePool().Get()
	n.kind = kindRoute
	n.key = 0
	n.left.Store(nil)
	n.right.Store(nil)
	n.valid.Store(true)
	n.joinID.Store(nil)
	n.data = nil
	n.stat = 0
	n.parent = nil
	n.neigh1 = nil
	n.neigh2.Store(sentinelPreparing)
	n.gparent = nil
	n.otherb = nil
	n.mainNode = nil
	n.lo = 0
	n.hi = 0
	n.storage = nil
	return n
}

// cloneNode returns a pooled copy of src, including the current values
// of its atomic fields.
func cloneNode(src *node) *node {
	n := nodePool().Get()
	n.kind = src.kind
	n.key = src.key
	n.left.Store(src.left.Load())
	n.right.Store(src.right.Load())
	n.valid.Store(src.valid.Load())
	n.joinID.Store(src.joinID.Load())
	n.data = src.data
	n.stat = src.stat
	n.parent = src.parent
	n.neigh1 = src.neigh1
	n.neigh2.Store(src.neigh2.Load())
	n.gparent = src.gparent
	n.otherb = src.otherb
	n.mainNode = src.mainNode
	n.lo = src.lo
	n.hi = src.hi
	n.storage = src.storage
	return n
}

// newBaseNode returns a fresh base leaf.
func newBaseNode(parent *node, data *treap.Treap, stat int) *node {
	n := newNode()
	n.kind = kindBase
	n.parent = parent
	n.data = data
	n.stat = stat
	return n
}

// newRangeBase returns a range-variant copy of b pinned to the query
// described by lo, hi, and storage.
func newRangeBase(b *node, lo, hi int, storage *resultStore) *node {
	n := cloneNode(b)
	n.kind = kindRange
	n.lo = lo
	n.hi = hi
	n.storage = storage
	return n
}

// newResultStore returns a pooled result store reset to its initial
// state.
func newResultStore() *resultStore {
	s := resultPool().Get()
	s.result.Store(resultNotSet)
	s.moreThanOneBase.Store(false)
	return s
}
