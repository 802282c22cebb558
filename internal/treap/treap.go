// Copyright (c) 2024 The lfca developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package treap implements a bounded immutable treap over integer keys.
//
// The treap holds ordered keys using a combination of binary search tree
// and heap semantics.  It is a self-organizing and randomized data
// structure that doesn't require complex operations to maintain balance.
// Search, insert, and remove operations are all O(log n) expected.
//
// Unlike a node-per-allocation treap, every treap lives in a single
// fixed array of at most Capacity slots (plus one control slot used by
// Split and Merge), so a whole treap is one pooled object and copying it
// is a single memmove.  All operations which would modify the treap
// return a new version with the receiver left untouched, which is what
// lets a concurrent caller publish the result with a single atomic
// pointer swap while readers keep using their old snapshot.
package treap

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// Capacity is the maximum number of keys a treap can hold.  Inserting
// into a treap holding Capacity keys fails with ErrFull.
const Capacity = 64

const (
	// nullIx marks an absent parent or child link.
	nullIx int32 = -1

	// controlIx is the extra slot beyond Capacity used as scratch by
	// Split and Merge.  It never holds a live key.
	controlIx int32 = Capacity

	// minPrio is reserved for the control slot so that it always wins
	// every heap comparison.  Real slots draw non-negative priorities.
	minPrio = math.MinInt
)

var (
	// ErrFull is returned by Insert when the treap already holds
	// Capacity keys, and by Merge when the operands together would
	// exceed it.
	ErrFull = errors.New("treap is at capacity")

	// ErrEmpty is returned by MaxKey and Split on a treap with no keys.
	ErrEmpty = errors.New("treap is empty")
)

// slot is one node of the treap.  Links are indices into the owning
// treap's slot array rather than pointers so that copying the array
// copies the whole structure.
type slot struct {
	key  int
	prio int

	parent int32
	left   int32
	right  int32
}

// Treap is a bounded ordered set of integer keys.  The zero value is
// not ready for use; obtain instances from New.
type Treap struct {
	size  int
	root  int32
	slots [Capacity + 1]slot
}

// New returns an empty treap drawn from the package pool.
func New() *Treap {
	t := getPool().Get()
	t.size = 0
	t.root = nullIx
	return t
}

// newFrom returns a pooled copy of src.
func newFrom(src *Treap) *Treap {
	t := getPool().Get()
	*t = *src
	return t
}

// Size returns the number of keys in the treap.
func (t *Treap) Size() int {
	return t.size
}

// bstFind locates the slot holding key and returns its index, or nullIx
// when the key is absent.
func (t *Treap) bstFind(key int) int32 {
	ix := t.root
	for ix != nullIx {
		switch {
		case key < t.slots[ix].key:
			ix = t.slots[ix].left
		case key > t.slots[ix].key:
			ix = t.slots[ix].right
		default:
			return ix
		}
	}
	return nullIx
}

// Contains reports whether key is in the treap.
func (t *Treap) Contains(key int) bool {
	return t.bstFind(key) != nullIx
}

// MaxKey returns the largest key in the treap.
func (t *Treap) MaxKey() (int, error) {
	if t.size == 0 {
		return 0, ErrEmpty
	}
	ix := t.root
	for t.slots[ix].right != nullIx {
		ix = t.slots[ix].right
	}
	return t.slots[ix].key, nil
}

// newSlot claims the next dense slot for key with a random priority.
func (t *Treap) newSlot(key int) int32 {
	return t.newSlotPrio(key, rand.Int())
}

// newSlotPrio claims the next dense slot for key with a fixed priority.
func (t *Treap) newSlotPrio(key, prio int) int32 {
	ix := int32(t.size)
	t.size++
	t.slots[ix] = slot{key: key, prio: prio, parent: nullIx, left: nullIx, right: nullIx}
	return ix
}

// moveSlot relocates the slot at src to dst and fixes up every link that
// referenced src.  It is used by Remove to keep the occupied region of
// the slot array dense.
func (t *Treap) moveSlot(src, dst int32) {
	if src == dst {
		return
	}

	left := t.slots[src].left
	right := t.slots[src].right
	parent := t.slots[src].parent

	t.slots[dst] = t.slots[src]

	if left != nullIx {
		t.slots[left].parent = dst
	}
	if right != nullIx {
		t.slots[right].parent = dst
	}
	if parent == nullIx {
		t.root = dst
	} else if t.slots[parent].left == src {
		t.slots[parent].left = dst
	} else {
		t.slots[parent].right = dst
	}
}

// rotateRight rotates the subtree at ix to the right, moving its left
// child above it.
func (t *Treap) rotateRight(ix int32) {
	parent := t.slots[ix].parent
	left := t.slots[ix].left
	leftRight := t.slots[left].right

	t.slots[ix].parent = left
	t.slots[left].right = ix

	t.slots[left].parent = parent
	if parent == nullIx {
		t.root = left
	} else if t.slots[parent].left == ix {
		t.slots[parent].left = left
	} else {
		t.slots[parent].right = left
	}

	t.slots[ix].left = leftRight
	if leftRight != nullIx {
		t.slots[leftRight].parent = ix
	}
}

// rotateLeft rotates the subtree at ix to the left, moving its right
// child above it.
func (t *Treap) rotateLeft(ix int32) {
	parent := t.slots[ix].parent
	right := t.slots[ix].right
	rightLeft := t.slots[right].left

	t.slots[ix].parent = right
	t.slots[right].left = ix

	t.slots[right].parent = parent
	if parent == nullIx {
		t.root = right
	} else if t.slots[parent].left == ix {
		t.slots[parent].left = right
	} else {
		t.slots[parent].right = right
	}

	t.slots[ix].right = rightLeft
	if rightLeft != nullIx {
		t.slots[rightLeft].parent = ix
	}
}

// moveUp rotates the slot at ix toward the root until the min-heap
// property holds again.  Equal priorities stop the climb, which is what
// resolves priority ties by insertion order.
func (t *Treap) moveUp(ix int32) {
	for {
		parent := t.slots[ix].parent
		if parent == nullIx || t.slots[ix].prio >= t.slots[parent].prio {
			return
		}
		if t.slots[parent].left == ix {
			t.rotateRight(parent)
		} else {
			t.rotateLeft(parent)
		}
	}
}

// moveDown rotates the slot at ix toward the leaves, always lifting the
// child with the smaller priority, until ix has no children.
func (t *Treap) moveDown(ix int32) {
	for {
		left := t.slots[ix].left
		right := t.slots[ix].right

		switch {
		case left == nullIx && right == nullIx:
			return
		case left != nullIx && right != nullIx:
			if t.slots[left].prio < t.slots[right].prio {
				t.rotateRight(ix)
			} else {
				t.rotateLeft(ix)
			}
		case left != nullIx:
			t.rotateRight(ix)
		default:
			t.rotateLeft(ix)
		}
	}
}

// bstInsert links the already-claimed slot at ix into the tree purely by
// key order, ignoring priorities.  Keys equal to an existing key descend
// to its right, so a control slot keyed on an existing key ends up with
// that key in its left subtree after moveUp.
func (t *Treap) bstInsert(ix int32) {
	cur := t.root
	for {
		if t.slots[cur].key > t.slots[ix].key {
			if t.slots[cur].left == nullIx {
				t.slots[cur].left = ix
				t.slots[ix].parent = cur
				return
			}
			cur = t.slots[cur].left
		} else {
			if t.slots[cur].right == nullIx {
				t.slots[cur].right = ix
				t.slots[ix].parent = cur
				return
			}
			cur = t.slots[cur].right
		}
	}
}

// Insert returns a new treap with key added.  When the key is already
// present the returned treap is an unchanged copy and the bool is false.
// Inserting a new key into a treap already holding Capacity keys fails
// with ErrFull and returns a nil treap.
func (t *Treap) Insert(key int) (*Treap, bool, error) {
	if t.bstFind(key) != nullIx {
		return newFrom(t), false, nil
	}
	if t.size == Capacity {
		return nil, false, ErrFull
	}

	nt := newFrom(t)
	ix := nt.newSlot(key)
	if nt.size == 1 {
		nt.root = ix
		return nt, true, nil
	}
	nt.bstInsert(ix)
	nt.moveUp(ix)
	return nt, true, nil
}

// Remove returns a new treap with key removed.  The bool reports whether
// the key was present; when it was not, the returned treap is an
// unchanged copy.
func (t *Treap) Remove(key int) (*Treap, bool) {
	nt := newFrom(t)
	ix := nt.bstFind(key)
	if ix == nullIx {
		return nt, false
	}

	// Rotate the doomed slot down to a leaf, cut it loose, and backfill
	// its array position from the end to keep the slot region dense.
	nt.moveDown(ix)
	parent := nt.slots[ix].parent
	if parent == nullIx {
		nt.root = nullIx
	} else if nt.slots[parent].left == ix {
		nt.slots[parent].left = nullIx
	} else {
		nt.slots[parent].right = nullIx
	}
	nt.moveSlot(int32(nt.size-1), ix)
	nt.size--
	return nt, true
}

// AppendRange appends every key in [lo, hi] to dst in ascending order
// and returns the extended slice, pruning subtrees that cannot
// intersect the interval.
func (t *Treap) AppendRange(dst []int, lo, hi int) []int {
	return t.appendRange(dst, t.root, lo, hi)
}

func (t *Treap) appendRange(dst []int, ix int32, lo, hi int) []int {
	if ix == nullIx {
		return dst
	}
	key := t.slots[ix].key
	if key >= lo {
		dst = t.appendRange(dst, t.slots[ix].left, lo, hi)
		if key <= hi {
			dst = append(dst, key)
		}
	}
	if key <= hi {
		dst = t.appendRange(dst, t.slots[ix].right, lo, hi)
	}
	return dst
}

// ForEach invokes fn with every key in the treap in ascending order
// until fn returns false.
func (t *Treap) ForEach(fn func(key int) bool) {
	var stack [Capacity + 1]int32
	sp := 0
	for ix := t.root; ix != nullIx; ix = t.slots[ix].left {
		stack[sp] = ix
		sp++
	}
	for sp > 0 {
		sp--
		ix := stack[sp]
		if !fn(t.slots[ix].key) {
			return
		}
		for n := t.slots[ix].right; n != nullIx; n = t.slots[n].left {
			stack[sp] = n
			sp++
		}
	}
}
