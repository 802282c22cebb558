// Copyright (c) 2024 The lfca developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package lfca

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lfcatree/lfca/internal/treap"
)

func TestNewStat(t *testing.T) {
	base := func(stat int) *node {
		n := newNode()
		n.kind = kindBase
		n.stat = stat
		return n
	}

	tests := []struct {
		name string
		node *node
		info contentionInfo
		want int
	}{
		{"contended", base(0), contended, contendedContribution},
		{"uncontended", base(0), uncontended, -uncontendedContribution},
		{"no info", base(123), noInfo, 123},
		{"contended at limit", base(highContentionLimit), contended,
			highContentionLimit + contendedContribution},
		{"contended beyond limit", base(highContentionLimit + 1), contended,
			highContentionLimit + 1},
		{"uncontended at limit", base(lowContentionLimit), uncontended,
			lowContentionLimit - uncontendedContribution},
		{"uncontended beyond limit", base(lowContentionLimit - 1), uncontended,
			lowContentionLimit - 1},
	}
	for _, test := range tests {
		require.Equal(t, test.want, newStat(test.node, test.info), test.name)
	}

	// A range base whose query spanned several leaves drags the
	// statistic down on every observation.
	rb := newNode()
	rb.kind = kindRange
	rb.storage = newResultStore()
	rb.stat = 0
	require.Equal(t, 0+contendedContribution, newStat(rb, contended))

	rb.storage.moreThanOneBase.Store(true)
	require.Equal(t, contendedContribution-rangeContribution, newStat(rb, contended))
	require.Equal(t, -uncontendedContribution-rangeContribution, newStat(rb, uncontended))
	require.Equal(t, 0, newStat(rb, noInfo))
}

// uncontendedOpsToJoin is how many uncontended operations drive a fresh
// base below the join threshold.
const uncontendedOpsToJoin = -lowContentionLimit / uncontendedContribution

// churn runs uncontended remove/insert pairs of a single key, which
// decays the statistic of the base covering it until a join fires.
func churn(t *testing.T, tree *Tree, key int) {
	t.Helper()
	for i := 0; i < uncontendedOpsToJoin; i++ {
		require.True(t, tree.Remove(key))
		require.True(t, tree.Insert(key))
	}
}

func TestLowContentionMergeWithoutNeighbor(t *testing.T) {
	tree := New()

	// A single full base has no parent, so the decayed statistic has
	// nowhere to join toward; the churn must simply run clean.
	for i := 0; i < treap.Capacity; i++ {
		tree.Insert(i)
	}
	churn(t, tree, 0)
	churn(t, tree, treap.Capacity-1)

	for i := 0; i < treap.Capacity; i++ {
		require.True(t, tree.Contains(i))
	}
}

func TestLowContentionMergeLeft(t *testing.T) {
	tree := New()

	// Split once, then cool the left base until it joins back.
	for i := 0; i <= treap.Capacity; i++ {
		tree.Insert(i)
	}
	require.Equal(t, kindRoute, tree.root.Load().kind)

	churn(t, tree, 0)

	for i := 0; i <= treap.Capacity; i++ {
		require.True(t, tree.Contains(i))
	}
}

func TestLowContentionMergeRight(t *testing.T) {
	tree := New()

	for i := 0; i <= treap.Capacity; i++ {
		tree.Insert(i)
	}
	require.Equal(t, kindRoute, tree.root.Load().kind)

	churn(t, tree, treap.Capacity)

	for i := 0; i <= treap.Capacity; i++ {
		require.True(t, tree.Contains(i))
	}
}

func TestLowContentionMergeLeftWithRightRoute(t *testing.T) {
	tree := New()

	for i := 0; i < treap.Capacity*2; i++ {
		tree.Insert(i)
	}
	churn(t, tree, 0)

	for i := 0; i < treap.Capacity*2; i++ {
		require.True(t, tree.Contains(i))
	}
}

func TestLowContentionMergeRightWithLeftRoute(t *testing.T) {
	tree := New()

	for i := 0; i < treap.Capacity; i++ {
		tree.Insert(i)
	}
	for i := -1; i > -treap.Capacity; i-- {
		tree.Insert(i)
	}
	churn(t, tree, treap.Capacity-1)

	for i := -treap.Capacity + 1; i < treap.Capacity; i++ {
		require.True(t, tree.Contains(i))
	}
}

func TestMergeReducesLeafCount(t *testing.T) {
	tree := New()

	for i := 0; i <= treap.Capacity; i++ {
		tree.Insert(i)
	}
	before := len(collectLeaves(tree.root.Load()))
	require.Equal(t, 2, before)

	// The two leaves together hold Capacity+1 keys, one too many to
	// merge; shed one first so the join can fire.
	require.True(t, tree.Remove(treap.Capacity))
	churn(t, tree, 0)

	after := len(collectLeaves(tree.root.Load()))
	require.Equal(t, 1, after, "cold neighbors should have merged")

	for i := 0; i < treap.Capacity; i++ {
		require.True(t, tree.Contains(i))
	}
}

func TestSplitRetainsStatReset(t *testing.T) {
	tree := New()

	for i := 0; i <= treap.Capacity; i++ {
		tree.Insert(i)
	}
	for _, leaf := range collectLeaves(tree.root.Load()) {
		require.LessOrEqual(t, leaf.stat, 0,
			"fresh split bases start with a clean statistic")
	}
}
