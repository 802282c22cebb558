// Copyright (c) 2024 The lfca developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package lfca

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/lfcatree/lfca/internal/epoch"
	"github.com/lfcatree/lfca/internal/pool"
	"github.com/lfcatree/lfca/internal/treap"
)

// Pool capacities used when the embedding program never calls
// Preallocate.  Nodes and treaps recycle through epoch retirement, so
// the defaults only need to cover live leaves plus the churn between
// two epoch advances.  Published result stores are never recycled (one
// per range query), so their default bounds the query count of an
// unconfigured process.
const (
	DefaultNodePoolSize   = 1 << 16
	DefaultResultPoolSize = 1 << 12
)

var (
	nodes   atomic.Pointer[pool.Pool[node]]
	results atomic.Pointer[pool.Pool[resultStore]]
)

// Preallocate sizes the three process-wide pools backing every tree:
// tree nodes, treaps, and range-query result stores.  It must be called
// before the first operation and at most once; programs that skip it
// get the default sizes.  Exhausting a pool is fatal, so callers with
// heavy workloads should size for their worst-case allocation rate
// between epoch advances.
func Preallocate(nodeCount, treapCount, resultCount int) {
	treap.Preallocate(treapCount)
	if !nodes.CompareAndSwap(nil, pool.New[node]("node", nodeCount)) {
		panic(errors.New("lfca: node pool is already allocated"))
	}
	if !results.CompareAndSwap(nil, pool.New[resultStore]("result store", resultCount)) {
		panic(errors.New("lfca: result store pool is already allocated"))
	}
	log.Debugf("Preallocated pools: %d nodes, %d treaps, %d result stores",
		nodeCount, treapCount, resultCount)
}

// Deallocate releases the pools and drops any pending epoch
// retirements.  Every tree built on the old pools is dead afterwards.
// It must not race with tree operations; it exists so tests can tear
// down and resize between runs.
func Deallocate() {
	epoch.Reset()
	treap.Deallocate()
	nodes.Store(nil)
	results.Store(nil)
}

func nodePool() *pool.Pool[node] {
	if p := nodes.Load(); p != nil {
		return p
	}
	p := pool.New[node]("node", DefaultNodePoolSize)
	if nodes.CompareAndSwap(nil, p) {
		return p
	}
	return nodes.Load()
}

func resultPool() *pool.Pool[resultStore] {
	if p := results.Load(); p != nil {
		return p
	}
	p := pool.New[resultStore]("result store", DefaultResultPoolSize)
	if results.CompareAndSwap(nil, p) {
		return p
	}
	return results.Load()
}

// putNode returns an unpublished or epoch-cleared node to the pool.
func putNode(n *node) {
	nodePool().Put(n)
}

// putResultStore returns an unpublished result store to the pool.
// Published stores are shared by every range base of their query and
// are never recycled.
func putResultStore(s *resultStore) {
	resultPool().Put(s)
}

// retireNode schedules n for recycling once no pinned operation can
// still reach it.  The caller must have already unlinked n.
func retireNode(n *node) {
	epoch.Retire(func() {
		putNode(n)
	})
}

// retireNodeAndData is retireNode for nodes whose treap has no other
// owner, which is every replacement except range-base substitution
// (the range copy shares the treap of the base it replaces).
func retireNodeAndData(n *node) {
	data := n.data
	epoch.Retire(func() {
		treap.Recycle(data)
		putNode(n)
	})
}
