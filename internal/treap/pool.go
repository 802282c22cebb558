// Copyright (c) 2024 The lfca developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package treap

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/lfcatree/lfca/internal/pool"
)

// DefaultPoolSize is the treap pool capacity used when the embedding
// program never calls Preallocate.
const DefaultPoolSize = 8192

var treaps atomic.Pointer[pool.Pool[Treap]]

// Preallocate sizes the package treap pool.  It must be called before
// the first treap is created and at most once; programs that skip it get
// DefaultPoolSize.
func Preallocate(capacity int) {
	p := pool.New[Treap]("treap", capacity)
	if !treaps.CompareAndSwap(nil, p) {
		panic(errors.New("treap: pool is already allocated"))
	}
}

// Deallocate releases the pool.  It must not race with treap use; it
// exists so tests can tear down and resize between runs.
func Deallocate() {
	treaps.Store(nil)
}

// Recycle returns a treap to the pool.  The caller must guarantee no
// live references remain, which in practice means routing the call
// through epoch retirement.
func Recycle(t *Treap) {
	if p := treaps.Load(); p != nil {
		p.Put(t)
	}
}

func getPool() *pool.Pool[Treap] {
	if p := treaps.Load(); p != nil {
		return p
	}
	p := pool.New[Treap]("treap", DefaultPoolSize)
	if treaps.CompareAndSwap(nil, p) {
		return p
	}
	return treaps.Load()
}
