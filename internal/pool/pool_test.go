// Copyright (c) 2024 The lfca developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type payload struct {
	a, b int
}

func TestGetBumpAllocates(t *testing.T) {
	p := New[payload]("test", 4)

	seen := make(map[*payload]bool)
	for i := 0; i < 4; i++ {
		x := p.Get()
		require.NotNil(t, x)
		require.False(t, seen[x], "Get returned the same slot twice")
		seen[x] = true
	}
	require.Equal(t, 4, p.InUse())
	require.Equal(t, 4, p.Cap())
}

func TestGetPanicsWhenExhausted(t *testing.T) {
	p := New[payload]("test", 2)
	p.Get()
	p.Get()
	require.Panics(t, func() { p.Get() })
}

func TestPutRecyclesBeforeBump(t *testing.T) {
	p := New[payload]("test", 2)

	a := p.Get()
	a.a = 42
	p.Put(a)
	require.Equal(t, 0, p.InUse())

	b := p.Get()
	require.Same(t, a, b, "free list should be drained before the bump index")
	require.Equal(t, 42, b.a, "recycled slots are returned as-is")

	// With a back on the free list, the pool can hand out more objects
	// than its raw capacity over its lifetime.
	p.Get()
	p.Put(b)
	p.Get()
	require.Equal(t, 2, p.InUse())
}

func TestPutForeignPointerPanics(t *testing.T) {
	p := New[payload]("test", 2)
	require.Panics(t, func() { p.Put(&payload{}) })
}

func TestZeroCapacityPanics(t *testing.T) {
	require.Panics(t, func() { New[payload]("test", 0) })
}

func TestConcurrentGetPut(t *testing.T) {
	const (
		workers = 8
		rounds  = 2000
	)
	p := New[payload]("test", workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				x := p.Get()
				// Exclusive ownership between Get and Put; the race
				// detector flags any slot handed out twice.
				x.a = w
				x.b = x.a
				p.Put(x)
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, 0, p.InUse())
}
