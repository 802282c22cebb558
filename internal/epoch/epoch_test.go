// Copyright (c) 2024 The lfca developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package epoch

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// settle runs enough empty pinned operations to advance the global
// epoch past anything retired before the call.
func settle() {
	for i := 0; i < 5; i++ {
		With(func() {})
	}
}

func TestRetireRunsAfterTwoAdvances(t *testing.T) {
	Reset()

	var ran atomic.Bool
	With(func() {
		Retire(func() { ran.Store(true) })
	})
	require.False(t, ran.Load(), "callback ran before the epoch advanced twice")

	settle()
	require.True(t, ran.Load(), "callback never ran after the epoch settled")
}

func TestRetireBlockedByPinnedReader(t *testing.T) {
	Reset()

	pinned := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		With(func() {
			close(pinned)
			<-release
		})
		close(done)
	}()
	<-pinned

	var ran atomic.Bool
	With(func() {
		Retire(func() { ran.Store(true) })
	})
	settle()
	require.False(t, ran.Load(), "callback ran while a reader was still pinned")

	close(release)
	<-done
	settle()
	require.True(t, ran.Load(), "callback never ran after the reader unpinned")
}

func TestConcurrentChurn(t *testing.T) {
	Reset()

	const (
		workers = 8
		rounds  = 1000
	)
	var count atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				With(func() {
					Retire(func() { count.Add(1) })
				})
			}
		}()
	}
	wg.Wait()

	settle()
	require.Equal(t, int64(workers*rounds), count.Load())
}

func TestResetDropsPending(t *testing.T) {
	Reset()

	var ran atomic.Bool
	With(func() {
		Retire(func() { ran.Store(true) })
	})
	Reset()
	settle()
	require.False(t, ran.Load(), "Reset should drop pending callbacks")
}
