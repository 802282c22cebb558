// Copyright (c) 2024 The lfca developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package lfca_test

import (
	"fmt"

	"github.com/lfcatree/lfca"
)

// This example demonstrates basic usage of the set: point operations
// plus an ordered range snapshot.
func ExampleTree() {
	set := lfca.New()

	for _, k := range []int{5, 1, 9, 3} {
		set.Insert(k)
	}
	set.Remove(9)

	fmt.Println(set.Contains(3))
	fmt.Println(set.Contains(9))
	fmt.Println(set.Range(2, 8))

	// Output:
	// true
	// false
	// [3 5]
}
