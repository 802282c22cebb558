// Copyright (c) 2024 The lfca developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package lfca implements a lock-free contention-adapting search tree: a
concurrent ordered set of integers with linearizable point operations
and range queries.

The set is a binary tree whose leaves ("base nodes") each hold a small
immutable treap of keys and whose internal nodes ("route nodes")
partition the key space.  Point operations descend to a base node, build
a replacement base around a freshly derived treap, and publish it with a
single compare-and-swap of the parent's child pointer.  Because the
treaps are immutable, readers never observe a partially applied update.

The tree watches contention per base node and restructures itself in the
background: a base that keeps losing CAS races is split in two so the
traffic spreads, and neighboring bases that only ever see uncontended
traffic are joined back together so lookups stay short.  Both
adaptations follow a helping protocol, so any thread that stumbles over
an in-progress split or join can complete it and no operation ever
blocks on another.

Range queries pin every leaf they cover by substituting range-variant
bases, then publish one shared result vector with a single
compare-and-swap, which makes the whole query atomic with respect to
every other operation.

All operations are safe for concurrent use.  Nodes and treaps come from
fixed-capacity process-wide pools (see Preallocate) and are recycled
through an epoch-based reclamation scheme.
*/
package lfca
