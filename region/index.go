// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package region

import "github.com/biogo/store/llrb"

// key wraps a Region for llrb ordering by start address.
type key struct {
	from uint64
	r    *Region
}

// Compare compares two key objects for use in llrb.
func (k key) Compare(c2 llrb.Comparable) int {
	k2 := c2.(key)
	switch {
	case k.from < k2.from:
		return -1
	case k.from > k2.from:
		return 1
	}
	return 0
}

// Index is an ordered collection of non-overlapping Regions keyed by start
// address. The zero value is an empty index, ready for use. Once a snapshot
// is fully built the Index is never mutated again; concurrent readers need no
// locking.
type Index struct {
	tree llrb.Tree
	n    int
}

// Insert adds a Region. The caller guarantees it does not overlap any Region
// already present.
func (x *Index) Insert(r *Region) {
	x.tree.Insert(key{r.From, r})
	x.n++
}

// Len returns the number of Regions in the index.
func (x *Index) Len() int { return x.n }

// Find returns the Region containing addr, or nil if no Region does. It
// locates the Region with the greatest start address <= addr and checks that
// addr falls short of its end.
func (x *Index) Find(addr uint64) *Region {
	c := x.tree.Floor(key{from: addr})
	if c == nil {
		return nil
	}
	r := c.(key).r
	if addr >= r.To {
		return nil
	}
	return r
}

// Do calls fn on every Region in ascending start-address order until fn
// returns true or the Regions are exhausted. It reports whether fn stopped
// the iteration early.
func (x *Index) Do(fn func(*Region) bool) bool {
	return x.tree.Do(func(c llrb.Comparable) bool {
		return fn(c.(key).r)
	})
}

// Regions returns all Regions in ascending start-address order.
func (x *Index) Regions() []*Region {
	rs := make([]*Region, 0, x.n)
	x.Do(func(r *Region) bool {
		rs = append(rs, r)
		return false
	})
	return rs
}
