// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sliceutils

import (
	"sort"

	"golang.org/x/exp/constraints"
)

// IndexedSlice allows sorting a slice of ordered values without losing
// track of the index of each element in the original slice.
type IndexedSlice[T constraints.Ordered] struct {
	Slice   []T
	Indices []int
}

var _ sort.Interface = IndexedSlice[float64]{}

// NewIndexedSlice returns a new IndexedSlice wrapping the given slice.
// The slice is not copied: sorting reorders it in place.
func NewIndexedSlice[T constraints.Ordered](slice []T) IndexedSlice[T] {
	indices := make([]int, len(slice))
	for i := range indices {
		indices[i] = i
	}
	return IndexedSlice[T]{
		Slice:   slice,
		Indices: indices,
	}
}

// Len returns the length of the slice.
func (s IndexedSlice[T]) Len() int {
	return len(s.Slice)
}

// Less reports whether the value at index i is less than the value at index j.
func (s IndexedSlice[T]) Less(i, j int) bool {
	return s.Slice[i] < s.Slice[j]
}

// Swap swaps both the values and the original indices at i and j.
func (s IndexedSlice[T]) Swap(i, j int) {
	s.Slice[i], s.Slice[j] = s.Slice[j], s.Slice[i]
	s.Indices[i], s.Indices[j] = s.Indices[j], s.Indices[i]
}
