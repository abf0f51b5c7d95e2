// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sliceutils

import (
	"container/heap"

	"golang.org/x/exp/constraints"
)

// OrderedHeap is a min-heap of ordered values. It implements heap.Interface.
type OrderedHeap[T constraints.Ordered] []T

var _ heap.Interface = &OrderedHeap[float64]{}

// Len is the number of elements in the collection.
func (h OrderedHeap[T]) Len() int { return len(h) }

// Less reports whether the element with index i should sort before the element with index j.
func (h OrderedHeap[T]) Less(i, j int) bool { return h[i] < h[j] }

// Swap swaps the elements with indexes i and j.
func (h OrderedHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push adds x as element Len().
func (h *OrderedHeap[T]) Push(x any) {
	*h = append(*h, x.(T))
}

// Pop removes and returns element Len() - 1.
func (h *OrderedHeap[T]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type reverseHeap struct {
	heap.Interface
}

// Less returns the opposite of the embedded implementation's Less method.
func (r reverseHeap) Less(i, j int) bool {
	return r.Interface.Less(j, i)
}

// ReverseHeap returns the reverse order for data, turning a min-heap into a max-heap.
func ReverseHeap(data heap.Interface) heap.Interface {
	return &reverseHeap{data}
}
