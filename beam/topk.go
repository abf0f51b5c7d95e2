// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package beam

import (
	"sort"

	"github.com/nlpodyssey/beamflow/sliceutils"
)

// TopK returns the k highest values in descending order together with their
// indices in the input. Ties are broken by the lower index. If k exceeds the
// number of values, all of them are returned. The input is not modified.
func TopK(values []float64, k int) ([]float64, []int) {
	if k > len(values) {
		k = len(values)
	}
	if k <= 0 {
		return nil, nil
	}

	data := make([]float64, len(values))
	copy(data, values)
	sorted := sliceutils.NewIndexedSlice(data)
	sort.Stable(sort.Reverse(sorted))

	scores := make([]float64, k)
	indices := make([]int, k)
	copy(scores, sorted.Slice[:k])
	copy(indices, sorted.Indices[:k])
	return scores, indices
}
