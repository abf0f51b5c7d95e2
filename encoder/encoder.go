// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package encoder

import (
	"context"
	"fmt"

	"github.com/nlpodyssey/spago/mat"
)

// Encoder encodes a batch of source sequences.
type Encoder interface {
	Encode(ctx context.Context, sources [][]int) (*Result, error)
}

// Result is the encoded representation of a batch of source sequences.
// Every field holds one entry per sequence, in batch order.
type Result struct {
	// Sources are the source token ids.
	Sources [][]int
	// Memory is the encoder output of each sequence (source length x hidden size).
	Memory []mat.Matrix
	// Lengths are the number of valid source positions of each sequence.
	Lengths []int
	// SourceMaps map every source position to its extended-vocabulary slot
	// (source length x number of extra words). Only used by copy attention.
	SourceMaps []mat.Matrix
	// SourceVocabs list, for every extended-vocabulary slot, the target vocabulary
	// id of the same word, or -1 when the word is not in the target vocabulary.
	// Only used by copy attention.
	SourceVocabs [][]int
	// State is the final encoder state, opaque to everything but the model.
	State any
}

// BatchSize returns the number of sequences in the batch.
func (r *Result) BatchSize() int {
	return len(r.Lengths)
}

// Validate checks that all the per-sequence fields are aligned.
func (r *Result) Validate() error {
	n := len(r.Lengths)
	if n == 0 {
		return fmt.Errorf("empty batch")
	}
	if len(r.Memory) != n {
		return fmt.Errorf("got %d memory entries for a batch of %d", len(r.Memory), n)
	}
	if r.Sources != nil && len(r.Sources) != n {
		return fmt.Errorf("got %d sources for a batch of %d", len(r.Sources), n)
	}
	if r.SourceMaps != nil && len(r.SourceMaps) != n {
		return fmt.Errorf("got %d source maps for a batch of %d", len(r.SourceMaps), n)
	}
	if r.SourceVocabs != nil && len(r.SourceVocabs) != n {
		return fmt.Errorf("got %d source vocabularies for a batch of %d", len(r.SourceVocabs), n)
	}
	for i, l := range r.Lengths {
		if l < 1 {
			return fmt.Errorf("sequence %d has invalid length %d", i, l)
		}
	}
	return nil
}
