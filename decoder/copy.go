// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"fmt"

	"github.com/nlpodyssey/beamflow/beam"
	"github.com/nlpodyssey/beamflow/encoder"
)

// collapsedProb is left in an extended-vocabulary slot once its probability
// has been moved to the target-vocabulary slot of the same word.
const collapsedProb = 1e-10

// maskCopiedTokens replaces in place every token that refers to a copied
// source word (id >= vocabSize) with the unknown token: the model has no
// embedding for them.
func maskCopiedTokens(tokens []int, vocabSize, unkID int) {
	for i, t := range tokens {
		if t >= vocabSize {
			tokens[i] = unkID
		}
	}
}

// VocabCollapser collapses copy scores using the per-sequence source vocabularies
// of the batch: the probability of copying a source word that also belongs
// to the target vocabulary is added to the target-vocabulary slot.
type VocabCollapser struct {
	// VocabSize is the size of the fixed target vocabulary.
	VocabSize int
	// UnkTokenID is the unknown token of the target vocabulary. Source words
	// mapped to it keep their own extended slot.
	UnkTokenID int
}

var _ CopyCollapser = VocabCollapser{}

// CollapseCopyScores implements CopyCollapser. The rows are modified in place.
func (c VocabCollapser) CollapseCopyScores(probs [][]float64, batch *encoder.Result, beamSize int) ([][]float64, error) {
	batchSize := batch.BatchSize()
	if len(probs) != batchSize*beamSize {
		return nil, fmt.Errorf("%w: got %d probability rows, expected %d", beam.ErrShapeMismatch, len(probs), batchSize*beamSize)
	}
	for r, row := range probs {
		srcVocab := batch.SourceVocabs[r%batchSize]
		if len(row) < c.VocabSize+len(srcVocab) {
			return nil, fmt.Errorf("%w: probability row of width %d cannot hold %d target and %d source words",
				beam.ErrShapeMismatch, len(row), c.VocabSize, len(srcVocab))
		}
		for e, targetID := range srcVocab {
			if targetID < 0 || targetID == c.UnkTokenID || targetID >= c.VocabSize {
				continue
			}
			row[targetID] += row[c.VocabSize+e]
			row[c.VocabSize+e] = collapsedProb
		}
	}
	return probs, nil
}
