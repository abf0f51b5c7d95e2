// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"fmt"

	"github.com/nlpodyssey/beamflow/beam"
)

// Result holds the n-best hypotheses of every sequence of a batch.
// The three fields are parallel and indexed by sequence, then by rank.
type Result struct {
	// Predictions are the hypothesis tokens, without the end token.
	Predictions [][][]int
	// Scores are the normalized hypothesis scores, best first.
	Scores [][]float64
	// Attention holds one attention vector per predicted token.
	Attention [][][][]float64
}

// Hypotheses returns the hypotheses of the given sequence, best first.
func (r *Result) Hypotheses(seq int) []beam.Hypothesis {
	out := make([]beam.Hypothesis, len(r.Predictions[seq]))
	for i := range out {
		out[i] = beam.Hypothesis{
			Tokens:    r.Predictions[seq][i],
			Attention: r.Attention[seq][i],
			Score:     r.Scores[seq][i],
		}
	}
	return out
}

// FromBeams extracts at most nBest hypotheses from every beam.
func FromBeams(beams []*beam.Beam, nBest int) (*Result, error) {
	ret := &Result{
		Predictions: make([][][]int, len(beams)),
		Scores:      make([][]float64, len(beams)),
		Attention:   make([][][][]float64, len(beams)),
	}
	for i, b := range beams {
		scores, refs := b.SortFinished(nBest)
		if len(refs) > nBest {
			scores, refs = scores[:nBest], refs[:nBest]
		}
		hyps := make([][]int, len(refs))
		attn := make([][][]float64, len(refs))
		for j, ref := range refs {
			hyp, err := b.Hyp(ref)
			if err != nil {
				return nil, fmt.Errorf("sequence %d: %w", i, err)
			}
			hyps[j] = hyp.Tokens
			attn[j] = hyp.Attention
		}
		ret.Predictions[i] = hyps
		ret.Scores[i] = scores
		ret.Attention[i] = attn
	}
	return ret, nil
}
