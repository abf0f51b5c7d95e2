// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"context"
	"fmt"

	"github.com/nlpodyssey/beamflow/encoder"
	"github.com/nlpodyssey/spago/mat"
)

// scriptFunc returns the scores of the next token of sequence seq given the
// tokens fed so far (beginning-of-sequence included).
type scriptFunc func(seq int, history []int) []float64

type reorderCall struct {
	seq     int
	origins []int
}

// historyState keeps the tokens fed to every bottled row.
type historyState struct {
	batchSize int
	rows      [][]int
	reorders  []reorderCall
}

func (s *historyState) Replicate(beamSize int) error {
	rows := make([][]int, 0, len(s.rows)*beamSize)
	for k := 0; k < beamSize; k++ {
		for _, r := range s.rows {
			rows = append(rows, append([]int(nil), r...))
		}
	}
	s.rows = rows
	return nil
}

func (s *historyState) Reorder(seq int, origins []int, beamSize int) error {
	if len(origins) != beamSize {
		return fmt.Errorf("got %d origins for a beam of %d", len(origins), beamSize)
	}
	old := make([][]int, beamSize)
	for k := range old {
		old[k] = s.rows[k*s.batchSize+seq]
	}
	for k, o := range origins {
		s.rows[k*s.batchSize+seq] = append([]int(nil), old[o]...)
	}
	s.reorders = append(s.reorders, reorderCall{seq: seq, origins: append([]int(nil), origins...)})
	return nil
}

// scriptedModel is a Model and Generator whose features are directly the scores.
type scriptedModel struct {
	script    scriptFunc
	state     *historyState
	inputs    [][]int
	badWidth  bool
	attnWidth int // overrides the width of the attention rows
}

func (m *scriptedModel) InitState(_ context.Context, enc *encoder.Result) (State, error) {
	m.state = &historyState{
		batchSize: enc.BatchSize(),
		rows:      make([][]int, enc.BatchSize()),
	}
	return m.state, nil
}

func (m *scriptedModel) Step(_ context.Context, input []int, memory *encoder.Result, state State) (*StepOutput, State, error) {
	s := state.(*historyState)
	if len(input) != len(s.rows) {
		return nil, nil, fmt.Errorf("got %d inputs for %d rows", len(input), len(s.rows))
	}
	m.inputs = append(m.inputs, append([]int(nil), input...))

	maxLen := m.attnWidth
	if maxLen == 0 {
		for _, l := range memory.Lengths {
			maxLen = max(maxLen, l)
		}
	}

	var scores, attention []float64
	width := 0
	for r, token := range input {
		s.rows[r] = append(s.rows[r], token)
		row := m.script(r%s.batchSize, s.rows[r])
		width = len(row)
		scores = append(scores, row...)

		att := make([]float64, maxLen)
		att[(len(s.rows[r])-1)%min(maxLen, memory.Lengths[r])] = 1
		attention = append(attention, att...)
	}
	rows := len(input)
	if m.badWidth {
		rows--
		scores = scores[:rows*width]
	}
	return &StepOutput{
		Features:  mat.NewDense[float64](rows, width, scores),
		Attention: mat.NewDense[float64](len(input), maxLen, attention),
	}, s, nil
}

func (m *scriptedModel) Generate(features mat.Matrix) (mat.Matrix, error) {
	return features, nil
}

// scoreRow returns a row of the given width filled with fill, with the given overrides.
func scoreRow(width int, fill float64, overrides map[int]float64) []float64 {
	r := make([]float64, width)
	for i := range r {
		r[i] = fill
	}
	for i, v := range overrides {
		r[i] = v
	}
	return r
}

func hasPrefix(history []int, prefix ...int) bool {
	if len(history) != len(prefix) {
		return false
	}
	for i := range prefix {
		if history[i] != prefix[i] {
			return false
		}
	}
	return true
}

func newBatch(lengths ...int) *encoder.Result {
	enc := &encoder.Result{Lengths: lengths}
	for _, l := range lengths {
		enc.Memory = append(enc.Memory, mat.NewEmptyDense[float64](l, 1))
	}
	return enc
}
