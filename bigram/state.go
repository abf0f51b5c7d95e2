// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bigram

import (
	"fmt"

	"github.com/nlpodyssey/beamflow/decoder"
)

// State is the decoder state of every row: the last token fed and the number
// of tokens fed so far.
type State struct {
	batchSize int
	Prev      []int
	Steps     []int
}

var _ decoder.State = &State{}

// NewState returns the initial state for a batch.
func NewState(batchSize int) *State {
	prev := make([]int, batchSize)
	for i := range prev {
		prev[i] = -1
	}
	return &State{
		batchSize: batchSize,
		Prev:      prev,
		Steps:     make([]int, batchSize),
	}
}

// Replicate repeats the state of every sequence beamSize times, beam-major.
func (s *State) Replicate(beamSize int) error {
	if beamSize < 1 {
		return fmt.Errorf("invalid beam size %d", beamSize)
	}
	if len(s.Prev) != s.batchSize {
		return fmt.Errorf("state already replicated")
	}
	prev := make([]int, 0, s.batchSize*beamSize)
	steps := make([]int, 0, s.batchSize*beamSize)
	for k := 0; k < beamSize; k++ {
		prev = append(prev, s.Prev...)
		steps = append(steps, s.Steps...)
	}
	s.Prev, s.Steps = prev, steps
	return nil
}

// Reorder moves the state of slot origins[k] of sequence seq into slot k.
func (s *State) Reorder(seq int, origins []int, beamSize int) error {
	if seq < 0 || seq >= s.batchSize {
		return fmt.Errorf("sequence %d out of range [0, %d)", seq, s.batchSize)
	}
	if len(origins) != beamSize || len(s.Prev) != s.batchSize*beamSize {
		return fmt.Errorf("cannot reorder %d slots of a state with %d rows for a beam of %d", len(origins), len(s.Prev), beamSize)
	}
	prev := make([]int, beamSize)
	steps := make([]int, beamSize)
	for k, o := range origins {
		if o < 0 || o >= beamSize {
			return fmt.Errorf("origin %d out of range [0, %d)", o, beamSize)
		}
		prev[k] = s.Prev[o*s.batchSize+seq]
		steps[k] = s.Steps[o*s.batchSize+seq]
	}
	for k := range origins {
		s.Prev[k*s.batchSize+seq] = prev[k]
		s.Steps[k*s.batchSize+seq] = steps[k]
	}
	return nil
}
