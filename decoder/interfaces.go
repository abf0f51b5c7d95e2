// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"context"

	"github.com/nlpodyssey/beamflow/encoder"
	"github.com/nlpodyssey/spago/mat"
)

// The decoder drives the model on batch*beam rows laid out beam-major:
// row k*batchSize+j holds slot k of sequence j. See bottle and unbottle.

// State is the recurrent decoder state threaded through the model steps.
// The decoder owns it for the whole search and only mutates it through these methods.
type State interface {
	// Replicate repeats the state of every sequence beamSize times.
	Replicate(beamSize int) error
	// Reorder rearranges the beamSize rows of sequence seq so that slot k
	// takes the state previously held by slot origins[k].
	Reorder(seq int, origins []int, beamSize int) error
}

// StepOutput is the result of a single model step.
type StepOutput struct {
	// Features are the decoder outputs, one row per batch*beam row.
	Features mat.Matrix
	// Attention is the standard attention over the source positions, one row
	// per batch*beam row. Rows may be wider than the source of their sequence.
	Attention mat.Matrix
	// CopyAttention is the copy attention. It is only read in copy mode.
	CopyAttention mat.Matrix
}

// Model runs the decoder network one step at a time.
type Model interface {
	// InitState returns the initial decoder state for the batch.
	InitState(ctx context.Context, enc *encoder.Result) (State, error)
	// Step feeds one token per row and returns the step output and the updated state.
	Step(ctx context.Context, input []int, memory *encoder.Result, state State) (*StepOutput, State, error)
}

// Generator maps decoder features to log-probabilities over the target vocabulary.
type Generator interface {
	Generate(features mat.Matrix) (mat.Matrix, error)
}

// CopyGenerator maps decoder features and copy attention to probabilities
// over the target vocabulary extended with the source words.
type CopyGenerator interface {
	GenerateWithCopy(features, copyAttention mat.Matrix, sourceMaps []mat.Matrix) (mat.Matrix, error)
}

// CopyCollapser folds the copy probabilities of the extended-vocabulary slots
// into the target-vocabulary slots of the same words.
type CopyCollapser interface {
	// CollapseCopyScores receives beam-major rows for the given batch and
	// returns rows of the same layout.
	CollapseCopyScores(probs [][]float64, batch *encoder.Result, beamSize int) ([][]float64, error)
}
