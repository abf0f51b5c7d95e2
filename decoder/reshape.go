// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"fmt"

	"github.com/nlpodyssey/beamflow/beam"
	"github.com/nlpodyssey/beamflow/encoder"
	"github.com/nlpodyssey/spago/mat"
)

// bottle merges a [beam][batch] grid into beam*batch rows:
// grid[k][j] becomes row k*batchSize+j.
func bottle[T any](grid [][]T) []T {
	if len(grid) == 0 {
		return nil
	}
	batchSize := len(grid[0])
	rows := make([]T, 0, len(grid)*batchSize)
	for _, r := range grid {
		rows = append(rows, r...)
	}
	return rows
}

// unbottle splits beam*batch rows into a [beam][batch] grid. It is the inverse of bottle.
func unbottle[T any](rows []T, batchSize, beamSize int) ([][]T, error) {
	if len(rows) != batchSize*beamSize {
		return nil, fmt.Errorf("%w: got %d rows, expected %d (batch %d x beam %d)",
			beam.ErrShapeMismatch, len(rows), batchSize*beamSize, batchSize, beamSize)
	}
	grid := make([][]T, beamSize)
	for k := range grid {
		grid[k] = rows[k*batchSize : (k+1)*batchSize]
	}
	return grid, nil
}

// sequenceRows returns the beam entries of sequence seq from a [beam][batch] grid.
func sequenceRows[T any](grid [][]T, seq int) []T {
	out := make([]T, len(grid))
	for k, r := range grid {
		out[k] = r[seq]
	}
	return out
}

// tile repeats a per-sequence slice beamSize times in the bottled layout.
func tile[T any](xs []T, beamSize int) []T {
	if xs == nil {
		return nil
	}
	grid := make([][]T, beamSize)
	for k := range grid {
		grid[k] = xs
	}
	return bottle(grid)
}

// replicate returns the encoder result with every per-sequence field repeated
// beamSize times, so that it is aligned with the bottled batch*beam rows.
func replicate(enc *encoder.Result, beamSize int) *encoder.Result {
	return &encoder.Result{
		Sources:      tile(enc.Sources, beamSize),
		Memory:       tile(enc.Memory, beamSize),
		Lengths:      tile(enc.Lengths, beamSize),
		SourceMaps:   tile(enc.SourceMaps, beamSize),
		SourceVocabs: tile(enc.SourceVocabs, beamSize),
		State:        enc.State,
	}
}

// rowsOf copies the matrix into a slice of rows.
func rowsOf(m mat.Matrix) [][]float64 {
	r, c := m.Rows(), m.Columns()
	data := m.Data().F64()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = make([]float64, c)
		copy(rows[i], data[i*c:(i+1)*c])
	}
	return rows
}
