// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bigram implements a small table-driven translation model.
//
// The next-word logits depend on the previous target word and on the
// attended source word. At step t the model attends the source position
// min(t, length-1), so the attention walks the source monotonically.
package bigram

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/nlpodyssey/beamflow/encoder"
	"github.com/nlpodyssey/spago/mat"
	"github.com/rs/zerolog/log"
)

// minProb keeps the logarithm of the copy probabilities finite.
const minProb = 1e-20

// LookupFunc returns the vocabulary ID of a word.
type LookupFunc func(word string) (int, bool)

// Model is a bigram translation model. It implements the encoder, the
// decoder model, the generator and the copy generator.
type Model struct {
	vocabSize    int
	transitions  map[int]map[int]float64
	lexicon      map[int]map[int]float64
	defaultLogit float64
	copyWeight   float64
}

var (
	_ encoder.Encoder       = &Model{}
	_ decoder.Model         = &Model{}
	_ decoder.Generator     = &Model{}
	_ decoder.CopyGenerator = &Model{}
)

// New returns a Model resolving the words of the configuration with lookup.
func New(c Config, lookup LookupFunc, vocabSize int) (*Model, error) {
	if vocabSize < 1 {
		return nil, fmt.Errorf("invalid vocabulary size %d", vocabSize)
	}
	if c.CopyWeight < 0 || c.CopyWeight >= 1 {
		return nil, fmt.Errorf("invalid copy weight %g: must be in [0, 1)", c.CopyWeight)
	}
	transitions, err := resolveTable(c.Transitions, lookup)
	if err != nil {
		return nil, fmt.Errorf("transitions: %w", err)
	}
	lexicon, err := resolveTable(c.Lexicon, lookup)
	if err != nil {
		return nil, fmt.Errorf("lexicon: %w", err)
	}
	return &Model{
		vocabSize:    vocabSize,
		transitions:  transitions,
		lexicon:      lexicon,
		defaultLogit: c.DefaultLogit,
		copyWeight:   c.CopyWeight,
	}, nil
}

// Load loads the model file from the given directory.
func Load(dir string, lookup LookupFunc, vocabSize int) (*Model, error) {
	filename := filepath.Join(dir, DefaultFilename)
	c, err := LoadConfig(filename)
	if err != nil {
		return nil, err
	}
	m, err := New(c, lookup, vocabSize)
	if err != nil {
		return nil, fmt.Errorf("invalid model file %s: %w", filename, err)
	}
	log.Debug().Msgf("Loaded bigram model: %d transitions, %d lexicon entries", len(m.transitions), len(m.lexicon))
	return m, nil
}

func resolveTable(table map[string]map[string]float64, lookup LookupFunc) (map[int]map[int]float64, error) {
	out := make(map[int]map[int]float64, len(table))
	for from, row := range table {
		fromID, ok := lookup(from)
		if !ok {
			return nil, fmt.Errorf("word %q not found in the vocabulary", from)
		}
		resolved := make(map[int]float64, len(row))
		for to, logit := range row {
			toID, ok := lookup(to)
			if !ok {
				return nil, fmt.Errorf("word %q not found in the vocabulary", to)
			}
			resolved[toID] = logit
		}
		out[fromID] = resolved
	}
	return out, nil
}

// VocabSize returns the size of the target vocabulary.
func (m *Model) VocabSize() int {
	return m.vocabSize
}

// Encode implements encoder.Encoder. The memory of every sequence is the
// column of its token IDs.
func (m *Model) Encode(_ context.Context, sources [][]int) (*encoder.Result, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	res := &encoder.Result{
		Sources: sources,
		Memory:  make([]mat.Matrix, len(sources)),
		Lengths: make([]int, len(sources)),
	}
	for i, src := range sources {
		if len(src) == 0 {
			return nil, fmt.Errorf("source sequence %d is empty", i)
		}
		data := make([]float64, len(src))
		for j, id := range src {
			data[j] = float64(id)
		}
		res.Memory[i] = mat.NewDense[float64](len(src), 1, data)
		res.Lengths[i] = len(src)
	}
	return res, nil
}

// InitState implements decoder.Model.
func (m *Model) InitState(_ context.Context, enc *encoder.Result) (decoder.State, error) {
	return NewState(enc.BatchSize()), nil
}

// Step implements decoder.Model. The features are the next-word logits;
// the copy attention is the same as the attention.
func (m *Model) Step(_ context.Context, input []int, memory *encoder.Result, state decoder.State) (*decoder.StepOutput, decoder.State, error) {
	s, ok := state.(*State)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected state type %T", state)
	}
	if len(input) != len(s.Prev) || len(input) != memory.BatchSize() || len(memory.Sources) != len(input) {
		return nil, nil, fmt.Errorf("got %d inputs for %d state rows and %d memory rows", len(input), len(s.Prev), memory.BatchSize())
	}

	width := 0
	for _, l := range memory.Lengths {
		width = max(width, l)
	}

	logits := make([]float64, 0, len(input)*m.vocabSize)
	attention := make([]float64, len(input)*width)
	for r, token := range input {
		pos := min(s.Steps[r], memory.Lengths[r]-1)
		attention[r*width+pos] = 1
		logits = append(logits, m.logits(token, memory.Sources[r][pos])...)
		s.Prev[r] = token
		s.Steps[r]++
	}

	att := mat.NewDense[float64](len(input), width, attention)
	return &decoder.StepOutput{
		Features:      mat.NewDense[float64](len(input), m.vocabSize, logits),
		Attention:     att,
		CopyAttention: att,
	}, s, nil
}

func (m *Model) logits(prev, source int) []float64 {
	out := make([]float64, m.vocabSize)
	transitions := m.transitions[prev]
	lexicon := m.lexicon[source]
	for w := range out {
		v, ok := transitions[w]
		if !ok {
			v = m.defaultLogit
		}
		out[w] = v + lexicon[w]
	}
	return out
}

// Generate implements decoder.Generator: log-softmax of every row.
func (m *Model) Generate(features mat.Matrix) (mat.Matrix, error) {
	rows, cols := features.Rows(), features.Columns()
	if cols != m.vocabSize {
		return nil, fmt.Errorf("got %d features, expected %d", cols, m.vocabSize)
	}
	out := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		out = append(out, decoder.LogSoftmax(features.ExtractRow(r)).Data().F64()...)
	}
	return mat.NewDense[float64](rows, cols, out), nil
}

// GenerateWithCopy implements decoder.CopyGenerator. The vocabulary
// distribution gets 1-CopyWeight of the mass; the rest goes to the source
// words under the copy attention. Rows are as wide as the largest extended
// vocabulary of the batch.
func (m *Model) GenerateWithCopy(features, copyAttention mat.Matrix, sourceMaps []mat.Matrix) (mat.Matrix, error) {
	rows, cols := features.Rows(), features.Columns()
	if cols != m.vocabSize {
		return nil, fmt.Errorf("got %d features, expected %d", cols, m.vocabSize)
	}
	if len(sourceMaps) != rows || copyAttention.Rows() != rows {
		return nil, fmt.Errorf("got %d source maps and %d copy attention rows for %d rows", len(sourceMaps), copyAttention.Rows(), rows)
	}
	extra := 0
	for _, sm := range sourceMaps {
		extra = max(extra, sm.Columns())
	}
	width := cols + extra

	data := features.Data().F64()
	attention := copyAttention.Data().F64()
	attWidth := copyAttention.Columns()

	out := make([]float64, rows*width)
	for r := 0; r < rows; r++ {
		row := out[r*width : (r+1)*width]
		probs := mat.NewVecDense(data[r*cols : (r+1)*cols]).Softmax()
		for w, p := range probs.Data().F64() {
			row[w] = (1 - m.copyWeight) * p
		}

		sm := sourceMaps[r]
		smCols := sm.Columns()
		smData := sm.Data().F64()
		for pos := 0; pos < sm.Rows() && pos < attWidth; pos++ {
			a := attention[r*attWidth+pos]
			if a == 0 {
				continue
			}
			for e := 0; e < smCols; e++ {
				row[cols+e] += m.copyWeight * a * smData[pos*smCols+e]
			}
		}
		for i, p := range row {
			row[i] = math.Max(p, minProb)
		}
	}
	return mat.NewDense[float64](rows, width, out), nil
}

// SourceMap returns the one-hot map from every source position to its
// extended-vocabulary slot.
func SourceMap(positions []int, numWords int) mat.Matrix {
	data := make([]float64, len(positions)*numWords)
	for pos, w := range positions {
		data[pos*numWords+w] = 1
	}
	return mat.NewDense[float64](len(positions), numWords, data)
}
