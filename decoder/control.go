// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"container/heap"
	"fmt"
	"math"
	"sort"

	"github.com/nlpodyssey/beamflow/sliceutils"
	"github.com/nlpodyssey/spago/mat"
)

// filteredScore replaces the log-probability of the extensions removed by the
// output control. It is finite so that beam scores never become NaN.
const filteredScore = -1e20

// OutputDiversityControlFunc pre-processes the log-probabilities of a single
// hypothesis, as a vector, before they are handed to the beam.
type OutputDiversityControlFunc func(scores mat.Matrix) (mat.Matrix, error)

// OutputDiversityControl returns the chain of pre-processing functions for the given settings.
// minSize is the number of extensions top-p filtering always keeps; with beam
// search it should be the beam size.
func OutputDiversityControl(temp float64, topK int, topP float64, minSize int, blocked []int) (OutputDiversityControlFunc, error) {
	if temp < 0 || temp > 1 {
		return nil, fmt.Errorf("invalid temperature value: %f. Must be between 0 and 1", temp)
	}
	if topK < 0 {
		return nil, fmt.Errorf("invalid topK value: %d. Must be >= 0", topK)
	}
	if topP < 0 || topP > 1 {
		return nil, fmt.Errorf("invalid topP value: %f. Must be between 0 and 1", topP)
	}

	result := make([]OutputDiversityControlFunc, 0, 4)
	if len(blocked) > 0 {
		result = append(result, BlockTokensFunc(blocked, filteredScore))
	}
	if temp != 1 {
		result = append(result, TemperatureFunc(temp))
	}
	if topK != 0 {
		result = append(result, TopKFunc(topK, filteredScore))
	}
	if topP != 1 {
		result = append(result, TopPFunc(topP, filteredScore, minSize))
	}

	return func(scores mat.Matrix) (mat.Matrix, error) {
		var err error
		for _, p := range result {
			scores, err = p(scores)
			if err != nil {
				return nil, err
			}
		}
		return scores, err
	}, nil
}

// BlockTokensFunc sets the score of the given tokens to filterValue.
func BlockTokensFunc(tokenIDs []int, filterValue float64) OutputDiversityControlFunc {
	blocked := make(map[int]struct{}, len(tokenIDs))
	for _, id := range tokenIDs {
		blocked[id] = struct{}{}
	}
	return func(scores mat.Matrix) (mat.Matrix, error) {
		cols := scores.Columns()
		return scores.Apply(func(r, c int, v float64) float64 {
			if _, ok := blocked[r*cols+c]; ok {
				return filterValue
			}
			return v
		}), nil
	}
}

// TemperatureFunc applies a temperature to a vector of log-probabilities and
// normalizes them again, which is the same as scaling the logits.
func TemperatureFunc(temperature float64) OutputDiversityControlFunc {
	if temperature == 1 {
		return func(scores mat.Matrix) (mat.Matrix, error) {
			return scores, nil
		}
	}
	if temperature == 0 {
		temperature = 0.01 // avoid division by zero
	}
	invTemperature := 1 / temperature
	return func(scores mat.Matrix) (mat.Matrix, error) {
		return LogSoftmax(scores.ProdScalar(invTemperature)), nil
	}
}

// TopKFunc applies a top-k filter to a vector of scores.
// Scores tied with the k-th best one are kept.
func TopKFunc(topK int, filterValue float64) OutputDiversityControlFunc {
	return func(scores mat.Matrix) (mat.Matrix, error) {
		if size := scores.Size(); size <= topK {
			return scores, nil
		}

		inScores := scores.Data().F64()

		rawTopScores := make(sliceutils.OrderedHeap[float64], len(inScores))
		copy(rawTopScores, inScores)

		topScores := sliceutils.ReverseHeap(&rawTopScores)
		heap.Init(topScores)
		for i := 1; i < topK; i++ {
			heap.Pop(topScores)
		}
		minScore := heap.Pop(topScores).(float64)

		return scores.Apply(func(_, _ int, v float64) float64 {
			if v < minScore {
				return filterValue
			}
			return v
		}), nil
	}
}

// TopPFunc applies a top-p (nucleus) filter to a vector of log-probabilities.
// At least minSize extensions are kept.
func TopPFunc(topP, filterValue float64, minSize int) OutputDiversityControlFunc {
	return func(scores mat.Matrix) (mat.Matrix, error) {
		if scores.Size() == 0 {
			return scores, nil
		}
		dataCopy := make([]float64, scores.Size())
		copy(dataCopy, scores.Data().F64())
		sortedData := sliceutils.NewIndexedSlice(dataCopy)
		sort.Stable(sort.Reverse(sortedData))

		cumulativeProbs := mat.NewVecDense(sortedData.Slice).Softmax().CumSum()
		cumProbData := cumulativeProbs.Data().F64()

		indicesToRemove := make([]bool, len(cumProbData))
		for i, cp := range cumProbData {
			indicesToRemove[i] = cp > topP
		}

		if minSize > 1 {
			// Keep at least minSize (minSize-1 because we add the first one below)
			for i := min(minSize, len(indicesToRemove)) - 1; i >= 0; i-- {
				indicesToRemove[i] = false
			}
		}

		// Shift the indices to the right to keep also the first token above the threshold
		copy(indicesToRemove[1:], indicesToRemove[:len(indicesToRemove)-1])
		indicesToRemove[0] = false

		// Scatter sorted tensors to original indexing

		outData := make([]float64, scores.Size())
		copy(outData, scores.Data().F64())
		for maskIndex, toRemove := range indicesToRemove {
			if !toRemove {
				continue
			}
			index := sortedData.Indices[maskIndex]
			outData[index] = filterValue
		}

		return mat.NewVecDense(outData), nil
	}
}

// LogSoftmax returns the logarithm of the softmax of all the values of m.
// Values are shifted by their maximum first, so finite inputs give finite outputs.
func LogSoftmax(m mat.Matrix) mat.Matrix {
	shifted := m.SubScalar(m.Max().Scalar().F64())
	return shifted.SubScalar(math.Log(shifted.Exp().Sum().Scalar().F64()))
}
