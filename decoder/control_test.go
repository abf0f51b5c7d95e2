// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"math"
	"testing"

	"github.com/nlpodyssey/spago/mat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFilter = -1e20

func vec(xs ...float64) mat.Matrix {
	return mat.NewVecDense(xs)
}

func values(m mat.Matrix) []float64 {
	return append([]float64(nil), m.Data().F64()...)
}

func TestBlockTokensFunc(t *testing.T) {
	in := vec(-1, -2, -3)
	out, err := BlockTokensFunc([]int{1, 9}, testFilter)(in)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, testFilter, -3}, values(out))
	assert.Equal(t, []float64{-1, -2, -3}, values(in))
}

func TestTemperatureFunc(t *testing.T) {
	logProbs := vec(math.Log(0.8), math.Log(0.2))

	out, err := TemperatureFunc(0.5)(logProbs)
	require.NoError(t, err)
	// probabilities are squared, then normalized again
	assert.InDeltaSlice(t, []float64{math.Log(0.64 / 0.68), math.Log(0.04 / 0.68)}, values(out), 1e-12)

	out, err = TemperatureFunc(1)(logProbs)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{math.Log(0.8), math.Log(0.2)}, values(out), 1e-12)

	t.Run("same as scaling the logits", func(t *testing.T) {
		logits := vec(1, 2, 3, -4)
		out, err := TemperatureFunc(0.25)(LogSoftmax(logits))
		require.NoError(t, err)
		want := values(LogSoftmax(logits.ProdScalar(4)))
		assert.InDeltaSlice(t, want, values(out), 1e-9)

		var sum float64
		for _, v := range values(out) {
			sum += math.Exp(v)
		}
		assert.InDelta(t, 1.0, sum, 1e-12)
	})
}

func TestLogSoftmax(t *testing.T) {
	out := values(LogSoftmax(vec(0, math.Log(3))))
	assert.InDeltaSlice(t, []float64{math.Log(0.25), math.Log(0.75)}, out, 1e-12)

	// filtered entries stay finite
	out = values(LogSoftmax(vec(0, testFilter)))
	assert.InDelta(t, 0, out[0], 1e-12)
	assert.False(t, math.IsInf(out[1], -1))
}

func TestTopKFunc(t *testing.T) {
	out, err := TopKFunc(2, testFilter)(vec(-1, -3, -2, -4))
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, testFilter, -2, testFilter}, values(out))

	t.Run("ties with the k-th score are kept", func(t *testing.T) {
		out, err := TopKFunc(2, testFilter)(vec(-1, -2, -2, -3))
		require.NoError(t, err)
		assert.Equal(t, []float64{-1, -2, -2, testFilter}, values(out))
	})

	t.Run("k larger than the row", func(t *testing.T) {
		out, err := TopKFunc(5, testFilter)(vec(-1, -2))
		require.NoError(t, err)
		assert.Equal(t, []float64{-1, -2}, values(out))
	})
}

func TestTopPFunc(t *testing.T) {
	logProbs := []float64{math.Log(0.1), math.Log(0.6), math.Log(0.3)}

	out, err := TopPFunc(0.5, testFilter, 1)(vec(logProbs...))
	require.NoError(t, err)
	assert.Equal(t, []float64{testFilter, math.Log(0.6), testFilter}, values(out))

	out, err = TopPFunc(0.7, testFilter, 1)(vec(logProbs...))
	require.NoError(t, err)
	assert.Equal(t, []float64{testFilter, math.Log(0.6), math.Log(0.3)}, values(out))

	t.Run("keeps at least minSize extensions", func(t *testing.T) {
		out, err := TopPFunc(0.5, testFilter, 3)(vec(logProbs...))
		require.NoError(t, err)
		assert.Equal(t, logProbs, values(out))
	})
}

func TestOutputDiversityControl(t *testing.T) {
	t.Run("invalid settings", func(t *testing.T) {
		_, err := OutputDiversityControl(-1, 0, 1, 1, nil)
		assert.Error(t, err)
		_, err = OutputDiversityControl(1, -1, 1, 1, nil)
		assert.Error(t, err)
		_, err = OutputDiversityControl(1, 0, 2, 1, nil)
		assert.Error(t, err)
	})

	t.Run("identity", func(t *testing.T) {
		f, err := OutputDiversityControl(1, 0, 1, 1, nil)
		require.NoError(t, err)
		out, err := f(vec(-1, -2))
		require.NoError(t, err)
		assert.Equal(t, []float64{-1, -2}, values(out))
	})

	t.Run("chain", func(t *testing.T) {
		f, err := OutputDiversityControl(0.5, 2, 1, 1, []int{0})
		require.NoError(t, err)
		out, err := f(vec(-1, -2, -3, -4))
		require.NoError(t, err)
		got := values(out)
		logSum := -4 + math.Log(1+math.Exp(-2)+math.Exp(-4))
		assert.Equal(t, testFilter, got[0])
		assert.InDeltaSlice(t, []float64{-4 - logSum, -6 - logSum}, got[1:3], 1e-12)
		assert.Equal(t, testFilter, got[3])
	})
}
