// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoldScores(t *testing.T) {
	m := &scriptedModel{script: twoSentenceScript}
	d, err := New(m, m, testOptions(3, 2))
	require.NoError(t, err)

	targets := [][]int{{tokA, tokA, tokEOS}, {tokB, tokEOS}}
	scores, err := d.GoldScores(context.Background(), newBatch(3, 2), targets)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-0.3, -0.2}, scores, 1e-9)

	// Teacher forcing: the reference tokens are fed back, padded after the shorter target.
	require.Len(t, m.inputs, 3)
	assert.Equal(t, []int{tokBOS, tokBOS}, m.inputs[0])
	assert.Equal(t, []int{tokA, tokB}, m.inputs[1])
	assert.Equal(t, []int{tokA, tokEOS}, m.inputs[2])
}

func TestGoldScoresMatchDecoding(t *testing.T) {
	m := &scriptedModel{script: twoSentenceScript}
	d, err := New(m, m, testOptions(3, 2))
	require.NoError(t, err)

	res, err := d.Decode(context.Background(), newBatch(3, 2), nil)
	require.NoError(t, err)

	targets := [][]int{
		append(res.Predictions[0][0], tokEOS),
		append(res.Predictions[1][0], tokEOS),
	}
	scores, err := d.GoldScores(context.Background(), newBatch(3, 2), targets)
	require.NoError(t, err)
	assert.InDelta(t, res.Scores[0][0], scores[0], 1e-9)
	assert.InDelta(t, res.Scores[1][0], scores[1], 1e-9)
}

func TestGoldScoresErrors(t *testing.T) {
	m := &scriptedModel{script: twoSentenceScript}
	d, err := New(m, m, testOptions(3, 2))
	require.NoError(t, err)

	t.Run("targets not aligned with the batch", func(t *testing.T) {
		_, err := d.GoldScores(context.Background(), newBatch(3, 2), [][]int{{tokA}})
		assert.Error(t, err)
	})

	t.Run("token outside the vocabulary", func(t *testing.T) {
		_, err := d.GoldScores(context.Background(), newBatch(3, 2), [][]int{{9}, {tokEOS}})
		assert.Error(t, err)
	})

	t.Run("copy decoder", func(t *testing.T) {
		cm := copyModel{&scriptedModel{script: twoSentenceScript}}
		cd, err := NewWithCopy(cm, cm, VocabCollapser{VocabSize: 5}, testOptions(3, 2))
		require.NoError(t, err)
		_, err = cd.GoldScores(context.Background(), newBatch(3, 2), [][]int{{tokEOS}, {tokEOS}})
		assert.Error(t, err)
	})
}
