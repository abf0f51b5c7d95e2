// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"context"
	"fmt"

	"github.com/nlpodyssey/beamflow/encoder"
	"github.com/rs/zerolog/log"
)

// GoldScores returns the log-likelihood of every target sequence under the
// model, feeding the reference tokens at each step (teacher forcing).
// Targets should end with the end token; padding tokens contribute nothing.
// It requires a decoder built with a plain Generator.
func (d *Decoder) GoldScores(ctx context.Context, enc *encoder.Result, targets [][]int) ([]float64, error) {
	if d.generator == nil {
		return nil, fmt.Errorf("gold scores require a decoder with a plain generator")
	}
	if err := d.checkInput(enc); err != nil {
		return nil, err
	}
	batchSize := enc.BatchSize()
	if len(targets) != batchSize {
		return nil, fmt.Errorf("got %d targets for a batch of %d", len(targets), batchSize)
	}

	state, err := d.model.InitState(ctx, enc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize the decoder state: %w", err)
	}
	if err = state.Replicate(1); err != nil {
		return nil, fmt.Errorf("failed to replicate the decoder state: %w", err)
	}

	maxLen := 0
	for _, t := range targets {
		maxLen = max(maxLen, len(t))
	}

	scores := make([]float64, batchSize)
	input := make([]int, batchSize)
	for j := range input {
		input[j] = d.opts.BOSTokenID
	}

	for step := 0; step < maxLen; step++ {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		out, next, err := d.model.Step(ctx, input, enc, state)
		if err != nil {
			return nil, fmt.Errorf("model step %d failed: %w", step, err)
		}
		state = next

		logProbs, err := d.generator.Generate(out.Features)
		if err != nil {
			return nil, fmt.Errorf("generator failed: %w", err)
		}
		rows := rowsOf(logProbs)
		if len(rows) != batchSize {
			return nil, fmt.Errorf("step %d: got %d score rows for a batch of %d", step, len(rows), batchSize)
		}

		for j, target := range targets {
			token := d.opts.PadTokenID
			if step < len(target) {
				token = target[step]
			}
			input[j] = token
			if token == d.opts.PadTokenID {
				continue
			}
			if token < 0 || token >= len(rows[j]) {
				return nil, fmt.Errorf("target %d: token id %d outside the vocabulary", j, token)
			}
			scores[j] += rows[j][token]
		}
	}

	log.Trace().Msgf("Gold scores: %v", scores)
	return scores, nil
}
