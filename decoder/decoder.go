// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"context"
	"fmt"

	"github.com/nlpodyssey/beamflow/beam"
	"github.com/nlpodyssey/beamflow/encoder"
	"github.com/nlpodyssey/spago/mat"
	"github.com/rs/zerolog/log"
)

// Decoder performs beam search over a batch of encoded source sequences.
type Decoder struct {
	model              Model
	generator          Generator
	copyGenerator      CopyGenerator
	collapser          CopyCollapser
	scorer             beam.GlobalScorer
	applyOutputControl OutputDiversityControlFunc
	opts               DecodingOptions
}

// New returns a Decoder that scores the target vocabulary with the given generator.
func New(m Model, g Generator, opts DecodingOptions) (*Decoder, error) {
	if opts.CopyAttn {
		return nil, fmt.Errorf("%w: copy attention requires a copy generator", beam.ErrInvalidConfig)
	}
	return newDecoder(&Decoder{model: m, generator: g}, opts)
}

// NewWithCopy returns a Decoder that can copy words from the source through
// copy attention. The collapser folds the copy scores back into the target vocabulary.
func NewWithCopy(m Model, g CopyGenerator, c CopyCollapser, opts DecodingOptions) (*Decoder, error) {
	opts.CopyAttn = true
	return newDecoder(&Decoder{model: m, copyGenerator: g, collapser: c}, opts)
}

func newDecoder(d *Decoder, opts DecodingOptions) (*Decoder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	scorer, err := beam.NewScorer(opts.Scorer)
	if err != nil {
		return nil, err
	}
	control, err := OutputDiversityControl(opts.Temp, opts.TopK, opts.TopP, opts.BeamSize, opts.BlockedTokenIDs)
	if err != nil {
		return nil, err
	}
	d.scorer = scorer
	d.applyOutputControl = control
	d.opts = opts
	return d, nil
}

// Options returns the decoding options.
func (d *Decoder) Options() DecodingOptions {
	return d.opts
}

// Decode runs beam search on the encoded batch and extracts the n-best
// hypotheses of every sequence. If trace is not nil, every beam step is
// written to it and it is closed before returning.
func (d *Decoder) Decode(ctx context.Context, enc *encoder.Result, trace Buffer) (*Result, error) {
	if trace != nil {
		defer trace.Close()
	}
	if err := d.checkInput(enc); err != nil {
		return nil, err
	}

	batchSize, beamSize := enc.BatchSize(), d.opts.BeamSize
	beams, err := d.newBeams(batchSize)
	if err != nil {
		return nil, err
	}

	state, err := d.model.InitState(ctx, enc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize the decoder state: %w", err)
	}
	if err = state.Replicate(beamSize); err != nil {
		return nil, fmt.Errorf("failed to replicate the decoder state: %w", err)
	}
	memory := replicate(enc, beamSize)

	for step := 0; step < d.opts.MaxLen; step++ {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		if allDone(beams) {
			log.Trace().Msgf("All beams done after %d steps", step)
			break
		}

		input := d.gatherInput(beams, batchSize)
		out, next, err := d.model.Step(ctx, input, memory, state)
		if err != nil {
			return nil, fmt.Errorf("model step %d failed: %w", step, err)
		}
		state = next

		scores, err := d.stepScores(out, enc, memory)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}
		scoreGrid, err := unbottle(scores, batchSize, beamSize)
		if err != nil {
			return nil, fmt.Errorf("step %d scores: %w", step, err)
		}
		attnGrid, err := unbottle(rowsOf(out.Attention), batchSize, beamSize)
		if err != nil {
			return nil, fmt.Errorf("step %d attention: %w", step, err)
		}

		for j, b := range beams {
			if b.Done() {
				continue
			}
			attention, err := truncateAttention(sequenceRows(attnGrid, j), enc.Lengths[j])
			if err != nil {
				return nil, fmt.Errorf("step %d, sequence %d: %w", step, j, err)
			}
			if err = b.Advance(sequenceRows(scoreGrid, j), attention); err != nil {
				return nil, fmt.Errorf("step %d, sequence %d: %w", step, j, err)
			}
			if err = state.Reorder(j, b.CurrentOrigin(), beamSize); err != nil {
				return nil, fmt.Errorf("step %d, sequence %d: failed to reorder the decoder state: %w", step, j, err)
			}
			if trace != nil {
				if err = trace.Write(StepResult{
					Step:      b.Len(),
					Sequence:  j,
					TokenIDs:  b.CurrentState(),
					ParentIDs: b.CurrentOrigin(),
					Scores:    b.Scores(),
				}); err != nil {
					return nil, fmt.Errorf("failed to write the beam trace: %w", err)
				}
			}
		}
	}

	return FromBeams(beams, d.opts.NBest)
}

func (d *Decoder) checkInput(enc *encoder.Result) error {
	if enc == nil {
		return fmt.Errorf("invalid input: encoder result is required")
	}
	if err := enc.Validate(); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	if d.opts.CopyAttn && (enc.SourceMaps == nil || enc.SourceVocabs == nil) {
		return fmt.Errorf("invalid input: copy attention requires source maps and source vocabularies")
	}
	return nil
}

func (d *Decoder) newBeams(batchSize int) ([]*beam.Beam, error) {
	beams := make([]*beam.Beam, batchSize)
	for i := range beams {
		b, err := beam.New(beam.Config{
			Size:      d.opts.BeamSize,
			NBest:     d.opts.NBest,
			PadID:     d.opts.PadTokenID,
			BOSID:     d.opts.BOSTokenID,
			EOSID:     d.opts.EndTokenID,
			MinLength: d.opts.MinLen,
			Scorer:    d.scorer,
		})
		if err != nil {
			return nil, err
		}
		beams[i] = b
	}
	return beams, nil
}

// gatherInput returns the current token of every slot of every beam in the bottled layout.
func (d *Decoder) gatherInput(beams []*beam.Beam, batchSize int) []int {
	grid := make([][]int, d.opts.BeamSize)
	for k := range grid {
		grid[k] = make([]int, batchSize)
	}
	for j, b := range beams {
		for k, token := range b.CurrentState() {
			grid[k][j] = token
		}
	}
	input := bottle(grid)
	if d.opts.CopyAttn {
		maskCopiedTokens(input, d.opts.VocabSize, d.opts.UnkTokenID)
	}
	return input
}

// stepScores returns the log-probabilities of the step, one row per bottled row,
// after the output diversity control.
func (d *Decoder) stepScores(out *StepOutput, enc, memory *encoder.Result) ([][]float64, error) {
	var scores [][]float64
	if d.opts.CopyAttn {
		probs, err := d.copyGenerator.GenerateWithCopy(out.Features, out.CopyAttention, memory.SourceMaps)
		if err != nil {
			return nil, fmt.Errorf("copy generator failed: %w", err)
		}
		collapsed, err := d.collapser.CollapseCopyScores(rowsOf(probs), enc, d.opts.BeamSize)
		if err != nil {
			return nil, fmt.Errorf("failed to collapse copy scores: %w", err)
		}
		scores = logRows(collapsed)
	} else {
		logProbs, err := d.generator.Generate(out.Features)
		if err != nil {
			return nil, fmt.Errorf("generator failed: %w", err)
		}
		scores = rowsOf(logProbs)
	}

	for i, row := range scores {
		controlled, err := d.applyOutputControl(mat.NewVecDense(row))
		if err != nil {
			return nil, err
		}
		scores[i] = controlled.Data().F64()
	}
	return scores, nil
}

func logRows(rows [][]float64) [][]float64 {
	for i, row := range rows {
		rows[i] = mat.NewVecDense(row).Log().Data().F64()
	}
	return rows
}

// truncateAttention keeps the first length source positions of every row.
func truncateAttention(rows [][]float64, length int) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) < length {
			return nil, fmt.Errorf("%w: attention row of width %d for a source of length %d", beam.ErrShapeMismatch, len(row), length)
		}
		out[i] = row[:length]
	}
	return out, nil
}

func allDone(beams []*beam.Beam) bool {
	for _, b := range beams {
		if !b.Done() {
			return false
		}
	}
	return true
}
