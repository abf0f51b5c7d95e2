// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package beam

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidConfig is returned when a beam or scorer is built with inconsistent settings.
	ErrInvalidConfig = errors.New("invalid beam configuration")
	// ErrShapeMismatch is returned when the scores or attention handed to a beam
	// do not match its size or the shapes seen at previous steps.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// blockedScore marks candidates that must never win a selection unless nothing else is left.
// It is finite so that penalties and normalizations never produce NaN.
const blockedScore = -1e20

// Config contains the settings of a single Beam.
type Config struct {
	// Size is the number of parallel hypotheses (K).
	Size int
	// NBest is the number of finished hypotheses required before the beam can be done.
	NBest int
	// PadID is the token used to fill the unused root slots.
	PadID int
	// BOSID is the beginning-of-sequence token placed in root slot 0.
	BOSID int
	// EOSID is the end-of-sequence token.
	EOSID int
	// MinLength is the minimum number of tokens to emit before EOS is allowed.
	MinLength int
	// Scorer normalizes the scores of finished hypotheses. Nil means NoPenalty.
	Scorer GlobalScorer
}

// Validate reports whether the configuration is usable.
func (c Config) Validate() error {
	switch {
	case c.Size < 1:
		return fmt.Errorf("%w: beam size must be >= 1, got %d", ErrInvalidConfig, c.Size)
	case c.NBest < 1:
		return fmt.Errorf("%w: n-best must be >= 1, got %d", ErrInvalidConfig, c.NBest)
	case c.NBest > c.Size:
		return fmt.Errorf("%w: n-best (%d) must not exceed the beam size (%d)", ErrInvalidConfig, c.NBest, c.Size)
	case c.EOSID == c.PadID:
		return fmt.Errorf("%w: end token id %d is also the padding id", ErrInvalidConfig, c.EOSID)
	case c.EOSID == c.BOSID:
		return fmt.Errorf("%w: end token id %d is also the beginning-of-sequence id", ErrInvalidConfig, c.EOSID)
	case c.MinLength < 0:
		return fmt.Errorf("%w: min length must be >= 0, got %d", ErrInvalidConfig, c.MinLength)
	}
	return nil
}

// Ref locates a hypothesis in the beam history: the step at which it was
// last extended and the slot it occupied at that step.
type Ref struct {
	Step int
	Slot int
}

// Hypothesis is a decoded output sequence.
type Hypothesis struct {
	// Tokens are the emitted token ids, oldest first, without the end token.
	Tokens []int
	// Attention holds one attention vector over the source positions per token.
	Attention [][]float64
	// Score is the normalized score of the hypothesis.
	Score float64
}

type finishedHyp struct {
	score float64
	Ref
}

// Beam tracks the K active hypotheses for a single input sequence.
//
// Slots are positional: the hypothesis in slot i at step t is only identified
// by following the backpointers from (t, i) back to the root.
type Beam struct {
	size      int
	nBest     int
	padID     int
	bosID     int
	eosID     int
	minLength int
	scorer    GlobalScorer

	// numWords is the width of the score rows, fixed by the first step.
	numWords int
	// scores are the cumulative scores of the current slots.
	scores []float64
	// tokens[0] is the root; tokens[t] holds the tokens chosen at step t.
	tokens [][]int
	// backPointers[t-1] holds, for step t, the slot each hypothesis extended.
	backPointers [][]int
	// attention[t-1][i] is the attention that produced tokens[t][i].
	attention [][][]float64
	finished  []finishedHyp
	eosTop    bool

	globalState any
}

// New returns a new Beam.
func New(c Config) (*Beam, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	root := make([]int, c.Size)
	for i := range root {
		root[i] = c.PadID
	}
	root[0] = c.BOSID

	scorer := c.Scorer
	if scorer == nil {
		scorer = NoPenalty{}
	}

	return &Beam{
		size:      c.Size,
		nBest:     c.NBest,
		padID:     c.PadID,
		bosID:     c.BOSID,
		eosID:     c.EOSID,
		minLength: c.MinLength,
		scorer:    scorer,
		scores:    make([]float64, c.Size),
		tokens:    [][]int{root},
	}, nil
}

// Size returns the number of slots of the beam.
func (b *Beam) Size() int {
	return b.size
}

// Len returns the number of steps the beam has been advanced.
func (b *Beam) Len() int {
	return len(b.tokens) - 1
}

// CurrentState returns the most recent token of every slot.
func (b *Beam) CurrentState() []int {
	return cloneInts(b.tokens[len(b.tokens)-1])
}

// CurrentOrigin returns, for every slot, the slot of the previous step it descends from.
// It returns nil before the first step.
func (b *Beam) CurrentOrigin() []int {
	if len(b.backPointers) == 0 {
		return nil
	}
	return cloneInts(b.backPointers[len(b.backPointers)-1])
}

// Scores returns the cumulative (unnormalized) scores of the current slots.
func (b *Beam) Scores() []float64 {
	return cloneFloats(b.scores)
}

// LastAttention returns the attention vectors recorded at the latest step,
// one per slot. It returns nil before the first step.
func (b *Beam) LastAttention() [][]float64 {
	if len(b.attention) == 0 {
		return nil
	}
	return b.attention[len(b.attention)-1]
}

// GlobalState returns the scorer-owned accumulators. The beam never inspects it.
func (b *Beam) GlobalState() any {
	return b.globalState
}

// SetGlobalState replaces the scorer-owned accumulators.
func (b *Beam) SetGlobalState(s any) {
	b.globalState = s
}

// Done reports whether the beam is complete: the best active hypothesis has
// ended and at least n-best hypotheses have finished.
func (b *Beam) Done() bool {
	return b.eosTop && len(b.finished) >= b.nBest
}

// Advance performs one decoding step.
//
// scores holds one row of log-probabilities over the vocabulary for every slot (K x V);
// attention holds the attention over the source positions computed for every slot (K x S).
func (b *Beam) Advance(scores [][]float64, attention [][]float64) error {
	if err := b.checkShapes(scores, attention); err != nil {
		return err
	}
	first := len(b.backPointers) == 0
	if first {
		b.numWords = len(scores[0])
	}
	numWords := b.numWords

	if s, ok := b.scorer.(StepwiseScorer); ok {
		b.scores = s.AdjustScores(b, b.scores, attention)
	}

	candidates := b.combine(scores, first)
	best, indices := TopK(candidates, b.size)

	origins := make([]int, b.size)
	tokens := make([]int, b.size)
	selectedAttention := make([][]float64, b.size)
	for i, index := range indices {
		origins[i] = index / numWords
		tokens[i] = index % numWords
		selectedAttention[i] = cloneFloats(attention[origins[i]])
	}

	b.scores = best
	b.backPointers = append(b.backPointers, origins)
	b.tokens = append(b.tokens, tokens)
	b.attention = append(b.attention, selectedAttention)

	b.scorer.UpdateGlobalState(b)

	var normalized []float64
	for i, token := range tokens {
		if token != b.eosID || b.scores[i] <= blockedScore {
			// a blocked end token only fills the slot
			continue
		}
		if normalized == nil {
			normalized = b.scorer.Score(b, b.scores)
		}
		b.finished = append(b.finished, finishedHyp{
			score: normalized[i],
			Ref:   Ref{Step: b.Len(), Slot: i},
		})
	}

	if tokens[0] == b.eosID && b.scores[0] > blockedScore {
		b.eosTop = true
	}
	return nil
}

func (b *Beam) checkShapes(scores [][]float64, attention [][]float64) error {
	if len(scores) != b.size {
		return fmt.Errorf("%w: got %d score rows, expected %d (beam size)", ErrShapeMismatch, len(scores), b.size)
	}
	if len(attention) != b.size {
		return fmt.Errorf("%w: got %d attention rows, expected %d (beam size)", ErrShapeMismatch, len(attention), b.size)
	}
	numWords := len(scores[0])
	if numWords == 0 {
		return fmt.Errorf("%w: empty score rows", ErrShapeMismatch)
	}
	if b.numWords != 0 && numWords != b.numWords {
		return fmt.Errorf("%w: got score rows of width %d, previous steps had %d", ErrShapeMismatch, numWords, b.numWords)
	}
	if b.numWords == 0 && numWords < b.size {
		return fmt.Errorf("%w: vocabulary size %d is smaller than the beam size %d", ErrShapeMismatch, numWords, b.size)
	}
	for i, row := range scores {
		if len(row) != numWords {
			return fmt.Errorf("%w: score row %d has width %d, expected %d", ErrShapeMismatch, i, len(row), numWords)
		}
	}
	for i, row := range attention {
		if len(row) != len(attention[0]) {
			return fmt.Errorf("%w: attention row %d has width %d, expected %d", ErrShapeMismatch, i, len(row), len(attention[0]))
		}
	}
	return nil
}

// combine returns the flattened candidate scores: each row plus the cumulative
// score of its slot, using only the row of slot 0 on the first step.
// Blocked candidates are exactly blockedScore.
func (b *Beam) combine(scores [][]float64, first bool) []float64 {
	numWords := b.numWords
	blockEOS := b.Len() < b.minLength && b.eosID >= 0 && b.eosID < numWords

	if first {
		candidates := make([]float64, numWords)
		for w, v := range scores[0] {
			candidates[w] = v + b.scores[0]
		}
		if blockEOS {
			candidates[b.eosID] = blockedScore
		}
		return candidates
	}

	current := b.tokens[len(b.tokens)-1]
	candidates := make([]float64, b.size*numWords)
	for k, row := range scores {
		offset := k * numWords
		if current[k] == b.eosID {
			// finished hypotheses have no children
			for w := range row {
				candidates[offset+w] = blockedScore
			}
			continue
		}
		base := b.scores[k]
		for w, v := range row {
			candidates[offset+w] = v + base
		}
		if blockEOS {
			candidates[offset+b.eosID] = blockedScore
		}
	}
	return candidates
}

// SortFinished returns the scores and references of the finished hypotheses,
// best first. When fewer than minimum hypotheses have finished, the gap is
// filled with the active slots of the latest step, best slot first.
func (b *Beam) SortFinished(minimum int) ([]float64, []Ref) {
	entries := make([]finishedHyp, len(b.finished), max(len(b.finished), minimum))
	copy(entries, b.finished)

	if last := b.Len(); len(entries) < minimum && last > 0 {
		normalized := b.scorer.Score(b, b.scores)
		current := b.tokens[last]
		for i := 0; i < b.size && len(entries) < minimum; i++ {
			if current[i] == b.eosID {
				continue // already among the finished ones
			}
			entries = append(entries, finishedHyp{
				score: normalized[i],
				Ref:   Ref{Step: last, Slot: i},
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})

	scores := make([]float64, len(entries))
	refs := make([]Ref, len(entries))
	for i, e := range entries {
		scores[i] = e.score
		refs[i] = e.Ref
	}
	return scores, refs
}

// Hyp walks the backpointers from the given reference back to the root and
// returns the hypothesis tokens, oldest first, with their attention vectors.
// The end token, if any, is not included. The returned Score is zero.
func (b *Beam) Hyp(ref Ref) (Hypothesis, error) {
	if ref.Step < 1 || ref.Step > b.Len() {
		return Hypothesis{}, fmt.Errorf("invalid hypothesis step %d: the beam has %d steps", ref.Step, b.Len())
	}
	if ref.Slot < 0 || ref.Slot >= b.size {
		return Hypothesis{}, fmt.Errorf("invalid hypothesis slot %d: the beam size is %d", ref.Slot, b.size)
	}

	tokens := make([]int, ref.Step)
	attention := make([][]float64, ref.Step)
	k := ref.Slot
	for j := ref.Step - 1; j >= 0; j-- {
		tokens[j] = b.tokens[j+1][k]
		attention[j] = cloneFloats(b.attention[j][k])
		k = b.backPointers[j][k]
	}

	if n := len(tokens); tokens[n-1] == b.eosID {
		tokens = tokens[:n-1]
		attention = attention[:n-1]
	}
	return Hypothesis{
		Tokens:    tokens,
		Attention: attention,
	}, nil
}

func cloneInts(s []int) []int {
	return append([]int(nil), s...)
}

func cloneFloats(s []float64) []float64 {
	return append([]float64(nil), s...)
}
