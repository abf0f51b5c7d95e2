// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package beam

import (
	"fmt"
	"math"
)

// GlobalScorer turns the cumulative log-probabilities of the active slots of
// a beam into the normalized scores used to rank finished hypotheses.
//
// Implementations must be deterministic. Any accumulator they need lives in
// the beam global state and is only written by UpdateGlobalState.
type GlobalScorer interface {
	// Score returns the normalized score of every slot.
	Score(b *Beam, cumulative []float64) []float64
	// UpdateGlobalState is called right after each selection step.
	UpdateGlobalState(b *Beam)
}

// StepwiseScorer is implemented by scorers that adjust the cumulative scores
// at selection time, before the top-K candidates are chosen.
type StepwiseScorer interface {
	GlobalScorer
	// AdjustScores returns the cumulative scores to use for the current
	// selection, given the attention computed for every slot.
	AdjustScores(b *Beam, cumulative []float64, attention [][]float64) []float64
}

// NoPenalty ranks hypotheses by their raw cumulative log-probability.
type NoPenalty struct{}

var _ GlobalScorer = NoPenalty{}

// Score returns a copy of the cumulative scores.
func (NoPenalty) Score(_ *Beam, cumulative []float64) []float64 {
	return cloneFloats(cumulative)
}

// UpdateGlobalState does nothing.
func (NoPenalty) UpdateGlobalState(*Beam) {}

// Length penalty names.
const (
	LengthPenaltyNone = "none"
	LengthPenaltyAvg  = "avg"
	LengthPenaltyWu   = "wu"
)

// Coverage penalty names.
const (
	CoveragePenaltyNone    = "none"
	CoveragePenaltyWu      = "wu"
	CoveragePenaltySummary = "summary"
)

// minCoverage keeps the logarithm of never-attended positions finite.
const minCoverage = 1e-10

// ScorerConfig configures a GNMTScorer.
type ScorerConfig struct {
	// LengthPenalty is one of "none", "avg", "wu".
	LengthPenalty string `yaml:"length_penalty"`
	// CoveragePenalty is one of "none", "wu", "summary".
	CoveragePenalty string `yaml:"coverage_penalty"`
	// Alpha is the length penalty strength (only used by "wu").
	Alpha float64 `yaml:"alpha"`
	// Beta is the coverage penalty strength.
	Beta float64 `yaml:"beta"`
	// Stepwise applies the coverage penalty at every selection step
	// instead of only when a hypothesis finishes.
	Stepwise bool `yaml:"stepwise"`
}

// DefaultScorerConfig returns a configuration that applies no normalization.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		LengthPenalty:   LengthPenaltyNone,
		CoveragePenalty: CoveragePenaltyNone,
	}
}

// GNMTScorer implements the length and coverage penalties from Wu et al. (2016),
// "Google's Neural Machine Translation System".
type GNMTScorer struct {
	lengthPenalty   func(cumulative float64, length int) float64
	coveragePenalty func(coverage []float64) float64
	stepwise        bool
}

var _ StepwiseScorer = &GNMTScorer{}

// gnmtState is the per-beam accumulator of a GNMTScorer.
type gnmtState struct {
	// coverage[i] is the attention summed along the history of slot i.
	coverage [][]float64
	// penalty[i] is the coverage penalty of coverage[i].
	penalty []float64
}

// NewScorer returns the GlobalScorer described by the configuration.
func NewScorer(c ScorerConfig) (GlobalScorer, error) {
	if (c.LengthPenalty == "" || c.LengthPenalty == LengthPenaltyNone) &&
		(c.CoveragePenalty == "" || c.CoveragePenalty == CoveragePenaltyNone) {
		return NoPenalty{}, nil
	}
	return NewGNMTScorer(c)
}

// NewGNMTScorer returns a new GNMTScorer.
func NewGNMTScorer(c ScorerConfig) (*GNMTScorer, error) {
	if c.Alpha < 0 || c.Beta < 0 {
		return nil, fmt.Errorf("%w: alpha and beta must be >= 0, got %g and %g", ErrInvalidConfig, c.Alpha, c.Beta)
	}
	s := &GNMTScorer{stepwise: c.Stepwise}

	switch c.LengthPenalty {
	case "", LengthPenaltyNone:
		s.lengthPenalty = func(cumulative float64, _ int) float64 { return cumulative }
	case LengthPenaltyAvg:
		s.lengthPenalty = func(cumulative float64, length int) float64 {
			return cumulative / float64(max(length, 1))
		}
	case LengthPenaltyWu:
		alpha := c.Alpha
		s.lengthPenalty = func(cumulative float64, length int) float64 {
			return cumulative / math.Pow((5+float64(length))/6, alpha)
		}
	default:
		return nil, fmt.Errorf("%w: unknown length penalty %q", ErrInvalidConfig, c.LengthPenalty)
	}

	beta := c.Beta
	switch c.CoveragePenalty {
	case "", CoveragePenaltyNone:
		s.coveragePenalty = func([]float64) float64 { return 0 }
	case CoveragePenaltyWu:
		s.coveragePenalty = func(coverage []float64) float64 {
			var sum float64
			for _, v := range coverage {
				sum += math.Log(math.Max(math.Min(v, 1), minCoverage))
			}
			return -beta * sum
		}
	case CoveragePenaltySummary:
		s.coveragePenalty = func(coverage []float64) float64 {
			var sum float64
			for _, v := range coverage {
				sum += math.Max(v, 1) - 1
			}
			return beta * sum
		}
	default:
		return nil, fmt.Errorf("%w: unknown coverage penalty %q", ErrInvalidConfig, c.CoveragePenalty)
	}
	return s, nil
}

// Score applies the length penalty and, unless already applied stepwise,
// subtracts the coverage penalty.
func (s *GNMTScorer) Score(b *Beam, cumulative []float64) []float64 {
	state, _ := b.GlobalState().(*gnmtState)
	length := b.Len()
	out := make([]float64, len(cumulative))
	for i, v := range cumulative {
		out[i] = s.lengthPenalty(v, length)
		if !s.stepwise && state != nil {
			out[i] -= state.penalty[i]
		}
	}
	return out
}

// UpdateGlobalState extends the coverage of every slot with the attention
// recorded at the latest step, following the backpointers.
func (s *GNMTScorer) UpdateGlobalState(b *Beam) {
	origins := b.CurrentOrigin()
	attention := b.LastAttention()
	prev, _ := b.GlobalState().(*gnmtState)

	next := &gnmtState{
		coverage: make([][]float64, len(attention)),
		penalty:  make([]float64, len(attention)),
	}
	for i, a := range attention {
		var parent []float64
		if prev != nil {
			parent = prev.coverage[origins[i]]
		}
		next.coverage[i] = addVectors(parent, a)
		next.penalty[i] = s.coveragePenalty(next.coverage[i])
	}
	b.SetGlobalState(next)
}

// AdjustScores restores the coverage penalty charged at the previous step and
// charges the one including the attention of the current step. On the first
// step nothing was charged yet. It is a no-op unless the scorer is stepwise.
func (s *GNMTScorer) AdjustScores(b *Beam, cumulative []float64, attention [][]float64) []float64 {
	out := cloneFloats(cumulative)
	if !s.stepwise {
		return out
	}
	state, _ := b.GlobalState().(*gnmtState)
	for i := range out {
		var coverage []float64
		if state != nil {
			out[i] += state.penalty[i]
			coverage = state.coverage[i]
		}
		out[i] -= s.coveragePenalty(addVectors(coverage, attention[i]))
	}
	return out
}

// addVectors returns a + b. A nil a is treated as zeros; widths may differ.
func addVectors(a, b []float64) []float64 {
	out := make([]float64, max(len(a), len(b)))
	copy(out, a)
	for i, v := range b {
		out[i] += v
	}
	return out
}
