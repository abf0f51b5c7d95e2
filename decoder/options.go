// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"fmt"

	"github.com/nlpodyssey/beamflow/beam"
)

// DecodingOptions contains the options for beam search decoding.
type DecodingOptions struct {
	// BeamSize is the number of hypotheses kept for every sequence.
	BeamSize int `yaml:"beam_size"`
	// NBest is the number of hypotheses returned for every sequence.
	NBest int `yaml:"n_best"`
	// MaxLen is the maximum number of decoding steps.
	MaxLen int `yaml:"max_len"`
	// MinLen is the minimum number of tokens to generate before the end token is allowed.
	MinLen int `yaml:"min_len"`
	// PadTokenID is the padding token.
	PadTokenID int `yaml:"pad_token_id"`
	// BOSTokenID is the beginning-of-sequence token fed at the first step.
	BOSTokenID int `yaml:"bos_token_id"`
	// EndTokenID is the end-of-sequence token.
	EndTokenID int `yaml:"end_token_id"`
	// UnkTokenID replaces copied tokens when they are fed back to the model.
	UnkTokenID int `yaml:"unk_token_id"`
	// VocabSize is the size of the fixed target vocabulary. Copy attention
	// ids start right after it.
	VocabSize int `yaml:"vocab_size"`
	// CopyAttn enables the copy mechanism.
	CopyAttn bool `yaml:"copy_attn"`
	// Temp is the temperature applied to the log-probabilities.
	Temp float64 `yaml:"temperature"`
	// TopK restricts every hypothesis to its k best extensions (0 disables it).
	TopK int `yaml:"top_k"`
	// TopP restricts every hypothesis to the smallest set of extensions whose
	// cumulative probability exceeds p (1 disables it).
	TopP float64 `yaml:"top_p"`
	// BlockedTokenIDs are never generated.
	BlockedTokenIDs []int `yaml:"blocked_token_ids"`
	// Scorer configures the normalization of the hypothesis scores.
	Scorer beam.ScorerConfig `yaml:"scorer"`
}

// DefaultDecodingOptions returns sensible default options for decoding.
func DefaultDecodingOptions() DecodingOptions {
	return DecodingOptions{
		BeamSize:   5,
		NBest:      1,
		MaxLen:     100,
		MinLen:     0,
		PadTokenID: 1,
		BOSTokenID: 2,
		EndTokenID: 3,
		UnkTokenID: 0,
		Temp:       1,
		TopK:       0,
		TopP:       1,
		Scorer:     beam.DefaultScorerConfig(),
	}
}

// Validate reports whether the options are consistent.
func (o DecodingOptions) Validate() error {
	switch {
	case o.BeamSize < 1:
		return fmt.Errorf("%w: beam size must be >= 1, got %d", beam.ErrInvalidConfig, o.BeamSize)
	case o.NBest < 1 || o.NBest > o.BeamSize:
		return fmt.Errorf("%w: n-best must be between 1 and the beam size (%d), got %d", beam.ErrInvalidConfig, o.BeamSize, o.NBest)
	case o.MaxLen < 1:
		return fmt.Errorf("%w: max length must be >= 1, got %d", beam.ErrInvalidConfig, o.MaxLen)
	case o.MinLen < 0:
		return fmt.Errorf("%w: min length must be >= 0, got %d", beam.ErrInvalidConfig, o.MinLen)
	case o.EndTokenID == o.PadTokenID || o.EndTokenID == o.BOSTokenID:
		return fmt.Errorf("%w: end token id %d collides with the padding or beginning-of-sequence id", beam.ErrInvalidConfig, o.EndTokenID)
	case o.CopyAttn && o.VocabSize < 1:
		return fmt.Errorf("%w: copy attention requires the target vocabulary size", beam.ErrInvalidConfig)
	case o.CopyAttn && (o.UnkTokenID < 0 || o.UnkTokenID >= o.VocabSize):
		return fmt.Errorf("%w: unknown token id %d outside the target vocabulary", beam.ErrInvalidConfig, o.UnkTokenID)
	case o.TopK != 0 && o.TopK < o.BeamSize:
		return fmt.Errorf("%w: top-k (%d) must be 0 or >= the beam size (%d)", beam.ErrInvalidConfig, o.TopK, o.BeamSize)
	}
	return nil
}
