// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tokenizer

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nlpodyssey/gotokenizers/encodings"
	"github.com/nlpodyssey/gotokenizers/models"
	"github.com/nlpodyssey/gotokenizers/models/bpemodel"
	"github.com/nlpodyssey/gotokenizers/normalizedstring"
	"github.com/nlpodyssey/gotokenizers/pretokenizedstring"
	"github.com/nlpodyssey/gotokenizers/pretokenizers/bytelevelpretokenizer"
	"github.com/nlpodyssey/gotokenizers/vocabulary"
)

const (
	defaultCacheCapacity           = 0
	defaultDropout                 = 0.0
	defaultContinuingSubwordPrefix = ""
	defaultEndOfWordSuffix         = ""
	defaultPrefixSpaceEnabled      = false
	defaultOffsetsTrimmingEnabled  = true
	defaultUnknownFusionEnabled    = false
)

// BPETokenizer is a higher-level tokenizer, which includes byte-level pre-tokenization.
type BPETokenizer struct {
	preTokenizer *bytelevelpretokenizer.ByteLevelPreTokenizer
	model        *bpemodel.BPEModel
	vocab        *vocabulary.Vocabulary
	special      SpecialTokens
}

var _ Tokenizer = &BPETokenizer{}

// LoadBPETokenizer returns a BPETokenizer reading the merges from the "merges.txt" file of the given path.
func LoadBPETokenizer(path string, vocab *vocabulary.Vocabulary, names SpecialTokenNames) (*BPETokenizer, error) {
	special, err := resolveSpecialTokens(vocab, names)
	if err != nil {
		return nil, err
	}

	mergesFilename := filepath.Join(path, "merges.txt")
	merges, err := bpemodel.MergeMapFromFile(
		mergesFilename,
		vocab,
		len(defaultContinuingSubwordPrefix),
	)
	if err != nil {
		return nil, fmt.Errorf("loading merges from file %s: %w", mergesFilename, err)
	}

	preTokenizer := bytelevelpretokenizer.New(
		bytelevelpretokenizer.DefaultSplittingRegexp,
		defaultPrefixSpaceEnabled,
		defaultOffsetsTrimmingEnabled,
	)

	model := bpemodel.New(
		vocab,
		merges,
		defaultCacheCapacity,
		defaultDropout,
		names.Unk,
		defaultContinuingSubwordPrefix,
		defaultEndOfWordSuffix,
		defaultUnknownFusionEnabled,
	)

	return &BPETokenizer{
		preTokenizer: preTokenizer,
		model:        model,
		vocab:        vocab,
		special:      special,
	}, nil
}

// Size returns the number of terms of the vocabulary.
func (t *BPETokenizer) Size() int {
	return t.vocab.Size()
}

// SpecialTokens returns the IDs of the control tokens.
func (t *BPETokenizer) SpecialTokens() SpecialTokens {
	return t.special
}

// TokenID returns the ID of a vocabulary term.
func (t *BPETokenizer) TokenID(term string) (int, bool) {
	return t.vocab.GetID(term)
}

// Encode tokenizes the text using byte-level pre-tokenization and BPE tokenization.
func (t *BPETokenizer) Encode(text string) (*encodings.Encoding, error) {
	pts := pretokenizedstring.FromString(text)

	err := t.preTokenizer.PreTokenize(pts)
	if err != nil {
		return nil, fmt.Errorf("BPETokenizer PreTokenize for %s: %w", text, err)
	}

	err = pts.Tokenize(
		func(ns *normalizedstring.NormalizedString) ([]models.Token, error) {
			return t.model.Tokenize(ns.Get())
		},
	)
	if err != nil {
		return nil, fmt.Errorf("BPETokenizer Tokenize for %s: %w", text, err)
	}

	encoding, err := pts.IntoEncoding(0, 0)
	if err != nil {
		return nil, fmt.Errorf("BPETokenizer Encoding for %s: %w", text, err)
	}
	return encoding, nil
}

// Tokenize returns the token IDs of the input text.
func (t *BPETokenizer) Tokenize(text string) ([]int, error) {
	encoded, err := t.Encode(text)
	if err != nil {
		return nil, err
	}
	return encoded.IDs, nil
}

// ReconstructText returns the text of the input token IDs, without the control tokens.
func (t *BPETokenizer) ReconstructText(ids []int) (string, error) {
	var sb strings.Builder
	for _, id := range ids {
		if id == t.special.Pad || id == t.special.BOS || id == t.special.EOS {
			continue
		}
		s, ok := t.vocab.GetString(id)
		if !ok {
			return "", fmt.Errorf("unknown token ID %d", id)
		}
		sb.WriteString(s)
	}
	out := sb.String()
	out = strings.Replace(out, "Ġ", " ", -1)
	out = strings.Replace(out, "Ċ", "\n", -1)
	return out, nil
}
