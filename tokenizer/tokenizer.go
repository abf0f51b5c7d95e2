// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tokenizer

import (
	"fmt"
	"path/filepath"

	"github.com/nlpodyssey/gotokenizers/vocabulary"
)

// Tokenizer is the interface that wraps the basic tokenizers methods.
type Tokenizer interface {
	// Tokenize returns the sequence of token IDs for the given text.
	Tokenize(text string) ([]int, error)
	// ReconstructText returns the text corresponding to the given sequence of token IDs.
	ReconstructText(ids []int) (string, error)
	// TokenID returns the ID of a vocabulary term.
	TokenID(term string) (int, bool)
	// Size returns the number of terms of the vocabulary.
	Size() int
	// SpecialTokens returns the IDs of the control tokens.
	SpecialTokens() SpecialTokens
}

// Kinds of tokenizer.
const (
	Word = "word"
	BPE  = "bpe"
)

// SpecialTokenNames are the vocabulary terms of the control tokens.
type SpecialTokenNames struct {
	Unk string `yaml:"unk"`
	Pad string `yaml:"pad"`
	BOS string `yaml:"bos"`
	EOS string `yaml:"eos"`
}

// DefaultSpecialTokenNames returns the usual names of the control tokens.
func DefaultSpecialTokenNames() SpecialTokenNames {
	return SpecialTokenNames{
		Unk: "<unk>",
		Pad: "<blank>",
		BOS: "<s>",
		EOS: "</s>",
	}
}

// SpecialTokens are the IDs of the control tokens.
type SpecialTokens struct {
	Unk int
	Pad int
	BOS int
	EOS int
}

func resolveSpecialTokens(vocab *vocabulary.Vocabulary, names SpecialTokenNames) (SpecialTokens, error) {
	var st SpecialTokens
	for _, t := range []struct {
		name string
		id   *int
	}{
		{names.Unk, &st.Unk},
		{names.Pad, &st.Pad},
		{names.BOS, &st.BOS},
		{names.EOS, &st.EOS},
	} {
		id, ok := vocab.GetID(t.name)
		if !ok {
			return SpecialTokens{}, fmt.Errorf("special token %q not found in the vocabulary", t.name)
		}
		*t.id = id
	}
	return st, nil
}

// Load loads a tokenizer of the given kind from the given path.
// The path must contain a "vocab.json" file, and a "merges.txt" file for BPE.
func Load(path string, kind string, names SpecialTokenNames) (Tokenizer, error) {
	vocabularyFilename := filepath.Join(path, "vocab.json")
	vocab, err := vocabulary.FromJSONFile(vocabularyFilename)
	if err != nil {
		return nil, fmt.Errorf("loading vocabulary from file %s: %w", vocabularyFilename, err)
	}

	switch kind {
	case "", Word:
		return NewWordTokenizer(vocab, names)
	case BPE:
		return LoadBPETokenizer(path, vocab, names)
	default:
		return nil, fmt.Errorf("unknown tokenizer kind %q", kind)
	}
}
