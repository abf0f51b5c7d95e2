// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tokenizer

import (
	"fmt"
	"strings"

	"github.com/nlpodyssey/gotokenizers/vocabulary"
)

// WordTokenizer splits the text on white space and maps every word to its
// vocabulary ID. Unknown words become the unknown token.
type WordTokenizer struct {
	vocab   *vocabulary.Vocabulary
	special SpecialTokens
}

var _ Tokenizer = &WordTokenizer{}

// NewWordTokenizer returns a WordTokenizer over the given vocabulary.
func NewWordTokenizer(vocab *vocabulary.Vocabulary, names SpecialTokenNames) (*WordTokenizer, error) {
	special, err := resolveSpecialTokens(vocab, names)
	if err != nil {
		return nil, err
	}
	return &WordTokenizer{
		vocab:   vocab,
		special: special,
	}, nil
}

// Size returns the number of terms of the vocabulary.
func (t *WordTokenizer) Size() int {
	return t.vocab.Size()
}

// SpecialTokens returns the IDs of the control tokens.
func (t *WordTokenizer) SpecialTokens() SpecialTokens {
	return t.special
}

// TokenID returns the ID of a vocabulary term.
func (t *WordTokenizer) TokenID(term string) (int, bool) {
	return t.vocab.GetID(term)
}

// Words returns the words of the text.
func (t *WordTokenizer) Words(text string) []string {
	return strings.Fields(text)
}

// ID returns the vocabulary ID of the word, or the unknown token.
func (t *WordTokenizer) ID(word string) int {
	if id, ok := t.vocab.GetID(word); ok {
		return id
	}
	return t.special.Unk
}

// Tokenize returns the token IDs of the words of the text.
func (t *WordTokenizer) Tokenize(text string) ([]int, error) {
	words := t.Words(text)
	ids := make([]int, len(words))
	for i, w := range words {
		ids[i] = t.ID(w)
	}
	return ids, nil
}

// ReconstructText joins the words of the given IDs, skipping the padding,
// beginning and end of sequence tokens.
func (t *WordTokenizer) ReconstructText(ids []int) (string, error) {
	return t.ReconstructWithCopy(ids, SourceVocab{})
}

// ReconstructWithCopy is like ReconstructText, but IDs beyond the vocabulary
// refer to the words of the given source vocabulary.
func (t *WordTokenizer) ReconstructWithCopy(ids []int, src SourceVocab) (string, error) {
	words := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == t.special.Pad || id == t.special.BOS || id == t.special.EOS {
			continue
		}
		if id >= t.Size() {
			w, ok := src.Word(id - t.Size())
			if !ok {
				return "", fmt.Errorf("token ID %d is outside the vocabulary and the source words", id)
			}
			words = append(words, w)
			continue
		}
		w, ok := t.vocab.GetString(id)
		if !ok {
			return "", fmt.Errorf("unknown token ID %d", id)
		}
		words = append(words, w)
	}
	return strings.Join(words, " "), nil
}

// SourceVocab is the extended vocabulary of a single source sentence:
// the distinct source words that copy attention can reproduce.
type SourceVocab struct {
	// Words are the distinct source words, in order of first appearance.
	Words []string
	// TargetIDs holds the vocabulary ID of every word, or -1 if the word is unknown.
	TargetIDs []int
	// Positions maps every source position to the index of its word.
	Positions []int
}

// SourceVocab builds the extended vocabulary of the given source text.
func (t *WordTokenizer) SourceVocab(text string) SourceVocab {
	var sv SourceVocab
	index := make(map[string]int)
	for _, w := range t.Words(text) {
		i, ok := index[w]
		if !ok {
			i = len(sv.Words)
			index[w] = i
			sv.Words = append(sv.Words, w)
			id, known := t.vocab.GetID(w)
			if !known {
				id = -1
			}
			sv.TargetIDs = append(sv.TargetIDs, id)
		}
		sv.Positions = append(sv.Positions, i)
	}
	return sv
}

// Word returns the i-th word of the source vocabulary.
func (sv SourceVocab) Word(i int) (string, bool) {
	if i < 0 || i >= len(sv.Words) {
		return "", false
	}
	return sv.Words[i], true
}
