// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package beamflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/nlpodyssey/beamflow/bigram"
	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/nlpodyssey/beamflow/encoder"
	"github.com/nlpodyssey/beamflow/tokenizer"
	"github.com/nlpodyssey/spago/mat"
	"github.com/rs/zerolog/log"
)

// Translator is the core struct of the library.
type Translator struct {
	Model     *bigram.Model
	Tokenizer tokenizer.Tokenizer
	Decoder   *decoder.Decoder
	Config    Config
}

// Translation holds the n-best hypotheses of a source sentence.
type Translation struct {
	Source     string
	Hypotheses []Hypothesis
}

// Hypothesis is a single translation of a source sentence.
type Hypothesis struct {
	Text      string
	TokenIDs  []int
	Score     float64
	Attention [][]float64
}

// Load loads a Translator from the given directory.
func Load(modelDir string) (*Translator, error) {
	config, err := LoadConfig(filepath.Join(modelDir, ConfigFilename))
	if err != nil {
		return nil, err
	}
	tk, err := tokenizer.Load(modelDir, config.Tokenizer, config.SpecialTokens)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error: unable to find the vocabulary in '%s'. Please ensure that the model directory contains a vocab.json file", modelDir)
		}
		return nil, err
	}
	model, err := bigram.Load(modelDir, tk.TokenID, tk.Size())
	if err != nil {
		return nil, err
	}
	return New(model, tk, config)
}

// New returns a Translator for the given model and tokenizer.
// The special token IDs and the vocabulary size of the decoding options are
// taken from the tokenizer.
func New(model *bigram.Model, tk tokenizer.Tokenizer, config Config) (*Translator, error) {
	special := tk.SpecialTokens()
	opts := config.Decoding
	opts.PadTokenID = special.Pad
	opts.BOSTokenID = special.BOS
	opts.EndTokenID = special.EOS
	opts.UnkTokenID = special.Unk
	opts.VocabSize = tk.Size()

	var (
		dec *decoder.Decoder
		err error
	)
	if opts.CopyAttn {
		if _, ok := tk.(*tokenizer.WordTokenizer); !ok {
			return nil, fmt.Errorf("copy attention requires the %q tokenizer", tokenizer.Word)
		}
		collapser := decoder.VocabCollapser{VocabSize: opts.VocabSize, UnkTokenID: opts.UnkTokenID}
		dec, err = decoder.NewWithCopy(model, model, collapser, opts)
	} else {
		dec, err = decoder.New(model, model, opts)
	}
	if err != nil {
		return nil, err
	}
	config.Decoding = dec.Options()

	log.Debug().Msgf("Decoding options: beam size %d, n-best %d, max length %d, copy %t",
		opts.BeamSize, opts.NBest, opts.MaxLen, opts.CopyAttn)

	return &Translator{
		Model:     model,
		Tokenizer: tk,
		Decoder:   dec,
		Config:    config,
	}, nil
}

// Translate translates the given sentences in a single batch.
// If trace is not nil, the beam search steps are written to it and it is
// closed before returning.
func (t *Translator) Translate(ctx context.Context, sources []string, trace decoder.Buffer) ([]Translation, error) {
	enc, srcVocabs, err := t.encode(ctx, sources)
	if err != nil {
		if trace != nil {
			trace.Close()
		}
		return nil, err
	}

	log.Debug().Msgf("Decoding %d sentences", len(sources))
	res, err := t.Decoder.Decode(ctx, enc, trace)
	if err != nil {
		return nil, err
	}

	out := make([]Translation, len(sources))
	for i, src := range sources {
		out[i].Source = src
		for _, h := range res.Hypotheses(i) {
			text, err := t.reconstructText(h.Tokens, srcVocabs, i)
			if err != nil {
				return nil, fmt.Errorf("failed to reconstruct text: %w", err)
			}
			out[i].Hypotheses = append(out[i].Hypotheses, Hypothesis{
				Text:      text,
				TokenIDs:  h.Tokens,
				Score:     h.Score,
				Attention: h.Attention,
			})
		}
	}
	return out, nil
}

// GoldScore returns the log-likelihood of every target sentence given its source.
func (t *Translator) GoldScore(ctx context.Context, sources, targets []string) ([]float64, error) {
	if len(sources) != len(targets) {
		return nil, fmt.Errorf("got %d targets for %d sources", len(targets), len(sources))
	}
	if t.Config.Decoding.CopyAttn {
		return nil, fmt.Errorf("gold scores are not supported with copy attention")
	}
	enc, _, err := t.encode(ctx, sources)
	if err != nil {
		return nil, err
	}
	eos := t.Tokenizer.SpecialTokens().EOS
	tgt := make([][]int, len(targets))
	for i, target := range targets {
		ids, err := t.Tokenizer.Tokenize(target)
		if err != nil {
			return nil, err
		}
		tgt[i] = append(ids, eos)
	}
	return t.Decoder.GoldScores(ctx, enc, tgt)
}

func (t *Translator) encode(ctx context.Context, sources []string) (*encoder.Result, []tokenizer.SourceVocab, error) {
	tokenized := make([][]int, len(sources))
	for i, src := range sources {
		log.Trace().Msgf("Tokenizing source: %s", src)
		ids, err := t.Tokenizer.Tokenize(src)
		if err != nil {
			return nil, nil, err
		}
		if len(ids) == 0 {
			return nil, nil, fmt.Errorf("source sentence %d is empty", i)
		}
		log.Trace().Msgf("Token IDs: %v", ids)
		tokenized[i] = ids
	}

	enc, err := t.Model.Encode(ctx, tokenized)
	if err != nil {
		return nil, nil, err
	}
	if !t.Config.Decoding.CopyAttn {
		return enc, nil, nil
	}

	wt := t.Tokenizer.(*tokenizer.WordTokenizer)
	srcVocabs := make([]tokenizer.SourceVocab, len(sources))
	enc.SourceMaps = make([]mat.Matrix, len(sources))
	enc.SourceVocabs = make([][]int, len(sources))
	for i, src := range sources {
		sv := wt.SourceVocab(src)
		srcVocabs[i] = sv
		enc.SourceMaps[i] = bigram.SourceMap(sv.Positions, len(sv.Words))
		enc.SourceVocabs[i] = sv.TargetIDs
	}
	return enc, srcVocabs, nil
}

func (t *Translator) reconstructText(ids []int, srcVocabs []tokenizer.SourceVocab, seq int) (string, error) {
	if srcVocabs == nil {
		return t.Tokenizer.ReconstructText(ids)
	}
	return t.Tokenizer.(*tokenizer.WordTokenizer).ReconstructWithCopy(ids, srcVocabs[seq])
}
