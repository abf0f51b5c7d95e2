// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package beamflow

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/nlpodyssey/beamflow/tokenizer"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ConfigFilename is the name of the configuration file inside a model directory.
const ConfigFilename = "config.yaml"

// Config is the configuration of a model directory.
type Config struct {
	// Tokenizer is the kind of tokenizer: "word" or "bpe".
	Tokenizer string `yaml:"tokenizer"`
	// SpecialTokens are the vocabulary terms of the control tokens.
	SpecialTokens tokenizer.SpecialTokenNames `yaml:"special_tokens"`
	// Decoding are the beam search options. The token IDs and the vocabulary
	// size are always taken from the vocabulary.
	Decoding decoder.DecodingOptions `yaml:"decoding"`
}

// DefaultConfig returns the configuration used for the settings missing from the file.
func DefaultConfig() Config {
	return Config{
		Tokenizer:     tokenizer.Word,
		SpecialTokens: tokenizer.DefaultSpecialTokenNames(),
		Decoding:      decoder.DefaultDecodingOptions(),
	}
}

// LoadConfig reads the configuration file. A missing file yields the default configuration.
func LoadConfig(filePath string) (Config, error) {
	config := DefaultConfig()
	file, err := os.Open(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Msgf("Configuration file %s not found, using the defaults", filePath)
		return config, nil
	}
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return Config{}, fmt.Errorf("failed to decode configuration file %s: %w", filePath, err)
	}
	return config, nil
}
