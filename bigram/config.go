// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bigram

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFilename is the name of the model file inside a model directory.
const DefaultFilename = "model.yaml"

// Config describes a bigram translation model in terms of vocabulary words.
type Config struct {
	// Transitions maps a previous target word to the logits of the next target words.
	Transitions map[string]map[string]float64 `yaml:"transitions"`
	// Lexicon maps a source word to the logits added to the next target words
	// while that word is attended.
	Lexicon map[string]map[string]float64 `yaml:"lexicon"`
	// DefaultLogit is the logit of the transitions not listed.
	DefaultLogit float64 `yaml:"default_logit"`
	// CopyWeight is the probability mass given to copying the attended source word.
	CopyWeight float64 `yaml:"copy_weight"`
}

// LoadConfig reads a Config from a YAML file.
func LoadConfig(filePath string) (Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return Config{}, fmt.Errorf("failed to decode model file %s: %w", filePath, err)
	}
	return config, nil
}
