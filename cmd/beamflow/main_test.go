// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModelDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"vocab.json":  `{"<unk>": 0, "<blank>": 1, "<s>": 2, "</s>": 3, "le": 4, "chat": 5, "the": 6, "cat": 7}`,
		"model.yaml":  "transitions:\n  cat: {\"</s>\": 8}\nlexicon:\n  le: {the: 5}\n  chat: {cat: 5}\n",
		"config.yaml": "decoding:\n  beam_size: 2\n  n_best: 1\n  max_len: 10\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestForEachBatch(t *testing.T) {
	var batches [][]string
	err := forEachBatch(strings.NewReader("a\n\nb\n  c  \nd\n"), 2, func(lines []string) error {
		batches = append(batches, append([]string(nil), lines...))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, batches)

	assert.Error(t, forEachBatch(strings.NewReader("a"), 0, nil))
}

func TestSplitScoreLine(t *testing.T) {
	src, tgt, err := splitScoreLine("le chat ||| the cat")
	require.NoError(t, err)
	assert.Equal(t, "le chat", src)
	assert.Equal(t, "the cat", tgt)

	_, _, err = splitScoreLine("le chat")
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	dir := writeModelDir(t)

	var out bytes.Buffer
	err := decode(context.Background(), dir, decodeOptions{batchSize: 1, trace: true}, strings.NewReader("le chat\nchat\n"), &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "\tthe cat"))
	assert.True(t, strings.HasSuffix(lines[1], "\tcat"))

	t.Run("template", func(t *testing.T) {
		tmpl := filepath.Join(t.TempDir(), "report.tmpl")
		require.NoError(t, os.WriteFile(tmpl, []byte("{{.Source}} => {{(index .Hypotheses 0).Text}}\n"), 0o644))

		var out bytes.Buffer
		err := decode(context.Background(), dir, decodeOptions{batchSize: 4, template: tmpl}, strings.NewReader("le chat\n"), &out)
		require.NoError(t, err)
		assert.Equal(t, "le chat => the cat\n", out.String())
	})
}

func TestScore(t *testing.T) {
	dir := writeModelDir(t)

	var out bytes.Buffer
	err := score(context.Background(), dir, 2, strings.NewReader("le chat ||| the cat\nchat ||| cat\n"), &out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 2)

	err = score(context.Background(), dir, 2, strings.NewReader("le chat\n"), &out)
	assert.Error(t, err)
}

func TestSplitPathAndModelName(t *testing.T) {
	dir, name, err := splitPathAndModelName("models/org/model/")
	require.NoError(t, err)
	assert.Equal(t, "models", dir)
	assert.Equal(t, filepath.Join("org", "model"), name)

	_, _, err = splitPathAndModelName("org/model")
	assert.Error(t, err)
}
