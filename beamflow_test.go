// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package beamflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testVocab = `{"<unk>": 0, "<blank>": 1, "<s>": 2, "</s>": 3, "le": 4, "chat": 5, "the": 6, "cat": 7}`

	testModel = `
transitions:
  cat: {"</s>": 8}
  "<unk>": {"</s>": 8}
lexicon:
  le: {the: 5}
  chat: {cat: 5}
`
	testConfig = `
decoding:
  beam_size: 2
  n_best: 2
  max_len: 10
`
)

func writeModelDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func loadTranslator(t *testing.T, config, model string) *Translator {
	t.Helper()
	dir := writeModelDir(t, map[string]string{
		"vocab.json":   testVocab,
		"model.yaml":   model,
		ConfigFilename: config,
	})
	tr, err := Load(dir)
	require.NoError(t, err)
	return tr
}

func TestLoad(t *testing.T) {
	tr := loadTranslator(t, testConfig, testModel)

	opts := tr.Decoder.Options()
	assert.Equal(t, 2, opts.BeamSize)
	assert.Equal(t, 2, opts.NBest)
	assert.Equal(t, 10, opts.MaxLen)
	assert.Equal(t, 1, opts.PadTokenID)
	assert.Equal(t, 2, opts.BOSTokenID)
	assert.Equal(t, 3, opts.EndTokenID)
	assert.Equal(t, 8, opts.VocabSize)
	assert.Equal(t, opts, tr.Config.Decoding)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing vocabulary", func(t *testing.T) {
		_, err := Load(writeModelDir(t, map[string]string{"model.yaml": testModel}))
		assert.Error(t, err)
	})

	t.Run("missing model", func(t *testing.T) {
		_, err := Load(writeModelDir(t, map[string]string{"vocab.json": testVocab}))
		assert.Error(t, err)
	})

	t.Run("invalid decoding options", func(t *testing.T) {
		dir := writeModelDir(t, map[string]string{
			"vocab.json":   testVocab,
			"model.yaml":   testModel,
			ConfigFilename: "decoding:\n  beam_size: 0\n",
		})
		_, err := Load(dir)
		assert.Error(t, err)
	})
}

func TestLoadConfigDefaults(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), ConfigFilename))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)
}

func TestTranslate(t *testing.T) {
	tr := loadTranslator(t, testConfig, testModel)

	trace := &decoder.Trace{}
	out, err := tr.Translate(context.Background(), []string{"le chat", "chat"}, trace)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "le chat", out[0].Source)
	require.Len(t, out[0].Hypotheses, 2)
	best := out[0].Hypotheses[0]
	assert.Equal(t, "the cat", best.Text)
	assert.Equal(t, []int{6, 7}, best.TokenIDs)
	assert.Len(t, best.Attention, 2)
	assert.Greater(t, best.Score, out[0].Hypotheses[1].Score)

	assert.Equal(t, "cat", out[1].Hypotheses[0].Text)
	assert.NotEmpty(t, trace.Sequence(0))
	assert.NotEmpty(t, trace.Sequence(1))

	t.Run("gold score of the best hypothesis", func(t *testing.T) {
		scores, err := tr.GoldScore(context.Background(), []string{"le chat"}, []string{"the cat"})
		require.NoError(t, err)
		assert.InDelta(t, best.Score, scores[0], 1e-9)
	})

	t.Run("empty source", func(t *testing.T) {
		_, err := tr.Translate(context.Background(), []string{"le chat", "  "}, nil)
		assert.Error(t, err)
	})

	t.Run("misaligned gold targets", func(t *testing.T) {
		_, err := tr.GoldScore(context.Background(), []string{"le chat"}, nil)
		assert.Error(t, err)
	})
}

func TestTranslateWithCopy(t *testing.T) {
	config := "decoding:\n  beam_size: 2\n  n_best: 1\n  max_len: 10\n  copy_attn: true\n"
	tr := loadTranslator(t, config, testModel+"copy_weight: 0.4\n")

	out, err := tr.Translate(context.Background(), []string{"le felin"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "the felin", out[0].Hypotheses[0].Text)
	assert.Equal(t, []int{6, 9}, out[0].Hypotheses[0].TokenIDs)

	_, err = tr.GoldScore(context.Background(), []string{"le felin"}, []string{"the felin"})
	assert.Error(t, err)
}

func TestReport(t *testing.T) {
	tr := Translation{
		Source: "le chat",
		Hypotheses: []Hypothesis{
			{Text: "the cat", Score: -0.5},
			{Text: "cat", Score: -1.25},
		},
	}

	report, err := BuildReportFromTemplate(tr, DefaultReportTemplate)
	require.NoError(t, err)
	assert.Equal(t, "-0.5000\tthe cat\n-1.2500\tcat\n", report)

	filename := filepath.Join(t.TempDir(), "report.tmpl")
	require.NoError(t, os.WriteFile(filename, []byte(`{{.Source}} => {{(index .Hypotheses 0).Text}}`), 0o644))
	report, err = BuildReportFromTemplateFile(tr, filename)
	require.NoError(t, err)
	assert.Equal(t, "le chat => the cat", report)

	_, err = BuildReportFromTemplateFile(tr, filepath.Join(t.TempDir(), "missing.tmpl"))
	assert.Error(t, err)
}
