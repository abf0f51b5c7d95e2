// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/nlpodyssey/beamflow"
	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/nlpodyssey/beamflow/downloader"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// scoreSeparator separates the source from the target in the input of the score command.
const scoreSeparator = "|||"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)

	app := &cli.App{
		Name:  "beamflow",
		Usage: "Translate sentences with beam search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "set log level (trace, debug, info, warn, error, fatal, panic)",
				Action: func(c *cli.Context, s string) error {
					return setDebugLevel(s)
				},
				Value:   "info",
				EnvVars: []string{"BEAMFLOW_LOGLEVEL"},
			},
			&cli.StringFlag{
				Name:     "model-dir",
				Usage:    "directory of the model to operate on",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "number of input lines decoded together",
				Value: 16,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "download",
				Usage: "Download model to directory (the last two levels are the repository name)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "base-url",
						Usage: "repository host",
						Value: downloader.DefaultBaseURL,
					},
					&cli.StringFlag{
						Name:  "revision",
						Usage: "repository revision",
						Value: "main",
					},
					&cli.StringFlag{
						Name:    "access-token",
						Usage:   "access token for private repositories",
						EnvVars: []string{"BEAMFLOW_ACCESS_TOKEN"},
					},
					&cli.BoolFlag{
						Name:  "overwrite",
						Usage: "download the files that already exist again",
					},
				},
				Action: func(c *cli.Context) error {
					ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, os.Kill)
					defer stop()

					return download(ctx, c.String("model-dir"), downloader.Options{
						BaseURL:          c.String("base-url"),
						Revision:         c.String("revision"),
						AccessToken:      c.String("access-token"),
						OverwriteIfExist: c.Bool("overwrite"),
					})
				},
			},
			{
				Name:  "decode",
				Usage: "Translate the sentences read from stdin, one per line",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "template",
						Usage: "text/template file used to print every translation",
					},
					&cli.BoolFlag{
						Name:  "trace",
						Usage: "log every beam search step",
					},
				},
				Action: func(c *cli.Context) error {
					ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, os.Kill)
					defer stop()

					return decode(ctx, c.String("model-dir"), decodeOptions{
						batchSize: c.Int("batch-size"),
						template:  c.String("template"),
						trace:     c.Bool("trace"),
					}, os.Stdin, os.Stdout)
				},
			},
			{
				Name:  "score",
				Usage: "Print the log-likelihood of the targets read from stdin as \"source ||| target\" lines",
				Action: func(c *cli.Context) error {
					ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, os.Kill)
					defer stop()

					return score(ctx, c.String("model-dir"), c.Int("batch-size"), os.Stdin, os.Stdout)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func setDebugLevel(debugLevel string) error {
	level, err := zerolog.ParseLevel(debugLevel)
	if err != nil {
		return err
	}
	log.Logger = log.Level(level)
	return nil
}

func download(ctx context.Context, modelDir string, opts downloader.Options) error {
	log.Debug().Msgf("Downloading model in dir: %s", modelDir)
	dir, name, err := splitPathAndModelName(modelDir)
	if err != nil {
		return err
	}
	if err = downloader.Download(ctx, dir, name, opts); err != nil {
		return err
	}
	log.Debug().Msg("Done.")
	return nil
}

// splitPathAndModelName separate the models directory from the model name, which format is "organization/model"
func splitPathAndModelName(path string) (string, string, error) {
	dirs := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(dirs) < 3 {
		return "", "", fmt.Errorf("path must have at least three levels of directories")
	}
	lastDir := dirs[len(dirs)-1]
	secondLastDir := dirs[len(dirs)-2]

	pathExceptLastTwo := strings.Join(dirs[:len(dirs)-2], "/")
	return pathExceptLastTwo, filepath.Join(secondLastDir, lastDir), nil
}

type decodeOptions struct {
	batchSize int
	template  string
	trace     bool
}

func decode(ctx context.Context, modelDir string, opts decodeOptions, r io.Reader, w io.Writer) error {
	log.Debug().Msgf("Loading model from dir: %s", modelDir)
	tr, err := beamflow.Load(modelDir)
	if err != nil {
		return err
	}
	log.Debug().Msgf("Ready.")

	report := func(t beamflow.Translation) (string, error) {
		if opts.template != "" {
			return beamflow.BuildReportFromTemplateFile(t, opts.template)
		}
		return beamflow.BuildReportFromTemplate(t, beamflow.DefaultReportTemplate)
	}

	return forEachBatch(r, opts.batchSize, func(lines []string) error {
		var trace decoder.Buffer
		done := make(chan struct{})
		if opts.trace {
			ch := make(decoder.ChannelBuffer)
			trace = ch
			go func() {
				defer close(done)
				logTrace(ch)
			}()
		} else {
			close(done)
		}

		translations, err := tr.Translate(ctx, lines, trace)
		<-done
		if err != nil {
			return err
		}
		for _, t := range translations {
			out, err := report(t)
			if err != nil {
				return err
			}
			if _, err := io.WriteString(w, out); err != nil {
				return err
			}
		}
		return nil
	})
}

func logTrace(ch decoder.ChannelBuffer) {
	for s := range ch {
		log.Info().
			Int("sequence", s.Sequence).
			Int("step", s.Step).
			Ints("tokens", s.TokenIDs).
			Ints("parents", s.ParentIDs).
			Floats64("scores", s.Scores).
			Msg("beam step")
	}
}

func score(ctx context.Context, modelDir string, batchSize int, r io.Reader, w io.Writer) error {
	log.Debug().Msgf("Loading model from dir: %s", modelDir)
	tr, err := beamflow.Load(modelDir)
	if err != nil {
		return err
	}

	return forEachBatch(r, batchSize, func(lines []string) error {
		sources := make([]string, len(lines))
		targets := make([]string, len(lines))
		for i, line := range lines {
			src, tgt, err := splitScoreLine(line)
			if err != nil {
				return err
			}
			sources[i], targets[i] = src, tgt
		}
		scores, err := tr.GoldScore(ctx, sources, targets)
		if err != nil {
			return err
		}
		for _, s := range scores {
			if _, err := fmt.Fprintf(w, "%.4f\n", s); err != nil {
				return err
			}
		}
		return nil
	})
}

func splitScoreLine(line string) (string, string, error) {
	src, tgt, ok := strings.Cut(line, scoreSeparator)
	if !ok {
		return "", "", fmt.Errorf("missing %q separator in line %q", scoreSeparator, line)
	}
	return strings.TrimSpace(src), strings.TrimSpace(tgt), nil
}

// forEachBatch calls the given callback function for every batch of non-empty input lines.
func forEachBatch(r io.Reader, batchSize int, callback func(lines []string) error) error {
	if batchSize < 1 {
		return fmt.Errorf("invalid batch size %d", batchSize)
	}
	scanner := bufio.NewScanner(r)
	batch := make([]string, 0, batchSize)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		batch = append(batch, text)
		if len(batch) == batchSize {
			if err := callback(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return callback(batch)
	}
	return nil
}
