// Copyright 2022 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the Hugging Face hub.
	DefaultBaseURL = "https://huggingface.co"
	// Repository file URL, in the format:
	// "{base_url}/{model_id}/resolve/{revision}/{filename}"
	fileURLFormat = "%s/%s/resolve/%s/%s"
	// Default revision name for fetching model from the repository
	defaultRevision = "main"
)

// modelFile is a file of a model directory.
type modelFile struct {
	name     string
	optional bool
}

// modelsFiles contains the set of files to download.
var modelsFiles = []modelFile{
	{name: "vocab.json"},
	{name: "model.yaml"},
	{name: "config.yaml", optional: true},
	{name: "merges.txt", optional: true},
}

// Options configures a download.
type Options struct {
	// BaseURL is the repository host. It defaults to DefaultBaseURL.
	BaseURL string
	// Revision is the repository revision. It defaults to "main".
	Revision string
	// AccessToken is sent as a bearer token when not empty.
	AccessToken string
	// OverwriteIfExist downloads the files that already exist again.
	OverwriteIfExist bool
	// Client is the HTTP client. It defaults to http.DefaultClient.
	Client *http.Client
}

// Download downloads the files of a model directory from a Hugging Face
// style repository into modelsDir/modelName.
//
// If one or more directory levels don't yet exist, they are created
// setting the permissions bits to 0755 (rwxr-xr-x).
//
// Unless OverwriteIfExist is set, any file that already exists is kept and
// considered as already successfully downloaded. Optional files missing
// from the repository are skipped.
func Download(ctx context.Context, modelsDir, modelName string, opts Options) error {
	d := downloader{
		modelPath: filepath.Join(modelsDir, modelName),
		modelName: modelName,
		opts:      opts,
	}
	if d.opts.BaseURL == "" {
		d.opts.BaseURL = DefaultBaseURL
	}
	if d.opts.Revision == "" {
		d.opts.Revision = defaultRevision
	}
	if d.opts.Client == nil {
		d.opts.Client = http.DefaultClient
	}
	return d.download(ctx)
}

// downloader is a helper struct for downloading a model.
type downloader struct {
	modelPath string
	modelName string
	opts      Options
}

func (d downloader) download(ctx context.Context) error {
	if err := d.ensureModelPath(); err != nil {
		return err
	}
	for _, file := range modelsFiles {
		if err := d.downloadFile(ctx, file); err != nil {
			return err
		}
	}
	return nil
}

func (d downloader) ensureModelPath() error {
	if info, err := os.Stat(d.modelPath); err == nil && info.IsDir() {
		return nil
	}
	if err := os.MkdirAll(d.modelPath, 0755); err != nil {
		return fmt.Errorf("error creating model path %#v: %w", d.modelPath, err)
	}
	return nil
}

func (d downloader) downloadFile(ctx context.Context, file modelFile) (err error) {
	fPath := filepath.Join(d.modelPath, file.name)
	if info, err := os.Stat(fPath); !d.opts.OverwriteIfExist && err == nil && !info.IsDir() {
		log.Debug().Str("file", fPath).Msg("model file already exists, skipping download")
		return nil
	}

	url := d.fileURL(file.name)
	log.Debug().Str("url", url).Str("destination", fPath).Msg("downloading")

	resp, err := d.httpGet(ctx, url)
	if err != nil {
		return fmt.Errorf("error getting %#v: %w", url, err)
	}
	defer func() {
		if e := resp.Body.Close(); e != nil && err == nil {
			err = fmt.Errorf("error closing %#v response body: %w", url, e)
		}
	}()

	if resp.StatusCode == http.StatusNotFound && file.optional {
		log.Debug().Str("url", url).Msg("optional model file not found, skipping")
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%#v responded with %s", url, resp.Status)
	}

	f, err := os.Create(fPath)
	if err != nil {
		return fmt.Errorf("error creating file %#v: %w", fPath, err)
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = fmt.Errorf("error closing file %#v: %w", fPath, e)
		}
	}()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return fmt.Errorf("error downloading %#v to %#v: %w", url, fPath, err)
	}
	log.Debug().Str("file", fPath).Int64("bytes", n).Msg("downloaded")
	return nil
}

func (d downloader) httpGet(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if d.opts.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.opts.AccessToken)
	}
	return d.opts.Client.Do(req)
}

func (d downloader) fileURL(fileName string) string {
	return fmt.Sprintf(fileURLFormat, d.opts.BaseURL, d.modelName, d.opts.Revision, fileName)
}
