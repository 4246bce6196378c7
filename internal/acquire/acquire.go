// Package acquire produces a local MP3 for a music job, either by fetching
// the uploaded original or by extracting audio from a video page.
package acquire

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dripdrop/musicjobs/internal/failure"
	"github.com/dripdrop/musicjobs/internal/logging"
	"github.com/dripdrop/musicjobs/internal/model"
)

const (
	stage    = "acquire"
	baseName = "temp"
)

// Converter transcodes an audio file into MP3.
type Converter interface {
	ToMP3(ctx context.Context, input, output string) error
}

// Extractor pulls the audio track of a video page into dir/<name>.mp3.
type Extractor interface {
	Extract(ctx context.Context, url, dir, name string) (string, error)
}

type Acquirer struct {
	http      *http.Client
	converter Converter
	extractor Extractor
	logger    *slog.Logger
}

func New(httpClient *http.Client, converter Converter, extractor Extractor, logger *slog.Logger) *Acquirer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Acquirer{
		http:      httpClient,
		converter: converter,
		extractor: extractor,
		logger:    logging.Or(logger).With(logging.FieldComponent, stage),
	}
}

// Acquire writes the job's audio into dir and returns the MP3 path.
func (a *Acquirer) Acquire(ctx context.Context, job *model.MusicJob, dir string) (string, error) {
	var (
		filename string
		err      error
	)
	switch {
	case job.FilenameURL != nil && *job.FilenameURL != "":
		filename, err = a.fromUpload(ctx, job, dir)
	case job.VideoURL != nil && *job.VideoURL != "":
		filename, err = a.fromVideo(ctx, *job.VideoURL, dir)
	}
	if err != nil {
		return "", err
	}

	if filename == "" {
		return "", notFound()
	}
	if info, statErr := os.Stat(filename); statErr != nil || info.IsDir() {
		return "", notFound()
	}
	return filename, nil
}

func notFound() error {
	return failure.Wrap(failure.ErrAcquisition, stage, "", "File not found", nil)
}

func (a *Acquirer) fromUpload(ctx context.Context, job *model.MusicJob, dir string) (string, error) {
	source := *job.FilenameURL
	ext := uploadExtension(job.OriginalFilename, source)
	input := filepath.Join(dir, baseName+ext)

	if err := a.download(ctx, source, input); err != nil {
		return "", err
	}

	if strings.EqualFold(ext, ".mp3") {
		return input, nil
	}

	output := filepath.Join(dir, baseName+".mp3")
	a.logger.Debug("converting upload", logging.FieldJobID, job.ID, "input", input)
	if err := a.converter.ToMP3(ctx, input, output); err != nil {
		return "", failure.Wrap(failure.ErrAcquisition, stage, "convert", "", err)
	}
	return output, nil
}

func (a *Acquirer) download(ctx context.Context, source, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return failure.Wrap(failure.ErrAcquisition, stage, "download", "", err)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return failure.Wrap(failure.ErrAcquisition, stage, "download", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failure.Wrap(failure.ErrAcquisition, stage, "download", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	f, err := os.Create(dest)
	if err != nil {
		return failure.Wrap(failure.ErrAcquisition, stage, "download", "", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return failure.Wrap(failure.ErrAcquisition, stage, "download", "", err)
	}
	if err := f.Close(); err != nil {
		return failure.Wrap(failure.ErrAcquisition, stage, "download", "", err)
	}
	return nil
}

func (a *Acquirer) fromVideo(ctx context.Context, videoURL, dir string) (string, error) {
	filename, err := a.extractor.Extract(ctx, videoURL, dir, baseName)
	if err != nil {
		return "", failure.Wrap(failure.ErrAcquisition, stage, "extract", "", err)
	}
	return filename, nil
}

func uploadExtension(originalFilename *string, source string) string {
	if originalFilename != nil {
		if ext := filepath.Ext(*originalFilename); ext != "" {
			return ext
		}
	}
	if u, err := url.Parse(source); err == nil {
		if ext := path.Ext(u.Path); ext != "" {
			return ext
		}
	}
	return ".audio"
}
