// Package publish uploads finished job artifacts to object storage under
// deterministic keys.
package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dripdrop/musicjobs/internal/client"
	"github.com/dripdrop/musicjobs/internal/failure"
	"github.com/dripdrop/musicjobs/internal/model"
)

const (
	stage        = "publish"
	audioMPEG    = "audio/mpeg"
	unsafeInName = `<>:"\|?*`
)

var lower = cases.Lower(language.Und)

type Publisher struct {
	storage     client.StorageClient
	musicFolder string
}

func New(storage client.StorageClient, musicFolder string) *Publisher {
	if musicFolder == "" {
		musicFolder = "music"
	}
	return &Publisher{storage: storage, musicFolder: musicFolder}
}

// Key returns the storage key of job's tagged MP3.
func (p *Publisher) Key(job *model.MusicJob) string {
	name := fmt.Sprintf("%s %s.mp3", lower.String(job.Title), lower.String(job.Artist))
	return path.Join(p.musicFolder, job.ID, SanitizeFilename(name))
}

// Publish uploads the file at filename under Key(job) and returns the key and
// its public URL.
func (p *Publisher) Publish(ctx context.Context, filename string, job *model.MusicJob) (string, string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", "", failure.Wrap(failure.ErrStorage, stage, "open", "", err)
	}
	defer f.Close()

	key := p.Key(job)
	url, err := p.storage.Upload(ctx, key, f, audioMPEG)
	if err != nil {
		return "", "", failure.Wrap(failure.ErrStorage, stage, "upload", key, err)
	}
	return key, url, nil
}

// Delete removes key from storage. Absent keys are not an error.
func (p *Publisher) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := p.storage.Delete(ctx, key); err != nil {
		return failure.Wrap(failure.ErrStorage, stage, "delete", key, err)
	}
	return nil
}

// ArtworkKey returns the storage key of a job's artwork image.
func ArtworkKey(folder, jobID, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "jpg"
	}
	return path.Join(folder, jobID, "artwork."+ext)
}

// OriginalKey returns the storage key of a job's uploaded source file.
func OriginalKey(folder, jobID, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(folder, jobID, "original"+strings.ToLower(ext))
}

// SanitizeFilename drops characters that are unsafe in file names.
func SanitizeFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(unsafeInName, r) || r == '/' {
			return -1
		}
		return r
	}, name)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" || cleaned == ".mp3" {
		return "audio.mp3"
	}
	return cleaned
}
