package client

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lrstanley/go-ytdlp"
)

// YtdlpClient extracts audio from video pages with yt-dlp.
type YtdlpClient struct {
	binary string
}

func NewYtdlpClient(binary string) *YtdlpClient {
	return &YtdlpClient{binary: strings.TrimSpace(binary)}
}

func (c *YtdlpClient) command() *ytdlp.Command {
	cmd := ytdlp.New()
	if c.binary != "" && c.binary != "yt-dlp" {
		cmd = cmd.SetExecutable(c.binary)
	}
	return cmd
}

// Extract downloads the best audio stream of url and converts it to MP3.
// The result is always written to <dir>/<name>.mp3.
func (c *YtdlpClient) Extract(ctx context.Context, url, dir, name string) (string, error) {
	dl := c.command().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat("mp3").
		AudioQuality("0").
		ForceOverwrites().
		NoPlaylist().
		Output(filepath.Join(dir, name+".%(ext)s"))

	if _, err := dl.Run(ctx, url); err != nil {
		return "", fmt.Errorf("yt-dlp extract: %w", err)
	}
	return filepath.Join(dir, name+".mp3"), nil
}

// Uploader returns the uploader name yt-dlp reports for url.
func (c *YtdlpClient) Uploader(ctx context.Context, url string) (string, error) {
	res, err := c.command().
		SkipDownload().
		NoPlaylist().
		DumpSingleJSON().
		Run(ctx, url)
	if err != nil {
		return "", fmt.Errorf("yt-dlp info: %w", err)
	}

	info, err := res.GetExtractedInfo()
	if err != nil {
		return "", fmt.Errorf("yt-dlp info: %w", err)
	}
	for _, item := range info {
		if item != nil && item.Uploader != nil && *item.Uploader != "" {
			return *item.Uploader, nil
		}
	}
	return "", fmt.Errorf("yt-dlp info: no uploader for %s", url)
}
