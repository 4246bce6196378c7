package client

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

var commandContext = exec.CommandContext

// FFmpegClient converts audio files with the ffmpeg binary.
type FFmpegClient struct {
	binary  string
	bitrate string
}

// NewFFmpegClient returns a converter invoking binary ("ffmpeg" when empty)
// with a fixed output bitrate.
func NewFFmpegClient(binary, bitrate string) *FFmpegClient {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if strings.TrimSpace(bitrate) == "" {
		bitrate = "320k"
	}
	return &FFmpegClient{binary: binary, bitrate: bitrate}
}

// ToMP3 transcodes input into an MP3 file at output, overwriting it.
func (c *FFmpegClient) ToMP3(ctx context.Context, input, output string) error {
	args := []string{"-y", "-i", input, "-b:a", c.bitrate, output}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg convert: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
