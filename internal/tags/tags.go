// Package tags reads and writes ID3v2 tags on MP3 files.
package tags

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bogem/id3v2/v2"
	"github.com/google/uuid"

	"github.com/dripdrop/musicjobs/internal/artwork"
	"github.com/dripdrop/musicjobs/internal/failure"
)

const (
	stage      = "tags"
	groupingID = "TIT1"
)

var errNotMPEG = errors.New("not an MPEG audio stream")

// Fields are the tags written onto a job's file. Nil optional fields leave
// the existing frames untouched.
type Fields struct {
	Title    string
	Artist   string
	Album    string
	Grouping *string
	Artwork  *artwork.Artwork
}

// Tags is what Read reports. Artwork is a data URI.
type Tags struct {
	Title      *string
	Artist     *string
	Album      *string
	Grouping   *string
	ArtworkURL *string
}

// Apply writes fields onto the MP3 at path, replacing earlier values.
func Apply(path string, fields Fields) error {
	if err := checkMPEG(path); err != nil {
		return failure.Wrap(failure.ErrTagging, stage, "apply", filepath.Base(path), err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return failure.Wrap(failure.ErrTagging, stage, "open", "", err)
	}
	defer tag.Close()

	// UTF-8 text frames are only valid in ID3v2.4
	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(fields.Title)
	tag.SetArtist(fields.Artist)
	tag.SetAlbum(fields.Album)

	if fields.Grouping != nil {
		tag.DeleteFrames(groupingID)
		tag.AddTextFrame(groupingID, tag.DefaultEncoding(), *fields.Grouping)
	}

	if fields.Artwork != nil && len(fields.Artwork.Data) > 0 {
		tag.DeleteFrames(tag.CommonID("Attached picture"))
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    fields.Artwork.MimeType,
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     fields.Artwork.Data,
		})
	}

	if err := tag.Save(); err != nil {
		return failure.Wrap(failure.ErrTagging, stage, "save", "", err)
	}
	return nil
}

// Read returns the tags of the MP3 at path.
func Read(path string) (*Tags, error) {
	if err := checkMPEG(path); err != nil {
		return nil, failure.Wrap(failure.ErrTagging, stage, "read", filepath.Base(path), err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, failure.Wrap(failure.ErrTagging, stage, "open", "", err)
	}
	defer tag.Close()

	out := &Tags{
		Title:    nonEmpty(tag.Title()),
		Artist:   nonEmpty(tag.Artist()),
		Album:    nonEmpty(tag.Album()),
		Grouping: nonEmpty(tag.GetTextFrame(groupingID).Text),
	}

	for _, frame := range tag.GetFrames(tag.CommonID("Attached picture")) {
		pic, ok := frame.(id3v2.PictureFrame)
		if !ok || len(pic.Picture) == 0 {
			continue
		}
		encoded := base64.StdEncoding.EncodeToString(pic.Picture)
		mimeType := pic.MimeType
		if mimeType == "" {
			mimeType = artwork.SniffMimeType(encoded)
		}
		uri := fmt.Sprintf("data:%s;base64,%s", mimeType, encoded)
		out.ArtworkURL = &uri
		break
	}
	return out, nil
}

// ReadBytes stages data under root and reads its tags. Any failure yields
// empty tags.
func ReadBytes(data []byte, filename, root string) *Tags {
	dir := filepath.Join(root, "tags", uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &Tags{}
	}
	defer os.RemoveAll(dir)

	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload.mp3"
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &Tags{}
	}

	t, err := Read(path)
	if err != nil {
		return &Tags{}
	}
	return t
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// checkMPEG accepts an optional leading ID3v2 tag followed by an MPEG audio
// frame header.
func checkMPEG(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, 10)
	if _, err := io.ReadFull(f, header); err != nil {
		return errNotMPEG
	}

	var offset int64
	if bytes.Equal(header[:3], []byte("ID3")) {
		size := int64(header[6]&0x7F)<<21 | int64(header[7]&0x7F)<<14 | int64(header[8]&0x7F)<<7 | int64(header[9]&0x7F)
		offset = 10 + size
		if header[5]&0x10 != 0 {
			offset += 10
		}
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return errNotMPEG
	}

	buf := make([]byte, 4096)
	n, _ := io.ReadFull(f, buf)
	buf = buf[:n]
	i := 0
	for i < len(buf) && buf[i] == 0x00 {
		i++
	}
	if len(buf)-i < 4 {
		return errNotMPEG
	}
	if !isFrameHeader(buf[i : i+4]) {
		return errNotMPEG
	}
	return nil
}

func isFrameHeader(h []byte) bool {
	if h[0] != 0xFF || h[1]&0xE0 != 0xE0 {
		return false
	}
	version := (h[1] >> 3) & 0x03
	layer := (h[1] >> 1) & 0x03
	bitrate := h[2] >> 4
	sampleRate := (h[2] >> 2) & 0x03
	return version != 0x01 && layer != 0x00 && bitrate != 0x0F && sampleRate != 0x03
}
