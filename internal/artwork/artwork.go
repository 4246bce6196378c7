// Package artwork turns a user supplied artwork reference (data URI, direct
// image link or a web page showing the artwork) into image bytes.
package artwork

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dripdrop/musicjobs/internal/logging"
)

const (
	firefoxUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	maxBodyBytes     = 20 << 20

	jpegBase64Prefix = "/9j"
	pngBase64Prefix  = "iVBORw0KGgo"
)

// ErrUnresolvable is returned when no artwork image can be found for a URL.
var ErrUnresolvable = errors.New("cannot resolve artwork")

var imageSuffixes = []string{".jpg", ".ico", ".png", ".jpeg"}

// Artwork is a fetched or decoded image.
type Artwork struct {
	Data     []byte
	MimeType string
}

// Extension returns the file extension for the image without a dot,
// preferring the declared mime type over content sniffing.
func (a *Artwork) Extension() string {
	if _, sub, ok := strings.Cut(a.MimeType, "/"); ok && sub != "" {
		sub, _, _ = strings.Cut(sub, ";")
		return strings.TrimSpace(sub)
	}
	return strings.TrimPrefix(mimetype.Detect(a.Data).Extension(), ".")
}

type Resolver struct {
	http   *http.Client
	logger *slog.Logger
}

func NewResolver(client *http.Client, logger *slog.Logger) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{http: client, logger: logging.Or(logger).With(logging.FieldComponent, "artwork")}
}

// Resolve returns the image behind spec, or nil when there is none. It never
// fails; problems are logged.
func (r *Resolver) Resolve(ctx context.Context, spec string) *Artwork {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}

	if art, ok := DecodeDataURI(spec); ok {
		return art
	}

	imageURL, art, err := r.resolve(ctx, spec, true)
	if err != nil {
		r.logger.Debug("artwork not resolved", "artwork_url", spec, "error", err)
		return nil
	}
	if art != nil {
		return art
	}

	art, err = r.fetchImage(ctx, imageURL)
	if err != nil {
		r.logger.Warn("artwork fetch failed", "artwork_url", imageURL, "error", err)
		return nil
	}
	return art
}

// ResolveURL returns spec itself when it serves an image, otherwise the first
// artwork link found on the page it serves.
func (r *Resolver) ResolveURL(ctx context.Context, spec string) (string, error) {
	imageURL, _, err := r.resolve(ctx, spec, false)
	return imageURL, err
}

// resolve fetches spec once. When spec serves an image and keepImage is set,
// the image from that response is returned alongside the URL.
func (r *Resolver) resolve(ctx context.Context, spec string, keepImage bool) (string, *Artwork, error) {
	resp, err := r.get(ctx, spec)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", nil, fmt.Errorf("%w: status %d", ErrUnresolvable, resp.StatusCode)
	}
	if isImage(resp) {
		if !keepImage {
			return spec, nil, nil
		}
		art, err := readImage(resp)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrUnresolvable, err)
		}
		return spec, art, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}

	for _, link := range imageLinks(string(body), resp.Request.URL) {
		if strings.Contains(link, "artworks") && strings.Contains(link, "500x500") {
			return link, nil, nil
		}
	}
	return "", nil, ErrUnresolvable
}

func (r *Resolver) fetchImage(ctx context.Context, imageURL string) (*Artwork, error) {
	resp, err := r.get(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if !isImage(resp) {
		return nil, fmt.Errorf("not an image: %q", resp.Header.Get("Content-Type"))
	}
	return readImage(resp)
}

func readImage(resp *http.Response) (*Artwork, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return &Artwork{Data: data, MimeType: mediaType}, nil
}

func (r *Resolver) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", firefoxUserAgent)
	return r.http.Do(req)
}

func isImage(resp *http.Response) bool {
	major, _, _ := strings.Cut(resp.Header.Get("Content-Type"), "/")
	return strings.EqualFold(strings.TrimSpace(major), "image")
}

// imageLinks scans a page body for quoted image links, resolving relative
// ones against base. Order of first appearance is kept.
func imageLinks(body string, base *url.URL) []string {
	seen := make(map[string]struct{})
	var links []string
	for _, element := range strings.Split(body, `"`) {
		if !hasImageSuffix(element) {
			continue
		}
		ref, err := url.Parse(strings.ReplaceAll(element, `\`, ""))
		if err != nil {
			continue
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		if (ref.Scheme != "http" && ref.Scheme != "https") || ref.Host == "" {
			continue
		}
		link := ref.String()
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}
	return links
}

func hasImageSuffix(s string) bool {
	for _, suffix := range imageSuffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

// DecodeDataURI decodes "data:image/<ext>;base64,<payload>" or a bare JPEG or
// PNG base64 payload. ok is false when spec is neither.
func DecodeDataURI(spec string) (*Artwork, bool) {
	var mimeType, payload string
	switch {
	case strings.HasPrefix(spec, "data:"):
		header, data, found := strings.Cut(strings.TrimPrefix(spec, "data:"), ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return nil, false
		}
		mimeType = strings.TrimSuffix(header, ";base64")
		if !strings.HasPrefix(mimeType, "image/") {
			return nil, false
		}
		payload = data
	case strings.HasPrefix(spec, jpegBase64Prefix):
		mimeType, payload = "image/jpeg", spec
	case strings.HasPrefix(spec, pngBase64Prefix):
		mimeType, payload = "image/png", spec
	default:
		return nil, false
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, false
	}
	return &Artwork{Data: data, MimeType: mimeType}, true
}

// SniffMimeType guesses an image mime type from a base64 payload prefix.
func SniffMimeType(b64 string) string {
	switch {
	case strings.HasPrefix(b64, jpegBase64Prefix):
		return "image/jpg"
	case strings.HasPrefix(b64, pngBase64Prefix):
		return "image/png"
	default:
		return ""
	}
}
