// Package dataurl turns image data URLs (or plain URLs) into in-memory files.
package dataurl

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const scheme = "data:"

// Sentinel errors.
var (
	ErrInvalid = errors.New("invalid data url")
	ErrFetch   = errors.New("fetch failed")
)

// File is a named blob with a MIME type.
type File struct {
	Name string
	MIME string
	Data []byte
}

// Size returns the length of the file contents in bytes.
func (f File) Size() int64 { return int64(len(f.Data)) }

// IsDataURL reports whether s uses the data: scheme.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, scheme)
}

// Encode builds a base64 data URL.
func Encode(mime string, data []byte) string {
	return scheme + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Decode parses a data URL. When the header carries no MIME type the
// content is sniffed.
func Decode(s string) (File, error) {
	if !IsDataURL(s) {
		return File{}, fmt.Errorf("%w: missing %q scheme", ErrInvalid, scheme)
	}
	header, payload, ok := strings.Cut(s[len(scheme):], ",")
	if !ok {
		return File{}, fmt.Errorf("%w: missing ','", ErrInvalid)
	}

	params := strings.Split(header, ";")
	mime := params[0]
	isBase64 := false
	for _, p := range params[1:] {
		if p == "base64" {
			isBase64 = true
		}
	}

	var data []byte
	var err error
	if isBase64 {
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// some encoders drop the padding
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
	} else {
		var text string
		text, err = url.PathUnescape(payload)
		data = []byte(text)
	}
	if err != nil {
		return File{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if mime == "" {
		mime = mimetype.Detect(data).String()
	}
	return File{MIME: mime, Data: data}, nil
}

// ToFile converts src into a File called filename. Data URLs are decoded in
// place; any other URL is downloaded with client. mimeType is used when the
// source does not carry one.
func ToFile(ctx context.Context, client *http.Client, src, filename, mimeType string) (File, error) {
	if IsDataURL(src) {
		f, err := Decode(src)
		if err != nil {
			return File{}, err
		}
		f.Name = filename
		if f.MIME == "" {
			f.MIME = mimeType
		}
		return f, nil
	}

	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, http.NoBody)
	if err != nil {
		return File{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return File{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return File{}, fmt.Errorf("%w: %s returned %d", ErrFetch, src, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return File{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}
	return File{Name: filename, MIME: mimeType, Data: data}, nil
}
