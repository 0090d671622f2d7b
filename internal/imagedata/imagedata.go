// Package imagedata converts between data URIs and decoded image metadata.
package imagedata

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"regexp"
	"strings"

	_ "golang.org/x/image/webp"
)

// Image is an encoded image held in memory.
type Image struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// ErrEmpty is returned when no image bytes are present.
var ErrEmpty = errors.New("image data is empty")

var dataURIPattern = regexp.MustCompile(`^data:([^;,]+)(;[^,]*)?,`)

// DecodeDataURI parses a base64 data URI. A bare base64 payload is accepted
// and its type is sniffed. The result must decode as a supported image.
func DecodeDataURI(raw string) (Image, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Image{}, ErrEmpty
	}

	declared := ""
	payload := raw
	if m := dataURIPattern.FindStringSubmatch(raw); m != nil {
		if !strings.Contains(m[2], "base64") {
			return Image{}, fmt.Errorf("data uri must be base64 encoded")
		}
		declared = strings.ToLower(m[1])
		payload = raw[len(m[0]):]
	} else if strings.HasPrefix(raw, "data:") {
		return Image{}, fmt.Errorf("malformed data uri")
	}

	data, err := decodeBase64(payload)
	if err != nil {
		return Image{}, fmt.Errorf("decode base64: %w", err)
	}
	return FromBytes(data, declared)
}

// FromBytes validates data as an image and fills in its metadata. The
// declared MIME type is used only when sniffing is inconclusive.
func FromBytes(data []byte, declared string) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrEmpty
	}
	cfg, kind, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("unsupported image: %w", err)
	}
	mime := "image/" + kind
	if kind == "" {
		mime = firstNonEmpty(declared, http.DetectContentType(data))
	}
	return Image{Data: data, MIMEType: mime, Width: cfg.Width, Height: cfg.Height}, nil
}

// DataURI renders img as a base64 data URI.
func (img Image) DataURI() string {
	mime := img.MIMEType
	if mime == "" {
		mime = http.DetectContentType(img.Data)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Decode returns the decoded pixels.
func (img Image) Decode() (image.Image, error) {
	if len(img.Data) == 0 {
		return nil, ErrEmpty
	}
	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", img.MIMEType, err)
	}
	return decoded, nil
}

// Size returns "WxH".
func (img Image) Size() string {
	return fmt.Sprintf("%dx%d", img.Width, img.Height)
}

func decodeBase64(payload string) ([]byte, error) {
	payload = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, payload)
	if data, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return data, nil
	}
	if data, err := base64.RawStdEncoding.DecodeString(payload); err == nil {
		return data, nil
	}
	return base64.URLEncoding.DecodeString(payload)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
