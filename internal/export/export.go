// Package export turns generated images into downloadable files and archives.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	"adspack/internal/domain"
	"adspack/internal/format"
	"adspack/internal/imagedata"
	"adspack/internal/infra"
	"adspack/pkg/zip"
)

// Container is a target image container.
type Container string

const (
	PNG  Container = "png"
	JPEG Container = "jpeg"
	WebP Container = "webp"
)

// ArchiveName is the filename of a multi-format download.
const ArchiveName = "ads-image-pack.zip"

// ErrUnknownContainer is returned for containers outside PNG, JPEG and WebP.
var ErrUnknownContainer = fmt.Errorf("%w: unknown container", domain.ErrInvalidRequest)

// ErrNothingToExport is returned by All when no image survived re-encoding.
var ErrNothingToExport = errors.New("no image could be exported")

// ParseContainer resolves a query value. Empty means PNG.
func ParseContainer(raw string) (Container, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "png":
		return PNG, nil
	case "jpeg", "jpg":
		return JPEG, nil
	case "webp":
		return WebP, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownContainer, raw)
}

// Extension is the file extension without the dot.
func (c Container) Extension() string {
	if c == JPEG {
		return "jpg"
	}
	return string(c)
}

func (c Container) MIMEType() string {
	return "image/" + string(c)
}

// HasAlpha reports whether the container can carry transparency.
func (c Container) HasAlpha() bool {
	return c != JPEG
}

// Filename is the deterministic download name for one format.
func Filename(key format.Key, c Container) string {
	return "ads-image-" + key.Slug() + "." + c.Extension()
}

// Blob is a downloadable payload.
type Blob struct {
	Filename string
	MIMEType string
	Data     []byte
}

// Omission records an image left out of an archive.
type Omission struct {
	Format format.Key
	Err    error
}

// Archive is the result of exporting several formats.
type Archive struct {
	Blob
	Included []format.Key
	Omitted  []Omission
}

// Options tune encoding.
type Options struct {
	JPEGQuality int
	WebPQuality float32
	Logger      infra.Logger
	// OnEncode observes every re-encode attempt.
	OnEncode func(c Container, err error)
}

// Assembler re-encodes and packages images.
type Assembler struct {
	jpegQuality int
	webpQuality float32
	logger      infra.Logger
	onEncode    func(Container, error)
}

func NewAssembler(opts Options) *Assembler {
	a := &Assembler{
		jpegQuality: opts.JPEGQuality,
		webpQuality: opts.WebPQuality,
		logger:      opts.Logger,
		onEncode:    opts.OnEncode,
	}
	if a.jpegQuality <= 0 || a.jpegQuality > 100 {
		a.jpegQuality = 92
	}
	if a.webpQuality <= 0 || a.webpQuality > 100 {
		a.webpQuality = 90
	}
	return a
}

// Single re-encodes one image into c.
func (a *Assembler) Single(key format.Key, img imagedata.Image, c Container) (Blob, error) {
	data, err := a.Encode(img, c)
	if err != nil {
		return Blob{}, err
	}
	return Blob{Filename: Filename(key, c), MIMEType: c.MIMEType(), Data: data}, nil
}

// All packages every requested format present in images. Keys missing from
// images are skipped and images that fail to re-encode are logged and
// omitted; neither fails the archive.
func (a *Assembler) All(images map[format.Key]imagedata.Image, requested []format.Key, c Container) (Archive, error) {
	out := Archive{}
	assets := make([]zip.Asset, 0, len(requested))
	seen := make(map[format.Key]struct{}, len(requested))
	for _, key := range requested {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		img, ok := images[key]
		if !ok {
			continue
		}
		data, err := a.Encode(img, c)
		if err != nil {
			a.logger.Warn().Err(err).Str("format", key.String()).Str("container", string(c)).Msg("export: re-encode failed, omitting image")
			out.Omitted = append(out.Omitted, Omission{Format: key, Err: err})
			continue
		}
		assets = append(assets, zip.Asset{Filename: Filename(key, c), MIME: c.MIMEType(), Data: data})
		out.Included = append(out.Included, key)
	}

	if len(assets) == 0 {
		return out, ErrNothingToExport
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		return Archive{}, fmt.Errorf("build archive: %w", err)
	}
	out.Blob = Blob{Filename: ArchiveName, MIMEType: "application/zip", Data: archive}
	return out, nil
}

// Encode converts img into c. Images already in c are returned as is.
func (a *Assembler) Encode(img imagedata.Image, c Container) (data []byte, err error) {
	defer func() {
		if a.onEncode != nil {
			a.onEncode(c, err)
		}
	}()

	switch c {
	case PNG, JPEG, WebP:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownContainer, string(c))
	}
	if len(img.Data) == 0 {
		return nil, imagedata.ErrEmpty
	}
	if strings.EqualFold(img.MIMEType, c.MIMEType()) {
		return img.Data, nil
	}

	src, err := img.Decode()
	if err != nil {
		return nil, err
	}
	if !c.HasAlpha() {
		src = Flatten(src, color.White)
	}

	var buf bytes.Buffer
	switch c {
	case PNG:
		err = imaging.Encode(&buf, src, imaging.PNG)
	case JPEG:
		err = imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(a.jpegQuality))
	case WebP:
		var opts *encoder.Options
		opts, err = encoder.NewLossyEncoderOptions(encoder.PresetDefault, a.webpQuality)
		if err == nil {
			err = webp.Encode(&buf, src, opts)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c, err)
	}
	if buf.Len() == 0 {
		return nil, errors.New("encoder produced no output")
	}
	return buf.Bytes(), nil
}

// Flatten composites src over a solid background so transparent pixels take
// the background color instead of black.
func Flatten(src image.Image, bg color.Color) *image.NRGBA {
	b := src.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), bg)
	return imaging.Overlay(canvas, src, image.Pt(0, 0), 1.0)
}
