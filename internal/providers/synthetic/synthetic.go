// Package synthetic is an offline generator used in development and tests.
// It reframes locally: the source is fitted onto the target canvas over a
// blurred fill of itself.
package synthetic

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"

	"github.com/disintegration/imaging"

	"adspack/internal/imagedata"
	"adspack/internal/providers"
)

// ProviderName identifies this backend in logs and metrics.
const ProviderName = "synthetic"

// Generator implements providers.Generator without network access.
type Generator struct{}

func New() *Generator { return &Generator{} }

func (g *Generator) Name() string { return ProviderName }

func (g *Generator) Generate(ctx context.Context, req providers.Request) (imagedata.Image, error) {
	if err := ctx.Err(); err != nil {
		return imagedata.Image{}, err
	}
	src, err := req.Source.Decode()
	if err != nil {
		return imagedata.Image{}, &providers.Error{Provider: ProviderName, Kind: providers.KindTerminal, Err: err}
	}
	width, height := req.Target.Width, req.Target.Height
	if width <= 0 || height <= 0 {
		return imagedata.Image{}, &providers.Error{Provider: ProviderName, Kind: providers.KindTerminal, Err: fmt.Errorf("invalid target %dx%d", width, height)}
	}

	background := imaging.Blur(imaging.Fill(src, width, height, imaging.Center, imaging.Linear), 12)
	subject := imaging.Fit(src, width, height, imaging.Lanczos)
	canvas := imaging.PasteCenter(background, subject)

	return encodePNG(canvas)
}

// GenerateMaster renders a deterministic square placeholder for description.
func (g *Generator) GenerateMaster(ctx context.Context, description string) (imagedata.Image, error) {
	if err := ctx.Err(); err != nil {
		return imagedata.Image{}, err
	}
	seed := deterministicSeed(description)
	return encodePNG(renderStripes(1024, 1024, seed))
}

func encodePNG(img image.Image) (imagedata.Image, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return imagedata.Image{}, &providers.Error{Provider: ProviderName, Kind: providers.KindTerminal, Err: fmt.Errorf("encode png: %w", err)}
	}
	b := img.Bounds()
	return imagedata.Image{Data: buf.Bytes(), MIMEType: "image/png", Width: b.Dx(), Height: b.Dy()}, nil
}

func renderStripes(width, height int, seed string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := max(32, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, min(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < max(width, height); x += max(16, width/32) {
		for y := 0; y < height; y++ {
			xx := x + y
			if xx >= width {
				break
			}
			img.Set(xx, y, diagonal)
		}
	}
	return img
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if seed == "" {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: parseHexByte(segment[0:2]), G: parseHexByte(segment[2:4]), B: parseHexByte(segment[4:6]), A: 255}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(hasher, "%v|", part)
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

var _ providers.Generator = (*Generator)(nil)
