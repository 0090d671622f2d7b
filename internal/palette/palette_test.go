package palette

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"adspack/internal/imagedata"
)

func solidPNG(t *testing.T, fill func(x, y int) color.NRGBA) imagedata.Image {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.SetNRGBA(x, y, fill(x, y))
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return imagedata.Image{Data: buf.Bytes(), MIMEType: "image/png", Width: 100, Height: 100}
}

func TestDominantPicksMajorityColor(t *testing.T) {
	img := solidPNG(t, func(x, y int) color.NRGBA {
		if x < 70 {
			return color.NRGBA{R: 30, G: 60, B: 200, A: 255}
		}
		return color.NRGBA{R: 220, G: 200, B: 40, A: 255}
	})

	res, err := Dominant(img)
	if err != nil {
		t.Fatalf("Dominant: %v", err)
	}
	if res.Hex != "#1e3cc8" {
		t.Fatalf("expected blue, got %s", res.Hex)
	}
	if res.IsLight || res.SuggestedCTA != lightCTA {
		t.Fatalf("blue should be dark with a light CTA, got %+v", res)
	}
}

func TestDominantLightBackground(t *testing.T) {
	img := solidPNG(t, func(int, int) color.NRGBA { return color.NRGBA{R: 250, G: 220, B: 120, A: 255} })

	res, err := Dominant(img)
	if err != nil {
		t.Fatalf("Dominant: %v", err)
	}
	if !res.IsLight || res.SuggestedCTA != darkCTA {
		t.Fatalf("expected light result, got %+v", res)
	}
}

func TestDominantIgnoresWhiteBlackAndTransparent(t *testing.T) {
	img := solidPNG(t, func(x, y int) color.NRGBA {
		switch {
		case x < 34:
			return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		case x < 66:
			return color.NRGBA{A: 255}
		default:
			return color.NRGBA{R: 200, A: 10}
		}
	})

	if _, err := Dominant(img); !errors.Is(err, ErrNoDominantColor) {
		t.Fatalf("expected ErrNoDominantColor, got %v", err)
	}
}

func TestQuantize(t *testing.T) {
	tests := map[uint8]int{0: 0, 11: 0, 12: 24, 36: 48, 255: 264}
	for in, want := range tests {
		if got := quantize(in); got != want {
			t.Fatalf("quantize(%d) = %d, want %d", in, got, want)
		}
	}
}
