// Package palette picks a dominant color from an image so a CTA color can be
// suggested that stands out against it.
package palette

import (
	"errors"
	"fmt"
	"sort"

	"github.com/disintegration/imaging"

	"adspack/internal/imagedata"
)

const (
	sampleSize = 50
	quantum    = 24
	lightLuma  = 150

	darkCTA  = "#111111"
	lightCTA = "#FFFFFF"
)

// ErrNoDominantColor is returned when every sampled pixel is transparent,
// near white or near black.
var ErrNoDominantColor = errors.New("palette: no dominant color")

// RGB is an 8-bit color.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Hex renders c as "#rrggbb".
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Luma is the Rec. 601 weighted brightness in [0, 255].
func (c RGB) Luma() float64 {
	return float64(c.R)*0.299 + float64(c.G)*0.587 + float64(c.B)*0.114
}

// Result describes the dominant color of an image.
type Result struct {
	Hex          string `json:"hex"`
	RGB          RGB    `json:"rgb"`
	IsLight      bool   `json:"is_light"`
	SuggestedCTA string `json:"suggested_cta_color"`
}

type bucket struct {
	count   int
	r, g, b float64
}

// Dominant samples img at 50x50, groups pixels into coarse buckets and picks
// the bucket with the best mix of frequency and saturation.
func Dominant(img imagedata.Image) (Result, error) {
	src, err := img.Decode()
	if err != nil {
		return Result{}, err
	}
	sample := imaging.Resize(src, sampleSize, sampleSize, imaging.Box)

	buckets := map[[3]int]*bucket{}
	pix := sample.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		r, g, b, a := pix[i], pix[i+1], pix[i+2], pix[i+3]
		if a < 128 {
			continue
		}
		brightness := (int(r) + int(g) + int(b)) / 3
		if brightness > 240 || brightness < 15 {
			continue
		}
		key := [3]int{quantize(r), quantize(g), quantize(b)}
		bk, ok := buckets[key]
		if !ok {
			bk = &bucket{}
			buckets[key] = bk
		}
		// running mean of the real colors in the bucket
		bk.count++
		n := float64(bk.count)
		bk.r += (float64(r) - bk.r) / n
		bk.g += (float64(g) - bk.g) / n
		bk.b += (float64(b) - bk.b) / n
	}
	if len(buckets) == 0 {
		return Result{}, ErrNoDominantColor
	}

	keys := make([][3]int, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[2] < b[2]
	})

	var best RGB
	bestScore := -1.0
	for _, k := range keys {
		bk := buckets[k]
		c := RGB{R: round8(bk.r), G: round8(bk.g), B: round8(bk.b)}
		score := float64(bk.count) * (0.5 + saturation(c)*0.5)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}

	light := best.Luma() > lightLuma
	res := Result{Hex: best.Hex(), RGB: best, IsLight: light, SuggestedCTA: lightCTA}
	if light {
		res.SuggestedCTA = darkCTA
	}
	return res, nil
}

func quantize(v uint8) int {
	return int(float64(v)/quantum+0.5) * quantum
}

func saturation(c RGB) float64 {
	max := c.R
	min := c.R
	for _, v := range []uint8{c.G, c.B} {
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	if max == 0 {
		return 0
	}
	return float64(max-min) / float64(max)
}

func round8(v float64) uint8 {
	v += 0.5
	if v >= 255 {
		return 255
	}
	if v <= 0 {
		return 0
	}
	return uint8(v)
}
