// Package format holds the fixed catalog of advertising aspect ratios.
package format

import (
	"fmt"
	"strings"
)

// Key identifies one supported output aspect ratio.
type Key string

const (
	Square    Key = "1:1"
	Portrait  Key = "4:5"
	Story     Key = "9:16"
	Landscape Key = "16:9"
)

// Zone is a band of the canvas that platform UI commonly covers. Values are
// fractions of the canvas width/height measured from the top-left corner.
type Zone struct {
	Label  string  `json:"label"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Spec describes a format: the pixel size the ad is delivered at, the canvas
// requested from providers that only accept fixed sizes, and the wording used
// in prompts.
type Spec struct {
	Key          Key    `json:"key"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Aspect       string `json:"aspect"`
	Orientation  string `json:"orientation"`
	ProviderSize string `json:"provider_size"`
	Usage        string `json:"usage"`
	SafeZones    []Zone `json:"safe_zones"`
}

// Dimensions returns the "WxH" label of the delivery size.
func (s Spec) Dimensions() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Slug returns the key with the colon replaced, safe for file names.
func (k Key) Slug() string {
	return strings.ReplaceAll(string(k), ":", "x")
}

func (k Key) String() string { return string(k) }

var order = []Key{Square, Portrait, Story, Landscape}

var catalog = map[Key]Spec{
	Square: {
		Key:          Square,
		Width:        1080,
		Height:       1080,
		Aspect:       "square 1:1 aspect ratio",
		Orientation:  "square",
		ProviderSize: "1024x1024",
		Usage:        "Instagram Post, Facebook",
		SafeZones: []Zone{
			{Label: "top", Top: 0, Width: 1, Height: 0.08},
			{Label: "bottom", Top: 0.92, Width: 1, Height: 0.08},
		},
	},
	Portrait: {
		Key:          Portrait,
		Width:        1080,
		Height:       1350,
		Aspect:       "vertical 4:5 aspect ratio",
		Orientation:  "portrait",
		ProviderSize: "1024x1024",
		Usage:        "Instagram Feed",
		SafeZones: []Zone{
			{Label: "top", Top: 0, Width: 1, Height: 0.06},
			{Label: "caption", Top: 0.90, Width: 1, Height: 0.10},
		},
	},
	Story: {
		Key:          Story,
		Width:        1080,
		Height:       1920,
		Aspect:       "vertical 9:16 aspect ratio",
		Orientation:  "portrait",
		ProviderSize: "1024x1536",
		Usage:        "Stories, Reels, TikTok",
		SafeZones: []Zone{
			{Label: "top", Top: 0, Width: 1, Height: 0.12},
			{Label: "bottom", Top: 0.82, Width: 1, Height: 0.18},
			{Label: "actions", Left: 0.88, Top: 0.15, Width: 0.12, Height: 0.35},
		},
	},
	Landscape: {
		Key:          Landscape,
		Width:        1920,
		Height:       1080,
		Aspect:       "horizontal 16:9 aspect ratio",
		Orientation:  "landscape",
		ProviderSize: "1536x1024",
		Usage:        "YouTube, LinkedIn, Twitter",
		SafeZones: []Zone{
			{Label: "top", Top: 0, Width: 1, Height: 0.05},
			{Label: "timestamp", Left: 0.85, Top: 0.88, Width: 0.15, Height: 0.12},
		},
	},
}

// Lookup returns the spec for k. Keys must be validated with Parse first;
// an unknown key panics.
func Lookup(k Key) Spec {
	spec, ok := catalog[k]
	if !ok {
		panic(fmt.Sprintf("format: unknown key %q", string(k)))
	}
	spec.SafeZones = append([]Zone(nil), spec.SafeZones...)
	return spec
}

// All returns every spec in catalog order.
func All() []Spec {
	out := make([]Spec, 0, len(order))
	for _, k := range order {
		out = append(out, Lookup(k))
	}
	return out
}

// Keys returns every key in catalog order.
func Keys() []Key {
	return append([]Key(nil), order...)
}

// Parse validates raw as a format key. Surrounding whitespace is ignored.
func Parse(raw string) (Key, error) {
	k := Key(strings.TrimSpace(raw))
	if _, ok := catalog[k]; !ok {
		return "", fmt.Errorf("%q is not a known format", raw)
	}
	return k, nil
}

// ParseSlug accepts either a key ("9:16") or its slug ("9x16").
func ParseSlug(raw string) (Key, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.Contains(trimmed, ":") {
		trimmed = strings.Replace(trimmed, "x", ":", 1)
	}
	k, err := Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%q is not a known format", raw)
	}
	return k, nil
}

// ParseSet validates raw keys and collapses duplicates, keeping first-seen
// order.
func ParseSet(raw []string) ([]Key, error) {
	seen := make(map[Key]struct{}, len(raw))
	out := make([]Key, 0, len(raw))
	for _, r := range raw {
		k, err := Parse(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out, nil
}
