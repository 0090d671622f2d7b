// Package prompt builds the provider instructions for each ad format.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"adspack/internal/format"
)

// Quality selects how strict the instruction is and which model serves it.
type Quality string

const (
	HighQuality Quality = "high-quality"
	Fast        Quality = "fast"
)

// MaxCTALength caps the overlay text in runes.
const MaxCTALength = 60

// ParseQuality maps the wire value to a Quality. Empty selects HighQuality.
func ParseQuality(raw string) (Quality, error) {
	switch Quality(strings.ToLower(strings.TrimSpace(raw))) {
	case "", HighQuality:
		return HighQuality, nil
	case Fast:
		return Fast, nil
	}
	return "", fmt.Errorf("unsupported mode %q", raw)
}

// Options are the per-request knobs that shape an instruction.
type Options struct {
	Quality  Quality
	CTA      string
	CTAColor string
	Style    string
}

// Build returns the instruction for key. It is deterministic for equal input.
func Build(key format.Key, opts Options) string {
	spec := format.Lookup(key)

	var b strings.Builder
	if opts.Quality == Fast {
		writeFast(&b, spec)
	} else {
		writeHighQuality(&b, spec)
	}

	if cta := NormalizeCTA(opts.CTA); cta != "" {
		writeSection(&b, "CALL TO ACTION", ctaLines(cta, opts.CTAColor))
	}
	if id, ok := LookupStyle(opts.Style); ok {
		writeSection(&b, "STYLE: "+strings.ToUpper(styleTitle(id)), styles[id])
	}
	return strings.TrimSpace(b.String())
}

func writeHighQuality(b *strings.Builder, spec format.Spec) {
	fmt.Fprintf(b, "Adapt this image into a %s advertising format (%s, exactly %d x %d pixels) for %s.\n",
		spec.Orientation, spec.Aspect, spec.Width, spec.Height, spec.Usage)
	writeSection(b, "STRICT REQUIREMENTS", []string{
		fmt.Sprintf("Final canvas must be exactly %d x %d pixels (%s).", spec.Width, spec.Height, spec.Key),
		"Keep the image exactly identical in composition, subjects, colors, lighting and style.",
		"Do not modify, move, crop or distort the main subject.",
		"Extend the background seamlessly to fill the new canvas (outpainting only).",
		"Match textures, perspective and light direction in the extended areas.",
		"Do not add new elements, text, logos or people.",
	})
	writeSection(b, "QUALITY", []string{
		"Photorealistic, sharp, no visible seams, no blur, no artifacts.",
	})
}

func writeFast(b *strings.Builder, spec format.Spec) {
	fmt.Fprintf(b, "Reframe this image to %s (%dx%d). Keep the subject and colors unchanged and extend the background naturally. Do not add new elements.\n",
		spec.Aspect, spec.Width, spec.Height)
}

func ctaLines(text, color string) []string {
	lines := []string{
		fmt.Sprintf("Add a call-to-action button with the text %q.", text),
		"Shape: rounded pill button with generous padding and bold, legible sans-serif lettering.",
		"Placement: horizontally centered in the bottom third of the image.",
	}
	if c := NormalizeColor(color); c != "" {
		lines = append(lines, fmt.Sprintf("Button color: %s, with a text color that contrasts strongly with it.", c))
	} else {
		lines = append(lines, "Button color: choose automatically a color that contrasts strongly with the surrounding background.")
	}
	lines = append(lines,
		"Spell the text exactly as given.",
		"The button must not cover or obstruct the main subject.",
	)
	return lines
}

func writeSection(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(title)
	b.WriteString(":\n")
	for _, line := range lines {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
}

// NormalizeCTA returns the overlay text in NFC form with whitespace collapsed
// and control characters removed, truncated to MaxCTALength runes.
func NormalizeCTA(raw string) string {
	s := norm.NFC.String(raw)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	if runes := []rune(s); len(runes) > MaxCTALength {
		s = strings.TrimSpace(string(runes[:MaxCTALength]))
	}
	return s
}

var (
	hexColor  = regexp.MustCompile(`^#?([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
	namedWord = regexp.MustCompile(`^[a-zA-Z][a-zA-Z ]{1,23}$`)
)

// NormalizeColor accepts a hex code (with or without '#') or a short color
// name. Anything else, including "auto", returns "" which means
// auto-contrast.
func NormalizeColor(raw string) string {
	c := strings.TrimSpace(raw)
	switch {
	case c == "", strings.EqualFold(c, "auto"):
		return ""
	case hexColor.MatchString(c):
		return "#" + strings.ToUpper(strings.TrimPrefix(c, "#"))
	case namedWord.MatchString(c):
		return strings.ToLower(strings.Join(strings.Fields(c), " "))
	}
	return ""
}

var titleCaser = cases.Title(language.English)

func styleTitle(id string) string {
	return titleCaser.String(strings.ReplaceAll(id, "_", " "))
}
