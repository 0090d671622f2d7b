package prompt

import "strings"

const (
	StyleFrame        = "frame"
	StyleGradient     = "gradient"
	StyleBadge        = "badge"
	StyleGlow         = "glow"
	StyleShadowBanner = "shadow_banner"
)

var styles = map[string][]string{
	StyleFrame: {
		"Add a thin, elegant border frame around the whole image with an even inner margin.",
		"Frame color harmonizes with the dominant colors of the image.",
		"The frame must not overlap the main subject.",
	},
	StyleGradient: {
		"Apply a subtle gradient overlay that darkens toward the bottom edge.",
		"Keep the top half and the main subject clearly visible.",
		"The gradient improves contrast for any text or button placed at the bottom.",
	},
	StyleBadge: {
		"Add a small circular promotional badge in the top-right corner.",
		"Badge uses a vivid accent color with a clean outline and no text.",
		"Keep the badge clear of the main subject and of platform UI zones.",
	},
	StyleGlow: {
		"Add a soft luminous glow behind the main subject to separate it from the background.",
		"Glow color follows the image palette; keep it diffuse and premium.",
		"Do not alter the subject itself.",
	},
	StyleShadowBanner: {
		"Add a semi-transparent dark banner across the bottom of the image with a soft drop shadow.",
		"Banner height is roughly one sixth of the canvas and spans the full width.",
		"The banner must not cover the main subject.",
	},
}

// Styles lists the recognized style ids in a stable order.
func Styles() []string {
	return []string{StyleFrame, StyleGradient, StyleBadge, StyleGlow, StyleShadowBanner}
}

// LookupStyle normalizes raw ("Shadow-Banner" → "shadow_banner") and reports
// whether it names a known style. Unknown ids are not an error.
func LookupStyle(raw string) (string, bool) {
	id := strings.ToLower(strings.TrimSpace(raw))
	id = strings.NewReplacer("-", "_", " ", "_").Replace(id)
	if id == "" || id == "none" {
		return "", false
	}
	if _, ok := styles[id]; !ok {
		return "", false
	}
	return id, true
}
