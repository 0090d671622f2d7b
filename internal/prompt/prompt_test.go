package prompt

import (
	"strings"
	"testing"

	"adspack/internal/format"
)

func TestBuildHighQuality(t *testing.T) {
	got := Build(format.Story, Options{Quality: HighQuality})

	checks := []string{
		"exactly 1080 x 1920 pixels",
		"9:16",
		"Keep the image exactly identical in composition",
		"Extend the background seamlessly",
		"Do not add new elements",
	}
	for _, expect := range checks {
		if !strings.Contains(got, expect) {
			t.Fatalf("instruction missing %q: %s", expect, got)
		}
	}
	if strings.Contains(got, "CALL TO ACTION") || strings.Contains(got, "STYLE:") {
		t.Fatalf("unexpected optional blocks: %s", got)
	}
}

func TestBuildFastIsShorter(t *testing.T) {
	fast := Build(format.Landscape, Options{Quality: Fast})
	hq := Build(format.Landscape, Options{Quality: HighQuality})
	if len(fast) >= len(hq) {
		t.Fatalf("fast instruction (%d) should be shorter than high-quality (%d)", len(fast), len(hq))
	}
	if !strings.Contains(fast, "1920x1080") {
		t.Fatalf("fast instruction missing dimensions: %s", fast)
	}
}

func TestBuildCTA(t *testing.T) {
	tests := []struct {
		name  string
		color string
		want  string
	}{
		{name: "explicit hex", color: "ff5500", want: "Button color: #FF5500"},
		{name: "named", color: " Royal  Blue ", want: "Button color: royal blue"},
		{name: "auto", color: "", want: "contrasts strongly with the surrounding background"},
		{name: "garbage falls back to auto", color: "url(javascript:1)", want: "contrasts strongly with the surrounding background"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Build(format.Square, Options{Quality: HighQuality, CTA: "Shop now", CTAColor: tt.color})
			for _, expect := range []string{"CALL TO ACTION", `"Shop now"`, "pill", "bottom third", "must not cover or obstruct the main subject", tt.want} {
				if !strings.Contains(got, expect) {
					t.Fatalf("instruction missing %q: %s", expect, got)
				}
			}
		})
	}
}

func TestBuildStyle(t *testing.T) {
	got := Build(format.Portrait, Options{Quality: Fast, Style: "Shadow-Banner"})
	if !strings.Contains(got, "STYLE: SHADOW BANNER") {
		t.Fatalf("expected shadow banner block: %s", got)
	}
}

func TestBuildUnknownStyleIgnored(t *testing.T) {
	plain := Build(format.Portrait, Options{Quality: HighQuality})
	got := Build(format.Portrait, Options{Quality: HighQuality, Style: "neon-noir"})
	if got != plain {
		t.Fatalf("unknown style changed the instruction:\n%s\nvs\n%s", got, plain)
	}
}

func TestBuildDeterministic(t *testing.T) {
	opts := Options{Quality: HighQuality, CTA: "Buy", CTAColor: "#fff", Style: StyleGlow}
	if Build(format.Square, opts) != Build(format.Square, opts) {
		t.Fatalf("Build is not deterministic")
	}
}

func TestNormalizeCTA(t *testing.T) {
	if got := NormalizeCTA("  Café \n now\t"); got != "Café now" {
		t.Fatalf("NormalizeCTA = %q", got)
	}
	long := strings.Repeat("a", MaxCTALength+10)
	if got := NormalizeCTA(long); len([]rune(got)) != MaxCTALength {
		t.Fatalf("expected truncation to %d runes, got %d", MaxCTALength, len([]rune(got)))
	}
	if NormalizeCTA(" \n ") != "" {
		t.Fatalf("blank CTA should normalize to empty")
	}
}

func TestParseQuality(t *testing.T) {
	tests := map[string]Quality{"": HighQuality, "high-quality": HighQuality, "FAST": Fast}
	for raw, want := range tests {
		got, err := ParseQuality(raw)
		if err != nil || got != want {
			t.Fatalf("ParseQuality(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseQuality("ultra"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
