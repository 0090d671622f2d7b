package jsoncfg

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"adspack/internal/format"
	"adspack/internal/prompt"
)

const (
	// DefaultMode is applied when the request omits the mode.
	DefaultMode = string(prompt.HighQuality)
	// MaxMasterPromptLength caps the description sent for master generation.
	MaxMasterPromptLength = 4000
)

// FormatsRequest is the body of POST /v1/formats.
type FormatsRequest struct {
	MasterImage     string   `json:"masterImage"`
	SelectedFormats []string `json:"selectedFormats"`
	Mode            string   `json:"mode"`
	CTA             string   `json:"cta"`
	CTAColor        string   `json:"ctaColor"`
	AdsStyle        string   `json:"adsStyle"`
}

// Normalize trims fields and applies defaults.
func (p *FormatsRequest) Normalize() {
	if p == nil {
		return
	}
	p.MasterImage = strings.TrimSpace(p.MasterImage)
	p.Mode = strings.ToLower(strings.TrimSpace(p.Mode))
	if p.Mode == "" {
		p.Mode = DefaultMode
	}
	p.CTA = strings.TrimSpace(p.CTA)
	p.CTAColor = strings.TrimSpace(p.CTAColor)
	p.AdsStyle = strings.TrimSpace(p.AdsStyle)
	formats := p.SelectedFormats[:0]
	for _, f := range p.SelectedFormats {
		if f = strings.TrimSpace(f); f != "" {
			formats = append(formats, f)
		}
	}
	p.SelectedFormats = formats
}

// Validate checks the request shape before any provider is involved. Unknown
// styles are not an error.
func (p FormatsRequest) Validate() error {
	if p.MasterImage == "" {
		return errors.New("masterImage is required")
	}
	if len(p.SelectedFormats) == 0 {
		return errors.New("selectedFormats must contain at least one format")
	}
	if _, err := format.ParseSet(p.SelectedFormats); err != nil {
		return fmt.Errorf("selectedFormats: %w", err)
	}
	if _, err := prompt.ParseQuality(p.Mode); err != nil {
		return fmt.Errorf("mode: %w", err)
	}
	return nil
}

// Formats returns the deduplicated format keys. Call after Validate.
func (p FormatsRequest) Formats() []format.Key {
	keys, _ := format.ParseSet(p.SelectedFormats)
	return keys
}

// Quality returns the parsed mode. Call after Validate.
func (p FormatsRequest) Quality() prompt.Quality {
	q, _ := prompt.ParseQuality(p.Mode)
	return q
}

// MasterRequest is the body of POST /v1/master.
type MasterRequest struct {
	Prompt string `json:"prompt"`
}

func (p *MasterRequest) Normalize() {
	if p != nil {
		p.Prompt = strings.TrimSpace(p.Prompt)
	}
}

func (p MasterRequest) Validate() error {
	if p.Prompt == "" {
		return errors.New("prompt is required")
	}
	if utf8.RuneCountInString(p.Prompt) > MaxMasterPromptLength {
		return fmt.Errorf("prompt must be at most %d characters", MaxMasterPromptLength)
	}
	return nil
}

// PaletteRequest is the body of POST /v1/palette.
type PaletteRequest struct {
	Image string `json:"image"`
}

func (p PaletteRequest) Validate() error {
	if strings.TrimSpace(p.Image) == "" {
		return errors.New("image is required")
	}
	return nil
}
