package domain

import "fmt"

// Quality is the requested render quality. Ordering matters: the parameter
// optimizer only ever moves quality upwards.
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityHigh     Quality = "high"
	QualityUltra    Quality = "ultra"
)

// Rank orders qualities; unset sorts lowest.
func (q Quality) Rank() int {
	switch q {
	case QualityStandard:
		return 1
	case QualityHigh:
		return 2
	case QualityUltra:
		return 3
	default:
		return 0
	}
}

// ImageSize maps the quality onto the Gemini ImageConfig.ImageSize values.
func (q Quality) ImageSize() string {
	switch q {
	case QualityHigh:
		return "2K"
	case QualityUltra:
		return "4K"
	default:
		return "1K"
	}
}

// ParseQuality validates a quality name. The empty string is accepted as unset.
func ParseQuality(s string) (Quality, error) {
	switch q := Quality(s); q {
	case "", QualityStandard, QualityHigh, QualityUltra:
		return q, nil
	default:
		return "", fmt.Errorf("unsupported quality %q", s)
	}
}

// Style is the rendering style hint sent with the prompt.
type Style string

const (
	StyleNatural      Style = "natural"
	StyleVivid        Style = "vivid"
	StyleEnhanced     Style = "enhanced"
	StyleArtistic     Style = "artistic"
	StylePhotographic Style = "photographic"
	StyleCinematic    Style = "cinematic"
)

// ParseStyle validates a style name. The empty string is accepted as unset.
func ParseStyle(s string) (Style, error) {
	switch st := Style(s); st {
	case "", StyleNatural, StyleVivid, StyleEnhanced, StyleArtistic, StylePhotographic, StyleCinematic:
		return st, nil
	default:
		return "", fmt.Errorf("unsupported style %q", s)
	}
}

// ImageData is an inline image handed to the generation client.
type ImageData struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mimeType"`
}

// ImageParameters are the caller-facing generation parameters. Zero values
// mean "not supplied" so the optimizer can tell caller intent from defaults.
type ImageParameters struct {
	AspectRatio                  *AspectRatio `json:"aspectRatio,omitempty"`
	Quality                      Quality      `json:"quality,omitempty"`
	Style                        Style        `json:"style,omitempty"`
	MaintainCharacterConsistency bool         `json:"maintainCharacterConsistency,omitempty"`
	UseWorldKnowledge            bool         `json:"useWorldKnowledge,omitempty"`
	InputImage                   *ImageData   `json:"inputImage,omitempty"`
	BlendImages                  []ImageData  `json:"blendImages,omitempty"`
}

// Clone returns a copy that shares no mutable state with p.
func (p ImageParameters) Clone() ImageParameters {
	out := p
	if p.AspectRatio != nil {
		r := *p.AspectRatio
		out.AspectRatio = &r
	}
	if p.InputImage != nil {
		img := *p.InputImage
		out.InputImage = &img
	}
	if p.BlendImages != nil {
		out.BlendImages = append([]ImageData(nil), p.BlendImages...)
	}
	return out
}

// RatioOr returns the configured ratio, or fallback when none was supplied.
func (p ImageParameters) RatioOr(fallback AspectRatio) AspectRatio {
	if p.AspectRatio == nil || p.AspectRatio.IsZero() {
		return fallback
	}
	return *p.AspectRatio
}
