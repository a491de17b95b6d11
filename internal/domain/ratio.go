package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// AspectRatio is a named output ratio with the pixel dimensions the image
// models render it at.
type AspectRatio struct {
	Ratio       string `json:"ratio"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Description string `json:"description,omitempty"`
}

// Supported ratios. These match the values accepted by the Gemini image
// models' ImageConfig.AspectRatio field.
var (
	RatioSquare        = AspectRatio{Ratio: "1:1", Width: 1024, Height: 1024, Description: "square"}
	RatioPortrait      = AspectRatio{Ratio: "3:4", Width: 864, Height: 1184, Description: "portrait"}
	RatioLandscape     = AspectRatio{Ratio: "4:3", Width: 1184, Height: 864, Description: "landscape"}
	RatioPhotoPortrait = AspectRatio{Ratio: "2:3", Width: 832, Height: 1248, Description: "photo portrait"}
	RatioPhoto         = AspectRatio{Ratio: "3:2", Width: 1248, Height: 832, Description: "photo landscape"}
	RatioTall          = AspectRatio{Ratio: "9:16", Width: 768, Height: 1344, Description: "tall"}
	RatioWidescreen    = AspectRatio{Ratio: "16:9", Width: 1344, Height: 768, Description: "widescreen"}
	RatioPanoramic     = AspectRatio{Ratio: "21:9", Width: 1536, Height: 672, Description: "panoramic"}
)

var knownRatios = []AspectRatio{
	RatioSquare, RatioPortrait, RatioLandscape, RatioPhotoPortrait,
	RatioPhoto, RatioTall, RatioWidescreen, RatioPanoramic,
}

// KnownRatios returns the supported ratios in a stable order.
func KnownRatios() []AspectRatio {
	out := make([]AspectRatio, len(knownRatios))
	copy(out, knownRatios)
	return out
}

// ParseAspectRatio resolves "W:H" to one of the supported ratios.
func ParseAspectRatio(s string) (AspectRatio, error) {
	s = strings.TrimSpace(s)
	for _, r := range knownRatios {
		if r.Ratio == s {
			return r, nil
		}
	}
	return AspectRatio{}, fmt.Errorf("unsupported aspect ratio %q", s)
}

// IsZero reports whether the ratio is unset.
func (r AspectRatio) IsZero() bool {
	return r.Ratio == ""
}

// Value returns width divided by height, derived from the "W:H" label so it
// does not depend on rounding in the pixel dimensions.
func (r AspectRatio) Value() float64 {
	parts := strings.SplitN(r.Ratio, ":", 2)
	if len(parts) == 2 {
		w, errW := strconv.ParseFloat(parts[0], 64)
		h, errH := strconv.ParseFloat(parts[1], 64)
		if errW == nil && errH == nil && h > 0 {
			return w / h
		}
	}
	if r.Height == 0 {
		return 0
	}
	return float64(r.Width) / float64(r.Height)
}

// IsWide reports whether the ratio is wider than it is tall.
func (r AspectRatio) IsWide() bool {
	return r.Value() > 1
}

// IsPortrait reports whether the ratio is taller than it is wide.
func (r AspectRatio) IsPortrait() bool {
	v := r.Value()
	return v > 0 && v < 1
}

func (r AspectRatio) String() string {
	return r.Ratio
}
