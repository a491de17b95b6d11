package aspect

import (
	"fmt"
	"strings"
)

// Strategy selects how ratios are resolved across a batch. The set of
// implementations is closed: Adaptive, Uniform, ContentDriven, LastImage.
type Strategy interface {
	Name() string
	isStrategy()
}

// Adaptive analyses every prompt independently.
type Adaptive struct{}

// Uniform applies one ratio derived from the batch-wide plurality analysis.
type Uniform struct{}

// ContentDriven is Adaptive with confidence boosted by prompt length and
// specificity.
type ContentDriven struct{}

// LastImage propagates the last explicit ratio in the batch to every item.
type LastImage struct{}

func (Adaptive) Name() string      { return "ADAPTIVE" }
func (Uniform) Name() string       { return "UNIFORM" }
func (ContentDriven) Name() string { return "CONTENT_DRIVEN" }
func (LastImage) Name() string     { return "LAST_IMAGE" }

func (Adaptive) isStrategy()      {}
func (Uniform) isStrategy()       {}
func (ContentDriven) isStrategy() {}
func (LastImage) isStrategy()     {}

// PinsRatio reports whether s resolves one batch-wide ratio that later
// stages must not change.
func PinsRatio(s Strategy) bool {
	switch s.(type) {
	case Uniform, LastImage:
		return true
	default:
		return false
	}
}

// ParseStrategy resolves a strategy name. Matching ignores case and accepts
// "-" in place of "_". The empty string selects Adaptive.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(name)), "-", "_") {
	case "", "ADAPTIVE":
		return Adaptive{}, nil
	case "UNIFORM":
		return Uniform{}, nil
	case "CONTENT_DRIVEN":
		return ContentDriven{}, nil
	case "LAST_IMAGE":
		return LastImage{}, nil
	default:
		return nil, fmt.Errorf("unknown aspect ratio strategy %q", name)
	}
}
