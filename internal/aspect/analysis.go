// Package aspect resolves output aspect ratios for single images and batches.
//
// Content analysis is a pure text → classification function so the keyword
// tables can be replaced without touching the strategies that consume them.
package aspect

import (
	"errors"

	"github.com/fpang/gemini-image-orchestrator/internal/domain"
	"github.com/fpang/gemini-image-orchestrator/internal/keywords"
)

// Subject is the primary subject class of a prompt.
type Subject int

const (
	SubjectScene Subject = iota
	SubjectPortrait
	SubjectLandscape
	SubjectObject
	SubjectAbstract
)

func (s Subject) String() string {
	switch s {
	case SubjectPortrait:
		return "portrait"
	case SubjectLandscape:
		return "landscape"
	case SubjectObject:
		return "object"
	case SubjectAbstract:
		return "abstract"
	default:
		return "scene"
	}
}

// MarshalText lets Subject render as its name in JSON.
func (s Subject) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Composition is the dominant layout direction of a prompt.
type Composition int

const (
	CompositionHorizontal Composition = iota
	CompositionVertical
	CompositionSquare
	CompositionPanoramic
)

func (c Composition) String() string {
	switch c {
	case CompositionVertical:
		return "vertical"
	case CompositionSquare:
		return "square"
	case CompositionPanoramic:
		return "panoramic"
	default:
		return "horizontal"
	}
}

// MarshalText lets Composition render as its name in JSON.
func (c Composition) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Elements are independent content gates.
type Elements struct {
	HasPeople       bool `json:"hasPeople"`
	HasArchitecture bool `json:"hasArchitecture"`
	HasNature       bool `json:"hasNature"`
	HasAction       bool `json:"hasAction"`
	HasText         bool `json:"hasText"`
}

func (e Elements) count() int {
	n := 0
	for _, b := range []bool{e.HasPeople, e.HasArchitecture, e.HasNature, e.HasAction, e.HasText} {
		if b {
			n++
		}
	}
	return n
}

// ContentAnalysis is the classification of one prompt.
type ContentAnalysis struct {
	PrimarySubject      Subject     `json:"primarySubject"`
	Composition         Composition `json:"composition"`
	Elements            Elements    `json:"elements"`
	SubjectMatched      bool        `json:"subjectMatched"`
	CompositionExplicit bool        `json:"compositionExplicit"`
	Confidence          float64     `json:"confidence"`
}

// ErrEmptyPrompt is returned by AnalyzeContent for blank input.
var ErrEmptyPrompt = errors.New("prompt is empty")

type subjectSet struct {
	subject  Subject
	keywords []string
}

// Checked in order; the first set with a hit wins.
var subjectSets = []subjectSet{
	{SubjectPortrait, []string{"portrait", "headshot", "selfie", "face", "person", "woman", "man", "girl", "boy", "character", "child", "profile picture"}},
	{SubjectLandscape, []string{"landscape", "mountain", "valley", "ocean", "horizon", "desert", "forest", "countryside", "beach", "vista", "sunset over"}},
	{SubjectScene, []string{"scene", "street", "room", "interior", "market", "city", "battle", "crowd", "party", "cafe"}},
	{SubjectObject, []string{"product", "object", "bottle", "logo", "icon", "cup", "shoe", "watch", "still life", "gadget"}},
	{SubjectAbstract, []string{"abstract", "pattern", "texture", "fractal", "geometric", "surreal", "gradient"}},
}

var (
	verticalKeywords   = []string{"vertical", "portrait orientation", "tall", "full-body", "full body", "standing", "phone wallpaper", "poster"}
	horizontalKeywords = []string{"horizontal", "landscape orientation", "wide shot", "widescreen", "banner"}
	panoramicKeywords  = []string{"panoramic", "panorama", "ultra-wide", "ultra wide", "skyline", "cinemascope"}
	squareKeywords     = []string{"square", "centered", "symmetrical", "instagram post", "avatar", "album cover"}

	verticalActionKeywords   = []string{"climbing", "falling", "diving", "rising", "towering", "jumping", "waterfall"}
	horizontalActionKeywords = []string{"running", "racing", "driving", "chasing", "flying across", "marching", "sprinting"}

	peopleKeywords       = []string{"person", "people", "man", "woman", "child", "crowd", "character", "portrait", "face"}
	architectureKeywords = []string{"building", "architecture", "tower", "bridge", "castle", "skyscraper", "temple", "house"}
	natureKeywords       = []string{"tree", "forest", "mountain", "river", "ocean", "flower", "nature", "sky", "field"}
	actionKeywords       = []string{"running", "jumping", "flying", "fighting", "dancing", "racing", "action", "motion"}
	textKeywords         = []string{"text", "title", "caption", "sign", "typography", "lettering", "headline", "logo"}
)

// AnalyzeContent classifies a prompt. It fails only for blank input.
func AnalyzeContent(prompt string) (ContentAnalysis, error) {
	text := keywords.Normalize(prompt)
	if text.IsEmpty() {
		return ContentAnalysis{}, ErrEmptyPrompt
	}

	a := ContentAnalysis{PrimarySubject: SubjectScene}
	for _, set := range subjectSets {
		if text.Any(set.keywords) {
			a.PrimarySubject = set.subject
			a.SubjectMatched = true
			break
		}
	}

	a.Composition, a.CompositionExplicit = detectComposition(text, a.PrimarySubject, a.SubjectMatched)

	a.Elements = Elements{
		HasPeople:       text.Any(peopleKeywords),
		HasArchitecture: text.Any(architectureKeywords),
		HasNature:       text.Any(natureKeywords),
		HasAction:       text.Any(actionKeywords),
		HasText:         text.Any(textKeywords),
	}

	a.Confidence = analysisConfidence(a)
	return a, nil
}

// detectComposition resolves layout from explicit orientation words, then the
// subject, then motion words. Horizontal is the default.
func detectComposition(text keywords.Text, subject Subject, subjectMatched bool) (Composition, bool) {
	switch {
	case text.Any(panoramicKeywords):
		return CompositionPanoramic, true
	case text.Any(verticalKeywords):
		return CompositionVertical, true
	case text.Any(squareKeywords):
		return CompositionSquare, true
	case text.Any(horizontalKeywords):
		return CompositionHorizontal, true
	}

	if subjectMatched {
		switch subject {
		case SubjectPortrait:
			return CompositionVertical, false
		case SubjectLandscape:
			return CompositionHorizontal, false
		case SubjectObject:
			return CompositionSquare, false
		}
	}

	switch {
	case text.Any(verticalActionKeywords):
		return CompositionVertical, false
	case text.Any(horizontalActionKeywords):
		return CompositionHorizontal, false
	}
	return CompositionHorizontal, false
}

func analysisConfidence(a ContentAnalysis) float64 {
	c := 0.5
	if a.SubjectMatched {
		c += 0.15
	}
	if a.CompositionExplicit {
		c += 0.2
	}
	bonus := 0.05 * float64(a.Elements.count())
	if bonus > 0.1 {
		bonus = 0.1
	}
	return domain.Clamp01(c + bonus)
}

// SelectOptimalRatio maps an analysis onto a ratio. Composition decides;
// portrait subjects narrow the vertical and horizontal choices.
func SelectOptimalRatio(a ContentAnalysis) domain.AspectRatio {
	switch a.Composition {
	case CompositionVertical:
		if a.PrimarySubject == SubjectPortrait {
			return domain.RatioPortrait
		}
		return domain.RatioTall
	case CompositionSquare:
		return domain.RatioSquare
	case CompositionPanoramic:
		return domain.RatioPanoramic
	default:
		if a.PrimarySubject == SubjectPortrait {
			return domain.RatioLandscape
		}
		return domain.RatioWidescreen
	}
}
