// Package optimizer derives image generation parameters from enhanced prompt
// text.
package optimizer

import "github.com/fpang/gemini-image-orchestrator/internal/keywords"

// ContentType is the dominant content class of a prompt.
type ContentType string

const (
	ContentPortrait     ContentType = "portrait"
	ContentProduct      ContentType = "product"
	ContentLandscape    ContentType = "landscape"
	ContentArchitecture ContentType = "architecture"
	ContentArtistic     ContentType = "artistic"
	ContentScene        ContentType = "scene"
)

// Complexity is the visual complexity requested by a prompt.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Analysis is the pure classification of a prompt used by the optimizer.
type Analysis struct {
	ContentType         ContentType `json:"contentType"`
	Complexity          Complexity  `json:"complexity"`
	Cinematic           bool        `json:"cinematic"`
	Macro               bool        `json:"macro"`
	WorldKnowledge      bool        `json:"worldKnowledge"`
	CharacterContinuity bool        `json:"characterContinuity"`
}

type contentSet struct {
	contentType ContentType
	keywords    []string
}

// Checked in order; first hit wins.
var contentSets = []contentSet{
	{ContentPortrait, []string{"portrait", "headshot", "selfie", "face", "person", "woman", "man", "character", "model posing"}},
	{ContentProduct, []string{"product", "packaging", "bottle", "merchandise", "e-commerce", "catalog", "advertisement", "product shot"}},
	{ContentLandscape, []string{"landscape", "mountain", "ocean", "forest", "valley", "beach", "sunset", "nature", "countryside"}},
	{ContentArchitecture, []string{"building", "architecture", "interior", "skyscraper", "bridge", "cathedral", "facade", "house"}},
	{ContentArtistic, []string{"painting", "illustration", "watercolor", "abstract", "surreal", "sketch", "digital art", "oil painting"}},
}

var (
	simpleKeywords  = []string{"simple", "minimal", "minimalist", "clean", "plain", "basic", "flat"}
	complexKeywords = []string{"detailed", "intricate", "complex", "elaborate", "ornate", "busy", "layered", "multiple", "crowded"}

	cinematicKeywords = []string{"cinematic", "film still", "movie scene", "epic", "widescreen", "anamorphic", "blockbuster"}
	macroKeywords     = []string{"macro", "close-up", "extreme close", "microscopic", "tiny details"}

	worldKnowledgeKeywords = []string{"historical", "historically accurate", "famous", "landmark", "real-world", "factual", "accurate"}
	continuityKeywords     = []string{"same character", "consistent character", "recurring character", "character sheet", "series"}
)

// Classify analyses text. It has no side effects and never fails.
func Classify(text string) Analysis {
	t := keywords.Normalize(text)

	a := Analysis{ContentType: ContentScene}
	for _, set := range contentSets {
		if t.Any(set.keywords) {
			a.ContentType = set.contentType
			break
		}
	}

	simple, complex := t.Count(simpleKeywords), t.Count(complexKeywords)
	switch {
	case complex > simple:
		a.Complexity = ComplexityComplex
	case simple > complex:
		a.Complexity = ComplexitySimple
	default:
		a.Complexity = ComplexityModerate
	}

	a.Cinematic = t.Any(cinematicKeywords)
	a.Macro = t.Any(macroKeywords)
	a.WorldKnowledge = t.Any(worldKnowledgeKeywords)
	a.CharacterContinuity = t.Any(continuityKeywords)
	return a
}
