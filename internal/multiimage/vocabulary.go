package multiimage

import "github.com/fpang/gemini-image-orchestrator/internal/keywords"

// Element is one shared vocabulary category.
type Element string

const (
	ElementCharacter   Element = "character"
	ElementStyle       Element = "style"
	ElementEnvironment Element = "environment"
	ElementLighting    Element = "lighting"
	ElementMood        Element = "mood"
)

// Elements lists the categories in scoring order.
var Elements = []Element{ElementCharacter, ElementStyle, ElementEnvironment, ElementLighting, ElementMood}

var vocabulary = map[Element][]string{
	ElementCharacter: {
		"woman", "man", "girl", "boy", "child", "old man", "old woman", "hero", "heroine", "knight",
		"detective", "wizard", "witch", "princess", "king", "queen", "soldier", "astronaut", "robot",
		"cat", "dog", "fox", "dragon", "character", "red hair", "blonde", "beard", "glasses",
		"red cloak", "armor", "uniform",
	},
	ElementStyle: {
		"photorealistic", "realistic", "watercolor", "oil painting", "anime", "manga", "cartoon",
		"comic", "illustration", "pixel art", "sketch", "pencil", "3d render", "low poly", "vintage",
		"minimalist", "cinematic", "noir", "impressionist", "art deco", "studio ghibli", "flat design",
	},
	ElementEnvironment: {
		"forest", "city", "street", "beach", "desert", "mountain", "castle", "office", "kitchen",
		"space", "ocean", "village", "harbour", "harbor", "jungle", "cave", "library", "rooftop",
		"market", "snow", "river", "lake", "field", "garden", "spaceship", "classroom",
	},
	ElementLighting: {
		"golden hour", "sunset", "sunrise", "dawn", "dusk", "night", "moonlight", "neon", "candlelight",
		"soft light", "soft lighting", "dramatic lighting", "backlit", "overcast", "studio lighting",
		"rim light", "harsh light", "fog", "misty", "volumetric light",
	},
	ElementMood: {
		"serene", "dramatic", "mysterious", "joyful", "melancholic", "melancholy", "tense", "peaceful",
		"whimsical", "dark", "cheerful", "eerie", "romantic", "epic", "nostalgic", "cozy", "hopeful",
	},
}

// extractElements returns the vocabulary terms found in text for each category.
func extractElements(text string) map[Element][]string {
	t := keywords.Normalize(text)
	out := make(map[Element][]string, len(Elements))
	for _, e := range Elements {
		if found := t.Find(vocabulary[e]); len(found) > 0 {
			out[e] = found
		}
	}
	return out
}
