package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, Text(" a portrait of a woman "), Normalize("A Portrait, of a Woman!"))
	assert.True(t, Normalize("   ").IsEmpty())
	assert.True(t, Normalize("").IsEmpty())
}

func TestHas_WordBoundaries(t *testing.T) {
	text := Normalize("A woman walks through the mountains at sunset")

	assert.True(t, text.Has("woman"))
	assert.True(t, text.Has("mountain"), "plural form should match")
	assert.False(t, text.Has("man"), "must not match inside woman")
	assert.True(t, text.Has("at sunset"))
	assert.False(t, text.Has(""))
}

func TestAnyCountFind(t *testing.T) {
	text := Normalize("cinematic film still of a detailed castle")
	kws := []string{"castle", "tower", "cinematic", "detailed"}

	assert.True(t, text.Any(kws))
	assert.Equal(t, 3, text.Count(kws))
	assert.Equal(t, []string{"castle", "cinematic", "detailed"}, text.Find(kws))
	assert.False(t, text.Any([]string{"ocean"}))
}

func TestTokens(t *testing.T) {
	text := Normalize("The red fox and the red barn in a field")
	assert.Equal(t, []string{"red", "fox", "barn", "field"}, text.Tokens())
}
