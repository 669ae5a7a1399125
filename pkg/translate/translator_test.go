package translate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectionLanguages(t *testing.T) {
	assert.Equal(t, English, EnglishToItalian.Source())
	assert.Equal(t, Italian, EnglishToItalian.Target())
	assert.Equal(t, Italian, ItalianToEnglish.Source())
	assert.Equal(t, English, ItalianToEnglish.Target())

	assert.Equal(t, "en-it", EnglishToItalian.String())
	assert.Equal(t, "it-en", ItalianToEnglish.String())
	assert.Equal(t, "opus-mt-en-ROMANCE", EnglishToItalian.ModelDir())
	assert.Equal(t, "opus-mt-ROMANCE-en", ItalianToEnglish.ModelDir())
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{
		"en-it": EnglishToItalian,
		"EN_IT": EnglishToItalian,
		"it-en": ItalianToEnglish,
	} {
		got, err := ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDirection("fr-en")
	assert.Error(t, err)
}

func TestDirectionFrom(t *testing.T) {
	d, err := DirectionFrom(Italian)
	require.NoError(t, err)
	assert.Equal(t, ItalianToEnglish, d)

	d, err = DirectionFrom(English)
	require.NoError(t, err)
	assert.Equal(t, EnglishToItalian, d)

	_, err = DirectionFrom(Language("fr"))
	assert.Error(t, err)
}

func TestResolveModelPaths(t *testing.T) {
	p := ResolveModelPaths("/models", EnglishToItalian)
	assert.Equal(t, filepath.Join("/models", "opus-mt-en-ROMANCE"), p.Dir)
	assert.Equal(t, filepath.Join("/models", "opus-mt-en-ROMANCE", "rust_model.ot"), p.Weights)
}

func TestLanguageMapper(t *testing.T) {
	lm := NewLanguageMapper()

	tests := []struct {
		in   string
		want Language
	}{
		{"Italian", Italian},
		{"English", English},
		{"it", Italian},
		{"EN", English},
		{"it-IT", Italian},
		{"en_US", English},
		{" italiano ", Italian},
	}
	for _, tt := range tests {
		got, err := lm.Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := lm.Parse("French")
	assert.Error(t, err)
	assert.Equal(t, "fr", lm.ToBackendCode("fr-CA"))
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "Italian", Italian.Name())
	assert.Equal(t, "English", English.Name())
}
