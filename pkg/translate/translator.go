package translate

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Model is a loaded translation model bound to one direction.
// A Model is owned by exactly one worker goroutine and is never called
// concurrently, so implementations need no internal locking.
// If a Model also implements io.Closer it is closed when its worker exits.
type Model interface {
	// Translate returns the translated segments for text, in order.
	Translate(text string) ([]string, error)
}

// Loader constructs the Model for a direction from its resolved resources.
// Loading is expected to be slow (seconds) and runs on the worker goroutine.
type Loader interface {
	Load(direction Direction, paths ModelPaths) (Model, error)
}

// LoaderFunc adapts a plain function to the Loader interface.
type LoaderFunc func(direction Direction, paths ModelPaths) (Model, error)

// Load calls f(direction, paths).
func (f LoaderFunc) Load(direction Direction, paths ModelPaths) (Model, error) {
	return f(direction, paths)
}

// Language is an ISO 639-1 language code understood by the backends.
type Language string

const (
	English Language = "en"
	Italian Language = "it"
)

// Name returns the English name of the language as used on the HTTP API.
func (l Language) Name() string {
	switch l {
	case English:
		return "English"
	case Italian:
		return "Italian"
	default:
		return string(l)
	}
}

// Direction selects which model an actor loads.
type Direction int

const (
	// EnglishToItalian translates English input into Italian.
	EnglishToItalian Direction = iota
	// ItalianToEnglish translates Italian input into English.
	ItalianToEnglish
)

// Directions lists every supported direction.
var Directions = []Direction{EnglishToItalian, ItalianToEnglish}

// Source returns the language of the input text.
func (d Direction) Source() Language {
	if d == ItalianToEnglish {
		return Italian
	}
	return English
}

// Target returns the language of the translated text.
func (d Direction) Target() Language {
	if d == ItalianToEnglish {
		return English
	}
	return Italian
}

// ModelDir is the directory, relative to the model base path, holding the
// Marian artifacts for this direction.
func (d Direction) ModelDir() string {
	if d == ItalianToEnglish {
		return "opus-mt-ROMANCE-en"
	}
	return "opus-mt-en-ROMANCE"
}

func (d Direction) String() string {
	switch d {
	case EnglishToItalian:
		return "en-it"
	case ItalianToEnglish:
		return "it-en"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection parses "en-it" or "it-en" (case-insensitive, "_" accepted).
func ParseDirection(s string) (Direction, error) {
	switch strings.ReplaceAll(strings.ToLower(s), "_", "-") {
	case "en-it":
		return EnglishToItalian, nil
	case "it-en":
		return ItalianToEnglish, nil
	default:
		return 0, fmt.Errorf("unknown direction: %s (supported: en-it, it-en)", s)
	}
}

// DirectionFrom returns the direction that translates away from the given
// source language.
func DirectionFrom(source Language) (Direction, error) {
	switch source {
	case English:
		return EnglishToItalian, nil
	case Italian:
		return ItalianToEnglish, nil
	default:
		return 0, fmt.Errorf("unsupported source language: %s", source)
	}
}

// ModelPaths are the on-disk locations of a direction's model artifacts.
type ModelPaths struct {
	Dir     string
	Weights string
	Config  string
	Vocab   string
}

// ResolveModelPaths derives the artifact locations for direction under basePath.
func ResolveModelPaths(basePath string, direction Direction) ModelPaths {
	dir := filepath.Join(basePath, direction.ModelDir())
	return ModelPaths{
		Dir:     dir,
		Weights: filepath.Join(dir, "rust_model.ot"),
		Config:  filepath.Join(dir, "config.json"),
		Vocab:   filepath.Join(dir, "vocab.json"),
	}
}

// LanguageMapper handles conversion between the language names used by
// clients and backend language codes.
// Clients send "Italian"/"English", ISO codes like "it", or BCP 47 tags
// like "it-IT" and "EN".
type LanguageMapper struct{}

// NewLanguageMapper creates a new language mapper instance.
func NewLanguageMapper() *LanguageMapper {
	return &LanguageMapper{}
}

// ToBackendCode converts a client language tag to a base ISO 639-1 code.
// Examples:
//   - "EN" -> "en"
//   - "it-IT" -> "it"
//   - "Italian" -> "it"
func (lm *LanguageMapper) ToBackendCode(tag string) string {
	lang := strings.ToLower(strings.TrimSpace(tag))
	switch lang {
	case "english":
		return string(English)
	case "italian", "italiano":
		return string(Italian)
	}
	if idx := strings.IndexAny(lang, "-_"); idx >= 0 {
		lang = lang[:idx]
	}
	return lang
}

// Parse resolves a client language tag to a supported Language.
func (lm *LanguageMapper) Parse(tag string) (Language, error) {
	switch code := Language(lm.ToBackendCode(tag)); code {
	case English, Italian:
		return code, nil
	default:
		return "", fmt.Errorf("unsupported language %q (supported: English, Italian)", tag)
	}
}
