package langdetect

import (
	"strings"
	"sync"
	"unicode"

	"github.com/pemistahl/lingua-go"
)

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// Receipt descriptions are overwhelmingly Portuguese; the narrow candidate
// set keeps the detector small and avoids spurious exotic guesses.
func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(
				lingua.Portuguese,
				lingua.Spanish,
				lingua.English,
			).
			Build()
	})
	return detector
}

// DetectISO6391 returns the lowercase ISO 639-1 code for the text's
// language, or empty when the text is too short or undetectable.
func DetectISO6391(text string) string {
	trimmed := strings.TrimSpace(text)
	if letterCount(trimmed) < 6 {
		return ""
	}

	lang, ok := getDetector().DetectLanguageOf(trimmed)
	if !ok {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

func letterCount(s string) int {
	count := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			count++
		}
	}
	return count
}
