package textmask

import (
	"unicode"

	"github.com/go-text/typesetting/language"
	"golang.org/x/text/width"
)

// Plausible reports whether text could have been written in lang. Languages
// without a rule accept any non-empty text. Full-width forms are folded to
// their narrow equivalents first.
func Plausible(text, lang string) bool {
	text = width.Fold.String(text)
	if text == "" {
		return false
	}
	var hangul, kana, han, latin bool
	for _, r := range text {
		switch language.LookupScript(r) {
		case language.Hangul:
			hangul = true
		case language.Hiragana, language.Katakana:
			kana = true
		case language.Han:
			han = true
		case language.Latin:
			if unicode.IsLetter(r) {
				latin = true
			}
		}
	}
	switch lang {
	case "ko":
		return hangul
	case "ja":
		return kana || han
	case "zh":
		return han
	case "en":
		return latin && !hangul && !kana
	default:
		return true
	}
}
