package classify

import "unicode"

// Language labels returned by DetectLanguage.
const (
	LangEnglish  = "english"
	LangChinese  = "chinese"
	LangJapanese = "japanese"
	LangKorean   = "korean"
	LangMixed    = "mixed"
	LangUnknown  = "unknown"
)

// DetectLanguage returns the dominant script of the text. When no single
// script covers at least 70% of the scored characters the text is labeled
// mixed; text without any scored characters is unknown.
func DetectLanguage(text string) string {
	counts := map[string]int{}
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			counts[LangChinese]++
		case unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			counts[LangJapanese]++
		case unicode.Is(unicode.Hangul, r):
			counts[LangKorean]++
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
			counts[LangEnglish]++
		}
	}

	if len(counts) == 0 {
		return LangUnknown
	}

	total := 0
	primary := ""
	primaryCount := 0
	for lang, n := range counts {
		total += n
		if n > primaryCount || (n == primaryCount && lang < primary) {
			primary = lang
			primaryCount = n
		}
	}

	if len(counts) > 1 && float64(primaryCount)/float64(total) < 0.7 {
		return LangMixed
	}
	return primary
}

// IsCJK reports whether the language label denotes a CJK script, which needs
// a CJK-capable OCR engine first in the fallback order.
func IsCJK(language string) bool {
	switch language {
	case LangChinese, LangJapanese, LangKorean, LangMixed:
		return true
	}
	return false
}
