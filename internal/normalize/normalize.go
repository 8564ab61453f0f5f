// Package normalize cleans recognized text before extraction. Cleaning is
// conservative: it fixes recognizer artifacts that are unambiguous in token
// context and leaves everything else alone, so place names survive intact.
// The transformation is idempotent.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"llmap/pkg/models"
)

var (
	hyphenBreak   = regexp.MustCompile(`(\pL)-[ \t]*\n[ \t]*(\pL)`)
	spaceRuns     = regexp.MustCompile(`[ \t]+`)
	newlineEdges  = regexp.MustCompile(` ?\n ?`)
	newlineRuns   = regexp.MustCompile(`\n{2,}`)
	repeatedPunct = regexp.MustCompile(`([.,!?;:\-])\1+`)
)

// Normalize returns a copy of chunks with cleaned text. Count, order,
// indexes, contexts and confidences are all preserved.
func Normalize(chunks []models.OCRChunk) []models.OCRChunk {
	out := make([]models.OCRChunk, len(chunks))
	for i, c := range chunks {
		c.Text = Text(c.Text)
		out[i] = c
	}
	return out
}

// Text cleans a single string. Rules run in a fixed order: whitespace
// normalization with hyphenated line-break joins, digit/letter confusion
// repair by token context, repeated punctuation removal, trim.
func Text(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = hyphenBreak.ReplaceAllString(s, "$1$2")
	s = spaceRuns.ReplaceAllString(s, " ")
	s = newlineEdges.ReplaceAllString(s, "\n")
	s = newlineRuns.ReplaceAllString(s, "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		tokens := strings.Split(line, " ")
		for j, tok := range tokens {
			tokens[j] = fixConfusions(tok)
		}
		lines[i] = strings.Join(tokens, " ")
	}
	s = strings.Join(lines, "\n")

	s = repeatedPunct.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

// fixConfusions repairs 0/O, 1/l/I, 5/S and 8/B swaps using the token's
// dominant character class. Tokens that are all letters, all digits, evenly
// mixed, or non-ASCII are left untouched.
func fixConfusions(token string) string {
	letters, digits, uppers := 0, 0, 0
	for _, r := range token {
		if r > unicode.MaxASCII {
			return token
		}
		switch {
		case unicode.IsLetter(r):
			letters++
			if unicode.IsUpper(r) {
				uppers++
			}
		case unicode.IsDigit(r):
			digits++
		}
	}

	if letters == 0 || digits == 0 || letters == digits {
		return token
	}
	if letters > digits {
		return digitsToLetters(token, uppers*2 >= letters)
	}
	return lettersToDigits(token)
}

func digitsToLetters(token string, upper bool) string {
	var b strings.Builder
	b.Grow(len(token))
	for _, r := range token {
		switch r {
		case '0':
			if upper {
				b.WriteRune('O')
			} else {
				b.WriteRune('o')
			}
		case '1':
			if upper {
				b.WriteRune('I')
			} else {
				b.WriteRune('l')
			}
		case '5':
			if upper {
				b.WriteRune('S')
			} else {
				b.WriteRune('s')
			}
		case '8':
			b.WriteRune('B')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lettersToDigits(token string) string {
	var b strings.Builder
	b.Grow(len(token))
	for _, r := range token {
		switch r {
		case 'O', 'o':
			b.WriteRune('0')
		case 'l', 'I':
			b.WriteRune('1')
		case 'S', 's':
			b.WriteRune('5')
		case 'B':
			b.WriteRune('8')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
