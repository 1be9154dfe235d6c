package lyrics

import (
	"strings"
	"unicode"
)

// CleanText strips bracketed and parenthetical non-lyric annotations such as
// "[Music]" or "(applause)" and normalizes runs of whitespace. It never adds
// words and never alters the words that remain.
func CleanText(raw string) string {
	var b strings.Builder
	depth := 0
	for _, r := range raw {
		switch r {
		case '[', '(':
			depth++
		case ']', ')':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				b.WriteRune(r)
			}
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// cleanWords drops annotation tokens from a word stream, keeping bracket
// state across tokens so multi-word annotations are removed whole.
func cleanWords(words []word) []word {
	out := make([]word, 0, len(words))
	depth := 0
	for _, w := range words {
		opens := strings.Count(w.text, "[") + strings.Count(w.text, "(")
		closes := strings.Count(w.text, "]") + strings.Count(w.text, ")")

		inAnnotation := depth > 0 || opens > 0
		depth += opens - closes
		if depth < 0 {
			depth = 0
		}
		if inAnnotation {
			continue
		}

		cleaned := CleanText(w.text)
		if cleaned == "" {
			continue
		}
		out = append(out, word{text: cleaned, start: w.start, end: w.end})
	}
	return out
}

// punctuation-only tokens attach to the previous token and do not count
// toward the word total of a line.
func isPunctuationOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch r {
		case ',', '.', '!', '?', ';', ':':
		default:
			return false
		}
	}
	return true
}

// startsUpper reports whether the first letter of s is uppercase. Any
// alphabet counts, not just ASCII.
func startsUpper(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return unicode.IsUpper(r)
		}
	}
	return false
}
