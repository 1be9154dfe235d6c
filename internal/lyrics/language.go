package lyrics

import (
	"strings"
	"unicode"
)

// vietnameseRunes are the precomposed letters specific to Vietnamese that
// do not occur in the common western Latin alphabets.
const vietnameseRunes = "ăâđêôơưĂÂĐÊÔƠƯ"

// DetectLanguage is a best-effort charset heuristic over the lyrics text.
// It is informational only and never gates correctness. Returns an ISO-639-1
// code or "" when nothing can be said.
func DetectLanguage(text string) string {
	var letters, latin, viet int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if strings.ContainsRune(vietnameseRunes, r) || (r >= 0x1EA0 && r <= 0x1EF9) {
			viet++
		}
		if unicode.Is(unicode.Latin, r) {
			latin++
		}
	}
	if letters == 0 {
		return ""
	}
	if viet > 0 {
		return "vi"
	}
	if latin*2 >= letters {
		return "en"
	}
	return ""
}
