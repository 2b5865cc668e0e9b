package posts

import "strings"

func slugRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r >= 0x3040 && r <= 0x309f: // hiragana
		return true
	case r >= 0x30a0 && r <= 0x30ff: // katakana
		return true
	case r >= 0x4e00 && r <= 0x9faf: // common kanji
		return true
	}
	return false
}

// GenerateSlug lowercases name and collapses every run of other characters
// into a single hyphen. Japanese kana and kanji are kept as-is.
func GenerateSlug(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(name) {
		if !slugRune(r) {
			pendingDash = true
			continue
		}
		if pendingDash && b.Len() > 0 {
			b.WriteByte('-')
		}
		pendingDash = false
		b.WriteRune(r)
	}
	return b.String()
}
