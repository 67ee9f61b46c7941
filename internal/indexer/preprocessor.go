package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes extracted text before splitting. Line endings become "\n",
// control characters are dropped, runs of spaces and tabs collapse to one space, and
// more than one blank line collapses to a single paragraph break. Line and paragraph
// structure is preserved so the splitter can still break on it.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))
	newlines := 0
	pendingSpace := false
	for _, r := range text {
		switch {
		case r == '\n':
			pendingSpace = false
			newlines++
		case unicode.IsSpace(r):
			pendingSpace = true
		case unicode.IsControl(r):
		default:
			if b.Len() > 0 {
				switch {
				case newlines >= 2:
					b.WriteString("\n\n")
				case newlines == 1:
					b.WriteByte('\n')
				case pendingSpace:
					b.WriteByte(' ')
				}
			}
			newlines, pendingSpace = 0, false
			b.WriteRune(r)
		}
	}
	return b.String()
}
