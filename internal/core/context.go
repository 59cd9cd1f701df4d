package core

import (
	"strings"
	"unicode/utf8"

	"gwi.com/rag-orchestrator/internal/models"
)

// FormatContext joins chunk texts in rank order with newlines, keeping the
// result within maxChars runes. Lower-ranked chunks are dropped first; if
// the top chunk alone is too long it is cut. maxChars <= 0 means no limit.
func FormatContext(chunks []models.Chunk, maxChars int) string {
	parts := make([]string, 0, len(chunks))
	used := 0
	for i, c := range chunks {
		n := utf8.RuneCountInString(c.Text)
		if i > 0 {
			n++ // separator
		}
		if maxChars > 0 && used+n > maxChars {
			if i == 0 {
				return string([]rune(c.Text)[:maxChars])
			}
			break
		}
		parts = append(parts, c.Text)
		used += n
	}
	return strings.Join(parts, "\n")
}
