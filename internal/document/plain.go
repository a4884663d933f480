package document

import (
	"strings"
	"unicode/utf8"
)

// parsePlain splits content into pages on form feeds and into fragments on lines.
// Invalid UTF-8 sequences are replaced with the replacement character.
func parsePlain(content []byte) ([]Page, error) {
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	rawPages := strings.Split(text, "\f")
	pages := make([]Page, 0, len(rawPages))
	for i, raw := range rawPages {
		page := Page{Number: i + 1}
		for y, line := range strings.Split(strings.Trim(raw, "\n"), "\n") {
			if line == "" {
				continue
			}
			page.Fragments = append(page.Fragments, Fragment{Text: line, Y: float64(y)})
		}
		pages = append(pages, page)
	}
	return pages, nil
}
