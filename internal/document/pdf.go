package document

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// parsePDF emits one fragment per text row, positioned at the row's first glyph run.
func parsePDF(content []byte) ([]Page, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	pages := make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := Page{Number: i}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, page)
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		for _, row := range rows {
			if row == nil || len(row.Content) == 0 {
				continue
			}
			var b strings.Builder
			for _, t := range row.Content {
				b.WriteString(t.S)
			}
			if strings.TrimSpace(b.String()) == "" {
				continue
			}
			first := row.Content[0]
			page.Fragments = append(page.Fragments, Fragment{Text: b.String(), X: first.X, Y: first.Y})
		}
		pages = append(pages, page)
	}
	return pages, nil
}
