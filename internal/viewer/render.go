package viewer

import (
	"fmt"
	"strings"

	"github.com/hyperjump/underwriter/internal/document"
	"github.com/hyperjump/underwriter/internal/highlight"
)

// Placeholder texts shown instead of pages.
const (
	PlaceholderNoDocument = "Upload a PDF to preview it here."
	PlaceholderLoading    = "Loading document..."
	PlaceholderFailed     = "Failed to load document."
)

// FragmentView is one rendered fragment split into highlighted segments.
type FragmentView struct {
	X        float64
	Y        float64
	Segments []highlight.Segment
}

// PageView is one rendered page.
type PageView struct {
	Number    int
	Active    bool
	Matches   int
	Fragments []FragmentView
}

// View is everything a front-end needs to draw the viewer.
type View struct {
	Source      string
	Phase       Phase
	Mode        Mode
	Page        int
	NumPages    int
	CanPrev     bool
	CanNext     bool
	Label       string
	ToggleLabel string
	Placeholder string
	Pages       []PageView
}

// Render draws the current state, highlighting quote in every fragment of the
// visible pages. The quote is trimmed first; a blank quote highlights nothing.
// Each fragment is matched on its own, so a quote crossing a fragment boundary
// is not highlighted.
func (n *Navigator) Render(quote string) View {
	v := View{
		Source:      n.source,
		Phase:       n.phase,
		Mode:        n.mode,
		Page:        n.page,
		NumPages:    n.NumPages(),
		CanPrev:     n.CanPrev(),
		CanNext:     n.CanNext(),
		ToggleLabel: "All pages",
	}
	if n.mode == AllPages {
		v.ToggleLabel = "Single page"
	}
	switch n.phase {
	case NoDocument:
		v.Placeholder = PlaceholderNoDocument
		return v
	case Loading:
		v.Placeholder = PlaceholderLoading
		v.Label = fmt.Sprintf("Page %d", n.page)
		return v
	case Failed:
		v.Placeholder = PlaceholderFailed
		return v
	}
	v.Label = fmt.Sprintf("Page %d of %d", n.page, v.NumPages)

	m := highlight.NewMatcher(strings.TrimSpace(quote))
	if n.mode == AllPages {
		for _, p := range n.doc.Pages {
			v.Pages = append(v.Pages, renderPage(m, p.Number, p.Fragments, p.Number == n.page))
		}
		return v
	}
	if p, ok := n.doc.Page(n.page); ok {
		v.Pages = append(v.Pages, renderPage(m, p.Number, p.Fragments, true))
	}
	return v
}

// Matches counts highlighted spans per page across the whole document, whatever
// the mode. Pages without matches are omitted.
func (n *Navigator) Matches(quote string) map[int]int {
	counts := make(map[int]int)
	if n.phase != Ready {
		return counts
	}
	m := highlight.NewMatcher(strings.TrimSpace(quote))
	if m.Empty() {
		return counts
	}
	for _, p := range n.doc.Pages {
		for _, f := range p.Fragments {
			if c := m.Count(f.Text); c > 0 {
				counts[p.Number] += c
			}
		}
	}
	return counts
}

func renderPage(m *highlight.Matcher, number int, fragments []document.Fragment, active bool) PageView {
	pv := PageView{Number: number, Active: active, Fragments: make([]FragmentView, 0, len(fragments))}
	for _, f := range fragments {
		segs := m.Segments(f.Text)
		for _, s := range segs {
			if s.Marked {
				pv.Matches++
			}
		}
		pv.Fragments = append(pv.Fragments, FragmentView{X: f.X, Y: f.Y, Segments: segs})
	}
	return pv
}
