// Package evidence projects an analysis result and the active selection into the
// evidence list: one item per citation, with the quote highlighted inside the
// citation's context text.
package evidence

import (
	"strings"

	"github.com/hyperjump/underwriter/internal/highlight"
	"github.com/hyperjump/underwriter/internal/models"
)

// Item is one rendered citation.
type Item struct {
	Index    int
	Citation models.Citation
	Active   bool
	Body     []highlight.Segment
}

// View is the rendered analysis panel.
type View struct {
	HasResult bool
	Decision  string
	RiskLevel string
	// RiskClass is the raw risk level for styling ("low", "medium", "high").
	RiskClass string
	Rationale string
	Items     []Item
}

// Project renders result with the citation whose quote equals selected marked
// active. Every citation sharing that quote is active. A nil result renders an
// empty view.
func Project(result *models.AnalysisResult, selected string, hasSelection bool) View {
	if result == nil || result.Decision == "" {
		return View{}
	}
	v := View{
		HasResult: true,
		Decision:  models.DecisionLabel(result.Decision),
		RiskLevel: strings.ToUpper(result.RiskLevel),
		RiskClass: result.RiskLevel,
		Rationale: result.Rationale,
		Items:     make([]Item, 0, len(result.Citations)),
	}
	for i, c := range result.Citations {
		v.Items = append(v.Items, Item{
			Index:    i,
			Citation: c,
			Active:   hasSelection && c.Quote == selected,
			Body:     highlight.Segments(c.Quote, c.Context()),
		})
	}
	return v
}

// List emits selection events for clicks on citations.
type List struct {
	citations []models.Citation
	onSelect  func(quote string)
}

// NewList returns a List that reports clicks to onSelect.
func NewList(onSelect func(quote string)) *List {
	return &List{onSelect: onSelect}
}

// SetResult replaces the citations clicks are resolved against.
func (l *List) SetResult(result *models.AnalysisResult) {
	if result == nil {
		l.citations = nil
		return
	}
	l.citations = result.Citations
}

// Len returns the number of clickable citations.
func (l *List) Len() int { return len(l.citations) }

// Click selects the citation at index. Clicking the active citation selects it
// again: there is no toggle-off. It reports false for an out-of-range index.
func (l *List) Click(index int) bool {
	if index < 0 || index >= len(l.citations) {
		return false
	}
	if l.onSelect != nil {
		l.onSelect(l.citations[index].Quote)
	}
	return true
}
