// Package policylist projects the ingested policy summaries for display.
package policylist

import "github.com/hyperjump/underwriter/internal/models"

// Display strings.
const (
	EmptyMessage = "No policies ingested yet."
	UnknownFile  = "Unknown file"
)

// Item is one rendered policy row.
type Item struct {
	PolicyID string
	Filename string
	Chunks   int
	Active   bool
}

// View is the rendered policy list.
type View struct {
	Items []Item
	// Empty is set when there is nothing to list; show EmptyMessage.
	Empty bool
}

// Project renders policies in the order given, marking selectedID active.
func Project(policies []models.PolicySummary, selectedID string) View {
	if len(policies) == 0 {
		return View{Empty: true}
	}
	v := View{Items: make([]Item, 0, len(policies))}
	for _, p := range policies {
		name := p.Filename()
		if name == "" {
			name = UnknownFile
		}
		v.Items = append(v.Items, Item{
			PolicyID: p.PolicyID,
			Filename: name,
			Chunks:   p.Chunks(),
			Active:   selectedID != "" && p.PolicyID == selectedID,
		})
	}
	return v
}

// List forwards policy clicks to a selection callback.
type List struct {
	onSelect func(policyID string)
}

// NewList returns a List reporting clicks to onSelect. A nil callback is allowed.
func NewList(onSelect func(policyID string)) *List {
	return &List{onSelect: onSelect}
}

// Click reports a click on policyID.
func (l *List) Click(policyID string) {
	if l.onSelect != nil {
		l.onSelect(policyID)
	}
}

// Inert is the selection callback used by the application: analysis always runs
// against the whole corpus, so choosing a policy has no effect.
func Inert(string) {}
