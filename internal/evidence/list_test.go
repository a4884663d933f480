package evidence

import (
	"testing"

	"github.com/hyperjump/underwriter/internal/models"
)

func sampleResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		Decision:  "likely-covered",
		Rationale: "Water damage from burst pipes is covered.",
		RiskLevel: "low",
		Citations: []models.Citation{
			{Quote: "burst pipes", PageNumber: 2, SourceFilename: "home.pdf", PolicyID: "policy-1", Text: "Sudden damage from Burst Pipes is covered."},
			{Quote: "deductible", PageNumber: 5, SourceFilename: "home.pdf", PolicyID: "policy-1"},
			{Quote: "not present", PageNumber: 1, SourceFilename: "home.pdf", PolicyID: "policy-1", Text: "Unrelated context."},
		},
	}
}

func TestProject_NilResult(t *testing.T) {
	v := Project(nil, "", false)
	if v.HasResult || len(v.Items) != 0 {
		t.Errorf("unexpected view: %+v", v)
	}
}

func TestProject_Header(t *testing.T) {
	v := Project(sampleResult(), "", false)
	if v.Decision != "LIKELY COVERED" || v.RiskLevel != "LOW" || v.RiskClass != "low" {
		t.Errorf("header: %+v", v)
	}
	if len(v.Items) != 3 {
		t.Fatalf("items = %d", len(v.Items))
	}
	for i, item := range v.Items {
		if item.Index != i {
			t.Errorf("item %d has index %d; backend order must be kept", i, item.Index)
		}
		if item.Active {
			t.Errorf("item %d active without selection", i)
		}
	}
}

func TestProject_HighlightsContext(t *testing.T) {
	v := Project(sampleResult(), "", false)

	body := v.Items[0].Body
	if len(body) != 3 || !body[1].Marked || body[1].Text != "Burst Pipes" {
		t.Errorf("context highlight: %+v", body)
	}
	fallback := v.Items[1].Body
	if len(fallback) != 1 || !fallback[0].Marked || fallback[0].Text != "deductible" {
		t.Errorf("empty text should fall back to the quote: %+v", fallback)
	}
	miss := v.Items[2].Body
	if len(miss) != 1 || miss[0].Marked || miss[0].Text != "Unrelated context." {
		t.Errorf("a miss should leave the text unchanged: %+v", miss)
	}
}

func TestProject_ActiveSelection(t *testing.T) {
	v := Project(sampleResult(), "deductible", true)
	for _, item := range v.Items {
		if item.Active != (item.Citation.Quote == "deductible") {
			t.Errorf("item %d active=%v", item.Index, item.Active)
		}
	}
	empty := Project(&models.AnalysisResult{Decision: "excluded", Citations: []models.Citation{{Quote: ""}}}, "", false)
	if empty.Items[0].Active {
		t.Error("an unset selection must not activate a citation with an empty quote")
	}
}

func TestList_ClickEmitsQuoteWithoutToggle(t *testing.T) {
	var selected []string
	l := NewList(func(q string) { selected = append(selected, q) })
	l.SetResult(sampleResult())

	if !l.Click(1) || !l.Click(1) {
		t.Fatal("Click() rejected a valid index")
	}
	if len(selected) != 2 || selected[0] != "deductible" || selected[1] != "deductible" {
		t.Errorf("clicking the active citation should select it again, got %v", selected)
	}
	if l.Click(3) || l.Click(-1) {
		t.Error("out-of-range click accepted")
	}
	l.SetResult(nil)
	if l.Len() != 0 || l.Click(0) {
		t.Error("cleared list should not accept clicks")
	}
}
