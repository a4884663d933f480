// Package models defines the payloads exchanged with the analysis backend.
package models

import "strings"

// GlobalScope is the policy id sent with every analysis request: the backend
// always analyses against the full ingested corpus.
const GlobalScope = "global"

// Citation is a quoted excerpt plus page/source metadata substantiating a decision.
// Quote is the literal match key; Text is the surrounding context it was found in.
type Citation struct {
	Quote          string `json:"quote"`
	PageNumber     int    `json:"page_number"`
	SourceFilename string `json:"source_filename"`
	PolicyID       string `json:"policy_id"`
	Text           string `json:"text"`
}

// Context returns the text a citation is highlighted within: its context text,
// or the quote itself when the backend sent no context.
func (c Citation) Context() string {
	if c.Text != "" {
		return c.Text
	}
	return c.Quote
}

// AnalysisResult is the backend's decision for a claim. Citations keep backend order.
type AnalysisResult struct {
	Decision  string     `json:"decision"`
	Rationale string     `json:"rationale"`
	RiskLevel string     `json:"risk_level"`
	Citations []Citation `json:"citations"`
}

// CitationByQuote returns the first citation whose quote equals quote.
func (r *AnalysisResult) CitationByQuote(quote string) (Citation, bool) {
	if r == nil {
		return Citation{}, false
	}
	for _, c := range r.Citations {
		if c.Quote == quote {
			return c, true
		}
	}
	return Citation{}, false
}

// AnalysisRequest is the body of POST /analyze.
type AnalysisRequest struct {
	PolicyID  string `json:"policy_id"`
	ClaimText string `json:"claim_text"`
}

// DecisionLabel formats a decision for display: "likely-covered" -> "LIKELY COVERED".
func DecisionLabel(decision string) string {
	return strings.ToUpper(strings.ReplaceAll(decision, "-", " "))
}
