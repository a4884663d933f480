// Package cli formats backend results for the underwriter command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hyperjump/underwriter/internal/highlight"
	"github.com/hyperjump/underwriter/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// maxContext bounds how much citation text is printed in text output.
const maxContext = 300

var (
	quoteStyle = lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("220")).Foreground(lipgloss.Color("16"))
	plainQuote = highlight.Marker{Open: "[", Close: "]"}
)

// ParseFormat validates a -format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// WriteAnalysis writes a claim analysis to w. In text format each citation's
// context is printed with the quote highlighted; color selects lipgloss styling
// over plain brackets.
func WriteAnalysis(w io.Writer, result *models.AnalysisResult, format OutputFormat, color bool) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	fmt.Fprintf(w, "Decision: %s (%s RISK)\n", models.DecisionLabel(result.Decision), strings.ToUpper(result.RiskLevel))
	if result.Rationale != "" {
		fmt.Fprintf(w, "\n%s\n", result.Rationale)
	}
	if len(result.Citations) == 0 {
		fmt.Fprintln(w, "\nNo evidence cited.")
		return nil
	}
	fmt.Fprintf(w, "\nEvidence (%d):\n", len(result.Citations))
	for i, c := range result.Citations {
		fmt.Fprintf(w, "  %d. Page %d · %s\n", i+1, c.PageNumber, c.SourceFilename)
		fmt.Fprintf(w, "     %s\n", markQuote(c.Quote, Truncate(c.Context(), maxContext), color))
	}
	return nil
}

func markQuote(quote, text string, color bool) string {
	if !color {
		return highlight.Wrap(quote, text, plainQuote)
	}
	var b strings.Builder
	for _, seg := range highlight.Segments(quote, text) {
		if seg.Marked {
			b.WriteString(quoteStyle.Render(seg.Text))
			continue
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}

// WritePolicies writes the ingested policy list to w.
func WritePolicies(w io.Writer, policies []models.PolicySummary, format OutputFormat) error {
	if format == OutputJSON {
		if policies == nil {
			policies = []models.PolicySummary{}
		}
		return writeJSON(w, policies)
	}
	if len(policies) == 0 {
		fmt.Fprintln(w, "No policies ingested yet.")
		return nil
	}
	for _, p := range policies {
		writePolicyLine(w, p)
	}
	return nil
}

// WritePolicy writes a single policy summary to w.
func WritePolicy(w io.Writer, p *models.PolicySummary, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, p)
	}
	fmt.Fprintf(w, "ID:       %s\n", p.PolicyID)
	if name := p.Filename(); name != "" {
		fmt.Fprintf(w, "File:     %s\n", name)
	}
	if p.Jurisdiction != nil {
		fmt.Fprintf(w, "Region:   %s\n", *p.Jurisdiction)
	}
	if p.ClaimType != nil {
		fmt.Fprintf(w, "Claims:   %s\n", *p.ClaimType)
	}
	fmt.Fprintf(w, "Chunks:   %d\n", p.Chunks())
	return nil
}

func writePolicyLine(w io.Writer, p models.PolicySummary) {
	name := p.Filename()
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(w, "%-28s %-40s %5d chunks\n", p.PolicyID, name, p.Chunks())
}

// WriteIngest reports a finished upload.
func WriteIngest(w io.Writer, filename string, result *models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	fmt.Fprintf(w, "Ingested %d chunks from %s as %s\n", result.ChunksIndexed, filename, result.PolicyID)
	return nil
}

// WriteHealth reports backend reachability.
func WriteHealth(w io.Writer, baseURL string, health *models.Health, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]string{"api_base": baseURL, "status": health.Status})
	}
	fmt.Fprintf(w, "Backend: %s\nStatus:  %s\n", baseURL, health.Status)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Truncate shortens s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
