package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hyperjump/underwriter/internal/evidence"
	"github.com/hyperjump/underwriter/internal/highlight"
	"github.com/hyperjump/underwriter/internal/policylist"
	"github.com/hyperjump/underwriter/internal/session"
	"github.com/hyperjump/underwriter/internal/viewer"
)

var (
	colorTitle   = lipgloss.Color("33")
	colorMuted   = lipgloss.Color("242")
	colorNotice  = lipgloss.Color("42")
	colorActive  = lipgloss.Color("214")
	colorHeading = lipgloss.Color("252")

	riskColors = map[string]lipgloss.Color{
		"low":    lipgloss.Color("42"),
		"medium": lipgloss.Color("214"),
		"high":   lipgloss.Color("196"),
	}
)

// Plain-text markers used for matches when colors are off.
const (
	plainMarkOpen  = "["
	plainMarkClose = "]"
)

func renderTitle(noColor bool) string {
	return stylize("Smart Underwriter", noColor, colorTitle)
}

func renderStatus(st session.State, noColor bool) string {
	line := st.Status
	switch {
	case st.Uploading:
		line += " (uploading)"
	case st.Analyzing:
		line += " (analyzing)"
	}
	return stylize(line, noColor, colorMuted)
}

func renderNotification(msg string, noColor bool) string {
	if msg == "" {
		return ""
	}
	return stylize(msg, noColor, colorNotice)
}

func renderPolicies(v policylist.View, noColor bool) string {
	var b strings.Builder
	b.WriteString(stylize("Policies", noColor, colorHeading))
	b.WriteString("\n")
	if v.Empty {
		b.WriteString("  " + stylize(policylist.EmptyMessage, noColor, colorMuted))
		return b.String()
	}
	for i, p := range v.Items {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "  %s  %s", p.Filename, stylize(fmt.Sprintf("%d chunks", p.Chunks), noColor, colorMuted))
	}
	return b.String()
}

func renderEvidence(v evidence.View, cursor int, focused bool, width int, noColor bool) string {
	if !v.HasResult {
		return ""
	}
	var b strings.Builder
	risk := v.RiskLevel
	if c, ok := riskColors[v.RiskClass]; ok && !noColor {
		risk = lipgloss.NewStyle().Foreground(c).Bold(true).Render(risk)
	}
	fmt.Fprintf(&b, "%s  risk %s\n", stylize(v.Decision, noColor, colorHeading), risk)
	if v.Rationale != "" {
		b.WriteString(lipgloss.NewStyle().Width(max(width, 10)).Render(v.Rationale))
		b.WriteString("\n")
	}
	b.WriteString(stylize("Evidence", noColor, colorHeading))
	for _, item := range v.Items {
		b.WriteString("\n")
		pointer := "  "
		if focused && item.Index == cursor {
			pointer = "> "
		}
		head := fmt.Sprintf("p.%d %s", item.Citation.PageNumber, item.Citation.SourceFilename)
		if item.Active {
			head = stylize("* "+head, noColor, colorActive)
		}
		b.WriteString(pointer + head + "\n")
		b.WriteString("    " + renderSegments(item.Body, noColor))
	}
	return b.String()
}

func renderViewerHeader(v viewer.View, focused bool, noColor bool) string {
	title := "Document"
	if v.Source != "" {
		title = v.Source
	}
	if focused {
		title = "> " + title
	}
	parts := []string{stylize(title, noColor, colorHeading)}
	if v.Label != "" {
		parts = append(parts, v.Label)
	}
	if v.Phase == viewer.Ready {
		parts = append(parts, "["+v.ToggleLabel+"]")
	}
	return strings.Join(parts, "  ")
}

// renderViewer returns the viewport content and the first line of each page.
func renderViewer(v viewer.View, noColor bool) (string, map[int]int) {
	lines := map[int]int{}
	if v.Placeholder != "" {
		return stylize(v.Placeholder, noColor, colorMuted), lines
	}
	var out []string
	for _, p := range v.Pages {
		lines[p.Number] = len(out)
		if v.Mode == viewer.AllPages {
			header := fmt.Sprintf("── Page %d ──", p.Number)
			if p.Matches > 0 {
				header += fmt.Sprintf(" (%d)", p.Matches)
			}
			if p.Active {
				header = stylize(header, noColor, colorActive)
			}
			out = append(out, header)
		}
		for _, f := range p.Fragments {
			out = append(out, renderSegments(f.Segments, noColor))
		}
		if v.Mode == viewer.AllPages {
			out = append(out, "")
		}
	}
	return strings.Join(out, "\n"), lines
}

func renderSegments(segments []highlight.Segment, noColor bool) string {
	var b strings.Builder
	for _, s := range segments {
		if !s.Marked {
			b.WriteString(s.Text)
			continue
		}
		if noColor {
			b.WriteString(plainMarkOpen + s.Text + plainMarkClose)
			continue
		}
		b.WriteString(lipgloss.NewStyle().Background(lipgloss.Color("220")).Foreground(lipgloss.Color("0")).Render(s.Text))
	}
	return b.String()
}

func renderHelp(f focus, noColor bool) string {
	var keys string
	switch f {
	case focusClaim:
		keys = "ctrl+s analyze • ctrl+o upload • tab next pane • ctrl+c quit"
	case focusEvidence:
		keys = "↑/↓ move • enter select • r reload policies • tab next pane"
	case focusViewer:
		keys = "←/→ page • a all pages • ↑/↓ scroll • tab next pane"
	case focusUpload:
		keys = "enter upload • esc cancel"
	}
	return stylize(keys, noColor, colorMuted)
}

// stylize applies optional color styling.
func stylize(text string, noColor bool, color lipgloss.Color) string {
	if noColor {
		return text
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}
