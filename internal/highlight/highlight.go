// Package highlight marks every case-insensitive literal occurrence of a quote
// inside a text. It is the single matching implementation shared by the evidence
// list (citation context text) and the document viewer (one rendered fragment at
// a time); callers pick the output shape they consume: spans, segments, a
// wrapped string, or escaped HTML.
//
// Matching is literal: regex metacharacters in the quote are escaped. An empty
// quote, or a quote that does not occur, leaves the text unchanged. There is no
// fuzzy matching, so a quote that the backend normalised (for example collapsed
// whitespace) and that no longer occurs verbatim produces no highlight.
package highlight

import (
	"html"
	"html/template"
	"regexp"
	"strings"
)

// Span is a half-open byte range [Start, End) of a match within a text.
type Span struct {
	Start int
	End   int
}

// Segment is a run of text that is either inside a match or not.
type Segment struct {
	Text   string
	Marked bool
}

// Marker wraps matched spans when producing a string.
// Escape, when set, is applied to every segment (matched or not) before wrapping.
type Marker struct {
	Open   string
	Close  string
	Escape func(string) string
}

// Matcher matches one quote against many texts. The zero value and a Matcher
// built from an empty quote match nothing.
type Matcher struct {
	quote string
	re    *regexp.Regexp
}

// NewMatcher compiles quote for literal, case-insensitive, global matching.
func NewMatcher(quote string) *Matcher {
	if quote == "" {
		return &Matcher{}
	}
	return &Matcher{
		quote: quote,
		re:    regexp.MustCompile("(?i)" + regexp.QuoteMeta(quote)),
	}
}

// Quote returns the quote the matcher was built from.
func (m *Matcher) Quote() string {
	if m == nil {
		return ""
	}
	return m.quote
}

// Empty reports whether the matcher can never match.
func (m *Matcher) Empty() bool {
	return m == nil || m.re == nil
}

// Find returns the non-overlapping match spans in text, left to right.
func (m *Matcher) Find(text string) []Span {
	if m.Empty() || text == "" {
		return nil
	}
	locs := m.re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	spans := make([]Span, 0, len(locs))
	for _, loc := range locs {
		spans = append(spans, Span{Start: loc[0], End: loc[1]})
	}
	return spans
}

// Count returns the number of matches in text.
func (m *Matcher) Count(text string) int {
	return len(m.Find(text))
}

// Segments splits text into alternating unmarked and marked runs.
// Concatenating the segment texts yields text exactly. Empty text yields no segments.
func (m *Matcher) Segments(text string) []Segment {
	if text == "" {
		return nil
	}
	spans := m.Find(text)
	if len(spans) == 0 {
		return []Segment{{Text: text}}
	}
	segments := make([]Segment, 0, 2*len(spans)+1)
	pos := 0
	for _, s := range spans {
		if s.Start > pos {
			segments = append(segments, Segment{Text: text[pos:s.Start]})
		}
		segments = append(segments, Segment{Text: text[s.Start:s.End], Marked: true})
		pos = s.End
	}
	if pos < len(text) {
		segments = append(segments, Segment{Text: text[pos:]})
	}
	return segments
}

// Wrap returns text with every match wrapped in marker. With no matches and no
// Escape func the result is text itself.
func (m *Matcher) Wrap(text string, marker Marker) string {
	segments := m.Segments(text)
	if len(segments) == 1 && !segments[0].Marked && marker.Escape == nil {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + len(segments)*(len(marker.Open)+len(marker.Close)))
	for _, seg := range segments {
		s := seg.Text
		if marker.Escape != nil {
			s = marker.Escape(s)
		}
		if seg.Marked {
			b.WriteString(marker.Open)
			b.WriteString(s)
			b.WriteString(marker.Close)
			continue
		}
		b.WriteString(s)
	}
	return b.String()
}

// HTML returns text as safe markup: every segment is HTML-escaped and matches
// are wrapped in <mark class="class">. Citation and document text is never
// trusted as markup.
func (m *Matcher) HTML(text, class string) template.HTML {
	return template.HTML(m.Wrap(text, HTMLMarker(class)))
}

// HTMLMarker returns an escaping <mark> marker with the given CSS class.
func HTMLMarker(class string) Marker {
	open := "<mark>"
	if class != "" {
		open = `<mark class="` + html.EscapeString(class) + `">`
	}
	return Marker{Open: open, Close: "</mark>", Escape: html.EscapeString}
}

// Segments splits text around the matches of quote.
func Segments(quote, text string) []Segment {
	return NewMatcher(quote).Segments(text)
}

// Wrap wraps every match of quote in text with marker.
func Wrap(quote, text string, marker Marker) string {
	return NewMatcher(quote).Wrap(text, marker)
}

// HTML renders text as escaped markup with matches of quote in <mark class="class">.
func HTML(quote, text, class string) template.HTML {
	return NewMatcher(quote).HTML(text, class)
}
