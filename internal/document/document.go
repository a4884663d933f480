// Package document turns uploaded policy files into pages of positioned text
// fragments for the viewer. It does not interpret document structure: a page
// is an ordered list of independently positioned strings.
package document

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for file types the loader cannot render.
var ErrUnsupported = errors.New("unsupported document type")

// Fragment is one positioned unit of text as produced by the page renderer.
// A quote spanning two fragments cannot be matched.
type Fragment struct {
	Text string
	X    float64
	Y    float64
}

// Page is a 1-based page of fragments.
type Page struct {
	Number    int
	Fragments []Fragment
}

// Text joins the page's fragments with newlines.
func (p Page) Text() string {
	parts := make([]string, len(p.Fragments))
	for i, f := range p.Fragments {
		parts[i] = f.Text
	}
	return strings.Join(parts, "\n")
}

// Document is a parsed, renderable document.
type Document struct {
	Name  string
	Pages []Page
}

// NumPages returns the page count.
func (d *Document) NumPages() int {
	if d == nil {
		return 0
	}
	return len(d.Pages)
}

// Page returns the 1-based page n.
func (d *Document) Page(n int) (Page, bool) {
	if d == nil || n < 1 || n > len(d.Pages) {
		return Page{}, false
	}
	return d.Pages[n-1], true
}

// Parse renders content according to the extension of name.
// ".pdf" is parsed as PDF; ".txt" and ".md" as plain text with form feeds as page breaks.
func Parse(name string, content []byte) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(name))
	var (
		pages []Page
		err   error
	)
	switch ext {
	case ".pdf":
		pages, err = parsePDF(content)
	case ".txt", ".md":
		pages, err = parsePlain(content)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	if err != nil {
		return nil, err
	}
	return &Document{Name: name, Pages: pages}, nil
}

// Open reads and parses the file at path.
func Open(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Parse(filepath.Base(path), content)
}

// MatchExtension reports whether path has one of extensions (case-insensitive,
// leading dot optional). An empty list matches everything.
func MatchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}
