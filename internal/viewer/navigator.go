// Package viewer implements the document viewer's page navigation state machine
// and per-fragment highlight rendering.
package viewer

import (
	"github.com/hyperjump/underwriter/internal/document"
	"go.uber.org/zap"
)

// Phase is the document lifecycle of a Navigator.
type Phase int

const (
	// NoDocument is the initial phase, until a source is opened.
	NoDocument Phase = iota
	// Loading means a source was opened and its page count is not yet known.
	Loading
	// Ready means the document parsed and the page count is known.
	Ready
	// Failed means the source could not be parsed.
	Failed
)

func (p Phase) String() string {
	switch p {
	case NoDocument:
		return "no-document"
	case Loading:
		return "loading"
	case Ready:
		return "loaded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Mode selects whether one page or all pages are shown.
type Mode int

const (
	SinglePage Mode = iota
	AllPages
)

func (m Mode) String() string {
	if m == AllPages {
		return "all-pages"
	}
	return "single-page"
}

// ScrollFunc brings a page into view. It is called for target pages in
// all-pages mode only.
type ScrollFunc func(page int)

// Option configures a Navigator.
type Option func(*Navigator)

// WithScroller sets the scroll effect used in all-pages mode.
func WithScroller(fn ScrollFunc) Option {
	return func(n *Navigator) { n.scroll = fn }
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(n *Navigator) { n.logger = l }
}

// Navigator tracks the viewer's source, page pointer and display mode.
// It is not safe for concurrent use; callers serialise access.
type Navigator struct {
	source string
	phase  Phase
	mode   Mode
	doc    *document.Document
	err    error
	page   int
	// pending is a target page received before the page count was known.
	pending int
	// target is the last applied external target page, 0 when none.
	target int
	token  uint64
	scroll ScrollFunc
	logger *zap.Logger
}

// New returns a Navigator in the no-document phase.
func New(opts ...Option) *Navigator {
	n := &Navigator{page: 1, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Open supplies a new document source and moves to the loading phase.
// The returned token must be passed to Loaded or Fail; completions carrying an
// older token are ignored. Mode is kept across sources.
func (n *Navigator) Open(source string) uint64 {
	n.token++
	n.source = source
	n.phase = Loading
	n.doc = nil
	n.err = nil
	n.pending = 0
	n.target = 0
	n.logger.Debug("viewer opening source", zap.String("source", source), zap.Uint64("token", n.token))
	return n.token
}

// Close returns to the no-document phase.
func (n *Navigator) Close() {
	n.token++
	n.source = ""
	n.phase = NoDocument
	n.doc = nil
	n.err = nil
	n.page = 1
	n.pending = 0
	n.target = 0
}

// Loaded completes parsing: the page count becomes known and the page pointer
// resets to 1, then any target received while loading is applied.
// It reports false when token is stale.
func (n *Navigator) Loaded(token uint64, doc *document.Document) bool {
	if token != n.token || n.phase != Loading {
		n.logger.Debug("viewer ignoring stale load", zap.Uint64("token", token), zap.Uint64("current", n.token))
		return false
	}
	if doc == nil {
		doc = &document.Document{Name: n.source}
	}
	n.doc = doc
	n.phase = Ready
	n.page = 1
	n.logger.Debug("viewer loaded", zap.String("source", n.source), zap.Int("pages", doc.NumPages()))
	if n.pending > 0 {
		target := n.pending
		n.pending = 0
		n.GoTo(target)
	}
	return true
}

// Fail records a parse failure. The viewer does not retry.
func (n *Navigator) Fail(token uint64, err error) bool {
	if token != n.token || n.phase != Loading {
		return false
	}
	n.phase = Failed
	n.err = err
	n.pending = 0
	n.logger.Debug("viewer failed to load", zap.String("source", n.source), zap.Error(err))
	return true
}

// Prev moves one page back; a no-op on page 1 or before the page count is known.
func (n *Navigator) Prev() bool {
	if !n.CanPrev() {
		return false
	}
	n.page--
	return true
}

// Next moves one page forward; a no-op on the last page or before the page count is known.
func (n *Navigator) Next() bool {
	if !n.CanNext() {
		return false
	}
	n.page++
	return true
}

// CanPrev reports whether Prev would move.
func (n *Navigator) CanPrev() bool {
	return n.phase == Ready && n.page > 1
}

// CanNext reports whether Next would move.
func (n *Navigator) CanNext() bool {
	return n.phase == Ready && n.page < n.doc.NumPages()
}

// GoTo applies an externally supplied target page, overriding the tracked
// pointer. Targets are clamped into the document's range; while loading they are
// deferred until the page count is known. Non-positive targets are ignored.
// In all-pages mode the target page is also scrolled into view.
func (n *Navigator) GoTo(page int) {
	if page < 1 {
		return
	}
	switch n.phase {
	case Loading:
		n.pending = page
		return
	case Ready:
	default:
		return
	}
	n.page = clamp(page, 1, max(n.doc.NumPages(), 1))
	n.target = n.page
	if n.mode == AllPages {
		n.scrollTo(n.page)
	}
}

// ToggleMode switches between single-page and all-pages display without
// touching the page pointer. Entering all-pages mode scrolls to the last
// external target, if any.
func (n *Navigator) ToggleMode() Mode {
	if n.mode == SinglePage {
		n.mode = AllPages
		if n.phase == Ready && n.target > 0 {
			n.scrollTo(n.target)
		}
	} else {
		n.mode = SinglePage
	}
	return n.mode
}

func (n *Navigator) scrollTo(page int) {
	if n.scroll != nil {
		n.scroll(page)
	}
}

// Phase returns the current lifecycle phase.
func (n *Navigator) Phase() Phase { return n.phase }

// Mode returns the display mode.
func (n *Navigator) Mode() Mode { return n.mode }

// Page returns the tracked page pointer.
func (n *Navigator) Page() int { return n.page }

// NumPages returns the page count, or 0 until it is known.
func (n *Navigator) NumPages() int {
	if n.phase != Ready {
		return 0
	}
	return n.doc.NumPages()
}

// Source returns the currently opened source name.
func (n *Navigator) Source() string { return n.source }

// Err returns the parse error in the failed phase.
func (n *Navigator) Err() error { return n.err }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
