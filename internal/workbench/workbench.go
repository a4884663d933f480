// Package workbench wires the session store to the document viewer, the
// evidence list and the policy list, and re-derives their state from the store
// after every change.
package workbench

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/hyperjump/underwriter/internal/document"
	"github.com/hyperjump/underwriter/internal/evidence"
	"github.com/hyperjump/underwriter/internal/policylist"
	"github.com/hyperjump/underwriter/internal/session"
	"github.com/hyperjump/underwriter/internal/viewer"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	defaultCacheTTL     = 30 * time.Minute
	defaultCacheCleanup = 10 * time.Minute
)

// Load is a document the viewer is waiting for. Pass it to Complete once,
// possibly from another goroutine.
type Load struct {
	Token uint64
	Name  string
	Data  []byte
}

// View is a consistent rendering of the whole screen.
type View struct {
	State    session.State
	Quote    string
	Evidence evidence.View
	Policies policylist.View
	Viewer   viewer.View
}

// Option configures a Workbench.
type Option func(*Workbench)

// WithLogger sets the logger passed down to the viewer.
func WithLogger(l *zap.Logger) Option {
	return func(w *Workbench) { w.logger = l }
}

// WithScroller sets the viewer's all-pages scroll effect. fn runs with the
// workbench lock held and must not call back into the Workbench.
func WithScroller(fn viewer.ScrollFunc) Option {
	return func(w *Workbench) { w.scroll = fn }
}

// WithCacheTTL sets how long parsed documents are kept. Zero or less keeps
// them for the life of the workbench.
func WithCacheTTL(d time.Duration) Option {
	return func(w *Workbench) { w.cacheTTL = d }
}

// Workbench is safe for concurrent use.
type Workbench struct {
	store    *session.Store
	logger   *zap.Logger
	scroll   viewer.ScrollFunc
	cacheTTL time.Duration
	parsed   *cache.Cache

	mu       sync.Mutex
	nav      *viewer.Navigator
	evidence *evidence.List
	policies *policylist.List
	lastSel  session.Selection
	uploads  uint64
}

// New returns a Workbench over store.
func New(store *session.Store, opts ...Option) *Workbench {
	w := &Workbench{
		store:    store,
		logger:   zap.NewNop(),
		cacheTTL: defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.parsed = cache.New(w.cacheTTL, defaultCacheCleanup)
	w.nav = viewer.New(viewer.WithScroller(w.scroll), viewer.WithLogger(w.logger))
	w.evidence = evidence.NewList(store.SelectCitation)
	w.policies = policylist.NewList(policylist.Inert)
	return w
}

// Store returns the underlying session store.
func (w *Workbench) Store() *session.Store { return w.store }

// Sync reconciles the viewer with the store. When the document to show
// changed, the viewer starts loading it and the returned Load must be
// completed. A changed selection moves the viewer to the cited page.
func (w *Workbench) Sync() (Load, bool) {
	st := w.store.Snapshot()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.evidence.SetResult(st.Analysis)

	var (
		load    Load
		loading bool
	)
	name := w.sourceFor(st)
	if name != w.nav.Source() || st.Uploads != w.uploads {
		w.uploads = st.Uploads
		if name == "" {
			w.nav.Close()
		} else if data, ok := w.store.Document(name); ok {
			load = Load{Token: w.nav.Open(name), Name: name, Data: data}
			loading = true
		}
	}

	if st.Selection != w.lastSel {
		w.lastSel = st.Selection
		if c, ok := st.SelectedCitation(); ok {
			w.nav.GoTo(c.PageNumber)
		}
	}
	return load, loading
}

// sourceFor picks the selected citation's document when it was uploaded in this
// session, else the most recent upload.
func (w *Workbench) sourceFor(st session.State) string {
	if c, ok := st.SelectedCitation(); ok && c.SourceFilename != "" {
		if _, ok := w.store.Document(c.SourceFilename); ok {
			return c.SourceFilename
		}
	}
	return st.Document
}

// Complete parses a pending document and hands it to the viewer. Parsed
// documents are cached by name and content.
func (w *Workbench) Complete(l Load) {
	doc, err := w.parse(l.Name, l.Data)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.nav.Fail(l.Token, err)
		return
	}
	w.nav.Loaded(l.Token, doc)
}

func (w *Workbench) parse(name string, data []byte) (*document.Document, error) {
	h := fnv.New64a()
	_, _ = h.Write(data)
	key := fmt.Sprintf("%s:%x", name, h.Sum64())
	if v, ok := w.parsed.Get(key); ok {
		return v.(*document.Document), nil
	}
	doc, err := document.Parse(name, data)
	if err != nil {
		return nil, err
	}
	w.parsed.Set(key, doc, cache.DefaultExpiration)
	return doc, nil
}

// Refresh runs Sync and completes any load in the calling goroutine.
func (w *Workbench) Refresh() {
	if l, ok := w.Sync(); ok {
		w.Complete(l)
	}
}

// SelectCitation selects the citation at index in the evidence list and moves
// the viewer to its page. It reports false for an out-of-range index.
func (w *Workbench) SelectCitation(index int) bool {
	w.mu.Lock()
	list := *w.evidence
	w.mu.Unlock()
	// The store notifies its listeners from Click; the lock is not held.
	if !list.Click(index) {
		return false
	}
	w.Refresh()
	return true
}

// ClickPolicy forwards a click on a policy row. Analysis always covers the
// whole corpus, so this changes nothing.
func (w *Workbench) ClickPolicy(policyID string) {
	w.policies.Click(policyID)
}

// Prev moves the viewer one page back.
func (w *Workbench) Prev() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nav.Prev()
}

// Next moves the viewer one page forward.
func (w *Workbench) Next() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nav.Next()
}

// ToggleMode switches the viewer between single-page and all-pages display.
func (w *Workbench) ToggleMode() viewer.Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nav.ToggleMode()
}

// View renders the current state. Call Sync first to pick up store changes.
func (w *Workbench) View() View {
	st := w.store.Snapshot()
	var quote string
	if c, ok := st.SelectedCitation(); ok {
		quote = c.Quote
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return View{
		State:    st,
		Quote:    quote,
		Evidence: evidence.Project(st.Analysis, st.Selection.Quote, st.Selection.Set),
		Policies: policylist.Project(st.Policies, ""),
		Viewer:   w.nav.Render(quote),
	}
}

// Matches counts highlights per page of the open document for the selected quote.
func (w *Workbench) Matches() map[int]int {
	st := w.store.Snapshot()
	var quote string
	if c, ok := st.SelectedCitation(); ok {
		quote = c.Quote
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nav.Matches(quote)
}
