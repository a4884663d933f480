// Package session holds the in-memory state of one user session and
// orchestrates the upload and analysis round trips against the backend.
//
// Operations block until the backend answers; front-ends call them off their
// render loop. Each Upload and Analyze takes a request generation, and a
// response whose generation is no longer current is discarded, so a stale
// response never overwrites state produced by a newer request.
package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/hyperjump/underwriter/internal/models"
	"go.uber.org/zap"
)

// Status messages.
const (
	StatusInitial       = "Upload policies to begin."
	StatusBlankClaim    = "Enter a claim description."
	StatusAnalyzing     = "Analyzing claim..."
	StatusAnalyzed      = "Analysis complete."
	StatusAnalyzeFailed = "Failed to analyze claim."
	StatusIngestFailed  = "Failed to ingest policy."
)

const (
	statusUploadingFmt = "Uploading %s..."
	statusIngestedFmt  = "Ingested %d chunks from %s."
	notificationFmt    = "✓ Successfully ingested %d chunks from %s"
	policyIDPrefix     = "policy-"
)

// DefaultNotifyTimeout is how long a notification stays visible.
const DefaultNotifyTimeout = 4000 * time.Millisecond

var (
	// ErrBlankClaim is returned by Analyze when the claim text is blank.
	ErrBlankClaim = errors.New("claim text is blank")
	// ErrSuperseded is returned when a newer request replaced this one before it completed.
	ErrSuperseded = errors.New("request superseded by a newer one")
)

// Backend is the analysis service as seen by the store.
type Backend interface {
	Policies(ctx context.Context) ([]models.PolicySummary, error)
	Ingest(ctx context.Context, policyID, filename string, content io.Reader) (*models.IngestResult, error)
	Analyze(ctx context.Context, claimText string) (*models.AnalysisResult, error)
}

// Selection references the active citation by its quote.
type Selection struct {
	Quote string
	Set   bool
}

// State is a snapshot of the session.
type State struct {
	ClaimText    string
	Analysis     *models.AnalysisResult
	Selection    Selection
	Policies     []models.PolicySummary
	Status       string
	Notification string
	Uploading    bool
	Analyzing    bool
	// Document is the name of the most recently uploaded document.
	Document string
	// Uploads counts successful uploads; it changes when Document's content may
	// have changed under the same name.
	Uploads uint64
}

// SelectedCitation returns the first citation matching the selection.
func (s State) SelectedCitation() (models.Citation, bool) {
	if !s.Selection.Set {
		return models.Citation{}, false
	}
	return s.Analysis.CitationByQuote(s.Selection.Quote)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a logger for diagnostics (debug level).
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces time.Now, used for policy ids.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithNotifyTimeout sets how long a notification stays visible.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Store) { s.notifyTimeout = d }
}

// Store is the session state store. It is safe for concurrent use.
type Store struct {
	backend       Backend
	logger        *zap.Logger
	now           func() time.Time
	notifyTimeout time.Duration

	mu         sync.Mutex
	state      State
	documents  map[string][]byte
	uploadGen  uint64
	analyzeGen uint64
	notifyGen  uint64
	notifyTmr  *time.Timer
	listeners  []func()
}

// New returns a Store backed by backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:       backend,
		logger:        zap.NewNop(),
		now:           time.Now,
		notifyTimeout: DefaultNotifyTimeout,
		state:         State{Status: StatusInitial},
		documents:     make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn to be called after every state change.
// fn runs without the store lock held and may call Snapshot.
func (s *Store) Subscribe(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Policies = append([]models.PolicySummary(nil), s.state.Policies...)
	return st
}

// Document returns the bytes of an uploaded document by name.
func (s *Store) Document(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.documents[name]
	return data, ok
}

// SetClaimText replaces the claim text.
func (s *Store) SetClaimText(text string) {
	s.commit(func(st *State) bool {
		st.ClaimText = text
		return true
	})
}

// SelectCitation makes quote the active selection. Selecting the active quote
// again keeps it active.
func (s *Store) SelectCitation(quote string) {
	s.commit(func(st *State) bool {
		st.Selection = Selection{Quote: quote, Set: true}
		return true
	})
}

// RefreshPolicies replaces the policy list with the backend's. Any failure
// leaves the list untouched and is only logged.
func (s *Store) RefreshPolicies(ctx context.Context) error {
	s.logger.Debug("fetching policies")
	policies, err := s.backend.Policies(ctx)
	if err != nil {
		s.logger.Debug("policies fetch failed", zap.Error(err))
		return err
	}
	s.logger.Debug("policies fetched", zap.Int("count", len(policies)))
	s.commit(func(st *State) bool {
		st.Policies = policies
		return true
	})
	return nil
}

// commit runs fn under the lock and, when fn reports a change, notifies
// listeners after unlocking. It returns fn's result.
func (s *Store) commit(fn func(st *State) bool) bool {
	s.mu.Lock()
	changed := fn(&s.state)
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	if changed {
		for _, l := range listeners {
			l()
		}
	}
	return changed
}

// showNotificationLocked replaces the notification and schedules its removal.
// Callers hold s.mu.
func (s *Store) showNotificationLocked(msg string) {
	s.notifyGen++
	id := s.notifyGen
	s.state.Notification = msg
	if s.notifyTmr != nil {
		s.notifyTmr.Stop()
	}
	s.notifyTmr = time.AfterFunc(s.notifyTimeout, func() {
		s.commit(func(st *State) bool {
			if s.notifyGen != id {
				return false
			}
			st.Notification = ""
			return true
		})
	})
}

// Close stops the notification timer.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifyTmr != nil {
		s.notifyTmr.Stop()
		s.notifyTmr = nil
	}
}
