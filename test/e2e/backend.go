// Package e2e runs the underwriter front-ends against an in-process analysis
// backend that ingests plain-text policies and cites them by page.
package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/underwriter/internal/models"
)

// Rule decides a claim that mentions Keyword. Quotes are cited from whichever
// ingested policy page contains them.
type Rule struct {
	Keyword   string
	Decision  string
	RiskLevel string
	Rationale string
	Quotes    []string
}

type ingested struct {
	policyID string
	filename string
	pages    []string
}

// Backend is a small stand-in for the analysis service. Pages are split on
// form feeds and every non-empty page counts as one chunk.
type Backend struct {
	rules []Rule

	mu       sync.Mutex
	policies map[string]*ingested
	order    []string
	analyzed []string
}

// NewBackend returns a backend that answers claims with rules.
func NewBackend(rules []Rule) *Backend {
	return &Backend{rules: rules, policies: make(map[string]*ingested)}
}

// Handler returns the HTTP API.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.Health{Status: "ok"})
	})
	r.Post("/ingest", b.handleIngest)
	r.Get("/policies", b.handlePolicies)
	r.Get("/policies/{id}", b.handlePolicy)
	r.Post("/analyze", b.handleAnalyze)
	return r
}

// Claims returns every claim text received, in order.
func (b *Backend) Claims() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.analyzed...)
}

func (b *Backend) handleIngest(w http.ResponseWriter, r *http.Request) {
	policyID := r.URL.Query().Get("policy_id")
	if policyID == "" {
		http.Error(w, "policy_id is required", http.StatusUnprocessableEntity)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusUnprocessableEntity)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	pages := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\f")

	b.mu.Lock()
	if _, ok := b.policies[policyID]; !ok {
		b.order = append(b.order, policyID)
	}
	b.policies[policyID] = &ingested{policyID: policyID, filename: header.Filename, pages: pages}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, models.IngestResult{PolicyID: policyID, ChunksIndexed: countChunks(pages)})
}

func (b *Backend) handlePolicies(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	out := make([]models.PolicySummary, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, summarize(b.policies[id]))
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handlePolicy(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	p, ok := b.policies[chi.URLParam(r, "id")]
	b.mu.Unlock()
	if !ok {
		http.Error(w, "policy not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, summarize(p))
}

func (b *Backend) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusUnprocessableEntity)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analyzed = append(b.analyzed, req.ClaimText)

	claim := strings.ToLower(req.ClaimText)
	for _, rule := range b.rules {
		if !strings.Contains(claim, strings.ToLower(rule.Keyword)) {
			continue
		}
		result := models.AnalysisResult{
			Decision:  rule.Decision,
			Rationale: rule.Rationale,
			RiskLevel: rule.RiskLevel,
			Citations: []models.Citation{},
		}
		for _, quote := range rule.Quotes {
			if c, ok := b.citeLocked(quote); ok {
				result.Citations = append(result.Citations, c)
			}
		}
		writeJSON(w, http.StatusOK, result)
		return
	}
	writeJSON(w, http.StatusOK, models.AnalysisResult{
		Decision:  "needs-review",
		Rationale: "No policy language addresses this claim.",
		RiskLevel: "medium",
		Citations: []models.Citation{},
	})
}

// citeLocked finds the first page, newest policy first, containing quote.
func (b *Backend) citeLocked(quote string) (models.Citation, bool) {
	needle := strings.ToLower(quote)
	for i := len(b.order) - 1; i >= 0; i-- {
		p := b.policies[b.order[i]]
		for n, page := range p.pages {
			if !strings.Contains(strings.ToLower(page), needle) {
				continue
			}
			return models.Citation{
				Quote:          quote,
				PageNumber:     n + 1,
				SourceFilename: p.filename,
				PolicyID:       p.policyID,
				Text:           lineContaining(page, needle),
			}, true
		}
	}
	return models.Citation{}, false
}

func lineContaining(page, needle string) string {
	for _, line := range strings.Split(page, "\n") {
		if strings.Contains(strings.ToLower(line), needle) {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

func summarize(p *ingested) models.PolicySummary {
	name := p.filename
	chunks := countChunks(p.pages)
	return models.PolicySummary{PolicyID: p.policyID, SourceFilename: &name, ChunksIndexed: &chunks}
}

func countChunks(pages []string) int {
	n := 0
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// PolicyIDs returns the ingested policy ids sorted.
func (b *Backend) PolicyIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := append([]string(nil), b.order...)
	sort.Strings(ids)
	return ids
}
