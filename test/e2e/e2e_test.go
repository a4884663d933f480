package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/underwriter/internal/backend"
	"github.com/hyperjump/underwriter/internal/cli"
	"github.com/hyperjump/underwriter/internal/config"
	"github.com/hyperjump/underwriter/internal/server"
	"github.com/hyperjump/underwriter/internal/session"
	"github.com/hyperjump/underwriter/internal/watcher"
	"go.uber.org/zap/zaptest"
)

// state mirrors the fields of GET /api/v1/state the tests read.
type state struct {
	Status    string      `json:"status"`
	Decision  string      `json:"decision"`
	Citations int         `json:"citations"`
	Selected  string      `json:"selected_quote"`
	Policies  []string    `json:"policies"`
	Document  string      `json:"document"`
	Phase     string      `json:"viewer_phase"`
	Page      int         `json:"page"`
	NumPages  int         `json:"num_pages"`
	Matches   map[int]int `json:"matches_by_page"`
	Uploading bool        `json:"uploading"`
	Analyzing bool        `json:"analyzing"`
}

type harness struct {
	backend *Backend
	store   *session.Store
	web     *httptest.Server
}

// tickingClock returns distinct milliseconds so back-to-back uploads get
// distinct policy ids.
func tickingClock() func() time.Time {
	var n atomic.Int64
	base := time.UnixMilli(1700000000000)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Millisecond)
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	fake := NewBackend(Rules)
	api := httptest.NewServer(fake.Handler())
	t.Cleanup(api.Close)

	client := backend.New(api.URL, backend.WithLogger(logger), backend.WithTimeout(5*time.Second))
	store := session.New(client, session.WithLogger(logger), session.WithClock(tickingClock()))
	t.Cleanup(store.Close)

	srv := server.NewServer(store, &config.ServerConfig{Host: "localhost", Port: 0}, []string{".pdf", ".txt"}, logger, nil)
	web := httptest.NewServer(srv.Handler())
	t.Cleanup(web.Close)
	return &harness{backend: fake, store: store, web: web}
}

func (h *harness) post(t *testing.T, path string, form url.Values) {
	t.Helper()
	resp, err := http.PostForm(h.web.URL+path, form)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST %s: status %d", path, resp.StatusCode)
	}
}

func (h *harness) upload(t *testing.T, p Policy) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", p.Filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write(p.Content())
	_ = mw.Close()
	resp, err := http.Post(h.web.URL+"/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload %s: status %d", p.Filename, resp.StatusCode)
	}
}

func (h *harness) state(t *testing.T) state {
	t.Helper()
	resp, err := http.Get(h.web.URL + "/api/v1/state")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var st state
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	return st
}

func (h *harness) page(t *testing.T) string {
	t.Helper()
	resp, err := http.Get(h.web.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestE2E_UploadAnalyzeAndSelect(t *testing.T) {
	h := newHarness(t)
	h.upload(t, HomePolicy)
	h.upload(t, AutoPolicy)

	st := h.state(t)
	if len(st.Policies) != 2 {
		t.Fatalf("policies after two uploads = %v", st.Policies)
	}
	if st.Document != AutoPolicy.Filename || st.Phase != "loaded" || st.NumPages != len(AutoPolicy.Pages) {
		t.Fatalf("viewer after uploads: %+v", st)
	}
	if !strings.Contains(st.Status, "Ingested 2 chunks from "+AutoPolicy.Filename) {
		t.Errorf("status = %q", st.Status)
	}

	for _, sc := range Scenarios {
		t.Run(sc.Claim, func(t *testing.T) {
			h.post(t, "/analyze", url.Values{"claim": {sc.Claim}})
			st := h.state(t)
			if st.Decision != sc.Decision {
				t.Fatalf("decision = %q, want %q", st.Decision, sc.Decision)
			}
			if st.Citations != len(sc.Citations) {
				t.Fatalf("citations = %d, want %d", st.Citations, len(sc.Citations))
			}
			if st.Selected != "" {
				t.Errorf("selection not cleared by a new analysis: %q", st.Selected)
			}

			for i, want := range sc.Citations {
				h.post(t, fmt.Sprintf("/citations/%d/select", i), nil)
				st := h.state(t)
				if st.Selected != want.Quote {
					t.Errorf("selected = %q, want %q", st.Selected, want.Quote)
				}
				if st.Document != want.Filename {
					t.Errorf("document = %q, want %q", st.Document, want.Filename)
				}
				if st.Page != want.Page {
					t.Errorf("page = %d, want %d", st.Page, want.Page)
				}
				if st.Matches[want.Page] == 0 {
					t.Errorf("no highlight on page %d: %v", want.Page, st.Matches)
				}
			}
		})
	}

	claims := h.backend.Claims()
	if len(claims) != len(Scenarios) || claims[0] != Scenarios[0].Claim {
		t.Errorf("backend received claims %q", claims)
	}
}

func TestE2E_HighlightRendersOnCitedPage(t *testing.T) {
	h := newHarness(t)
	h.upload(t, HomePolicy)
	h.post(t, "/analyze", url.Values{"claim": {"flood in the basement"}})
	h.post(t, "/citations/0/select", nil)

	body := h.page(t)
	for _, want := range []string{
		`<mark class="evidence-highlight">`,
		`<mark class="pdf-highlight">Flood Damage</mark>`,
		"Page 3 of 4",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}

	// All-pages mode shows both flood mentions and scrolls to the cited page.
	h.post(t, "/viewer/mode", nil)
	h.post(t, "/citations/1/select", nil)
	h.post(t, "/citations/0/select", nil)
	st := h.state(t)
	if st.Matches[3] != 1 || st.Matches[4] != 1 {
		t.Errorf("matches by page = %v, want pages 3 and 4", st.Matches)
	}
}

func TestE2E_ReselectKeepsManualPage(t *testing.T) {
	h := newHarness(t)
	h.upload(t, HomePolicy)
	h.post(t, "/analyze", url.Values{"claim": {"pipe burst"}})
	h.post(t, "/citations/0/select", nil)
	if st := h.state(t); st.Page != 2 {
		t.Fatalf("page = %d, want 2", st.Page)
	}
	h.post(t, "/viewer/next", nil)
	h.post(t, "/citations/0/select", nil)
	if st := h.state(t); st.Page != 3 {
		t.Errorf("re-selecting the same citation moved the page to %d", st.Page)
	}
}

func TestE2E_BlankClaimIsNotSent(t *testing.T) {
	h := newHarness(t)
	h.post(t, "/analyze", url.Values{"claim": {"   \n"}})
	if got := h.backend.Claims(); len(got) != 0 {
		t.Errorf("backend received %q", got)
	}
	if st := h.state(t); st.Status != session.StatusBlankClaim {
		t.Errorf("status = %q", st.Status)
	}
}

func TestE2E_UnmatchedClaimNeedsReview(t *testing.T) {
	h := newHarness(t)
	h.upload(t, HomePolicy)
	h.post(t, "/analyze", url.Values{"claim": {"My bicycle was stolen."}})
	st := h.state(t)
	if st.Decision != "needs-review" || st.Citations != 0 {
		t.Errorf("state = %+v", st)
	}
	body := h.page(t)
	if !strings.Contains(body, "NEEDS REVIEW") || !strings.Contains(body, "No policy language addresses this claim.") {
		t.Error("decision not rendered")
	}
}

func TestE2E_InboxUploadsDroppedPolicy(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	inbox := watcher.New([]string{dir}, []string{".txt"}, true, h.store,
		watcher.WithLogger(zaptest.NewLogger(t)),
		watcher.WithDebounce(50*time.Millisecond),
		watcher.WithRate(0),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := inbox.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer inbox.Stop()

	if err := os.WriteFile(filepath.Join(dir, HomePolicy.Filename), HomePolicy.Content(), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		st := h.state(t)
		if st.Document == HomePolicy.Filename && len(st.Policies) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("inbox file never uploaded: %+v", st)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestE2E_CLIAnalysisOutput(t *testing.T) {
	fake := NewBackend(Rules)
	api := httptest.NewServer(fake.Handler())
	defer api.Close()
	client := backend.New(api.URL)
	ctx := context.Background()

	if _, err := client.Ingest(ctx, session.NewPolicyID(time.Now()), HomePolicy.Filename, bytes.NewReader(HomePolicy.Content())); err != nil {
		t.Fatal(err)
	}
	result, err := client.Analyze(ctx, Scenarios[0].Claim)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := cli.WriteAnalysis(&out, result, cli.OutputText, false); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Decision: LIKELY EXCLUDED (HIGH RISK)",
		"1. Page 3 · " + HomePolicy.Filename,
		"We do not cover [Flood Damage], including surface water",
		"including [surface water] and overflow",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("CLI output missing %q:\n%s", want, out.String())
		}
	}

	health, err := client.Health(ctx)
	if err != nil || health.Status != "ok" {
		t.Errorf("health = %+v, %v", health, err)
	}
	policies, err := client.Policies(ctx)
	if err != nil || len(policies) != 1 {
		t.Fatalf("policies = %+v, %v", policies, err)
	}
	p, err := client.Policy(ctx, policies[0].PolicyID)
	if err != nil || p.Chunks() != len(HomePolicy.Pages) {
		t.Errorf("policy = %+v, %v", p, err)
	}
}
