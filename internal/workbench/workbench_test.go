package workbench

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/underwriter/internal/models"
	"github.com/hyperjump/underwriter/internal/session"
	"github.com/hyperjump/underwriter/internal/viewer"
	"go.uber.org/zap/zaptest"
)

type stubBackend struct {
	result *models.AnalysisResult
}

func (b *stubBackend) Policies(ctx context.Context) ([]models.PolicySummary, error) {
	return nil, nil
}

func (b *stubBackend) Ingest(ctx context.Context, policyID, filename string, content io.Reader) (*models.IngestResult, error) {
	return &models.IngestResult{PolicyID: policyID, ChunksIndexed: 3}, nil
}

func (b *stubBackend) Analyze(ctx context.Context, claimText string) (*models.AnalysisResult, error) {
	return b.result, nil
}

// policyText has three pages separated by form feeds.
const policyText = "Section 1 Coverage\nWe cover burst pipes.\f" +
	"Section 2 Exclusions\nNo cover for flood damage.\f" +
	"Section 3 Claims\nFlood damage claims and burst pipe claims go to review."

func newWorkbench(t *testing.T, result *models.AnalysisResult, opts ...Option) *Workbench {
	t.Helper()
	store := session.New(&stubBackend{result: result})
	t.Cleanup(store.Close)
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return New(store, opts...)
}

func uploadAndAnalyze(t *testing.T, w *Workbench) {
	t.Helper()
	ctx := context.Background()
	if err := w.Store().Upload(ctx, "home.txt", []byte(policyText)); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	w.Refresh()
	w.Store().SetClaimText("pipe burst and flood")
	if err := w.Store().Analyze(ctx); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	w.Refresh()
}

func sampleResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		Decision:  "needs-review",
		Rationale: "mixed causes",
		RiskLevel: "medium",
		Citations: []models.Citation{
			{Quote: "burst pipes", PageNumber: 1, SourceFilename: "home.txt", Text: "We cover burst pipes."},
			{Quote: "flood damage", PageNumber: 2, SourceFilename: "home.txt", Text: "No cover for flood damage."},
			{Quote: "not in document", PageNumber: 9, SourceFilename: "other.pdf"},
		},
	}
}

func TestWorkbench_NoDocument(t *testing.T) {
	w := newWorkbench(t, nil)
	if _, ok := w.Sync(); ok {
		t.Fatal("no load expected before upload")
	}
	v := w.View()
	if v.Viewer.Phase != viewer.NoDocument || v.Viewer.Placeholder != viewer.PlaceholderNoDocument {
		t.Errorf("viewer = %+v", v.Viewer)
	}
	if !v.Policies.Empty || v.Evidence.HasResult {
		t.Errorf("unexpected view %+v", v)
	}
	if v.State.Status != session.StatusInitial {
		t.Errorf("Status = %q", v.State.Status)
	}
}

func TestWorkbench_UploadLoadsDocument(t *testing.T) {
	w := newWorkbench(t, nil)
	if err := w.Store().Upload(context.Background(), "home.txt", []byte(policyText)); err != nil {
		t.Fatal(err)
	}
	l, ok := w.Sync()
	if !ok || l.Name != "home.txt" {
		t.Fatalf("Sync = %+v, %v", l, ok)
	}
	if got := w.View().Viewer; got.Phase != viewer.Loading || got.Placeholder != viewer.PlaceholderLoading {
		t.Errorf("before Complete: %+v", got)
	}
	w.Complete(l)
	v := w.View().Viewer
	if v.Phase != viewer.Ready || v.NumPages != 3 || v.Page != 1 || v.Label != "Page 1 of 3" {
		t.Errorf("after Complete: %+v", v)
	}
	if _, ok := w.Sync(); ok {
		t.Error("second Sync should not reload")
	}
}

func TestWorkbench_SelectCitationMovesPage(t *testing.T) {
	w := newWorkbench(t, sampleResult())
	uploadAndAnalyze(t, w)

	if !w.SelectCitation(1) {
		t.Fatal("SelectCitation(1) = false")
	}
	v := w.View()
	if v.Viewer.Page != 2 {
		t.Errorf("Page = %d, want 2", v.Viewer.Page)
	}
	if v.Quote != "flood damage" {
		t.Errorf("Quote = %q", v.Quote)
	}
	if !v.Evidence.Items[1].Active || v.Evidence.Items[0].Active {
		t.Errorf("active items wrong: %+v", v.Evidence.Items)
	}
	if len(v.Viewer.Pages) != 1 || v.Viewer.Pages[0].Matches != 1 {
		t.Errorf("pages = %+v", v.Viewer.Pages)
	}
	// Case-insensitive: "Flood damage" on page 3 counts too.
	if m := w.Matches(); m[2] != 1 || m[3] != 1 {
		t.Errorf("Matches = %v", m)
	}

	if w.SelectCitation(7) {
		t.Error("out of range index selected")
	}
}

func TestWorkbench_ReselectKeepsPage(t *testing.T) {
	w := newWorkbench(t, sampleResult())
	uploadAndAnalyze(t, w)

	w.SelectCitation(0)
	if !w.Next() || !w.Next() {
		t.Fatal("Next failed")
	}
	w.SelectCitation(0)
	v := w.View()
	if v.Viewer.Page != 3 {
		t.Errorf("Page = %d, want 3 after re-selecting the active citation", v.Viewer.Page)
	}
	if !v.State.Selection.Set || v.State.Selection.Quote != "burst pipes" {
		t.Errorf("selection = %+v", v.State.Selection)
	}
}

func TestWorkbench_TargetClamped(t *testing.T) {
	w := newWorkbench(t, sampleResult())
	uploadAndAnalyze(t, w)

	// Page 9 of other.pdf: the document is not in this session, so the latest
	// upload stays open and the target clamps to its last page.
	w.SelectCitation(2)
	v := w.View()
	if v.Viewer.Source != "home.txt" || v.Viewer.Page != 3 {
		t.Errorf("viewer = %s page %d", v.Viewer.Source, v.Viewer.Page)
	}
	if len(v.Viewer.Pages) != 1 || v.Viewer.Pages[0].Matches != 0 {
		t.Errorf("unexpected highlights %+v", v.Viewer.Pages)
	}
}

func TestWorkbench_AllPagesScroll(t *testing.T) {
	var scrolled []int
	w := newWorkbench(t, sampleResult(), WithScroller(func(page int) { scrolled = append(scrolled, page) }))
	uploadAndAnalyze(t, w)

	w.SelectCitation(1)
	if len(scrolled) != 0 {
		t.Fatalf("scrolled in single-page mode: %v", scrolled)
	}
	if mode := w.ToggleMode(); mode != viewer.AllPages {
		t.Fatalf("mode = %v", mode)
	}
	if len(scrolled) != 1 || scrolled[0] != 2 {
		t.Errorf("scrolled = %v, want [2]", scrolled)
	}
	v := w.View().Viewer
	if len(v.Pages) != 3 || v.ToggleLabel != "Single page" {
		t.Errorf("all pages view = %+v", v)
	}
	w.SelectCitation(0)
	if scrolled[len(scrolled)-1] != 1 {
		t.Errorf("scrolled = %v", scrolled)
	}
}

func TestWorkbench_UploadClearsSelection(t *testing.T) {
	w := newWorkbench(t, sampleResult())
	uploadAndAnalyze(t, w)
	w.SelectCitation(1)

	updated := strings.Replace(policyText, "Section 1", "Part 1", 1)
	if err := w.Store().Upload(context.Background(), "home.txt", []byte(updated)); err != nil {
		t.Fatal(err)
	}
	l, ok := w.Sync()
	if !ok {
		t.Fatal("re-upload under the same name should reload")
	}
	w.Complete(l)
	v := w.View()
	if v.Evidence.HasResult || v.Quote != "" || v.State.Selection.Set {
		t.Errorf("selection survived upload: %+v", v.State.Selection)
	}
	if v.Viewer.Page != 1 {
		t.Errorf("Page = %d", v.Viewer.Page)
	}
	if got := v.Viewer.Pages[0].Fragments[0].Segments[0].Text; got != "Part 1 Coverage" {
		t.Errorf("first fragment = %q", got)
	}
}

func TestWorkbench_StaleLoadIgnored(t *testing.T) {
	w := newWorkbench(t, nil)
	ctx := context.Background()
	_ = w.Store().Upload(ctx, "a.txt", []byte("alpha"))
	first, _ := w.Sync()
	_ = w.Store().Upload(ctx, "b.txt", []byte("beta\fgamma"))
	second, _ := w.Sync()

	w.Complete(second)
	w.Complete(first)
	v := w.View().Viewer
	if v.Source != "b.txt" || v.NumPages != 2 {
		t.Errorf("viewer = %s with %d pages", v.Source, v.NumPages)
	}
}

func TestWorkbench_ParsedDocumentCacheTTL(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want int
	}{
		{"default keeps document", nil, 1},
		{"short ttl expires document", []Option{WithCacheTTL(20 * time.Millisecond)}, 0},
		{"negative ttl never expires", []Option{WithCacheTTL(-1)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorkbench(t, nil, tt.opts...)
			if err := w.Store().Upload(context.Background(), "home.txt", []byte(policyText)); err != nil {
				t.Fatal(err)
			}
			w.Refresh()
			if n := w.parsed.ItemCount(); n != 1 {
				t.Fatalf("cached documents = %d, want 1", n)
			}
			time.Sleep(60 * time.Millisecond)
			if n := len(w.parsed.Items()); n != tt.want {
				t.Errorf("live cached documents = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestWorkbench_UnsupportedDocumentFails(t *testing.T) {
	w := newWorkbench(t, nil)
	_ = w.Store().Upload(context.Background(), "scan.tiff", []byte{0x49, 0x49})
	w.Refresh()
	v := w.View().Viewer
	if v.Phase != viewer.Failed || v.Placeholder != viewer.PlaceholderFailed {
		t.Errorf("viewer = %+v", v)
	}
}

func TestWorkbench_ClickPolicyIsInert(t *testing.T) {
	w := newWorkbench(t, sampleResult())
	uploadAndAnalyze(t, w)
	before := w.View()
	w.ClickPolicy("policy-1")
	after := w.View()
	if before.State.Status != after.State.Status || after.Evidence.Items == nil {
		t.Error("policy click changed state")
	}
}
