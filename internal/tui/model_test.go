package tui

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hyperjump/underwriter/internal/models"
	"github.com/hyperjump/underwriter/internal/session"
	"github.com/hyperjump/underwriter/internal/viewer"
)

type stubBackend struct {
	result   *models.AnalysisResult
	policies []models.PolicySummary
}

func (b *stubBackend) Policies(ctx context.Context) ([]models.PolicySummary, error) {
	return b.policies, nil
}

func (b *stubBackend) Ingest(ctx context.Context, policyID, filename string, content io.Reader) (*models.IngestResult, error) {
	chunks := 4
	b.policies = append(b.policies, models.PolicySummary{PolicyID: policyID, SourceFilename: &filename, ChunksIndexed: &chunks})
	return &models.IngestResult{PolicyID: policyID, ChunksIndexed: chunks}, nil
}

func (b *stubBackend) Analyze(ctx context.Context, claimText string) (*models.AnalysisResult, error) {
	return b.result, nil
}

const policyText = "Coverage\nWe cover burst pipes.\fExclusions\nNo cover for flood damage."

func testResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		Decision:  "likely-covered",
		Rationale: "pipes are covered",
		RiskLevel: "low",
		Citations: []models.Citation{
			{Quote: "burst pipes", PageNumber: 1, SourceFilename: "home.txt", Text: "We cover burst pipes."},
			{Quote: "flood damage", PageNumber: 2, SourceFilename: "home.txt"},
		},
	}
}

func newModel(t *testing.T, b *stubBackend) (Model, *session.Store) {
	t.Helper()
	store := session.New(b)
	t.Cleanup(store.Close)
	m := New(context.Background(), store, nil, Options{NoColor: true})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model), store
}

// send applies msgs in order. Returned commands are dropped: store changes
// are picked up with settle instead.
func send(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

// runOp executes cmd and fails the test on an operation error.
func runOp(t *testing.T, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			runOp(t, c)
		}
	case opDoneMsg:
		if msg.err != nil {
			t.Fatalf("%s: %v", msg.op, msg.err)
		}
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "ctrl+o":
		return tea.KeyMsg{Type: tea.KeyCtrlO}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// settle applies a store change and completes any document load.
func settle(t *testing.T, m Model) Model {
	t.Helper()
	m.wb.Refresh()
	m.refresh()
	return m
}

func TestModel_InitialView(t *testing.T) {
	m, _ := newModel(t, &stubBackend{})
	out := m.View()
	for _, want := range []string{session.StatusInitial, viewer.PlaceholderNoDocument, "No policies ingested yet."} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q:\n%s", want, out)
		}
	}
}

func TestModel_TypingUpdatesClaim(t *testing.T) {
	m, store := newModel(t, &stubBackend{})
	m = send(t, m, key("kitchen fire"))
	if got := store.Snapshot().ClaimText; got != "kitchen fire" {
		t.Errorf("ClaimText = %q", got)
	}
}

func TestModel_SelectCitationHighlights(t *testing.T) {
	b := &stubBackend{result: testResult()}
	m, store := newModel(t, b)
	ctx := context.Background()
	if err := store.Upload(ctx, "home.txt", []byte(policyText)); err != nil {
		t.Fatal(err)
	}
	store.SetClaimText("pipe")
	if err := store.Analyze(ctx); err != nil {
		t.Fatal(err)
	}
	m = settle(t, m)

	out := m.View()
	if !strings.Contains(out, "LIKELY COVERED") || !strings.Contains(out, "Page 1 of 2") {
		t.Fatalf("view after analyze:\n%s", out)
	}

	// Focus the evidence list, move to the second citation and select it.
	m = send(t, m, key("tab"), key("down"), key("enter"))
	out = m.View()
	if !strings.Contains(out, "Page 2 of 2") {
		t.Errorf("viewer did not move to page 2:\n%s", out)
	}
	if !strings.Contains(out, "[flood damage]") {
		t.Errorf("quote not highlighted:\n%s", out)
	}
	if !strings.Contains(out, "* p.2 home.txt") {
		t.Errorf("active citation not marked:\n%s", out)
	}
}

func TestModel_ViewerNavigation(t *testing.T) {
	m, store := newModel(t, &stubBackend{})
	if err := store.Upload(context.Background(), "home.txt", []byte(policyText)); err != nil {
		t.Fatal(err)
	}
	m = settle(t, m)
	m = send(t, m, key("tab"), key("tab"))
	if m.focus != focusViewer {
		t.Fatalf("focus = %v", m.focus)
	}
	m = send(t, m, key("right"))
	if m.view.Viewer.Page != 2 {
		t.Errorf("Page = %d after right", m.view.Viewer.Page)
	}
	m = send(t, m, key("right"))
	if m.view.Viewer.Page != 2 {
		t.Errorf("Page = %d, Next past the end should be a no-op", m.view.Viewer.Page)
	}
	m = send(t, m, key("left"), key("a"))
	if m.view.Viewer.Mode != viewer.AllPages || len(m.view.Viewer.Pages) != 2 {
		t.Errorf("viewer = %+v", m.view.Viewer)
	}
	if !strings.Contains(m.View(), "── Page 2 ──") {
		t.Errorf("all-pages view missing page header:\n%s", m.View())
	}
}

func TestModel_UploadPrompt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "home.txt")
	if err := os.WriteFile(path, []byte(policyText), 0o644); err != nil {
		t.Fatal(err)
	}
	m, _ := newModel(t, &stubBackend{})
	m = send(t, m, key("ctrl+o"))
	if m.focus != focusUpload {
		t.Fatalf("focus = %v", m.focus)
	}
	m = send(t, m, key(path))
	next, cmd := m.Update(key("enter"))
	m = next.(Model)
	if m.focus != focusClaim {
		t.Errorf("focus = %v after enter", m.focus)
	}
	if cmd == nil {
		t.Fatal("no upload command")
	}
	runOp(t, cmd)
	m = settle(t, m)
	out := m.View()
	if !strings.Contains(out, "Ingested 4 chunks from home.txt.") {
		t.Errorf("status missing:\n%s", out)
	}
	if !strings.Contains(out, "home.txt  4 chunks") {
		t.Errorf("policy row missing:\n%s", out)
	}
}

func TestModel_UploadPromptEscape(t *testing.T) {
	m, store := newModel(t, &stubBackend{})
	m = send(t, m, key("ctrl+o"), key("x"), key("esc"))
	if m.focus != focusClaim {
		t.Errorf("focus = %v", m.focus)
	}
	if store.Snapshot().Status != session.StatusInitial {
		t.Errorf("status changed: %q", store.Snapshot().Status)
	}
}

func TestRenderViewer_PageLines(t *testing.T) {
	v := viewer.View{
		Mode: viewer.AllPages,
		Pages: []viewer.PageView{
			{Number: 1, Fragments: []viewer.FragmentView{{}, {}}},
			{Number: 2, Fragments: []viewer.FragmentView{{}}},
		},
	}
	_, lines := renderViewer(v, true)
	// Page 1: header, two fragments, blank line.
	if lines[1] != 0 || lines[2] != 4 {
		t.Errorf("lines = %v", lines)
	}
}
