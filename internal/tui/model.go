// Package tui is the terminal front-end: claim entry, policy list, evidence
// list and document viewer in one Bubble Tea program.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hyperjump/underwriter/internal/session"
	"github.com/hyperjump/underwriter/internal/viewer"
	"github.com/hyperjump/underwriter/internal/workbench"
	"go.uber.org/zap"
)

type focus int

const (
	focusClaim focus = iota
	focusEvidence
	focusViewer
	focusUpload
)

// Options configures the terminal UI.
type Options struct {
	NoColor bool
	Logger  *zap.Logger
	// UploadDir prefills the upload path prompt.
	UploadDir string
	// DocumentCacheTTL is how long parsed documents stay cached; zero uses the
	// workbench default.
	DocumentCacheTTL time.Duration
}

// Model is the Bubble Tea model of the terminal UI.
type Model struct {
	ctx     context.Context
	wb      *workbench.Workbench
	store   *session.Store
	changes <-chan struct{}
	logger  *zap.Logger
	noColor bool

	claim     textarea.Model
	path      textinput.Model
	pages     viewport.Model
	focus     focus
	cursor    int
	uploadDir string

	// scroll receives all-pages scroll targets from the viewer; 0 when none.
	scroll *atomic.Int64
	// pageLines maps a page number to its first line in the all-pages content.
	pageLines map[int]int
	// shown is the source and page last rendered in single-page mode.
	shown  string
	view   workbench.View
	width  int
	height int
}

// changedMsg reports a store change.
type changedMsg struct{}

// loadedMsg reports that a pending document finished parsing.
type loadedMsg struct{}

// opDoneMsg reports the end of an upload or analysis.
type opDoneMsg struct {
	op  string
	err error
}

// New returns a Model over store. changes must receive a value after store
// changes; see Run.
func New(ctx context.Context, store *session.Store, changes <-chan struct{}, opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	scroll := new(atomic.Int64)
	wbOpts := []workbench.Option{
		workbench.WithLogger(logger),
		workbench.WithScroller(func(page int) { scroll.Store(int64(page)) }),
	}
	if opts.DocumentCacheTTL != 0 {
		wbOpts = append(wbOpts, workbench.WithCacheTTL(opts.DocumentCacheTTL))
	}
	wb := workbench.New(store, wbOpts...)

	claim := textarea.New()
	claim.Placeholder = "Describe the claim..."
	claim.ShowLineNumbers = false
	claim.CharLimit = 4000
	claim.SetWidth(40)
	claim.SetHeight(4)
	claim.SetValue(store.Snapshot().ClaimText)
	claim.Focus()

	path := textinput.New()
	path.Placeholder = "/path/to/policy.pdf"
	path.CharLimit = 1024
	path.Width = 50

	m := Model{
		ctx:       ctx,
		wb:        wb,
		store:     store,
		changes:   changes,
		logger:    logger,
		noColor:   opts.NoColor,
		claim:     claim,
		path:      path,
		pages:     viewport.New(60, 20),
		uploadDir: opts.UploadDir,
		scroll:    scroll,
		pageLines: map[int]int{},
	}
	m.view = wb.View()
	m.renderPages()
	return m
}

// Init waits for the first store change and loads the initial policy list.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForChange(m.changes), m.refreshPoliciesCmd())
}

// Update handles keys, window resizes and store changes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(typed.Width, typed.Height)
		m.renderPages()
		return m, nil
	case changedMsg:
		cmd := m.sync()
		return m, tea.Batch(cmd, waitForChange(m.changes))
	case loadedMsg:
		m.refresh()
		return m, nil
	case opDoneMsg:
		if typed.err != nil {
			m.logger.Debug("operation finished with error", zap.String("op", typed.op), zap.Error(typed.err))
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(typed)
	}
	return m, nil
}

func (m Model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "ctrl+s":
		return m, m.analyzeCmd()
	case "ctrl+o":
		return m.openUploadPrompt()
	case "tab":
		return m.cycleFocus(1)
	case "shift+tab":
		return m.cycleFocus(-1)
	}

	switch m.focus {
	case focusClaim:
		var cmd tea.Cmd
		m.claim, cmd = m.claim.Update(key)
		if v := m.claim.Value(); v != m.view.State.ClaimText {
			m.store.SetClaimText(v)
			m.view.State.ClaimText = v
		}
		return m, cmd
	case focusUpload:
		return m.handleUploadKey(key)
	case focusEvidence:
		return m.handleEvidenceKey(key)
	case focusViewer:
		return m.handleViewerKey(key)
	}
	return m, nil
}

func (m Model) handleUploadKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "esc":
		m.path.Blur()
		return m.setFocus(focusClaim)
	case "enter":
		p := strings.TrimSpace(m.path.Value())
		m.path.Blur()
		next, focusCmd := m.setFocus(focusClaim)
		if p == "" {
			return next, focusCmd
		}
		return next, tea.Batch(focusCmd, next.(Model).uploadCmd(p))
	}
	var cmd tea.Cmd
	m.path, cmd = m.path.Update(key)
	return m, cmd
}

func (m Model) handleEvidenceKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	n := len(m.view.Evidence.Items)
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < n-1 {
			m.cursor++
		}
	case "enter", " ":
		if m.wb.SelectCitation(m.cursor) {
			m.refresh()
		}
	case "r":
		return m, m.refreshPoliciesCmd()
	}
	return m, nil
}

func (m Model) handleViewerKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "left", "h":
		if m.wb.Prev() {
			m.refresh()
		}
		return m, nil
	case "right", "l":
		if m.wb.Next() {
			m.refresh()
		}
		return m, nil
	case "a":
		m.wb.ToggleMode()
		m.refresh()
		return m, nil
	case "r":
		return m, m.refreshPoliciesCmd()
	}
	var cmd tea.Cmd
	m.pages, cmd = m.pages.Update(key)
	return m, cmd
}

func (m Model) openUploadPrompt() (tea.Model, tea.Cmd) {
	if m.view.State.Uploading {
		return m, nil
	}
	if m.path.Value() == "" && m.uploadDir != "" {
		m.path.SetValue(strings.TrimSuffix(m.uploadDir, "/") + "/")
		m.path.CursorEnd()
	}
	return m.setFocus(focusUpload)
}

func (m Model) cycleFocus(delta int) (tea.Model, tea.Cmd) {
	order := []focus{focusClaim, focusEvidence, focusViewer}
	i := 0
	for j, f := range order {
		if f == m.focus {
			i = j
		}
	}
	i = (i + delta + len(order)) % len(order)
	return m.setFocus(order[i])
}

func (m Model) setFocus(f focus) (tea.Model, tea.Cmd) {
	m.focus = f
	m.claim.Blur()
	m.path.Blur()
	switch f {
	case focusClaim:
		return m, m.claim.Focus()
	case focusUpload:
		return m, m.path.Focus()
	}
	return m, nil
}

// sync pulls store changes into the workbench and starts any document load.
func (m *Model) sync() tea.Cmd {
	load, ok := m.wb.Sync()
	m.refresh()
	if !ok {
		return nil
	}
	wb := m.wb
	return func() tea.Msg {
		wb.Complete(load)
		return loadedMsg{}
	}
}

// refresh re-renders from the workbench.
func (m *Model) refresh() {
	m.view = m.wb.View()
	if m.cursor >= len(m.view.Evidence.Items) {
		m.cursor = max(len(m.view.Evidence.Items)-1, 0)
	}
	if !m.claim.Focused() && m.claim.Value() != m.view.State.ClaimText {
		m.claim.SetValue(m.view.State.ClaimText)
	}
	m.renderPages()
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	left := max(width*2/5, 30)
	m.claim.SetWidth(max(left-4, 10))
	m.path.Width = max(left-6, 10)
	m.pages.Width = max(width-left-4, 20)
	m.pages.Height = max(height-6, 5)
}

// renderPages fills the viewport and applies any pending all-pages scroll.
func (m *Model) renderPages() {
	content, lines := renderViewer(m.view.Viewer, m.noColor)
	m.pageLines = lines
	m.pages.SetContent(content)
	if v := m.view.Viewer; v.Mode == viewer.SinglePage {
		key := fmt.Sprintf("%s#%d", v.Source, v.Page)
		if key != m.shown {
			m.shown = key
			m.pages.GotoTop()
		}
	} else {
		m.shown = ""
	}
	if page := int(m.scroll.Swap(0)); page > 0 {
		if line, ok := m.pageLines[page]; ok {
			m.pages.SetYOffset(line)
		}
	}
}

func (m Model) analyzeCmd() tea.Cmd {
	if m.view.State.Analyzing {
		return nil
	}
	ctx, store := m.ctx, m.store
	return func() tea.Msg {
		return opDoneMsg{op: "analyze", err: store.Analyze(ctx)}
	}
}

func (m Model) uploadCmd(path string) tea.Cmd {
	ctx, store := m.ctx, m.store
	return func() tea.Msg {
		return opDoneMsg{op: "upload", err: store.UploadFile(ctx, path)}
	}
}

func (m Model) refreshPoliciesCmd() tea.Cmd {
	ctx, store := m.ctx, m.store
	return func() tea.Msg {
		return opDoneMsg{op: "policies", err: store.RefreshPolicies(ctx)}
	}
}

// waitForChange blocks until the store reports a change.
func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if changes == nil {
			return nil
		}
		if _, ok := <-changes; !ok {
			return nil
		}
		return changedMsg{}
	}
}

// View renders the UI.
func (m Model) View() string {
	leftWidth := max(m.width*2/5, 30)
	left := lipgloss.JoinVertical(lipgloss.Left,
		renderTitle(m.noColor),
		m.renderClaim(),
		renderStatus(m.view.State, m.noColor),
		renderNotification(m.view.State.Notification, m.noColor),
		renderPolicies(m.view.Policies, m.noColor),
		renderEvidence(m.view.Evidence, m.cursor, m.focus == focusEvidence, leftWidth-2, m.noColor),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		renderViewerHeader(m.view.Viewer, m.focus == focusViewer, m.noColor),
		m.pages.View(),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(leftWidth).Render(left),
		"  ",
		right,
	)
	return lipgloss.JoinVertical(lipgloss.Left, body, renderHelp(m.focus, m.noColor))
}

func (m Model) renderClaim() string {
	if m.focus == focusUpload {
		return "Upload policy: " + m.path.View()
	}
	return m.claim.View()
}
