package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hyperjump/underwriter/internal/session"
)

// Run starts the terminal UI on the alternate screen and blocks until the
// user quits or ctx is cancelled.
func Run(ctx context.Context, store *session.Store, opts Options) error {
	changes := make(chan struct{}, 1)
	store.Subscribe(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	model := New(ctx, store, changes, opts)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}
