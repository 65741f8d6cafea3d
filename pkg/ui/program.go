package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/twin/pkg/config"
	"github.com/go-go-golems/twin/pkg/conversation"
)

// RunOptions configures Run.
type RunOptions struct {
	Widget config.WidgetSettings
	// PlainText disables markdown rendering of replies.
	PlainText bool
	// ProgramOptions are appended to the defaults (alt screen, mouse).
	ProgramOptions []tea.ProgramOption
}

// Run shows the terminal widget for store until the user quits or ctx ends.
func Run(ctx context.Context, store *conversation.Store, opts RunOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fwd := NewForwarder()
	unsubscribe := fwd.Attach(store)
	defer unsubscribe()

	var modelOpts []ModelOption
	if !opts.PlainText {
		md, err := NewMarkdownRenderer(76)
		if err != nil {
			log.Warn().Err(err).Str("component", "ui").Msg("markdown disabled")
		} else {
			modelOpts = append(modelOpts, WithMarkdown(md))
		}
	}

	model := NewModel(ctx, NewStoreBackend(ctx, store), fwd, opts.Widget, modelOpts...)
	programOpts := append([]tea.ProgramOption{
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	}, opts.ProgramOptions...)

	p := tea.NewProgram(model, programOpts...)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "failed to run chat UI")
	}
	return nil
}
