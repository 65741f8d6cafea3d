package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/twin/pkg/conversation"
)

// ExchangeFinishedMsg is sent once an accepted submission has resolved.
type ExchangeFinishedMsg struct {
	Err error
}

// StoreBackend connects the terminal widget to a conversation store.
type StoreBackend struct {
	ctx   context.Context
	store *conversation.Store
}

// NewStoreBackend creates a backend whose exchanges run with ctx. Ending
// ctx resolves an in-flight exchange as a failure.
func NewStoreBackend(ctx context.Context, store *conversation.Store) *StoreBackend {
	return &StoreBackend{ctx: ctx, store: store}
}

func (b *StoreBackend) Store() *conversation.Store { return b.store }

// Start submits text. It returns a command that waits for the exchange to
// finish, or the store's rejection (blank input, exchange pending).
func (b *StoreBackend) Start(text string) (tea.Cmd, error) {
	ex, err := b.store.Submit(b.ctx, text)
	if err != nil {
		return nil, err
	}

	return func() tea.Msg {
		if err := ex.Wait(b.ctx); err != nil {
			log.Debug().Err(err).Str("component", "ui").Msg("stopped waiting for exchange")
			return nil
		}
		return ExchangeFinishedMsg{Err: ex.Err()}
	}, nil
}

// IsFinished reports whether no exchange is in flight.
func (b *StoreBackend) IsFinished() bool {
	return !b.store.Snapshot().Pending
}

// IsRejection reports whether err is one of the store's silent no-op
// outcomes rather than a real failure.
func IsRejection(err error) bool {
	return errors.Is(err, conversation.ErrEmptyMessage) || errors.Is(err, conversation.ErrPending)
}
