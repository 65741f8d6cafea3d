package ui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/go-go-golems/twin/pkg/conversation"
)

// SnapshotMsg carries a conversation snapshot into the bubbletea program.
type SnapshotMsg struct {
	Snapshot conversation.Snapshot
}

// Forwarder relays store notifications to the UI. It keeps only the newest
// snapshot, so a busy UI skips intermediate states instead of queueing
// them. Push never blocks, which keeps it safe to call from store
// listeners running on the UI goroutine.
type Forwarder struct {
	mu     sync.Mutex
	latest *conversation.Snapshot
	wake   chan struct{}
}

func NewForwarder() *Forwarder {
	return &Forwarder{wake: make(chan struct{}, 1)}
}

// Attach subscribes the forwarder to store and primes it with the current
// snapshot. The returned function unsubscribes.
func (f *Forwarder) Attach(store *conversation.Store) func() {
	snap, unsubscribe := store.Subscribe(f.Push)
	f.Push(snap)
	return unsubscribe
}

// Push records snap unless a newer snapshot is already waiting.
func (f *Forwarder) Push(snap conversation.Snapshot) {
	f.mu.Lock()
	if f.latest == nil || snap.Version >= f.latest.Version {
		s := snap
		f.latest = &s
	}
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Next blocks until a snapshot is available or ctx is done.
func (f *Forwarder) Next(ctx context.Context) (conversation.Snapshot, bool) {
	for {
		f.mu.Lock()
		if f.latest != nil {
			s := *f.latest
			f.latest = nil
			f.mu.Unlock()
			return s, true
		}
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return conversation.Snapshot{}, false
		case <-f.wake:
		}
	}
}

// waitForSnapshot is re-issued after every SnapshotMsg so the program
// keeps listening.
func waitForSnapshot(ctx context.Context, f *Forwarder) tea.Cmd {
	return func() tea.Msg {
		snap, ok := f.Next(ctx)
		if !ok {
			return nil
		}
		return SnapshotMsg{Snapshot: snap}
	}
}
