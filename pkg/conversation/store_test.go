package conversation

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replyWith(response, sessionID string) TransportFunc {
	return func(ctx context.Context, req Request) (Reply, error) {
		return Reply{Response: response, SessionID: sessionID}, nil
	}
}

func newTestStore(t Transport, opts ...Option) *Store {
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	return NewStore(t, opts...)
}

func waitExchange(t *testing.T, ex *Exchange) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ex.Wait(ctx))
}

func TestSubmitAppendsUserMessageAndSetsPending(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestStore(nil, WithClock(func() time.Time { return now }))

	ex, err := s.Submit(context.Background(), "Hello")
	require.NoError(t, err)
	require.NotNil(t, ex)
	assert.Equal(t, Request{Message: "Hello"}, ex.Request)

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, RoleUser, snap.Messages[0].Role)
	assert.Equal(t, "Hello", snap.Messages[0].Content)
	assert.Equal(t, now, snap.Messages[0].Timestamp)
	assert.NotEmpty(t, snap.Messages[0].ID)
	assert.True(t, snap.Pending)
	assert.Equal(t, StateSending, snap.State())
}

func TestSubmitRejectsBlankInput(t *testing.T) {
	calls := 0
	s := newTestStore(TransportFunc(func(ctx context.Context, req Request) (Reply, error) {
		calls++
		return Reply{}, nil
	}))

	for _, text := range []string{"", "   ", "\n\t "} {
		ex, err := s.Submit(context.Background(), text)
		assert.ErrorIs(t, err, ErrEmptyMessage)
		assert.Nil(t, ex)
	}

	snap := s.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.False(t, snap.Pending)
	assert.Equal(t, uint64(0), snap.Version)
	assert.Equal(t, 0, calls)
}

func TestSubmitKeepsTextAsTyped(t *testing.T) {
	var got Request
	s := newTestStore(TransportFunc(func(ctx context.Context, req Request) (Reply, error) {
		got = req
		return Reply{Response: "ok", SessionID: "s1"}, nil
	}))

	ex, err := s.Submit(context.Background(), "  padded  ")
	require.NoError(t, err)
	waitExchange(t, ex)

	assert.Equal(t, "  padded  ", got.Message)
	assert.Equal(t, "  padded  ", s.Snapshot().Messages[0].Content)
}

func TestSuccessfulExchange(t *testing.T) {
	s := newTestStore(replyWith("Hi!", "abc"))

	ex, err := s.Submit(context.Background(), "Hello")
	require.NoError(t, err)
	waitExchange(t, ex)
	require.NoError(t, ex.Err())
	assert.Equal(t, Reply{Response: "Hi!", SessionID: "abc"}, ex.Reply())

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, RoleUser, snap.Messages[0].Role)
	assert.Equal(t, "Hello", snap.Messages[0].Content)
	assert.Equal(t, RoleAssistant, snap.Messages[1].Role)
	assert.Equal(t, "Hi!", snap.Messages[1].Content)
	assert.Equal(t, "abc", snap.SessionID)
	assert.False(t, snap.Pending)
	assert.Equal(t, StateIdle, snap.State())
}

func TestFailedExchangeShowsErrorReply(t *testing.T) {
	cause := errors.New("unexpected status 500")
	var sunk []error
	s := newTestStore(
		TransportFunc(func(ctx context.Context, req Request) (Reply, error) {
			return Reply{}, cause
		}),
		WithErrorSink(func(err error) { sunk = append(sunk, err) }),
	)

	ex, err := s.Submit(context.Background(), "Hello")
	require.NoError(t, err)
	waitExchange(t, ex)
	assert.ErrorIs(t, ex.Err(), cause)

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "Hello", snap.Messages[0].Content)
	assert.Equal(t, RoleAssistant, snap.Messages[1].Role)
	assert.Equal(t, ErrorReply, snap.Messages[1].Content)
	assert.NotContains(t, snap.Messages[1].Content, "500")
	assert.Empty(t, snap.SessionID)
	assert.False(t, snap.Pending)
	require.Len(t, sunk, 1)
	assert.ErrorIs(t, sunk[0], cause)
}

func TestSecondSubmitRejectedWhilePending(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var sent []string
	s := newTestStore(TransportFunc(func(ctx context.Context, req Request) (Reply, error) {
		mu.Lock()
		sent = append(sent, req.Message)
		mu.Unlock()
		<-release
		return Reply{Response: "reply to " + req.Message, SessionID: "abc"}, nil
	}))

	exA, err := s.Submit(context.Background(), "A")
	require.NoError(t, err)

	exB, err := s.Submit(context.Background(), "B")
	assert.ErrorIs(t, err, ErrPending)
	assert.Nil(t, exB)
	assert.Len(t, s.Snapshot().Messages, 1)

	close(release)
	waitExchange(t, exA)

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "reply to A", snap.Messages[1].Content)
	mu.Lock()
	assert.Equal(t, []string{"A"}, sent)
	mu.Unlock()
}

func TestSessionIDIsNeverOverwritten(t *testing.T) {
	var requests []Request
	ids := []string{"abc", "xyz"}
	s := newTestStore(TransportFunc(func(ctx context.Context, req Request) (Reply, error) {
		requests = append(requests, req)
		id := ids[0]
		ids = ids[1:]
		return Reply{Response: "ok", SessionID: id}, nil
	}))

	for _, text := range []string{"one", "two"} {
		ex, err := s.Submit(context.Background(), text)
		require.NoError(t, err)
		waitExchange(t, ex)
	}

	assert.Equal(t, "abc", s.Snapshot().SessionID)
	require.Len(t, requests, 2)
	assert.Empty(t, requests[0].SessionID)
	assert.Equal(t, "abc", requests[1].SessionID)
}

func TestMissingSessionIDOnFirstExchangeIsFailure(t *testing.T) {
	s := newTestStore(replyWith("Hi!", ""))

	ex, err := s.Submit(context.Background(), "Hello")
	require.NoError(t, err)
	waitExchange(t, ex)
	assert.ErrorIs(t, ex.Err(), ErrMissingSessionID)

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, ErrorReply, snap.Messages[1].Content)
	assert.Empty(t, snap.SessionID)
	assert.False(t, snap.Pending)
}

func TestMissingSessionIDAfterEstablishedIsAccepted(t *testing.T) {
	replies := []Reply{{Response: "first", SessionID: "abc"}, {Response: "second"}}
	s := newTestStore(TransportFunc(func(ctx context.Context, req Request) (Reply, error) {
		r := replies[0]
		replies = replies[1:]
		return r, nil
	}))

	for _, text := range []string{"one", "two"} {
		ex, err := s.Submit(context.Background(), text)
		require.NoError(t, err)
		waitExchange(t, ex)
		require.NoError(t, ex.Err())
	}

	snap := s.Snapshot()
	assert.Equal(t, "second", snap.Messages[3].Content)
	assert.Equal(t, "abc", snap.SessionID)
}

func TestLogAlternatesRolesAcrossExchanges(t *testing.T) {
	n := 0
	s := newTestStore(TransportFunc(func(ctx context.Context, req Request) (Reply, error) {
		n++
		if n%2 == 0 {
			return Reply{}, errors.New("boom")
		}
		return Reply{Response: "ok", SessionID: "abc"}, nil
	}))

	const exchanges = 5
	for i := 0; i < exchanges; i++ {
		ex, err := s.Submit(context.Background(), "msg")
		require.NoError(t, err)
		waitExchange(t, ex)
	}

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 2*exchanges)
	for i, m := range snap.Messages {
		if i%2 == 0 {
			assert.Equal(t, RoleUser, m.Role, "message %d", i)
		} else {
			assert.Equal(t, RoleAssistant, m.Role, "message %d", i)
		}
	}

	ids := make([]string, len(snap.Messages))
	seen := map[string]bool{}
	for i, m := range snap.Messages {
		ids[i] = m.ID
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
	}
	assert.True(t, sort.StringsAreSorted(ids), "ids are not in creation order")
}

func TestManualResolution(t *testing.T) {
	s := newTestStore(nil)

	assert.ErrorIs(t, s.OnSuccess("Hi!", "abc"), ErrNotPending)
	assert.ErrorIs(t, s.OnFailure(errors.New("x")), ErrNotPending)
	assert.Empty(t, s.Snapshot().Messages)

	ex, err := s.Submit(context.Background(), "Hello")
	require.NoError(t, err)
	require.NoError(t, s.OnSuccess("Hi!", "abc"))
	waitExchange(t, ex)

	ex, err = s.Submit(context.Background(), "Again")
	require.NoError(t, err)
	assert.Equal(t, "abc", ex.Request.SessionID)
	cause := errors.New("network down")
	assert.ErrorIs(t, s.OnFailure(cause), cause)
	waitExchange(t, ex)

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 4)
	assert.Equal(t, "Hi!", snap.Messages[1].Content)
	assert.Equal(t, ErrorReply, snap.Messages[3].Content)
	assert.Equal(t, "abc", snap.SessionID)
	assert.False(t, snap.Pending)
}

func TestSubscribersSeeEveryMutationInOrder(t *testing.T) {
	s := newTestStore(replyWith("Hi!", "abc"))

	var mu sync.Mutex
	var seen []Snapshot
	initial, unsubscribe := s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		seen = append(seen, snap)
		mu.Unlock()
	})
	defer unsubscribe()
	assert.Equal(t, uint64(0), initial.Version)

	for _, text := range []string{"one", "two"} {
		ex, err := s.Submit(context.Background(), text)
		require.NoError(t, err)
		waitExchange(t, ex)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 4)
	for i, snap := range seen {
		assert.Equal(t, uint64(i+1), snap.Version)
		assert.Len(t, snap.Messages, i+1)
		assert.Equal(t, i%2 == 0, snap.Pending)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	s := newTestStore(nil)
	calls := 0
	_, unsubscribe := s.Subscribe(func(Snapshot) { calls++ })

	_, err := s.Submit(context.Background(), "one")
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()
	require.NoError(t, s.OnSuccess("ok", "abc"))

	assert.Equal(t, 1, calls)
}

func TestListenerReadsSnapshotWhileAnotherGoroutineSubmits(t *testing.T) {
	s := newTestStore(nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var (
		mu       sync.Mutex
		versions []uint64
		inside   Snapshot
	)
	_, unsubscribe := s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		versions = append(versions, snap.Version)
		mu.Unlock()
		if snap.Version != 2 {
			return
		}
		close(entered)
		<-release
		cur := s.Snapshot()
		mu.Lock()
		inside = cur
		mu.Unlock()
	})
	defer unsubscribe()

	_, err := s.Submit(context.Background(), "A")
	require.NoError(t, err)
	go func() { _ = s.OnSuccess("a", "s1") }()
	<-entered

	submitted := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "B")
		submitted <- err
	}()
	// let the second submission reach the notification queue
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case err := <-submitted:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("submit blocked behind a listener reading the snapshot")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(versions) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2, 3}, versions, "notifications keep mutation order")
	assert.GreaterOrEqual(t, len(inside.Messages), 2)
	assert.Len(t, s.Snapshot().Messages, 3)
	assert.True(t, s.Snapshot().Pending)
}

func TestListenerMayUnsubscribeItself(t *testing.T) {
	s := newTestStore(nil)

	calls := 0
	var unsubscribe func()
	_, unsubscribe = s.Subscribe(func(Snapshot) {
		calls++
		unsubscribe()
	})

	_, err := s.Submit(context.Background(), "one")
	require.NoError(t, err)
	require.NoError(t, s.OnSuccess("ok", "abc"))

	assert.Equal(t, 1, calls)
}

func TestTransportPanicBecomesFailure(t *testing.T) {
	s := newTestStore(TransportFunc(func(ctx context.Context, req Request) (Reply, error) {
		panic("kaboom")
	}))

	ex, err := s.Submit(context.Background(), "Hello")
	require.NoError(t, err)
	waitExchange(t, ex)

	require.Error(t, ex.Err())
	assert.Contains(t, ex.Err().Error(), "kaboom")
	snap := s.Snapshot()
	assert.Equal(t, ErrorReply, snap.Messages[1].Content)
	assert.False(t, snap.Pending)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := newTestStore(nil)
	_, err := s.Submit(context.Background(), "Hello")
	require.NoError(t, err)

	snap := s.Snapshot()
	snap.Messages[0].Content = "mutated"

	assert.Equal(t, "Hello", s.Snapshot().Messages[0].Content)
}

func TestLastAssistant(t *testing.T) {
	_, ok := Snapshot{}.LastAssistant()
	assert.False(t, ok)

	snap := Snapshot{Messages: []Message{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "q2"},
	}}
	m, ok := snap.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, "a1", m.Content)
}
