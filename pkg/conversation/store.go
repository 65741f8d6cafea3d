package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrorReply is the assistant message shown in place of a failed exchange.
const ErrorReply = "Sorry, I encountered an error. Please try again."

var (
	ErrEmptyMessage     = errors.New("message is empty")
	ErrPending          = errors.New("an exchange is already pending")
	ErrNotPending       = errors.New("no exchange is pending")
	ErrMissingSessionID = errors.New("chat service did not issue a session id")
)

// State mirrors the exchange state machine: IDLE -> SENDING -> IDLE.
type State string

const (
	StateIdle    State = "idle"
	StateSending State = "sending"
)

// Snapshot is an immutable copy of the conversation at one point in time.
type Snapshot struct {
	Messages  []Message `json:"messages"`
	SessionID string    `json:"session_id,omitempty"`
	Pending   bool      `json:"pending"`
	Version   uint64    `json:"version"`
}

func (s Snapshot) State() State {
	if s.Pending {
		return StateSending
	}
	return StateIdle
}

// LastAssistant returns the most recent assistant message, if any.
func (s Snapshot) LastAssistant() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// Listener receives the post-mutation snapshot after every change.
type Listener func(Snapshot)

// Exchange is the handle for one accepted submission.
type Exchange struct {
	Request Request

	done  chan struct{}
	reply Reply
	err   error
}

// Done is closed once the exchange has been resolved.
func (e *Exchange) Done() <-chan struct{} { return e.done }

// Wait blocks until the exchange is resolved or ctx is done.
func (e *Exchange) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err is the failure cause of a resolved exchange, nil on success.
func (e *Exchange) Err() error {
	select {
	case <-e.done:
		return e.err
	default:
		return nil
	}
}

// Reply is the service answer of a successfully resolved exchange.
func (e *Exchange) Reply() Reply {
	select {
	case <-e.done:
		return e.reply
	default:
		return Reply{}
	}
}

type Option func(*Store)

// WithClock overrides the time source used to stamp messages.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for diagnostic records.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithErrorSink registers a callback that receives the raw cause of every
// failed exchange. Failures are logged regardless.
func WithErrorSink(sink func(error)) Option {
	return func(s *Store) {
		s.errorSink = sink
	}
}

type subscription struct {
	id uint64
	fn Listener
}

// Store owns the conversation state and enforces one exchange at a time.
//
// Listeners are invoked serially, in mutation order, with no store lock
// held, so they may read Snapshot or unsubscribe. They must not call
// Submit, OnSuccess or OnFailure synchronously: a mutation waits for the
// notifications before it and would wait on itself.
type Store struct {
	transport Transport
	now       func() time.Time
	logger    zerolog.Logger
	errorSink func(error)

	mu        sync.Mutex
	messages  []Message
	sessionID string
	pending   bool
	version   uint64
	exchange  *Exchange
	subs      []subscription
	nextSubID uint64

	// emitted is the version whose listeners have all returned.
	emitMu   sync.Mutex
	emitCond *sync.Cond
	emitted  uint64
}

// NewStore creates an empty conversation. With a nil transport the store
// only records submissions and the caller resolves them through OnSuccess
// and OnFailure.
func NewStore(transport Transport, opts ...Option) *Store {
	s := &Store{
		transport: transport,
		now:       time.Now,
		logger:    log.Logger.With().Str("component", "conversation").Logger(),
	}
	s.emitCond = sync.NewCond(&s.emitMu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current conversation.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers l and returns the snapshot current at registration
// together with a function that removes the listener.
func (s *Store) Subscribe(l Listener) (Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscription{id: id, fn: l})

	var once sync.Once
	return s.snapshotLocked(), func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Submit appends a user message and starts an exchange. Blank text and
// submissions while another exchange is pending are rejected without any
// change to the conversation.
func (s *Store) Submit(ctx context.Context, text string) (*Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return nil, ErrPending
	}
	s.messages = append(s.messages, newMessage(RoleUser, text, s.now()))
	s.pending = true
	ex := &Exchange{
		Request: Request{Message: text, SessionID: s.sessionID},
		done:    make(chan struct{}),
	}
	s.exchange = ex
	s.logger.Debug().
		Str("session_id", ex.Request.SessionID).
		Int("length", len(text)).
		Msg("exchange started")
	s.commitLocked()

	if s.transport != nil {
		go s.run(ctx, ex)
	}
	return ex, nil
}

// OnSuccess resolves the pending exchange with the service reply. A reply
// without a session id while none is established is a protocol error: the
// exchange fails and ErrMissingSessionID is returned.
func (s *Store) OnSuccess(response, sessionID string) error {
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return ErrNotPending
	}
	return s.resolveLocked(s.exchange, Reply{Response: response, SessionID: sessionID}, nil)
}

// OnFailure resolves the pending exchange with the fixed error reply.
func (s *Store) OnFailure(err error) error {
	if err == nil {
		err = errors.New("unknown failure")
	}
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return ErrNotPending
	}
	return s.resolveLocked(s.exchange, Reply{}, err)
}

func (s *Store) run(ctx context.Context, ex *Exchange) {
	var (
		reply Reply
		err   error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("transport panicked: %v", r)
			}
		}()
		reply, err = s.transport.Send(ctx, ex.Request)
	}()

	s.mu.Lock()
	if s.exchange != ex {
		s.mu.Unlock()
		s.logger.Debug().Msg("exchange already resolved, dropping transport result")
		return
	}
	_ = s.resolveLocked(ex, reply, err)
}

// resolveLocked applies the outcome of ex and releases s.mu.
func (s *Store) resolveLocked(ex *Exchange, reply Reply, err error) error {
	if err == nil && s.sessionID == "" && reply.SessionID == "" {
		err = ErrMissingSessionID
	}

	if err != nil {
		s.messages = append(s.messages, newMessage(RoleAssistant, ErrorReply, s.now()))
	} else {
		s.messages = append(s.messages, newMessage(RoleAssistant, reply.Response, s.now()))
		if s.sessionID == "" {
			s.sessionID = reply.SessionID
		}
	}
	s.pending = false
	s.exchange = nil

	sessionID := s.sessionID
	s.commitLocked()

	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("chat exchange failed")
		if s.errorSink != nil {
			s.errorSink(err)
		}
	} else {
		s.logger.Debug().Str("session_id", sessionID).Msg("exchange completed")
	}

	if ex != nil {
		ex.reply = reply
		ex.err = err
		close(ex.done)
	}
	return err
}

// commitLocked bumps the version, releases s.mu and notifies listeners.
// Each commit waits until the listeners of the previous version returned,
// so notifications keep mutation order without holding s.mu.
func (s *Store) commitLocked() {
	s.version++
	seq := s.version
	snap := s.snapshotLocked()
	subs := make([]Listener, len(s.subs))
	for i, sub := range s.subs {
		subs[i] = sub.fn
	}
	s.mu.Unlock()

	s.emitMu.Lock()
	for s.emitted != seq-1 {
		s.emitCond.Wait()
	}
	s.emitMu.Unlock()

	defer func() {
		s.emitMu.Lock()
		s.emitted = seq
		s.emitCond.Broadcast()
		s.emitMu.Unlock()
	}()

	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return Snapshot{
		Messages:  msgs,
		SessionID: s.sessionID,
		Pending:   s.pending,
		Version:   s.version,
	}
}
