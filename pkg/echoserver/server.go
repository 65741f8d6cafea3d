// Package echoserver implements the chat service contract locally so the
// widget can be developed and tested without the real backend.
package echoserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/twin/pkg/chatclient"
)

// Responder produces the reply for one message of a session. turn counts
// the messages received in that session, starting at 1.
type Responder func(ctx context.Context, sessionID string, turn int, message string) (string, error)

// Echo answers every message by repeating it.
func Echo(_ context.Context, _ string, _ int, message string) (string, error) {
	return fmt.Sprintf("You said: %s", message), nil
}

type Option func(*Handler)

func WithResponder(r Responder) Option {
	return func(h *Handler) {
		if r != nil {
			h.responder = r
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithSessionIDs replaces the generator of new session ids.
func WithSessionIDs(next func() string) Option {
	return func(h *Handler) {
		if next != nil {
			h.newSessionID = next
		}
	}
}

// Handler serves POST /chat.
type Handler struct {
	responder    Responder
	newSessionID func() string
	logger       zerolog.Logger

	mu    sync.Mutex
	turns map[string]int
}

var _ http.Handler = (*Handler)(nil)

func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		responder:    Echo,
		newSessionID: uuid.NewString,
		logger:       log.Logger.With().Str("component", "echoserver").Logger(),
		turns:        map[string]int{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Mux mounts the handler on /chat and a health probe on /healthz.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/chat", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Sessions returns the number of sessions issued so far.
func (h *Handler) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatclient.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn().Err(err).Msg("invalid chat request")
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	sessionID, turn := h.nextTurn(req.SessionID)
	reply, err := h.responder(r.Context(), sessionID, turn, req.Message)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("responder failed")
		http.Error(w, "responder failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info().Str("session_id", sessionID).Int("turn", turn).Msg("chat turn")
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(chatclient.ChatResponse{Response: reply, SessionID: sessionID}); err != nil {
		h.logger.Warn().Err(errors.Wrap(err, "write response")).Msg("failed to write chat response")
	}
}

// nextTurn issues a session id when the request carries none and counts
// the turn.
func (h *Handler) nextTurn(sessionID string) (string, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sessionID == "" {
		sessionID = h.newSessionID()
	}
	h.turns[sessionID]++
	return sessionID, h.turns[sessionID]
}
