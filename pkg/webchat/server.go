package webchat

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/twin/pkg/config"
	"github.com/go-go-golems/twin/pkg/conversation"
)

//go:embed static/*
var staticFS embed.FS

var indexTemplate = template.Must(template.ParseFS(staticFS, "static/index.html"))

const (
	defaultWriteTimeout = 10 * time.Second
	maxFrameSize        = 64 << 10
)

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.pool.writeTimeout = d }
}

// WithCheckOrigin restricts which pages may open the websocket. By default
// every origin is accepted.
func WithCheckOrigin(check func(*http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = check }
}

// Server owns the widget routes and the open connections.
type Server struct {
	transport conversation.Transport
	widget    config.WidgetSettings
	upgrader  websocket.Upgrader
	pool      *ConnectionPool
	logger    zerolog.Logger
}

// NewServer creates a widget server whose conversations talk to transport.
func NewServer(transport conversation.Transport, widget config.WidgetSettings, opts ...Option) *Server {
	s := &Server{
		transport: transport,
		widget:    widget,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pool:   NewConnectionPool(defaultWriteTimeout),
		logger: log.With().Str("component", "webchat").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler mounts /, /ws and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Connections is the number of open widget connections.
func (s *Server) Connections() int { return s.pool.Count() }

// Close drops every open connection.
func (s *Server) Close() {
	s.pool.CloseAll()
}

type indexData struct {
	Title       string
	Subtitle    string
	Greeting    string
	Placeholder string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexTemplate.Execute(w, indexData{
		Title:       s.widget.DisplayTitle(),
		Subtitle:    s.widget.Subtitle,
		Greeting:    s.widget.Greeting(),
		Placeholder: s.widget.Placeholder,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to render index")
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.serveConn(r.Context(), ws)
}

// serveConn runs one mounted widget until the peer goes away.
//
// Snapshot frames are written from the store listener, so a slow browser
// delays the resolution of its own exchange by up to the write timeout.
// Every connection has its own store; other widgets are not affected.
func (s *Server) serveConn(ctx context.Context, ws *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := s.logger.With().Str("conn_id", uuid.NewString()).Logger()
	store := conversation.NewStore(s.transport, conversation.WithLogger(logger))

	s.pool.Add(ws)
	defer s.pool.Remove(ws)
	ws.SetReadLimit(maxFrameSize)

	snap, unsubscribe := store.Subscribe(func(snap conversation.Snapshot) {
		_ = s.pool.Send(ws, snapshotFrame(snap))
	})
	defer unsubscribe()

	if err := s.pool.Send(ws, snapshotFrame(snap)); err != nil {
		return
	}
	logger.Info().Msg("widget connected")
	defer logger.Info().Int("messages", len(store.Snapshot().Messages)).Msg("widget disconnected")

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
		if err := s.handleFrame(ctx, ws, store, data); err != nil {
			logger.Debug().Err(err).Msg("frame rejected")
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, ws wsConn, store *conversation.Store, data []byte) error {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		_ = s.pool.Send(ws, errorFrame("invalid frame"))
		return errors.Wrap(err, "failed to decode frame")
	}

	switch frame.Type {
	case FrameSubmit:
		// blank input and submissions while pending change nothing, so no
		// snapshot follows them
		_, err := store.Submit(ctx, frame.Text)
		return err
	default:
		msg := fmt.Sprintf("unknown frame type %q", frame.Type)
		_ = s.pool.Send(ws, errorFrame(msg))
		return errors.New(msg)
	}
}
