package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/twin/pkg/conversation"
)

const (
	// DefaultBaseURL is the local development address of the chat service.
	DefaultBaseURL = "http://localhost:8000"
	chatPath       = "/chat"

	// maxErrorBody bounds how much of a failed response is kept for logs.
	maxErrorBody = 4 << 10
)

var (
	errMissingResponse  = errors.New(`response body has no "response" field`)
	errUnexpectedStatus = errors.New("unexpected status")
)

// ChatRequest is the JSON body posted to the chat endpoint.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the JSON body the chat endpoint answers with.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// Client posts one message per call to {baseURL}/chat.
type Client struct {
	baseURL    string
	httpClient *http.Client
	header     http.Header
	logger     zerolog.Logger
}

var _ conversation.Transport = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithTimeout bounds each request. Zero keeps the transport default,
// which is no timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d <= 0 {
			return
		}
		hc := *cl.httpClient
		hc.Timeout = d
		cl.httpClient = &hc
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(cl *Client) {
		cl.header.Add(key, value)
	}
}

// WithUserAgent sets the User-Agent header of every request.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		if ua != "" {
			cl.header.Set("User-Agent", ua)
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// New creates a client for the chat service at baseURL. An empty baseURL
// falls back to DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		header:     http.Header{},
		logger:     log.Logger.With().Str("component", "chatclient").Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// URL is the endpoint the client posts to.
func (c *Client) URL() string {
	return strings.TrimRight(c.baseURL, "/") + chatPath
}

// Send implements conversation.Transport.
func (c *Client) Send(ctx context.Context, req conversation.Request) (conversation.Reply, error) {
	resp, err := c.Chat(ctx, ChatRequest{Message: req.Message, SessionID: req.SessionID})
	if err != nil {
		return conversation.Reply{}, err
	}
	return conversation.Reply{Response: resp.Response, SessionID: resp.SessionID}, nil
}

// Chat performs a single POST and decodes the reply. Errors are either
// *TransportError or *ProtocolError.
func (c *Client) Chat(ctx context.Context, body ChatRequest) (*ChatResponse, error) {
	url := c.URL()

	b, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode chat request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build chat request")
	}
	for k, vs := range c.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	c.logger.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Bool("has_session", body.SessionID != "").
		Msg("chat request finished")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ProtocolError{
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
			Err:        errors.Wrapf(errUnexpectedStatus, "%s", resp.Status),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: url, Err: errors.Wrap(err, "failed to read response body")}
	}

	return decodeResponse(raw)
}

func decodeResponse(raw []byte) (*ChatResponse, error) {
	var wire struct {
		Response  *string `json:"response"`
		SessionID *string `json:"session_id"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &ProtocolError{Body: truncate(raw), Err: errors.Wrap(err, "failed to decode response")}
	}
	if wire.Response == nil {
		return nil, &ProtocolError{Body: truncate(raw), Err: errMissingResponse}
	}

	out := &ChatResponse{Response: *wire.Response}
	if wire.SessionID != nil {
		out.SessionID = *wire.SessionID
	}
	return out, nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}

// IsTransportError reports whether err was caused by the network rather
// than by the service's answer.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocolError reports whether the service answered with an unusable
// reply.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
