// Package ws implements the realtime channel over a WebSocket connection to
// the hosted voice backend.
//
// Wire protocol: the client dials, sends a "hello" control frame, and waits
// for a "ready" acknowledgement. That exchange is the handshake and runs
// under the caller's context deadline. After that, text frames carry JSON
// control events (transcript, end, error) and binary frames carry opaque
// audio chunks for archival.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/pitchdrill/pitchdrill/pkg/channel"
	"github.com/pitchdrill/pitchdrill/pkg/types"
)

const eventBuffer = 64

// Option is a functional option for configuring the Platform.
type Option func(*Platform)

// WithToken sets the bearer token sent on the dial request.
func WithToken(token string) Option {
	return func(p *Platform) {
		p.token = token
	}
}

// WithHTTPClient overrides the HTTP client used for the WebSocket dial.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Platform) {
		p.httpClient = c
	}
}

// Platform implements [channel.Platform] over a WebSocket endpoint.
type Platform struct {
	url        string
	token      string
	httpClient *http.Client
}

// New creates a Platform that dials url. url must be non-empty.
func New(url string, opts ...Option) (*Platform, error) {
	if url == "" {
		return nil, errors.New("ws: url must not be empty")
	}
	p := &Platform{url: url}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// wireEvent is the JSON structure of a text control frame.
type wireEvent struct {
	Type    string    `json:"type"`
	Speaker string    `json:"speaker,omitempty"`
	Text    string    `json:"text,omitempty"`
	At      time.Time `json:"at,omitzero"`
	Reason  string    `json:"reason,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Connect implements [channel.Platform]. It dials the endpoint and performs
// the hello/ready handshake under ctx; apply a deadline to ctx to bound the
// handshake. On success the returned [channel.Conn] is alive until Close or
// a terminal event.
func (p *Platform) Connect(ctx context.Context) (channel.Conn, error) {
	headers := http.Header{}
	if p.token != "" {
		headers.Set("Authorization", "Bearer "+p.token)
	}

	conn, _, err := websocket.Dial(ctx, p.url, &websocket.DialOptions{
		HTTPHeader: headers,
		HTTPClient: p.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("ws: dial: %w", err)
	}

	if err := handshake(ctx, conn); err != nil {
		conn.Close(websocket.StatusProtocolError, "handshake failed")
		return nil, err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:   conn,
		events: make(chan channel.Event, eventBuffer),
		cancel: cancel,
	}
	go s.readLoop(readCtx)
	return s, nil
}

// handshake sends the hello frame and waits for the backend's ready frame.
func handshake(ctx context.Context, conn *websocket.Conn) error {
	hello, _ := json.Marshal(wireEvent{Type: "hello"})
	if err := conn.Write(ctx, websocket.MessageText, hello); err != nil {
		return fmt.Errorf("ws: send hello: %w", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		return fmt.Errorf("ws: await ready: %w", err)
	}
	var ev wireEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("ws: decode ready: %w", err)
	}
	if ev.Type != "ready" {
		return fmt.Errorf("ws: unexpected handshake frame %q", ev.Type)
	}
	return nil
}

// session is a live channel session. It implements [channel.Conn].
type session struct {
	conn   *websocket.Conn
	events chan channel.Event
	cancel context.CancelFunc
	once   sync.Once
	closed sync.Once
}

// Events implements [channel.Conn].
func (s *session) Events() <-chan channel.Event {
	return s.events
}

// Close implements [channel.Conn]. Safe to call more than once.
func (s *session) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.conn.Close(websocket.StatusNormalClosure, "client closed")
	})
	return nil
}

// readLoop decodes inbound frames into events until a terminal frame, a
// read error, or cancellation. It owns closing the events channel.
func (s *session) readLoop(ctx context.Context) {
	defer s.closeEvents()

	for {
		msgType, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return
			}
			s.emit(ctx, channel.Event{Type: channel.EventError, Err: fmt.Errorf("ws: read: %w", err)})
			return
		}

		if msgType == websocket.MessageBinary {
			s.emit(ctx, channel.Event{Type: channel.EventAudio, Chunk: data})
			continue
		}

		var ev wireEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			// Malformed control frame: drop it, keep the session alive.
			continue
		}

		switch ev.Type {
		case "transcript":
			at := ev.At
			if at.IsZero() {
				at = time.Now()
			}
			s.emit(ctx, channel.Event{
				Type:    channel.EventTranscript,
				Speaker: types.Speaker(ev.Speaker),
				Text:    ev.Text,
				At:      at,
			})
		case "end":
			s.emit(ctx, channel.Event{Type: channel.EventEnd, Reason: ev.Reason})
			return
		case "error":
			s.emit(ctx, channel.Event{Type: channel.EventError, Err: errors.New("ws: remote error: " + ev.Message)})
			return
		}
	}
}

// emit delivers ev unless the reader has been cancelled.
func (s *session) emit(ctx context.Context, ev channel.Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

func (s *session) closeEvents() {
	s.closed.Do(func() {
		close(s.events)
	})
}
