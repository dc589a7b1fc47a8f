// Package transport owns the bidirectional message stream to the PvP
// matchmaking service. It only connects, sends, receives and closes;
// every reaction to what arrives belongs to the session layer, which
// consumes the stream's ordered event channel.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"

	"nhooyr.io/websocket"

	"github.com/playperu/taskduel/internal/protocol"
)

// ErrNotConnected reports a send attempted after the stream closed.
var ErrNotConnected = errors.New("transport: not connected")

// Event is delivered on a stream's event channel, in receive order.
type Event interface{ isEvent() }

// MessageEvent carries one decoded inbound protocol message.
type MessageEvent struct {
	Msg protocol.Inbound
}

// CloseEvent is the last event a stream emits: the connection is gone,
// whether by server close, network loss or a local Close call. The event
// channel is closed right after it.
type CloseEvent struct {
	Err error
}

func (MessageEvent) isEvent() {}
func (CloseEvent) isEvent()   {}

// Stream is one live connection to the matchmaking service.
type Stream interface {
	Send(ctx context.Context, msg protocol.Outbound) error
	Events() <-chan Event
	Close() error
}

// Dialer opens streams. The session owns at most one live stream at a
// time and tears down the previous one before dialing again.
type Dialer interface {
	Dial(ctx context.Context, token string) (Stream, error)
}

// WSDialer dials the service over WebSocket, passing the bearer token as
// a query parameter at stream-open time.
type WSDialer struct {
	endpoint string
	logger   *slog.Logger
}

// NewWSDialer derives the WebSocket endpoint from the service's HTTP base
// URL ("http(s)://host" becomes "ws(s)://host/api/pvp/ws").
func NewWSDialer(serverURL string, logger *slog.Logger) (*WSDialer, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parsing server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/pvp/ws"

	return &WSDialer{endpoint: u.String(), logger: logger}, nil
}

func (d *WSDialer) Dial(ctx context.Context, token string) (Stream, error) {
	u := d.endpoint + "?token=" + url.QueryEscape(token)

	conn, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", d.endpoint, err)
	}

	s := &wsStream{
		conn:   conn,
		events: make(chan Event, 16),
		logger: d.logger,
	}
	go s.readLoop()
	return s, nil
}

type wsStream struct {
	conn   *websocket.Conn
	events chan Event
	logger *slog.Logger
	closed atomic.Bool
}

func (s *wsStream) Events() <-chan Event { return s.events }

func (s *wsStream) Send(ctx context.Context, msg protocol.Outbound) error {
	if s.closed.Load() {
		return ErrNotConnected
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

func (s *wsStream) Close() error {
	s.closed.Store(true)
	return s.conn.Close(websocket.StatusNormalClosure, "bye")
}

// readLoop decodes frames at the boundary and pushes them onto the event
// channel. Frames that fail to decode are dropped with a debug log so an
// unknown message type never takes the session down. Loss of the
// connection surfaces as exactly one CloseEvent.
func (s *wsStream) readLoop() {
	ctx := context.Background()
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.closed.Store(true)
			s.logger.Debug("stream read ended", "error", err)
			s.events <- CloseEvent{Err: err}
			close(s.events)
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			s.logger.Debug("dropping frame", "error", err)
			continue
		}
		s.events <- MessageEvent{Msg: msg}
	}
}
