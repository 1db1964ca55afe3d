package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	"roundify/models"

	"github.com/gorilla/websocket"
)

// Stream is a job's push channel.
type Stream struct {
	JobID string

	conn    *websocket.Conn
	writeMu sync.Mutex
	ended   bool
}

// Subscribe opens the push channel for jobID.
func (c *Client) Subscribe(ctx context.Context, jobID string) (*Stream, error) {
	u := *c.BaseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = u.Path + "/ws/" + url.PathEscape(jobID)

	conn, resp, err := c.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			defer resp.Body.Close()
			return nil, decodeAPIError(resp)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return &Stream{JobID: jobID, conn: conn}, nil
}

// StartConversion sends the conversion request over the channel.
func (s *Stream) StartConversion(opts models.ClipOptions) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(models.ClientMessage{Type: "start_conversion", Options: opts}); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

// Next returns the next event. After a terminal event it returns io.EOF.
// A rejected event answers a bad message from this client; the stream
// stays usable. Canceling ctx closes the stream.
func (s *Stream) Next(ctx context.Context) (models.Event, error) {
	if s.ended {
		return models.Event{}, io.EOF
	}
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	var ev models.Event
	if err := s.conn.ReadJSON(&ev); err != nil {
		if ctx.Err() != nil {
			return models.Event{}, ctx.Err()
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			return models.Event{}, fmt.Errorf("%w: channel closed before the job finished", ErrConnection)
		}
		return models.Event{}, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if ev.IsTerminal() {
		s.ended = true
	}
	return ev, nil
}

// Close closes the channel.
func (s *Stream) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	err := s.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
