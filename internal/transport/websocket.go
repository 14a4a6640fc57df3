package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Source is a subscription to one room's events. Events are delivered in the
// order the relay sends them; the channel closes when the subscription ends.
type Source interface {
	Events() <-chan Event
	Close() error
}

const writeWait = 10 * time.Second

// Conn is a websocket connection to the room event relay.
type Conn struct {
	ws        *websocket.Conn
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
}

var _ Source = (*Conn)(nil)

// EventsURL derives the relay endpoint for a room from the API base URL.
func EventsURL(apiBase, room string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(apiBase))
	if err != nil {
		return "", errors.Wrap(err, "parse api base url")
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("unsupported api scheme %q", u.Scheme)
	}
	if room == "" {
		return "", errors.New("room is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/rooms/" + url.PathEscape(room) + "/events"
	u.RawQuery = ""
	return u.String(), nil
}

// Dial opens the relay connection, authenticating with the participant token.
func Dial(ctx context.Context, eventsURL, token string) (*Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, eventsURL, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial relay (status %d)", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "dial relay")
	}

	c := &Conn{
		ws:     ws,
		events: make(chan Event, 32),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events returns the stream of events received from the relay.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Publish sends an event to the room. The relay decides whether the
// connection is allowed to publish it.
func (c *Conn) Publish(ev Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(ev); err != nil {
		return errors.Wrap(err, "publish event")
	}
	return nil
}

// Close unsubscribes and tears the connection down. Safe to call repeatedly.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("component", "transport").Msg("relay read failed")
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Warn().Err(err).Str("component", "transport").Msg("dropping malformed relay frame")
			continue
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}
