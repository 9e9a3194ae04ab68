// Package roomclient is the client half of the room synchronization
// protocol: it keeps a local copy of the room document, applies edits
// optimistically, and re-issues the full document as the sync unit.
package roomclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/soullock/tracker-server/internal/protocol"
	"github.com/soullock/tracker-server/pkg/document"
)

type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
	StatusError      Status = "error"
)

const (
	defaultPingInterval = 25 * time.Second
	writeTimeout        = 3 * time.Second
)

type Option func(*Client)

// WithOnChange registers a callback fired whenever the local document
// changes: on init, on server broadcasts, and on local applies.
func WithOnChange(fn func(document.State)) Option {
	return func(c *Client) { c.onChange = fn }
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) { c.pingInterval = d }
}

// Client mirrors the server's view of one room. The local document is
// speculative between a local apply and the next authoritative snapshot;
// the server does not echo a sender's own writes back.
type Client struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	status       Status
	roomID       string
	doc          *document.State
	lastSyncedAt time.Time
	lastErr      string

	onChange     func(document.State)
	pingInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial connects to a room. The returned client is live: a reader
// goroutine consumes server messages and a heartbeat goroutine keeps
// intermediaries from killing the idle connection.
func Dial(ctx context.Context, baseURL, roomID string, opts ...Option) (*Client, error) {
	c := &Client{
		status:       StatusConnecting,
		roomID:       roomID,
		pingInterval: defaultPingInterval,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	target, err := wsURL(baseURL, roomID)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial room %s: %w", roomID, err)
	}

	c.conn = conn
	c.status = StatusOpen
	c.ctx, c.cancel = context.WithCancel(context.Background())

	go c.readLoop()
	go c.heartbeat()
	return c, nil
}

func wsURL(baseURL, roomID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "https" || u.Scheme == "wss" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"roomId": {roomID}}.Encode()
	return u.String(), nil
}

func (c *Client) RoomID() string { return c.roomID }

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Document returns the current local copy; false until init has arrived.
func (c *Client) Document() (document.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc == nil {
		return document.State{}, false
	}
	return *c.doc, true
}

func (c *Client) LastSyncedAt() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSyncedAt, !c.lastSyncedAt.IsZero()
}

// Err returns the most recent server-reported error message, if any.
func (c *Client) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Apply computes the next document from the current one and adopts it
// immediately for optimistic feedback. When the transport is open the
// document is sent as sync_state; when it is not, the edit is local-only
// and will be overwritten by the next authoritative snapshot.
func (c *Client) Apply(update func(document.State) document.State) {
	c.mu.Lock()
	if c.doc == nil {
		c.mu.Unlock()
		return
	}
	next := update(*c.doc)
	c.adoptLocked(next, true)
	cb := c.onChange
	c.mu.Unlock()

	if cb != nil {
		cb(next)
	}
}

// SetDocument replaces the local document wholesale, as Apply does for
// computed updates.
func (c *Client) SetDocument(next document.State) {
	c.Apply(func(document.State) document.State { return next })
}

// Close ends the connection cleanly.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.status = StatusClosed
	c.mu.Unlock()

	c.cancel()
	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "bye")
	}
	<-c.done
	return err
}

// Done is closed once the reader loop has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// adoptLocked installs next as the local baseline and, when the transport
// is open, sends it as the sync unit. The server will not echo it back.
func (c *Client) adoptLocked(next document.State, send bool) {
	c.doc = &next

	if !send || c.status != StatusOpen || c.conn == nil {
		return
	}

	payload, err := json.Marshal(next)
	if err != nil {
		return
	}
	msg, err := json.Marshal(protocol.ClientMessage{Type: protocol.TypeSyncState, Payload: payload})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	if c.conn.Write(ctx, websocket.MessageText, msg) == nil {
		c.lastSyncedAt = time.Now()
	}
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.mu.Lock()
			if c.status != StatusClosed {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					c.status = StatusClosed
				default:
					c.status = StatusError
				}
			}
			c.mu.Unlock()
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	switch env.Type {
	case protocol.TypeInit:
		var init protocol.InitPayload
		if err := json.Unmarshal(env.Payload, &init); err != nil {
			return
		}
		c.adoptRemote(init.State)

	case protocol.TypeStateUpdated:
		// Last message wins: any unsent local edit is clobbered, which is
		// the documented consistency model.
		var state document.State
		if err := json.Unmarshal(env.Payload, &state); err != nil {
			return
		}
		c.adoptRemote(state)

	case protocol.TypeError:
		c.mu.Lock()
		if env.Message != "" {
			c.lastErr = env.Message
		} else {
			c.lastErr = env.Error
		}
		c.mu.Unlock()

	case protocol.TypePong:
	}
}

// adoptRemote replaces the local document with an authoritative snapshot.
func (c *Client) adoptRemote(state document.State) {
	c.mu.Lock()
	c.doc = &state
	c.lastErr = ""
	cb := c.onChange
	c.mu.Unlock()

	if cb != nil {
		cb(state)
	}
}

func (c *Client) heartbeat() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	ping, _ := json.Marshal(protocol.ClientMessage{Type: protocol.TypePing})
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			_ = c.conn.Write(ctx, websocket.MessageText, ping)
			cancel()
		}
	}
}
