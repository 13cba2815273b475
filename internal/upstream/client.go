package upstream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const defaultDialTimeout = 15 * time.Second

var (
	ErrClientClosed = errors.New("upstream client closed")
	ErrNotConnected = errors.New("upstream not connected")
)

// Config describes how to reach the realtime backend.
type Config struct {
	URL         string // ws(s) endpoint of the realtime backend
	APIKey      string
	Model       string
	Voice       string
	DialTimeout time.Duration
}

// Client is one realtime backend connection. Events are delivered on a
// single channel in backend production order; the channel is closed when
// the connection dies so the consumer can observe the drop.
//
// Writes are mutex-serialized. The client never reconnects on its own;
// the bridge owns reconnection policy.
type Client struct {
	conn   *websocket.Conn
	events chan Event
	done   chan struct{}
	stop   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	connected atomic.Bool

	errMu sync.Mutex
	err   error
}

// Dial opens a realtime backend connection and starts its read loop.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	endpoint, err := buildEndpoint(cfg)
	if err != nil {
		return nil, err
	}

	headers := make(http.Header)
	if cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("upstream dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("upstream dial failed: %w", err)
	}

	c := &Client{
		conn:   conn,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	c.connected.Store(true)

	go c.readLoop()
	return c, nil
}

func buildEndpoint(cfg Config) (string, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid upstream URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("upstream URL must use ws(s) or http(s), got %q", u.Scheme)
	}
	if cfg.Model != "" {
		q := u.Query()
		q.Set("model", cfg.Model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Events yields decoded backend events. The channel is closed when the
// connection terminates for any reason.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connected reports whether the backend connection is still live.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// SessionOptions configures the backend session. Turn detection stays
// disabled: the client signals end-of-turn explicitly.
type SessionOptions struct {
	Instructions string
	Voice        string
	Modalities   []string
}

// UpdateSession pushes new session instructions to the backend.
func (c *Client) UpdateSession(opts SessionOptions) error {
	modalities := opts.Modalities
	if len(modalities) == 0 {
		modalities = []string{"text", "audio"}
	}
	session := map[string]interface{}{
		"instructions":          opts.Instructions,
		"output_modalities":     modalities,
		"enable_turn_detection": false,
	}
	if opts.Voice != "" {
		session["voice"] = opts.Voice
	}
	return c.send(map[string]interface{}{
		"type":    "session.update",
		"session": session,
	})
}

// AppendAudio streams one base64 PCM chunk into the backend input buffer.
func (c *Client) AppendAudio(audioB64 string) error {
	return c.send(map[string]interface{}{
		"type":  "input_audio_buffer.append",
		"audio": audioB64,
	})
}

// CreateResponse asks the backend to generate the next assistant turn,
// optionally with per-turn instructions.
func (c *Client) CreateResponse(instructions string) error {
	msg := map[string]interface{}{"type": "response.create"}
	if instructions != "" {
		msg["response"] = map[string]interface{}{"instructions": instructions}
	}
	return c.send(msg)
}

// CancelResponse asks the backend to abandon the in-flight response.
func (c *Client) CancelResponse() error {
	return c.send(map[string]interface{}{"type": "response.cancel"})
}

func (c *Client) send(v interface{}) error {
	select {
	case <-c.stop:
		return ErrClientClosed
	default:
	}
	if !c.connected.Load() {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Close tears the connection down and waits for the read loop to exit.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.stop)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	<-c.done
	return nil
}

// Err returns the terminal connection error, if the read loop recorded one.
func (c *Client) Err() error {
	select {
	case <-c.done:
	default:
		return nil
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	if err == nil {
		return
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.connected.Store(false)
		close(c.events)
		close(c.done)
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			// A read error after Close is the shutdown itself, not a
			// connection fault.
			select {
			case <-c.stop:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.setErr(err)
				}
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		ev, err := decodeEvent(data)
		if err != nil {
			log.Printf("Upstream event decode failed: %v", err)
			continue
		}

		// Delivery blocks rather than drops: per-session ordering is a
		// hard guarantee and the bridge drains promptly.
		select {
		case c.events <- ev:
		case <-c.stop:
			return
		}
	}
}
