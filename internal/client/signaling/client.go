// Package signaling is the client end of the control channel.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrClosed = errors.New("signaling client closed")

// Client manages the WebSocket connection to the hub. Acks are matched to
// their requests; everything else is delivered on Incoming in arrival order.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	token     string

	incoming chan *protocol.Envelope
	outgoing chan core.Frame
	done     chan struct{}

	nextAck   atomic.Int64
	mu        sync.Mutex
	pending   map[int64]chan protocol.AckData
	closeOnce sync.Once
}

func NewClient(serverURL, token string) *Client {
	return &Client{
		serverURL: serverURL,
		token:     token,
		incoming:  make(chan *protocol.Envelope, 64),
		outgoing:  make(chan core.Frame, 64),
		done:      make(chan struct{}),
		pending:   make(map[int64]chan protocol.AckData),
	}
}

// Connect establishes the WebSocket connection to the server.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()
	log.Info().Str("module", "signaling").Str("server", u.Host).Msg("connected")
	return nil
}

func (c *Client) readPump() {
	defer func() {
		_ = c.conn.Close()
		close(c.incoming)
		c.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signaling").Msg("read")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		env, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signaling").Msg("bad frame")
			continue
		}
		if env.Event == protocol.EventAck {
			c.resolveAck(data)
			continue
		}
		c.incoming <- env
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Warn().Err(err).Str("module", "signaling").Msg("write")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) resolveAck(data []byte) {
	var ack protocol.Ack
	if err := json.Unmarshal(data, &ack); err != nil {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[ack.Ack]
	delete(c.pending, ack.Ack)
	c.mu.Unlock()
	if ok {
		ch <- ack.Data
	}
}

func (c *Client) enqueue(frame core.Frame) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Emit sends an event without waiting for the server.
func (c *Client) Emit(event string, v any) error {
	frame, err := protocol.Encode(event, v)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

// Request sends an event and waits for its ack. A rejection comes back as an error.
func (c *Client) Request(ctx context.Context, event string, v any) (protocol.AckData, error) {
	id := c.nextAck.Add(1)
	ch := make(chan protocol.AckData, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	frame, err := protocol.EncodeWithAck(event, v, id)
	if err != nil {
		return protocol.AckData{}, err
	}
	if err := c.enqueue(frame); err != nil {
		return protocol.AckData{}, err
	}

	select {
	case data := <-ch:
		if !data.OK {
			return data, fmt.Errorf("%s: %s", event, data.Error)
		}
		return data, nil
	case <-ctx.Done():
		return protocol.AckData{}, ctx.Err()
	case <-c.done:
		return protocol.AckData{}, ErrClosed
	}
}

// Incoming is closed when the connection drops.
func (c *Client) Incoming() <-chan *protocol.Envelope {
	return c.incoming
}

// Done is closed once Close was called or the server went away.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
