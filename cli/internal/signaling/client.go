package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/instructify/liveclass/cli/internal/network"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	outgoingBuffer = 64
)

var (
	ErrClosed      = errors.New("signaling connection closed")
	ErrSendBlocked = errors.New("signaling send buffer full")
	ErrEmptySignal = errors.New("webrtc_signal without payload")
)

// Client manages the WebSocket connection to the classroom relay.
type Client struct {
	url      string
	conn     *websocket.Conn
	incoming chan *Message
	outgoing chan []byte
	done     chan struct{}
	once     sync.Once
}

// NewClient creates a client for a classroom websocket URL.
func NewClient(url string) *Client {
	return &Client{
		url:      url,
		incoming: make(chan *Message, outgoingBuffer),
		outgoing: make(chan []byte, outgoingBuffer),
		done:     make(chan struct{}),
	}
}

// Connect dials the relay and starts the pumps.
func (c *Client) Connect(ctx context.Context) error {
	dialer := &websocket.Dialer{
		NetDialContext:   network.DialContext,
		HandshakeTimeout: 10 * time.Second,
		Proxy:            websocket.DefaultDialer.Proxy,
	}

	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect: %w (status %s)", err, resp.Status)
		}
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("signaling read failed", "err", err)
			}
			return
		}

		msg, err := Decode(raw)
		if err != nil {
			slog.Warn("dropping malformed frame", "err", err)
			continue
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump owns the connection: it flushes queued frames on shutdown, sends
// the close frame and closes the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.outgoing:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			for drained := false; !drained; {
				select {
				case frame := <-c.outgoing:
					if c.write(websocket.TextMessage, frame) != nil {
						return
					}
				default:
					drained = true
				}
			}
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}

// Send queues v for delivery. It never blocks.
func (c *Client) Send(v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return err
	}
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
	default:
		return ErrSendBlocked
	}
}

// Join sends the join frame. It must be the first frame on the connection.
func (c *Client) Join(role, name string) error {
	return c.Send(&JoinRequest{UserType: role, UserName: name})
}

// SendSignal sends a webrtc_signal envelope.
func (c *Client) SendSignal(signalType, recipientID string, payload any, restart bool) error {
	return c.Send(NewSignal(signalType, recipientID, payload, restart))
}

// Incoming returns decoded inbound frames. It is closed when the connection ends.
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// Done is closed once the client starts shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close stops the client. Frames already queued are still flushed.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}
