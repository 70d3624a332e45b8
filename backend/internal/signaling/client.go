package signaling

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/instructify/liveclass/backend/internal/classroom"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the join frame after the upgrade.
	joinWait = 10 * time.Second

	// Chat and AI work queued per connection before new requests are dropped.
	assistQueue = 16
)

// Client is one participant's websocket connection: the relay side of the
// participant's signal channel.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	classID string

	// send is drained by WritePump. It is never closed; done is.
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// Set by the join frame, read only from ReadPump and the assist worker.
	room        *classroom.Classroom
	participant *classroom.Participant

	assist chan Message
}

// NewClient wraps an upgraded connection for classID.
func NewClient(hub *Hub, conn *websocket.Conn, classID string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		classID: classID,
		send:    make(chan []byte, hub.opts.SendBuffer),
		done:    make(chan struct{}),
		assist:  make(chan Message, assistQueue),
	}
}

// Deliver queues payload without blocking. A full buffer drops the message.
func (c *Client) Deliver(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		c.hub.dropped.Add(1)
		slog.Warn("send buffer full, dropping message", "class_id", c.classID)
		return false
	}
}

// Close stops the write pump after it flushes what is already queued.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) id() string {
	if c.participant == nil {
		return ""
	}
	return c.participant.ID
}

// ReadPump reads the join frame and then every envelope from the connection.
// Envelopes from one connection are handled one at a time in arrival order.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	ctx, cancel := context.WithCancel(context.Background())
	// WritePump owns closing the connection so queued frames still go out.
	defer func() {
		cancel()
		c.hub.leave(c)
		c.Close()
	}()

	c.conn.SetReadLimit(c.hub.opts.ReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(joinWait))

	var join JoinRequest
	if err := c.conn.ReadJSON(&join); err != nil {
		slog.Debug("no join frame", "class_id", c.classID, "err", err)
		return
	}
	if err := c.hub.join(c, join); err != nil {
		return
	}

	go c.assistLoop(ctx)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", "class_id", c.classID, "participant_id", c.id(), "err", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Debug("dropping malformed envelope", "participant_id", c.id(), "err", err)
			continue
		}
		c.hub.dispatch(c, msg, raw)
	}
}

// assistLoop handles chat and AI work for this connection in order, off the
// read path so gateway latency never stalls signaling.
func (c *Client) assistLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.assist:
			c.hub.assist(ctx, c, msg)
		}
	}
}

func (c *Client) enqueueAssist(msg Message) {
	select {
	case c.assist <- msg:
	default:
		c.hub.dropped.Add(1)
		slog.Warn("assistant queue full, dropping request", "participant_id", c.id(), "type", msg.Type)
	}
}

// WritePump pumps queued envelopes to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				slog.Debug("websocket write failed", "class_id", c.classID, "err", err)
				return
			}

		case <-c.done:
			// Flush whatever was queued before the close, e.g. an error or session_ended.
			for drained := false; !drained; {
				select {
				case message := <-c.send:
					if err := c.write(message); err != nil {
						return
					}
				default:
					drained = true
				}
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(message []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, message)
}
