package signaling

import "log/slog"

const eventBuffer = 64

// Handler routes inbound frames to typed channels. All channels are closed
// when the connection ends.
type Handler struct {
	client    *Client
	Confirmed chan *Message
	Joined    chan *Message
	Left      chan *Message
	Signal    chan *Message
	// Events carries frames only shown to the user: chat, moderation,
	// assistant answers, notes and whiteboard updates.
	Events chan *Message
	Ended  chan *Message
	Error  chan string
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:    client,
		Confirmed: make(chan *Message, 1),
		Joined:    make(chan *Message, eventBuffer),
		Left:      make(chan *Message, eventBuffer),
		Signal:    make(chan *Message, eventBuffer),
		Events:    make(chan *Message, eventBuffer),
		Ended:     make(chan *Message, 1),
		Error:     make(chan string, 8),
	}
}

// Start consumes the client's incoming frames until the connection closes.
func (h *Handler) Start() {
	defer h.close()

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case TypeConnectionConfirmed:
			offer(h.Confirmed, msg, msg.Type)

		case TypeUserJoined:
			h.deliver(h.Joined, msg)

		case TypeUserLeft:
			h.deliver(h.Left, msg)

		case TypeWebRTCSignal:
			h.deliver(h.Signal, msg)

		case TypeChatMessage, TypeMessageBlocked, TypeDoubtNotification,
			TypeAIResponse, TypeNotesGenerated, TypeWhiteboardUpdate:
			offer(h.Events, msg, msg.Type)

		case TypeSessionEnded:
			offer(h.Ended, msg, msg.Type)

		case TypeError:
			offer(h.Error, msg.Error, msg.Type)

		default:
			slog.Debug("ignoring frame", "type", msg.Type)
		}
	}
}

// deliver blocks until the consumer takes msg or the client shuts down.
func (h *Handler) deliver(ch chan *Message, msg *Message) {
	select {
	case ch <- msg:
	case <-h.client.Done():
	}
}

// offer delivers without blocking; display-only frames may be dropped when the
// consumer falls behind, signaling frames never are.
func offer[T any](ch chan T, v T, kind string) {
	select {
	case ch <- v:
	default:
		slog.Warn("dropping frame, consumer is behind", "type", kind)
	}
}

func (h *Handler) close() {
	close(h.Confirmed)
	close(h.Joined)
	close(h.Left)
	close(h.Signal)
	close(h.Events)
	close(h.Ended)
	close(h.Error)
}
