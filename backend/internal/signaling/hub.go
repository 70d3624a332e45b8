package signaling

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/instructify/liveclass/backend/internal/assistant"
	"github.com/instructify/liveclass/backend/internal/classroom"
)

// Options tunes the relay.
type Options struct {
	// ReadLimit caps a single inbound frame. SDP needs a few KiB at most.
	ReadLimit int64
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int
	// ContextSize is how many teacher chat lines are sent to the gateway.
	ContextSize int
	// GatewayTimeout bounds a single gateway call.
	GatewayTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 * 1024
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.ContextSize <= 0 {
		o.ContextSize = 10
	}
	if o.GatewayTimeout <= 0 {
		o.GatewayTimeout = 30 * time.Second
	}
}

// Hub is the central brain of the signaling server. It owns the classroom
// registry and routes every envelope between the participants of a classroom.
type Hub struct {
	registry *classroom.Registry
	gateway  assistant.Gateway
	opts     Options

	dropped atomic.Int64
	now     func() time.Time
}

// NewHub creates a Hub. A nil gateway behaves like an unreachable one.
func NewHub(registry *classroom.Registry, gateway assistant.Gateway, opts Options) *Hub {
	opts.setDefaults()
	if gateway == nil {
		gateway = assistant.New(nil)
	}
	return &Hub{
		registry: registry,
		gateway:  gateway,
		opts:     opts,
		now:      time.Now,
	}
}

func (h *Hub) Registry() *classroom.Registry {
	return h.registry
}

func (h *Hub) Gateway() assistant.Gateway {
	return h.gateway
}

// Dropped is the number of outbound messages and requests discarded so far.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// join handles the first frame of a connection.
func (h *Hub) join(c *Client, req JoinRequest) error {
	role, err := classroom.ParseRole(req.UserType)
	if err != nil {
		c.Deliver(encode(ErrorMessage{Type: TypeError, Error: "Invalid user type"}))
		return err
	}

	room, p, err := h.registry.Join(c.classID, role, req.UserName, c, func(p *classroom.Participant, roster []classroom.Summary) {
		p.Send(encode(ConnectionConfirmed{
			Type:          TypeConnectionConfirmed,
			ClassID:       c.classID,
			ParticipantID: p.ID,
			UserType:      p.Role,
			UserName:      p.Name,
			Participants:  roster,
			Timestamp:     h.now(),
		}))
	})
	if err != nil {
		if errors.Is(err, classroom.ErrNotFound) {
			c.Deliver(encode(ErrorMessage{Type: TypeError, Error: "Classroom not found"}))
		} else {
			c.Deliver(encode(ErrorMessage{Type: TypeError, Error: "Unable to join classroom"}))
		}
		slog.Info("join rejected", "class_id", c.classID, "err", err)
		return err
	}

	c.room = room
	c.participant = p
	slog.Info("participant joined", "class_id", room.ID, "participant_id", p.ID, "role", p.Role)

	room.Broadcast(encode(Presence{Type: TypeUserJoined, Summary: p.Summary(), Timestamp: h.now()}), p.ID)
	return nil
}

// leave runs when a connection's read loop exits.
func (h *Hub) leave(c *Client) {
	if c.participant == nil {
		return
	}
	p := c.participant
	left, removed := h.registry.Leave(c.classID, p.ID)
	if left == nil {
		return
	}
	slog.Info("participant left", "class_id", c.classID, "participant_id", p.ID, "role", p.Role)
	if !removed {
		c.room.Broadcast(encode(Presence{Type: TypeUserLeft, Summary: p.Summary(), Timestamp: h.now()}), p.ID)
	}
}

// dispatch routes one inbound envelope.
func (h *Hub) dispatch(c *Client, msg Message, raw []byte) {
	p := c.participant

	switch msg.Type {
	case TypeWebRTCSignal:
		h.relaySignal(c.room, p, msg, raw)

	case TypeChatMessage, TypeAIQuery, TypeGenerateNotes:
		c.enqueueAssist(msg)

	case TypeTranscriptChunk:
		if !h.requireTeacher(p, msg.Type) {
			return
		}
		at, _ := time.Parse(time.RFC3339, msg.Timestamp)
		if _, err := c.room.AppendTranscript(msg.Text, at); err != nil {
			slog.Debug("transcript chunk not stored", "class_id", c.classID, "err", err)
		}

	case TypeWhiteboardUpdate:
		if !h.requireTeacher(p, msg.Type) {
			return
		}
		out, err := stamp(raw, p)
		if err != nil {
			slog.Debug("dropping malformed whiteboard update", "err", err)
			return
		}
		for _, s := range c.room.ByRole(classroom.RoleStudent) {
			s.Send(out)
		}

	case TypeEndSession:
		if !h.requireTeacher(p, msg.Type) {
			return
		}
		h.endSession(c.room, p)

	default:
		slog.Debug("unknown message type", "type", msg.Type, "participant_id", p.ID)
	}
}

func (h *Hub) requireTeacher(p *classroom.Participant, typ string) bool {
	if p.Role == classroom.RoleTeacher {
		return true
	}
	slog.Warn("dropping teacher-only message", "type", typ, "participant_id", p.ID, "role", p.Role)
	return false
}

// endSession tells everyone the class is over and closes every channel.
func (h *Hub) endSession(room *classroom.Classroom, by *classroom.Participant) {
	slog.Info("session ended by teacher", "class_id", room.ID, "participant_id", by.ID)
	room.Broadcast(encode(SessionEnded{Type: TypeSessionEnded, ClassID: room.ID, Timestamp: h.now()}), "")
	if err := h.registry.End(room.ID); err != nil {
		slog.Debug("end session", "class_id", room.ID, "err", err)
	}
}

// assist handles the envelopes that need the gateway.
func (h *Hub) assist(ctx context.Context, c *Client, msg Message) {
	ctx, cancel := context.WithTimeout(ctx, h.opts.GatewayTimeout)
	defer cancel()

	switch msg.Type {
	case TypeChatMessage:
		h.chat(ctx, c.room, c.participant, msg.Message)
	case TypeAIQuery:
		h.answer(ctx, c.room, c.participant, msg.Query)
	case TypeGenerateNotes:
		if h.requireTeacher(c.participant, msg.Type) {
			h.notes(ctx, c.room, c.participant)
		}
	}
}
