package classroom

import (
	"time"
)

// Role is the part a participant plays in a classroom.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// ParseRole validates a user_type coming off the wire.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleTeacher, RoleStudent:
		return Role(s), nil
	}
	return "", WrapError("parse role", ErrInvalidRole, s)
}

// Sink is the outbound half of a participant's signal channel.
type Sink interface {
	// Deliver queues an encoded envelope. It reports false when the message
	// was dropped (closed channel or full buffer).
	Deliver(payload []byte) bool
	// Close terminates the channel.
	Close()
}

// Participant is one connection inside a classroom. Identity is per
// connection: two students may share a display name.
type Participant struct {
	ID       string
	Role     Role
	Name     string
	JoinedAt time.Time

	sink Sink
}

// Summary is the wire-friendly view of a participant.
type Summary struct {
	ID       string    `json:"participant_id"`
	Name     string    `json:"user_name"`
	Role     Role      `json:"user_type"`
	JoinedAt time.Time `json:"joined_at"`
}

func (p *Participant) Summary() Summary {
	return Summary{
		ID:       p.ID,
		Name:     p.Name,
		Role:     p.Role,
		JoinedAt: p.JoinedAt,
	}
}

// Send delivers an encoded envelope to this participant.
func (p *Participant) Send(payload []byte) bool {
	if p.sink == nil {
		return false
	}
	return p.sink.Deliver(payload)
}

func (p *Participant) close() {
	if p.sink != nil {
		p.sink.Close()
	}
}
