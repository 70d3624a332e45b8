package signaling

import (
	"encoding/json"
	"time"
)

// Envelope types exchanged with the classroom relay.
const (
	TypeConnectionConfirmed = "connection_confirmed"
	TypeUserJoined          = "user_joined"
	TypeUserLeft            = "user_left"
	TypeChatMessage         = "chat_message"
	TypeMessageBlocked      = "message_blocked"
	TypeDoubtNotification   = "doubt_notification"
	TypeAIQuery             = "ai_query"
	TypeAIResponse          = "ai_response"
	TypeWebRTCSignal        = "webrtc_signal"
	TypeTranscriptChunk     = "transcript_chunk"
	TypeGenerateNotes       = "generate_notes"
	TypeNotesGenerated      = "notes_generated"
	TypeWhiteboardUpdate    = "whiteboard_update"
	TypeEndSession          = "end_session"
	TypeSessionEnded        = "session_ended"
	TypeError               = "error"
)

// Signal sub types.
const (
	SignalStudentReady = "student_ready"
	SignalOffer        = "offer"
	SignalAnswer       = "answer"
	SignalICECandidate = "ice_candidate"
)

// Participant roles as the relay spells them.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Message is a decoded inbound envelope. Fields not used by a given type stay
// zero. Raw keeps the original frame.
type Message struct {
	Type string `json:"type"`

	// connection_confirmed
	ClassID       string        `json:"class_id,omitempty"`
	ParticipantID string        `json:"participant_id,omitempty"`
	Participants  []Participant `json:"participants,omitempty"`

	// user_joined, user_left and connection_confirmed
	UserType string `json:"user_type,omitempty"`
	UserName string `json:"user_name,omitempty"`

	// relayed frames
	SenderID   string `json:"sender_id,omitempty"`
	SenderType string `json:"sender_type,omitempty"`
	SenderName string `json:"sender_name,omitempty"`

	// webrtc_signal
	SignalType  string          `json:"signal_type,omitempty"`
	Signal      json.RawMessage `json:"signal,omitempty"`
	RecipientID string          `json:"recipient_id,omitempty"`
	Restart     bool            `json:"restart,omitempty"`

	// chat, moderation and assistant
	ID          string  `json:"id,omitempty"`
	Message     string  `json:"message,omitempty"`
	IsDoubt     bool    `json:"is_doubt,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	StudentID   string  `json:"student_id,omitempty"`
	StudentName string  `json:"student_name,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Query       string  `json:"query,omitempty"`
	Response    string  `json:"response,omitempty"`

	// notes_generated
	Notes       string `json:"notes,omitempty"`
	Artifact    string `json:"artifact,omitempty"`
	Filename    string `json:"filename,omitempty"`
	AIGenerated bool   `json:"ai_generated,omitempty"`

	// whiteboard_update
	Data json.RawMessage `json:"data,omitempty"`

	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`

	Raw []byte `json:"-"`
}

// Participant is one roster entry.
type Participant struct {
	ID       string    `json:"participant_id"`
	Name     string    `json:"user_name"`
	Role     string    `json:"user_type"`
	JoinedAt time.Time `json:"joined_at"`
}

// JoinRequest is the first frame sent after connecting.
type JoinRequest struct {
	UserType string `json:"user_type"`
	UserName string `json:"user_name"`
}

// Outbound envelopes.

type SignalMessage struct {
	Type        string `json:"type"`
	SignalType  string `json:"signal_type"`
	Signal      any    `json:"signal,omitempty"`
	RecipientID string `json:"recipient_id,omitempty"`
	Restart     bool   `json:"restart,omitempty"`
}

type ChatMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type AIQuery struct {
	Type  string `json:"type"`
	Query string `json:"query"`
}

type TranscriptChunk struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
}

type WhiteboardUpdate struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Control is an envelope with no fields beyond its type.
type Control struct {
	Type string `json:"type"`
}

// NewSignal builds a webrtc_signal envelope.
func NewSignal(signalType, recipientID string, payload any, restart bool) *SignalMessage {
	return &SignalMessage{
		Type:        TypeWebRTCSignal,
		SignalType:  signalType,
		Signal:      payload,
		RecipientID: recipientID,
		Restart:     restart,
	}
}

// Decode parses a raw frame.
func Decode(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	msg.Raw = raw
	return &msg, nil
}

// DecodeSignal unmarshals the signal payload of a webrtc_signal envelope.
func (m *Message) DecodeSignal(v any) error {
	if len(m.Signal) == 0 {
		return ErrEmptySignal
	}
	return json.Unmarshal(m.Signal, v)
}
