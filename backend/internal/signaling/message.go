package signaling

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/instructify/liveclass/backend/internal/classroom"
)

// Envelope types carried on a classroom channel.
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

// Sub types of a webrtc_signal envelope.
const (
	SignalStudentReady = "student_ready"
	SignalOffer        = "offer"
	SignalAnswer       = "answer"
	SignalICECandidate = "ice_candidate"
)

// JoinRequest is the first frame a client sends after the upgrade.
type JoinRequest struct {
	UserType string `json:"user_type"`
	UserName string `json:"user_name"`
}

// Message is the inbound envelope. Only the fields the relay acts on are
// decoded; relayed envelopes are forwarded from the raw frame.
type Message struct {
	Type        string `json:"type"`
	Message     string `json:"message,omitempty"`
	Query       string `json:"query,omitempty"`
	Text        string `json:"text,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	SignalType  string `json:"signal_type,omitempty"`
	RecipientID string `json:"recipient_id,omitempty"`
}

type ConnectionConfirmed struct {
	Type          string              `json:"type"`
	ClassID       string              `json:"class_id"`
	ParticipantID string              `json:"participant_id"`
	UserType      classroom.Role      `json:"user_type"`
	UserName      string              `json:"user_name"`
	Participants  []classroom.Summary `json:"participants"`
	Timestamp     time.Time           `json:"timestamp"`
}

// Presence is sent as user_joined and user_left.
type Presence struct {
	Type string `json:"type"`
	classroom.Summary
	Timestamp time.Time `json:"timestamp"`
}

type ChatMessage struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Message    string         `json:"message"`
	SenderID   string         `json:"sender_id"`
	SenderName string         `json:"sender_name"`
	SenderType classroom.Role `json:"sender_type"`
	Timestamp  time.Time      `json:"timestamp"`
	IsDoubt    bool           `json:"is_doubt"`
}

type MessageBlocked struct {
	Type      string    `json:"type"`
	Reason    string    `json:"reason"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type DoubtNotification struct {
	Type        string    `json:"type"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Message     string    `json:"message"`
	Confidence  float64   `json:"confidence"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

type AIResponse struct {
	Type      string    `json:"type"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

type NotesGenerated struct {
	Type      string    `json:"type"`
	Notes     string    `json:"notes"`
	Artifact  string    `json:"artifact"`
	Filename  string    `json:"filename"`
	Generated bool      `json:"ai_generated"`
	Timestamp time.Time `json:"timestamp"`
}

type SessionEnded struct {
	Type      string    `json:"type"`
	ClassID   string    `json:"class_id"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode envelope", "err", err)
		return nil
	}
	return b
}

// stamp overwrites the sender fields of a relayed frame. Every other field of
// the frame is forwarded untouched.
func stamp(raw []byte, p *classroom.Participant) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["sender_id"] = encode(p.ID)
	fields["sender_type"] = encode(p.Role)
	fields["sender_name"] = encode(p.Name)
	return json.Marshal(fields)
}
