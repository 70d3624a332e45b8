package signaling

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/instructify/liveclass/backend/internal/assistant"
	"github.com/instructify/liveclass/backend/internal/classroom"
)

// signalRoles lists who may originate each signal sub type.
var signalRoles = map[string][]classroom.Role{
	SignalStudentReady: {classroom.RoleStudent},
	SignalOffer:        {classroom.RoleTeacher},
	SignalAnswer:       {classroom.RoleStudent},
	SignalICECandidate: {classroom.RoleTeacher, classroom.RoleStudent},
}

func allowed(roles []classroom.Role, r classroom.Role) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}

func otherRole(r classroom.Role) classroom.Role {
	if r == classroom.RoleTeacher {
		return classroom.RoleStudent
	}
	return classroom.RoleTeacher
}

// relaySignal forwards a webrtc_signal with the sender stamped on it. An
// explicit recipient_id gets the frame alone; otherwise it goes to every
// participant of the opposite role. Unroutable signals are dropped.
func (h *Hub) relaySignal(room *classroom.Classroom, from *classroom.Participant, msg Message, raw []byte) {
	log := slog.With("class_id", room.ID, "participant_id", from.ID, "signal_type", msg.SignalType)

	roles, known := signalRoles[msg.SignalType]
	if !known {
		log.Debug("dropping unknown signal type")
		return
	}
	if !allowed(roles, from.Role) {
		log.Warn("dropping signal from wrong role", "role", from.Role)
		return
	}
	if msg.SignalType == SignalOffer {
		if cur := room.Teacher(); cur == nil || cur.ID != from.ID {
			log.Info("dropping offer from replaced teacher")
			return
		}
	}

	out, err := stamp(raw, from)
	if err != nil {
		log.Debug("dropping malformed signal", "err", err)
		return
	}

	var targets []*classroom.Participant
	if msg.RecipientID != "" {
		to, err := room.Resolve(msg.RecipientID)
		if err != nil || to.ID == from.ID {
			log.Debug("dropping signal for unknown recipient", "recipient_id", msg.RecipientID)
			return
		}
		targets = []*classroom.Participant{to}
	} else {
		targets = room.ByRole(otherRole(from.Role))
	}

	for _, to := range targets {
		if !to.Send(out) {
			log.Debug("signal not delivered", "recipient_id", to.ID)
			continue
		}
		h.trackSignal(room, from, to, msg.SignalType)
	}
}

func (h *Hub) trackSignal(room *classroom.Classroom, from, to *classroom.Participant, signalType string) {
	switch signalType {
	case SignalStudentReady:
		room.TrackSignal(to.ID, from.ID, classroom.LinkReady)
	case SignalOffer:
		room.TrackSignal(from.ID, to.ID, classroom.LinkNegotiating)
	case SignalAnswer:
		room.TrackSignal(to.ID, from.ID, classroom.LinkAnswered)
	}
}

// chat moderates a chat line and either rejects it privately or echoes it to
// the whole classroom, sender included, so everyone sees the same message id.
func (h *Hub) chat(ctx context.Context, room *classroom.Classroom, from *classroom.Participant, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	verdict, err := h.gateway.Moderate(ctx, assistant.ModerationRequest{
		Text:          text,
		Context:       room.TeacherContext(h.opts.ContextSize),
		ClassifyDoubt: from.Role == classroom.RoleStudent,
	})
	if err != nil {
		// Fail open: the gateway's own keyword layer has already run.
		if !errors.Is(err, assistant.ErrGatewayUnavailable) {
			slog.Warn("moderation failed", "class_id", room.ID, "err", err)
		}
		verdict = assistant.Verdict{Allowed: true}
	}

	now := h.now()
	if !verdict.Allowed {
		slog.Info("chat message blocked", "class_id", room.ID, "participant_id", from.ID, "category", verdict.Category)
		from.Send(encode(MessageBlocked{
			Type:      TypeMessageBlocked,
			Reason:    blockedReason(verdict),
			Message:   text,
			Timestamp: now,
		}))
		return
	}

	isDoubt := verdict.IsDoubt && from.Role == classroom.RoleStudent
	room.AppendChat(classroom.ChatLine{
		SenderID: from.ID,
		Name:     from.Name,
		Role:     from.Role,
		Text:     text,
		At:       now,
	})
	room.Broadcast(encode(ChatMessage{
		Type:       TypeChatMessage,
		ID:         uuid.NewString(),
		Message:    text,
		SenderID:   from.ID,
		SenderName: from.Name,
		SenderType: from.Role,
		Timestamp:  now,
		IsDoubt:    isDoubt,
	}), "")

	if !isDoubt {
		return
	}
	notice := encode(DoubtNotification{
		Type:        TypeDoubtNotification,
		StudentID:   from.ID,
		StudentName: from.Name,
		Message:     text,
		Confidence:  verdict.Confidence,
		Reason:      verdict.Reason,
		Timestamp:   now,
	})
	for _, t := range room.ByRole(classroom.RoleTeacher) {
		t.Send(notice)
	}
}

func blockedReason(v assistant.Verdict) string {
	if v.Reason != "" {
		return "Your message was blocked: " + v.Reason
	}
	return "Your message was blocked by the classroom content filter."
}

// answer replies to an ai_query privately.
func (h *Hub) answer(ctx context.Context, room *classroom.Classroom, from *classroom.Participant, query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return
	}
	resp, err := h.gateway.Answer(ctx, query, room.TeacherContext(h.opts.ContextSize))
	if err != nil {
		slog.Warn("ai query failed", "class_id", room.ID, "participant_id", from.ID, "err", err)
		resp = assistant.Apology
	}
	from.Send(encode(AIResponse{
		Type:      TypeAIResponse,
		Query:     query,
		Response:  resp,
		Timestamp: h.now(),
	}))
}

// notes generates study notes from the classroom transcript for the teacher.
func (h *Hub) notes(ctx context.Context, room *classroom.Classroom, from *classroom.Participant) {
	n, err := h.gateway.Notes(ctx, room.TranscriptText())
	if err != nil {
		msg := "Unable to generate notes"
		if errors.Is(err, assistant.ErrEmptyTranscript) {
			msg = "No transcript available for this classroom"
		}
		from.Send(encode(ErrorMessage{Type: TypeError, Error: msg}))
		return
	}

	now := h.now()
	artifact, filename := assistant.Export(room.ID, n.Text, now)
	from.Send(encode(NotesGenerated{
		Type:      TypeNotesGenerated,
		Notes:     n.Text,
		Artifact:  artifact,
		Filename:  filename,
		Generated: n.Generated,
		Timestamp: now,
	}))
}
